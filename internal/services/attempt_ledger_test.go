package services

import (
	"bytes"
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/lingopath/lingopath-backend/internal/config"
	"github.com/lingopath/lingopath-backend/internal/types"
)

func ledgerSession(userID, lessonID uuid.UUID, attempt int, score, maxScore float64) *types.TestSession {
	pct := 0.0
	if maxScore > 0 {
		pct = score / maxScore * 100
	}
	return &types.TestSession{
		ID:            uuid.New(),
		UserID:        userID,
		LessonID:      lessonID,
		AttemptNumber: attempt,
		Status:        types.SessionStatusCompleted,
		Score:         score,
		MaxScore:      maxScore,
		Percentage:    pct,
	}
}

func ledgerItem(questionID uuid.UUID, index int, correct bool, points float64) *types.SessionQuestion {
	return &types.SessionQuestion{
		ID:            uuid.New(),
		SessionID:     uuid.New(),
		QuestionID:    questionID,
		Index:         index,
		Type:          types.QuestionTypeMultipleChoice,
		PromptMD:      "Choose the right word.",
		CorrectAnswer: "le chat",
		Weight:        25,
		IsCorrect:     &correct,
		AwardedPoints: points,
	}
}

func TestRecordAttemptCreatesProgressRow(t *testing.T) {
	stack := newSessionStack(t, &fakeAIClient{}, config.Default().Worker)
	ctx := context.Background()
	userID, lessonID := uuid.New(), uuid.New()
	questionID := uuid.New()

	session := ledgerSession(userID, lessonID, 1, 25, 50)
	items := []*types.SessionQuestion{
		ledgerItem(questionID, 0, true, 25),
		ledgerItem(uuid.New(), 1, false, 0),
	}
	if err := stack.ledger.RecordAttempt(ctx, nil, session, items); err != nil {
		t.Fatalf("RecordAttempt: %v", err)
	}

	progress, err := stack.ledger.GetProgress(ctx, userID, lessonID)
	if err != nil {
		t.Fatalf("GetProgress: %v", err)
	}
	if progress == nil {
		t.Fatalf("progress row missing")
	}
	if progress.Score != 25 || progress.MaxScore != 50 {
		t.Fatalf("snapshot: want=25/50 got=%v/%v", progress.Score, progress.MaxScore)
	}
	if progress.AttemptNumber != 1 {
		t.Fatalf("attempt: want=1 got=%d", progress.AttemptNumber)
	}
	if progress.CompletedAt == nil {
		t.Fatalf("completed_at not set on first attempt")
	}
	if len(progress.AnswersJSON) == 0 {
		t.Fatalf("answers snapshot missing")
	}

	wrong, err := stack.ledger.GetWrongAnswers(ctx, userID, lessonID)
	if err != nil {
		t.Fatalf("GetWrongAnswers: %v", err)
	}
	if len(wrong) != 1 {
		t.Fatalf("wrong rows: want=1 got=%d", len(wrong))
	}
}

func TestRecordAttemptBestScoreWins(t *testing.T) {
	stack := newSessionStack(t, &fakeAIClient{}, config.Default().Worker)
	ctx := context.Background()
	userID, lessonID := uuid.New(), uuid.New()
	questionID := uuid.New()

	record := func(attempt int, score float64) {
		t.Helper()
		session := ledgerSession(userID, lessonID, attempt, score, 100)
		if err := stack.ledger.RecordAttempt(ctx, nil, session, []*types.SessionQuestion{
			ledgerItem(questionID, 0, score == 100, score),
		}); err != nil {
			t.Fatalf("RecordAttempt (attempt %d): %v", attempt, err)
		}
	}

	record(1, 50)
	first, err := stack.ledger.GetProgress(ctx, userID, lessonID)
	if err != nil {
		t.Fatalf("GetProgress: %v", err)
	}
	firstCompletedAt := *first.CompletedAt

	// A better attempt replaces the snapshot.
	record(2, 80)
	progress, err := stack.ledger.GetProgress(ctx, userID, lessonID)
	if err != nil {
		t.Fatalf("GetProgress (after improvement): %v", err)
	}
	if progress.Score != 80 {
		t.Fatalf("score: want=80 got=%v", progress.Score)
	}
	if progress.AttemptNumber != 2 {
		t.Fatalf("attempt: want=2 got=%d", progress.AttemptNumber)
	}

	// A worse attempt advances the counter but keeps the best snapshot.
	record(3, 60)
	progress, err = stack.ledger.GetProgress(ctx, userID, lessonID)
	if err != nil {
		t.Fatalf("GetProgress (after regression): %v", err)
	}
	if progress.Score != 80 {
		t.Fatalf("best score regressed: got=%v", progress.Score)
	}
	if progress.AttemptNumber != 3 {
		t.Fatalf("attempt: want=3 got=%d", progress.AttemptNumber)
	}
	if !progress.CompletedAt.Equal(firstCompletedAt) {
		t.Fatalf("completed_at moved after first attempt")
	}
}

func TestRecordAttemptTieKeepsEarlierSnapshot(t *testing.T) {
	stack := newSessionStack(t, &fakeAIClient{}, config.Default().Worker)
	ctx := context.Background()
	userID, lessonID := uuid.New(), uuid.New()

	if err := stack.ledger.RecordAttempt(ctx, nil, ledgerSession(userID, lessonID, 1, 70, 100), []*types.SessionQuestion{
		ledgerItem(uuid.New(), 0, false, 70),
	}); err != nil {
		t.Fatalf("RecordAttempt: %v", err)
	}
	first, err := stack.ledger.GetProgress(ctx, userID, lessonID)
	if err != nil {
		t.Fatalf("GetProgress: %v", err)
	}
	firstAnswers := append([]byte(nil), first.AnswersJSON...)

	if err := stack.ledger.RecordAttempt(ctx, nil, ledgerSession(userID, lessonID, 2, 70, 100), []*types.SessionQuestion{
		ledgerItem(uuid.New(), 0, false, 70),
	}); err != nil {
		t.Fatalf("RecordAttempt (tie): %v", err)
	}
	progress, err := stack.ledger.GetProgress(ctx, userID, lessonID)
	if err != nil {
		t.Fatalf("GetProgress (tie): %v", err)
	}
	if !bytes.Equal(progress.AnswersJSON, firstAnswers) {
		t.Fatalf("tie replaced the earlier attempt's answers")
	}
	if progress.AttemptNumber != 2 {
		t.Fatalf("attempt: want=2 got=%d", progress.AttemptNumber)
	}
}

func TestRecordAttemptWrongAnswersAppendOnly(t *testing.T) {
	stack := newSessionStack(t, &fakeAIClient{}, config.Default().Worker)
	ctx := context.Background()
	userID, lessonID := uuid.New(), uuid.New()
	questionID := uuid.New()

	attempt1 := ledgerSession(userID, lessonID, 1, 0, 100)
	if err := stack.ledger.RecordAttempt(ctx, nil, attempt1, []*types.SessionQuestion{
		ledgerItem(questionID, 0, false, 0),
	}); err != nil {
		t.Fatalf("RecordAttempt: %v", err)
	}

	// Replaying the same attempt must not duplicate the trail.
	if err := stack.ledger.RecordAttempt(ctx, nil, attempt1, []*types.SessionQuestion{
		ledgerItem(questionID, 0, false, 0),
	}); err != nil {
		t.Fatalf("RecordAttempt (replay): %v", err)
	}
	wrong, err := stack.ledger.GetWrongAnswers(ctx, userID, lessonID)
	if err != nil {
		t.Fatalf("GetWrongAnswers: %v", err)
	}
	if len(wrong) != 1 {
		t.Fatalf("replay appended wrong rows: want=1 got=%d", len(wrong))
	}

	// Missing the same question on a later attempt appends a new row.
	if err := stack.ledger.RecordAttempt(ctx, nil, ledgerSession(userID, lessonID, 2, 0, 100), []*types.SessionQuestion{
		ledgerItem(questionID, 0, false, 0),
	}); err != nil {
		t.Fatalf("RecordAttempt (second attempt): %v", err)
	}
	wrong, err = stack.ledger.GetWrongAnswers(ctx, userID, lessonID)
	if err != nil {
		t.Fatalf("GetWrongAnswers (second attempt): %v", err)
	}
	if len(wrong) != 2 {
		t.Fatalf("wrong rows: want=2 got=%d", len(wrong))
	}
	if wrong[0].AttemptNumber != 1 || wrong[1].AttemptNumber != 2 {
		t.Fatalf("trail not ordered by attempt: got=%d,%d", wrong[0].AttemptNumber, wrong[1].AttemptNumber)
	}
}
