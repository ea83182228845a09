package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/lingopath/lingopath-backend/internal/logger"
	"github.com/lingopath/lingopath-backend/internal/repos"
	"github.com/lingopath/lingopath-backend/internal/types"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrNotSessionOwner = errors.New("session does not belong to caller")
	ErrLessonNotFound  = errors.New("lesson not found")
	ErrNoQuestions     = errors.New("lesson has no questions")
)

// SessionView is the API shape of a session: the session row plus the
// snapshot questions with the answer keys stripped.
type SessionView struct {
	Session   *types.TestSession   `json:"session"`
	Questions []types.QuestionView `json:"questions"`
}

// TestSessionService orchestrates the test lifecycle: starting a session
// freezes a question snapshot, submitting grades what it can inline and
// defers machine-scored items to the grading queue, finalizing folds the
// graded snapshot into session totals and the attempt ledger exactly once.
type TestSessionService interface {
	StartSession(ctx context.Context, userID, lessonID uuid.UUID) (*SessionView, error)
	SubmitSession(ctx context.Context, userID, sessionID uuid.UUID, answers []types.AnswerInput) (*SessionView, error)
	GetSession(ctx context.Context, userID, sessionID uuid.UUID) (*SessionView, error)
	// FinalizeGraded completes a session from its graded snapshot. Safe to
	// replay; only the first caller past the status gate writes anything.
	FinalizeGraded(ctx context.Context, session *types.TestSession, questions []*types.SessionQuestion) error
}

// GradingEnqueuer hands a session over to the asynchronous grading queue.
// Kept as a narrow seam so the session service does not depend on the
// worker wiring.
type GradingEnqueuer interface {
	Enqueue(ctx context.Context, tx *gorm.DB, userID, sessionID uuid.UUID) error
}

type testSessionService struct {
	db           *gorm.DB
	log          *logger.Logger
	lessonRepo   repos.LessonRepo
	questionRepo repos.TestQuestionRepo
	sessionRepo  repos.TestSessionRepo
	snapshotRepo repos.SessionQuestionRepo
	grading      GradingService
	ledger       AttemptLedgerService
	progressSync ProgressSyncService
	enqueuer     GradingEnqueuer
	notifier     SessionNotifier
}

func NewTestSessionService(
	db *gorm.DB,
	baseLog *logger.Logger,
	lessonRepo repos.LessonRepo,
	questionRepo repos.TestQuestionRepo,
	sessionRepo repos.TestSessionRepo,
	snapshotRepo repos.SessionQuestionRepo,
	grading GradingService,
	ledger AttemptLedgerService,
	progressSync ProgressSyncService,
	enqueuer GradingEnqueuer,
	notifier SessionNotifier,
) TestSessionService {
	return &testSessionService{
		db:           db,
		log:          baseLog.With("service", "TestSessionService"),
		lessonRepo:   lessonRepo,
		questionRepo: questionRepo,
		sessionRepo:  sessionRepo,
		snapshotRepo: snapshotRepo,
		grading:      grading,
		ledger:       ledger,
		progressSync: progressSync,
		enqueuer:     enqueuer,
		notifier:     notifier,
	}
}

func (s *testSessionService) StartSession(ctx context.Context, userID, lessonID uuid.UUID) (*SessionView, error) {
	lessons, err := s.lessonRepo.GetByIDs(ctx, nil, []uuid.UUID{lessonID})
	if err != nil {
		return nil, fmt.Errorf("load lesson: %w", err)
	}
	if len(lessons) == 0 {
		return nil, ErrLessonNotFound
	}
	lesson := lessons[0]

	bank, err := s.questionRepo.GetByLessonID(ctx, nil, lessonID)
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	if len(bank) == 0 {
		return nil, ErrNoQuestions
	}

	order := make([]int, len(bank))
	for i := range order {
		order[i] = i
	}
	if lesson.ShuffleQuestions {
		rand.Shuffle(len(order), func(i, j int) {
			order[i], order[j] = order[j], order[i]
		})
	}

	attempt, err := s.sessionRepo.MaxAttemptNumber(ctx, nil, userID, lessonID)
	if err != nil {
		return nil, fmt.Errorf("count attempts: %w", err)
	}

	session := &types.TestSession{
		ID:            uuid.New(),
		UserID:        userID,
		LessonID:      lessonID,
		Status:        types.SessionStatusPending,
		AttemptNumber: attempt + 1,
	}

	snapshot := make([]*types.SessionQuestion, 0, len(bank))
	for pos, bankIdx := range order {
		q := bank[bankIdx]
		snapshot = append(snapshot, &types.SessionQuestion{
			ID:            uuid.New(),
			SessionID:     session.ID,
			QuestionID:    q.ID,
			Index:         pos,
			Type:          q.Type,
			PromptMD:      q.PromptMD,
			Options:       q.Options,
			CorrectAnswer: q.CorrectAnswer,
			Transcript:    q.Transcript,
			Weight:        q.Weight,
			SkillType:     q.SkillType,
		})
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.sessionRepo.Create(ctx, tx, []*types.TestSession{session}); err != nil {
			return err
		}
		if _, err := s.snapshotRepo.Create(ctx, tx, snapshot); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	s.log.Info("session started",
		"user_id", userID,
		"lesson_id", lessonID,
		"session_id", session.ID,
		"attempt", session.AttemptNumber,
		"questions", len(snapshot),
	)
	return buildSessionView(session, snapshot), nil
}

func (s *testSessionService) SubmitSession(ctx context.Context, userID, sessionID uuid.UUID, answers []types.AnswerInput) (*SessionView, error) {
	session, err := s.sessionRepo.GetByID(ctx, nil, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	if session.UserID != userID {
		return nil, ErrNotSessionOwner
	}

	questions, err := s.snapshotRepo.GetBySessionID(ctx, nil, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	// Resubmitting a session that already left pending is a replay, not an
	// error: hand back the current state.
	if session.Status != types.SessionStatusPending {
		return buildSessionView(session, questions), nil
	}

	attachAnswers(questions, answers)

	if err := s.grading.GradeDeterministic(questions); err != nil {
		return nil, fmt.Errorf("grade: %w", err)
	}

	if HasAIScoredItems(questions) {
		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			won, err := s.sessionRepo.UpdateFieldsIfStatus(ctx, tx, session.ID, types.SessionStatusPending, map[string]interface{}{
				"status": types.SessionStatusGrading,
			})
			if err != nil {
				return err
			}
			if !won {
				// a concurrent submit got here first
				return nil
			}
			if err := s.snapshotRepo.Save(ctx, tx, questions); err != nil {
				return err
			}
			return s.enqueuer.Enqueue(ctx, tx, userID, session.ID)
		})
		if err != nil {
			return nil, fmt.Errorf("queue grading: %w", err)
		}

		session.Status = types.SessionStatusGrading
		s.notifier.GradingQueued(userID, session)
		s.log.Info("session queued for grading",
			"session_id", session.ID,
			"user_id", userID,
		)
		return buildSessionView(session, questions), nil
	}

	// Fully deterministic sessions finish in one round trip.
	if err := s.FinalizeGraded(ctx, session, questions); err != nil {
		return nil, err
	}
	return buildSessionView(session, questions), nil
}

func (s *testSessionService) GetSession(ctx context.Context, userID, sessionID uuid.UUID) (*SessionView, error) {
	session, err := s.sessionRepo.GetByID(ctx, nil, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	if session.UserID != userID {
		return nil, ErrNotSessionOwner
	}

	questions, err := s.snapshotRepo.GetBySessionID(ctx, nil, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	return buildSessionView(session, questions), nil
}

func (s *testSessionService) FinalizeGraded(ctx context.Context, session *types.TestSession, questions []*types.SessionQuestion) error {
	if session == nil {
		return fmt.Errorf("nil session")
	}

	res := Summarize(questions)
	now := time.Now()
	updates := map[string]interface{}{
		"status":       types.SessionStatusCompleted,
		"score":        res.Score,
		"max_score":    res.MaxScore,
		"percentage":   res.Percentage,
		"proficiency":  ProficiencyBand(res.Percentage),
		"needs_review": res.NeedsReview,
		"completed_at": now,
	}

	won := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// The status gate makes finalize idempotent: pending covers the
		// all-deterministic path, grading covers the worker path.
		for _, from := range []string{types.SessionStatusPending, types.SessionStatusGrading} {
			w, err := s.sessionRepo.UpdateFieldsIfStatus(ctx, tx, session.ID, from, updates)
			if err != nil {
				return err
			}
			if w {
				won = true
				break
			}
		}
		if !won {
			return nil
		}

		session.Status = types.SessionStatusCompleted
		session.Score = res.Score
		session.MaxScore = res.MaxScore
		session.Percentage = res.Percentage
		session.Proficiency = ProficiencyBand(res.Percentage)
		session.NeedsReview = res.NeedsReview
		session.CompletedAt = &now

		if err := s.snapshotRepo.Save(ctx, tx, questions); err != nil {
			return err
		}
		if err := s.ledger.RecordAttempt(ctx, tx, session, questions); err != nil {
			return err
		}
		return s.progressSync.SyncAfterLesson(ctx, tx, session.UserID, session.LessonID)
	})
	if err != nil {
		return fmt.Errorf("finalize session: %w", err)
	}

	if !won {
		// Someone else already completed it; nothing to announce.
		return nil
	}

	s.notifier.SessionCompleted(session.UserID, session)
	s.log.Info("session completed",
		"session_id", session.ID,
		"user_id", session.UserID,
		"score", res.Score,
		"max_score", res.MaxScore,
		"percentage", res.Percentage,
		"needs_review", res.NeedsReview,
	)
	return nil
}

// ProficiencyBand maps a final percentage onto a CEFR-like label.
func ProficiencyBand(percentage float64) string {
	switch {
	case percentage >= 90:
		return "C1"
	case percentage >= 75:
		return "B2"
	case percentage >= 60:
		return "B1"
	case percentage >= 40:
		return "A2"
	default:
		return "A1"
	}
}

func attachAnswers(questions []*types.SessionQuestion, answers []types.AnswerInput) {
	byQuestion := make(map[uuid.UUID]types.AnswerInput, len(answers))
	for _, a := range answers {
		byQuestion[a.QuestionID] = a
	}
	for _, q := range questions {
		if q == nil {
			continue
		}
		ans, ok := byQuestion[q.QuestionID]
		if !ok {
			// unanswered questions grade against the empty answer
			ans = types.AnswerInput{QuestionID: q.QuestionID}
		}
		raw, err := json.Marshal(ans)
		if err != nil {
			continue
		}
		q.UserAnswer = datatypes.JSON(raw)
	}
}

func buildSessionView(session *types.TestSession, questions []*types.SessionQuestion) *SessionView {
	views := make([]types.QuestionView, 0, len(questions))
	for _, q := range questions {
		if q == nil {
			continue
		}
		v := types.QuestionView{
			ID:         q.ID,
			QuestionID: q.QuestionID,
			Index:      q.Index,
			Type:       q.Type,
			PromptMD:   q.PromptMD,
			Weight:     q.Weight,
			SkillType:  q.SkillType,
		}
		if len(q.Options) > 0 {
			_ = json.Unmarshal(q.Options, &v.Options)
		}
		if q.Type == types.QuestionTypeSpeaking {
			v.Transcript = q.Transcript
		}
		views = append(views, v)
	}
	return &SessionView{Session: session, Questions: views}
}
