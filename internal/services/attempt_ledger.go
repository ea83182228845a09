package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/lingopath/lingopath-backend/internal/logger"
	"github.com/lingopath/lingopath-backend/internal/repos"
	"github.com/lingopath/lingopath-backend/internal/types"
)

// AttemptLedgerService maintains the per-(user, lesson) record of finished
// attempts: the best score ever reached, the answers of that best attempt,
// and the append-only trail of wrong answers across all attempts.
type AttemptLedgerService interface {
	RecordAttempt(ctx context.Context, tx *gorm.DB, session *types.TestSession, questions []*types.SessionQuestion) error
	GetProgress(ctx context.Context, userID, lessonID uuid.UUID) (*types.LessonProgress, error)
	GetWrongAnswers(ctx context.Context, userID, lessonID uuid.UUID) ([]*types.WrongAnswerItem, error)
}

type attemptLedgerService struct {
	db           *gorm.DB
	log          *logger.Logger
	progressRepo repos.LessonProgressRepo
	wrongRepo    repos.WrongAnswerRepo
}

func NewAttemptLedgerService(
	db *gorm.DB,
	baseLog *logger.Logger,
	progressRepo repos.LessonProgressRepo,
	wrongRepo repos.WrongAnswerRepo,
) AttemptLedgerService {
	return &attemptLedgerService{
		db:           db,
		log:          baseLog.With("service", "AttemptLedgerService"),
		progressRepo: progressRepo,
		wrongRepo:    wrongRepo,
	}
}

func (s *attemptLedgerService) RecordAttempt(ctx context.Context, tx *gorm.DB, session *types.TestSession, questions []*types.SessionQuestion) error {
	if session == nil {
		return fmt.Errorf("nil session")
	}

	records := make([]types.AnswerRecord, 0, len(questions))
	var wrongItems []*types.WrongAnswerItem

	for _, q := range questions {
		if q == nil {
			continue
		}
		correct := q.IsCorrect != nil && *q.IsCorrect
		records = append(records, types.AnswerRecord{
			QuestionID:    q.QuestionID,
			Index:         q.Index,
			Type:          q.Type,
			Answer:        decodeAnswer(q.UserAnswer),
			IsCorrect:     correct,
			AwardedPoints: q.AwardedPoints,
			AIScore:       q.AIScore,
		})
		if !correct {
			wrongItems = append(wrongItems, &types.WrongAnswerItem{
				ID:            uuid.New(),
				UserID:        session.UserID,
				LessonID:      session.LessonID,
				QuestionID:    q.QuestionID,
				AttemptNumber: session.AttemptNumber,
				QuestionType:  q.Type,
				QuestionIndex: q.Index,
				PromptMD:      q.PromptMD,
				CorrectAnswer: q.CorrectAnswer,
				UserAnswer:    q.UserAnswer,
			})
		}
	}

	answersJSON, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("marshal answer records: %w", err)
	}

	now := time.Now()

	progress, err := s.progressRepo.GetByUserAndLesson(ctx, tx, session.UserID, session.LessonID)
	if err != nil {
		return fmt.Errorf("load progress: %w", err)
	}

	if progress == nil {
		progress = &types.LessonProgress{
			ID:            uuid.New(),
			UserID:        session.UserID,
			LessonID:      session.LessonID,
			Score:         session.Score,
			MaxScore:      session.MaxScore,
			AttemptNumber: session.AttemptNumber,
			AnswersJSON:   datatypes.JSON(answersJSON),
			NeedsReview:   session.NeedsReview,
			CompletedAt:   &now,
		}
		if _, err := s.progressRepo.Create(ctx, tx, []*types.LessonProgress{progress}); err != nil {
			return fmt.Errorf("create progress: %w", err)
		}
	} else {
		if session.AttemptNumber > progress.AttemptNumber {
			progress.AttemptNumber = session.AttemptNumber
		}
		// Best attempt wins; ties keep the earlier attempt's snapshot.
		if session.Percentage > percentageOf(progress.Score, progress.MaxScore) {
			progress.Score = session.Score
			progress.MaxScore = session.MaxScore
			progress.AnswersJSON = datatypes.JSON(answersJSON)
			progress.NeedsReview = session.NeedsReview
		}
		if progress.CompletedAt == nil {
			progress.CompletedAt = &now
		}
		if err := s.progressRepo.Save(ctx, tx, progress); err != nil {
			return fmt.Errorf("save progress: %w", err)
		}
	}

	if err := s.wrongRepo.CreateIgnoreDuplicates(ctx, tx, wrongItems); err != nil {
		return fmt.Errorf("record wrong answers: %w", err)
	}

	s.log.Debug("recorded attempt",
		"user_id", session.UserID,
		"lesson_id", session.LessonID,
		"attempt", session.AttemptNumber,
		"percentage", session.Percentage,
		"wrong_items", len(wrongItems),
	)
	return nil
}

func (s *attemptLedgerService) GetProgress(ctx context.Context, userID, lessonID uuid.UUID) (*types.LessonProgress, error) {
	return s.progressRepo.GetByUserAndLesson(ctx, nil, userID, lessonID)
}

func (s *attemptLedgerService) GetWrongAnswers(ctx context.Context, userID, lessonID uuid.UUID) ([]*types.WrongAnswerItem, error) {
	return s.wrongRepo.GetByUserAndLesson(ctx, nil, userID, lessonID)
}

func percentageOf(score, maxScore float64) float64 {
	if maxScore <= 0 {
		return 0
	}
	return score / maxScore * 100
}
