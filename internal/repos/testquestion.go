package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lingopath/lingopath-backend/internal/logger"
	"github.com/lingopath/lingopath-backend/internal/types"
)

type TestQuestionRepo interface {
	GetByLessonID(ctx context.Context, tx *gorm.DB, lessonID uuid.UUID) ([]*types.TestQuestion, error)
}

type testQuestionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTestQuestionRepo(db *gorm.DB, baseLog *logger.Logger) TestQuestionRepo {
	repoLog := baseLog.With("repo", "TestQuestionRepo")
	return &testQuestionRepo{db: db, log: repoLog}
}

func (r *testQuestionRepo) GetByLessonID(ctx context.Context, tx *gorm.DB, lessonID uuid.UUID) ([]*types.TestQuestion, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.TestQuestion
	if lessonID == uuid.Nil {
		return results, nil
	}

	if err := transaction.WithContext(ctx).
		Where("lesson_id = ?", lessonID).
		Order(`"index" ASC`).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
