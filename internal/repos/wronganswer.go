package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/lingopath/lingopath-backend/internal/logger"
	"github.com/lingopath/lingopath-backend/internal/types"
)

type WrongAnswerRepo interface {
	// CreateIgnoreDuplicates appends trail rows; rows that collide on
	// (user, lesson, question, attempt) are silently skipped so a replayed
	// finalize cannot double-write an attempt.
	CreateIgnoreDuplicates(ctx context.Context, tx *gorm.DB, items []*types.WrongAnswerItem) error
	GetByUserAndLesson(ctx context.Context, tx *gorm.DB, userID, lessonID uuid.UUID) ([]*types.WrongAnswerItem, error)
	CountByUserAndLesson(ctx context.Context, tx *gorm.DB, userID, lessonID uuid.UUID) (int64, error)
}

type wrongAnswerRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewWrongAnswerRepo(db *gorm.DB, baseLog *logger.Logger) WrongAnswerRepo {
	repoLog := baseLog.With("repo", "WrongAnswerRepo")
	return &wrongAnswerRepo{db: db, log: repoLog}
}

func (r *wrongAnswerRepo) CreateIgnoreDuplicates(ctx context.Context, tx *gorm.DB, items []*types.WrongAnswerItem) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if len(items) == 0 {
		return nil
	}

	if err := transaction.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&items).Error; err != nil {
		return err
	}
	return nil
}

func (r *wrongAnswerRepo) GetByUserAndLesson(ctx context.Context, tx *gorm.DB, userID, lessonID uuid.UUID) ([]*types.WrongAnswerItem, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.WrongAnswerItem
	if userID == uuid.Nil || lessonID == uuid.Nil {
		return results, nil
	}

	if err := transaction.WithContext(ctx).
		Where("user_id = ? AND lesson_id = ?", userID, lessonID).
		Order("attempt_number ASC, question_index ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *wrongAnswerRepo) CountByUserAndLesson(ctx context.Context, tx *gorm.DB, userID, lessonID uuid.UUID) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if userID == uuid.Nil || lessonID == uuid.Nil {
		return 0, nil
	}

	var count int64
	if err := transaction.WithContext(ctx).
		Model(&types.WrongAnswerItem{}).
		Where("user_id = ? AND lesson_id = ?", userID, lessonID).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
