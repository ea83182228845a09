package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lingopath/lingopath-backend/internal/logger"
	"github.com/lingopath/lingopath-backend/internal/types"
)

type LessonProgressRepo interface {
	Create(ctx context.Context, tx *gorm.DB, rows []*types.LessonProgress) ([]*types.LessonProgress, error)
	GetByUserAndLesson(ctx context.Context, tx *gorm.DB, userID, lessonID uuid.UUID) (*types.LessonProgress, error)
	GetByUserAndLessonIDs(ctx context.Context, tx *gorm.DB, userID uuid.UUID, lessonIDs []uuid.UUID) ([]*types.LessonProgress, error)
	Save(ctx context.Context, tx *gorm.DB, row *types.LessonProgress) error
}

type lessonProgressRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewLessonProgressRepo(db *gorm.DB, baseLog *logger.Logger) LessonProgressRepo {
	repoLog := baseLog.With("repo", "LessonProgressRepo")
	return &lessonProgressRepo{db: db, log: repoLog}
}

func (r *lessonProgressRepo) Create(ctx context.Context, tx *gorm.DB, rows []*types.LessonProgress) ([]*types.LessonProgress, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if len(rows) == 0 {
		return []*types.LessonProgress{}, nil
	}

	if err := transaction.WithContext(ctx).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *lessonProgressRepo) GetByUserAndLesson(ctx context.Context, tx *gorm.DB, userID, lessonID uuid.UUID) (*types.LessonProgress, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if userID == uuid.Nil || lessonID == uuid.Nil {
		return nil, nil
	}

	var row types.LessonProgress
	err := transaction.WithContext(ctx).
		Where("user_id = ? AND lesson_id = ?", userID, lessonID).
		First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *lessonProgressRepo) GetByUserAndLessonIDs(ctx context.Context, tx *gorm.DB, userID uuid.UUID, lessonIDs []uuid.UUID) ([]*types.LessonProgress, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.LessonProgress
	if userID == uuid.Nil || len(lessonIDs) == 0 {
		return results, nil
	}

	if err := transaction.WithContext(ctx).
		Where("user_id = ? AND lesson_id IN ?", userID, lessonIDs).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *lessonProgressRepo) Save(ctx context.Context, tx *gorm.DB, row *types.LessonProgress) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if row == nil {
		return nil
	}

	if err := transaction.WithContext(ctx).Save(row).Error; err != nil {
		return err
	}
	return nil
}
