package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lingopath/lingopath-backend/internal/logger"
	"github.com/lingopath/lingopath-backend/internal/types"
)

type EnrollmentRepo interface {
	Create(ctx context.Context, tx *gorm.DB, rows []*types.Enrollment) ([]*types.Enrollment, error)
	GetByUserID(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]*types.Enrollment, error)
	GetByUserAndVersion(ctx context.Context, tx *gorm.DB, userID, courseVersionID uuid.UUID) (*types.Enrollment, error)
	GetByUserAndVersionIDs(ctx context.Context, tx *gorm.DB, userID uuid.UUID, courseVersionIDs []uuid.UUID) ([]*types.Enrollment, error)
	Save(ctx context.Context, tx *gorm.DB, row *types.Enrollment) error
}

type enrollmentRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewEnrollmentRepo(db *gorm.DB, baseLog *logger.Logger) EnrollmentRepo {
	repoLog := baseLog.With("repo", "EnrollmentRepo")
	return &enrollmentRepo{db: db, log: repoLog}
}

func (r *enrollmentRepo) Create(ctx context.Context, tx *gorm.DB, rows []*types.Enrollment) ([]*types.Enrollment, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if len(rows) == 0 {
		return []*types.Enrollment{}, nil
	}

	if err := transaction.WithContext(ctx).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *enrollmentRepo) GetByUserID(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]*types.Enrollment, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.Enrollment
	if userID == uuid.Nil {
		return results, nil
	}

	if err := transaction.WithContext(ctx).
		Where("user_id = ?", userID).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *enrollmentRepo) GetByUserAndVersion(ctx context.Context, tx *gorm.DB, userID, courseVersionID uuid.UUID) (*types.Enrollment, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if userID == uuid.Nil || courseVersionID == uuid.Nil {
		return nil, nil
	}

	var row types.Enrollment
	err := transaction.WithContext(ctx).
		Where("user_id = ? AND course_version_id = ?", userID, courseVersionID).
		First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *enrollmentRepo) GetByUserAndVersionIDs(ctx context.Context, tx *gorm.DB, userID uuid.UUID, courseVersionIDs []uuid.UUID) ([]*types.Enrollment, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.Enrollment
	if userID == uuid.Nil || len(courseVersionIDs) == 0 {
		return results, nil
	}

	if err := transaction.WithContext(ctx).
		Where("user_id = ? AND course_version_id IN ?", userID, courseVersionIDs).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *enrollmentRepo) Save(ctx context.Context, tx *gorm.DB, row *types.Enrollment) error {
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
