package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lingopath/lingopath-backend/internal/logger"
	"github.com/lingopath/lingopath-backend/internal/types"
)

type TestSessionRepo interface {
	Create(ctx context.Context, tx *gorm.DB, sessions []*types.TestSession) ([]*types.TestSession, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.TestSession, error)
	MaxAttemptNumber(ctx context.Context, tx *gorm.DB, userID, lessonID uuid.UUID) (int, error)
	UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error
	// UpdateFieldsIfStatus applies updates only when the stored status still
	// matches fromStatus. Returns true when this call won the transition.
	UpdateFieldsIfStatus(ctx context.Context, tx *gorm.DB, id uuid.UUID, fromStatus string, updates map[string]interface{}) (bool, error)
}

type testSessionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTestSessionRepo(db *gorm.DB, baseLog *logger.Logger) TestSessionRepo {
	repoLog := baseLog.With("repo", "TestSessionRepo")
	return &testSessionRepo{db: db, log: repoLog}
}

func (r *testSessionRepo) Create(ctx context.Context, tx *gorm.DB, sessions []*types.TestSession) ([]*types.TestSession, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if len(sessions) == 0 {
		return []*types.TestSession{}, nil
	}

	if err := transaction.WithContext(ctx).Create(&sessions).Error; err != nil {
		return nil, err
	}
	return sessions, nil
}

func (r *testSessionRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.TestSession, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if id == uuid.Nil {
		return nil, nil
	}

	var session types.TestSession
	err := transaction.WithContext(ctx).
		Where("id = ?", id).
		First(&session).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *testSessionRepo) MaxAttemptNumber(ctx context.Context, tx *gorm.DB, userID, lessonID uuid.UUID) (int, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if userID == uuid.Nil || lessonID == uuid.Nil {
		return 0, nil
	}

	var max int
	err := transaction.WithContext(ctx).
		Model(&types.TestSession{}).
		Where("user_id = ? AND lesson_id = ?", userID, lessonID).
		Select("COALESCE(MAX(attempt_number), 0)").
		Scan(&max).Error
	if err != nil {
		return 0, err
	}
	return max, nil
}

func (r *testSessionRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if id == uuid.Nil || len(updates) == 0 {
		return nil
	}

	if err := transaction.WithContext(ctx).
		Model(&types.TestSession{}).
		Where("id = ?", id).
		Updates(updates).Error; err != nil {
		return err
	}
	return nil
}

func (r *testSessionRepo) UpdateFieldsIfStatus(ctx context.Context, tx *gorm.DB, id uuid.UUID, fromStatus string, updates map[string]interface{}) (bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if id == uuid.Nil || len(updates) == 0 {
		return false, nil
	}

	res := transaction.WithContext(ctx).
		Model(&types.TestSession{}).
		Where("id = ? AND status = ?", id, fromStatus).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
