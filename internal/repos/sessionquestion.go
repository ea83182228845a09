package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lingopath/lingopath-backend/internal/logger"
	"github.com/lingopath/lingopath-backend/internal/types"
)

type SessionQuestionRepo interface {
	Create(ctx context.Context, tx *gorm.DB, questions []*types.SessionQuestion) ([]*types.SessionQuestion, error)
	GetBySessionID(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID) ([]*types.SessionQuestion, error)
	Save(ctx context.Context, tx *gorm.DB, questions []*types.SessionQuestion) error
}

type sessionQuestionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSessionQuestionRepo(db *gorm.DB, baseLog *logger.Logger) SessionQuestionRepo {
	repoLog := baseLog.With("repo", "SessionQuestionRepo")
	return &sessionQuestionRepo{db: db, log: repoLog}
}

func (r *sessionQuestionRepo) Create(ctx context.Context, tx *gorm.DB, questions []*types.SessionQuestion) ([]*types.SessionQuestion, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if len(questions) == 0 {
		return []*types.SessionQuestion{}, nil
	}

	if err := transaction.WithContext(ctx).Create(&questions).Error; err != nil {
		return nil, err
	}
	return questions, nil
}

func (r *sessionQuestionRepo) GetBySessionID(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID) ([]*types.SessionQuestion, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.SessionQuestion
	if sessionID == uuid.Nil {
		return results, nil
	}

	if err := transaction.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order(`"index" ASC`).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *sessionQuestionRepo) Save(ctx context.Context, tx *gorm.DB, questions []*types.SessionQuestion) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	for _, q := range questions {
		if q == nil {
			continue
		}
		if err := transaction.WithContext(ctx).Save(q).Error; err != nil {
			return err
		}
	}
	return nil
}
