package repos

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/lingopath/lingopath-backend/internal/logger"
	"github.com/lingopath/lingopath-backend/internal/types"
)

type GradingRunRepo interface {
	Create(ctx context.Context, tx *gorm.DB, runs []*types.GradingRun) ([]*types.GradingRun, error)
	GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.GradingRun, error)
	GetLatestBySessionID(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID) (*types.GradingRun, error)
	HasActiveForSession(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID) (bool, error)
	ClaimNextRunnable(ctx context.Context, tx *gorm.DB, maxAttempts int, retryDelay time.Duration, staleRunning time.Duration) (*types.GradingRun, error)
	UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error
	Heartbeat(ctx context.Context, tx *gorm.DB, id uuid.UUID) error
}

type gradingRunRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewGradingRunRepo(db *gorm.DB, baseLog *logger.Logger) GradingRunRepo {
	repoLog := baseLog.With("repo", "GradingRunRepo")
	return &gradingRunRepo{db: db, log: repoLog}
}

func (r *gradingRunRepo) Create(ctx context.Context, tx *gorm.DB, runs []*types.GradingRun) ([]*types.GradingRun, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if len(runs) == 0 {
		return []*types.GradingRun{}, nil
	}

	if err := transaction.WithContext(ctx).Create(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}

func (r *gradingRunRepo) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.GradingRun, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.GradingRun
	if len(ids) == 0 {
		return results, nil
	}

	if err := transaction.WithContext(ctx).
		Where("id IN ?", ids).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *gradingRunRepo) GetLatestBySessionID(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID) (*types.GradingRun, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if sessionID == uuid.Nil {
		return nil, nil
	}

	var run types.GradingRun
	err := transaction.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at DESC").
		First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

func (r *gradingRunRepo) HasActiveForSession(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID) (bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if sessionID == uuid.Nil {
		return false, nil
	}

	var count int64
	err := transaction.WithContext(ctx).
		Model(&types.GradingRun{}).
		Where("session_id = ? AND status IN ?", sessionID, []string{
			types.GradingRunStatusQueued,
			types.GradingRunStatusRunning,
			types.GradingRunStatusFailed,
		}).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *gradingRunRepo) ClaimNextRunnable(
	ctx context.Context,
	tx *gorm.DB,
	maxAttempts int,
	retryDelay time.Duration,
	staleRunning time.Duration,
) (*types.GradingRun, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	now := time.Now()
	retryCutoff := now.Add(-retryDelay)
	staleCutoff := now.Add(-staleRunning)

	var claimed *types.GradingRun

	err := transaction.WithContext(ctx).Transaction(func(txx *gorm.DB) error {
		var run types.GradingRun

		q := txx.Session(&gorm.Session{})
		if txx.Dialector.Name() == "postgres" {
			// sqlite (tests) has no row locking
			q = q.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		}
		q = q.Where(`
			(
				status = ?
				OR (
					status = ?
					AND attempts < ?
					AND (last_error_at IS NULL OR last_error_at < ?)
				)
				OR (
					status = ?
					AND heartbeat_at IS NOT NULL
					AND heartbeat_at < ?
				)
			)
		`, types.GradingRunStatusQueued, types.GradingRunStatusFailed, maxAttempts, retryCutoff, types.GradingRunStatusRunning, staleCutoff).
			Order("created_at ASC")

		qErr := q.First(&run).Error
		if errors.Is(qErr, gorm.ErrRecordNotFound) {
			return nil
		}
		if qErr != nil {
			return qErr
		}

		// Claim it: mark running, increment attempts, set lock/heartbeat.
		uErr := txx.Model(&types.GradingRun{}).
			Where("id = ?", run.ID).
			Updates(map[string]interface{}{
				"status":       types.GradingRunStatusRunning,
				"attempts":     gorm.Expr("attempts + 1"),
				"locked_at":    now,
				"heartbeat_at": now,
				"updated_at":   now,
			}).Error
		if uErr != nil {
			return uErr
		}

		run.Status = types.GradingRunStatusRunning
		run.Attempts++
		claimed = &run
		return nil
	})

	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (r *gradingRunRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if id == uuid.Nil {
		return nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now()
	}
	return transaction.WithContext(ctx).
		Model(&types.GradingRun{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *gradingRunRepo) Heartbeat(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if id == uuid.Nil {
		return nil
	}

	now := time.Now()
	return transaction.WithContext(ctx).
		Model(&types.GradingRun{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"heartbeat_at": now,
			"updated_at":   now,
		}).Error
}
