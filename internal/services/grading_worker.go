package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/lingopath/lingopath-backend/internal/config"
	"github.com/lingopath/lingopath-backend/internal/logger"
	"github.com/lingopath/lingopath-backend/internal/repos"
	"github.com/lingopath/lingopath-backend/internal/types"
)

// GradingWorkerService is the database-backed grading queue. Submits with
// machine-scored items enqueue a run; the worker claims runnable rows one at
// a time, scores the outstanding items and finalizes the session. Failed
// runs retry after a delay; once the attempt budget is spent, a scorer
// outage is absorbed by zeroing the unscored items so the session still
// completes. Only runs that cannot load or finalize their session park as
// dead for an operator.
type GradingWorkerService interface {
	GradingEnqueuer
	// BindSessions breaks the constructor cycle with the session service:
	// the worker finalizes through it, submits enqueue through the worker.
	BindSessions(sessions TestSessionService)
	StartWorker(ctx context.Context)
	// ProcessNext claims and processes at most one run. Returns false when
	// the queue had nothing runnable.
	ProcessNext(ctx context.Context) (bool, error)
}

type gradingWorkerService struct {
	db           *gorm.DB
	log          *logger.Logger
	runRepo      repos.GradingRunRepo
	sessionRepo  repos.TestSessionRepo
	snapshotRepo repos.SessionQuestionRepo
	lessonRepo   repos.LessonRepo
	grading      GradingService
	sessions     TestSessionService
	notifier     SessionNotifier
	cfg          config.WorkerConfig
}

func NewGradingWorkerService(
	db *gorm.DB,
	baseLog *logger.Logger,
	runRepo repos.GradingRunRepo,
	sessionRepo repos.TestSessionRepo,
	snapshotRepo repos.SessionQuestionRepo,
	lessonRepo repos.LessonRepo,
	grading GradingService,
	sessions TestSessionService,
	notifier SessionNotifier,
	cfg config.WorkerConfig,
) GradingWorkerService {
	return &gradingWorkerService{
		db:           db,
		log:          baseLog.With("service", "GradingWorkerService"),
		runRepo:      runRepo,
		sessionRepo:  sessionRepo,
		snapshotRepo: snapshotRepo,
		lessonRepo:   lessonRepo,
		grading:      grading,
		sessions:     sessions,
		notifier:     notifier,
		cfg:          cfg,
	}
}

func (s *gradingWorkerService) BindSessions(sessions TestSessionService) {
	s.sessions = sessions
}

func (s *gradingWorkerService) Enqueue(ctx context.Context, tx *gorm.DB, userID, sessionID uuid.UUID) error {
	active, err := s.runRepo.HasActiveForSession(ctx, tx, sessionID)
	if err != nil {
		return fmt.Errorf("check active runs: %w", err)
	}
	if active {
		// one live run per session is enough
		return nil
	}

	run := &types.GradingRun{
		ID:        uuid.New(),
		UserID:    userID,
		SessionID: sessionID,
		Status:    types.GradingRunStatusQueued,
		Metadata:  datatypes.JSON([]byte("{}")),
	}
	if _, err := s.runRepo.Create(ctx, tx, []*types.GradingRun{run}); err != nil {
		return fmt.Errorf("enqueue grading run: %w", err)
	}
	return nil
}

func (s *gradingWorkerService) StartWorker(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(s.cfg.PollInterval())
		defer ticker.Stop()

		s.log.Info("grading worker started",
			"poll_interval", s.cfg.PollInterval().String(),
			"max_attempts", s.cfg.MaxAttempts,
		)
		for {
			select {
			case <-ctx.Done():
				s.log.Info("grading worker stopped")
				return
			case <-ticker.C:
				for {
					processed, err := s.ProcessNext(ctx)
					if err != nil {
						s.log.Error("grading worker pass failed", "error", err)
						break
					}
					if !processed {
						break
					}
				}
			}
		}
	}()
}

func (s *gradingWorkerService) ProcessNext(ctx context.Context) (bool, error) {
	run, err := s.runRepo.ClaimNextRunnable(ctx, nil, s.cfg.MaxAttempts, s.cfg.RetryDelay(), s.cfg.StaleRunning())
	if err != nil {
		return false, fmt.Errorf("claim run: %w", err)
	}
	if run == nil {
		return false, nil
	}

	s.processRun(ctx, run)
	return true, nil
}

func (s *gradingWorkerService) processRun(ctx context.Context, run *types.GradingRun) {
	fail := func(cause error) {
		status := types.GradingRunStatusFailed
		if run.Attempts >= s.cfg.MaxAttempts {
			status = types.GradingRunStatusDead
			s.notifier.GradingFailed(run.UserID, run.SessionID, cause.Error())
			s.log.Error("grading run dead",
				"run_id", run.ID,
				"session_id", run.SessionID,
				"attempts", run.Attempts,
				"error", cause.Error(),
			)
		} else {
			s.log.Warn("grading run failed, will retry",
				"run_id", run.ID,
				"session_id", run.SessionID,
				"attempts", run.Attempts,
				"error", cause.Error(),
			)
		}
		now := time.Now()
		if err := s.runRepo.UpdateFields(ctx, nil, run.ID, map[string]interface{}{
			"status":        status,
			"error":         cause.Error(),
			"last_error_at": now,
		}); err != nil {
			s.log.Error("failed to persist run failure", "run_id", run.ID, "error", err)
		}
	}

	succeed := func(note string) {
		if err := s.runRepo.UpdateFields(ctx, nil, run.ID, map[string]interface{}{
			"status": types.GradingRunStatusSucceeded,
			"error":  note,
		}); err != nil {
			s.log.Error("failed to persist run success", "run_id", run.ID, "error", err)
		}
	}

	if s.sessions == nil {
		fail(fmt.Errorf("session service not bound"))
		return
	}

	session, err := s.sessionRepo.GetByID(ctx, nil, run.SessionID)
	if err != nil {
		fail(fmt.Errorf("load session: %w", err))
		return
	}
	if session == nil {
		fail(fmt.Errorf("session %s not found", run.SessionID))
		return
	}
	if session.Status == types.SessionStatusCompleted {
		// stale run; someone already finished the job
		succeed("")
		return
	}

	stopHeartbeat := s.startHeartbeat(ctx, run.ID)
	defer stopHeartbeat()

	questions, err := s.snapshotRepo.GetBySessionID(ctx, nil, run.SessionID)
	if err != nil {
		fail(fmt.Errorf("load snapshot: %w", err))
		return
	}

	lessons, err := s.lessonRepo.GetByIDs(ctx, nil, []uuid.UUID{session.LessonID})
	if err != nil {
		fail(fmt.Errorf("load lesson: %w", err))
		return
	}
	languageCode := ""
	if len(lessons) > 0 {
		languageCode = lessons[0].LanguageCode
	}

	// A retried run may find some items already graded; only the gap is
	// scored again.
	if err := s.grading.GradeDeterministic(questions); err != nil {
		fail(fmt.Errorf("grade deterministic: %w", err))
		return
	}
	note := ""
	if err := s.grading.GradeMachineScored(ctx, languageCode, questions); err != nil {
		if run.Attempts < s.cfg.MaxAttempts {
			fail(fmt.Errorf("grade machine-scored: %w", err))
			return
		}
		// Retry budget is spent on a scorer outage. Score the outstanding
		// items as zero and finalize anyway; a stuck session is worse than
		// a zero on the items nobody could score.
		ZeroUngradedMachineScored(questions)
		note = fmt.Sprintf("scored outstanding items as zero after %d attempts: %s", run.Attempts, err.Error())
		s.log.Warn("scorer unavailable past retry budget, absorbing unscored items as zero",
			"run_id", run.ID,
			"session_id", run.SessionID,
			"attempts", run.Attempts,
			"error", err.Error(),
		)
	}

	if err := s.sessions.FinalizeGraded(ctx, session, questions); err != nil {
		fail(err)
		return
	}

	succeed(note)
	s.log.Info("grading run succeeded",
		"run_id", run.ID,
		"session_id", run.SessionID,
		"attempts", run.Attempts,
	)
}

// startHeartbeat refreshes the claim stamp while a run is in flight so a
// slow scoring pass is not reclaimed as stale by another worker. The
// returned stop function must be called before the run row is released.
func (s *gradingWorkerService) startHeartbeat(ctx context.Context, runID uuid.UUID) func() {
	interval := s.cfg.StaleRunning() / 3
	if interval < time.Second {
		interval = time.Second
	}

	hbCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-hbCtx.Done():
				return
			case <-ticker.C:
				if err := s.runRepo.Heartbeat(hbCtx, nil, runID); err != nil {
					s.log.Warn("heartbeat failed", "run_id", runID, "error", err)
				}
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}
