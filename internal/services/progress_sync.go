package services

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lingopath/lingopath-backend/internal/logger"
	"github.com/lingopath/lingopath-backend/internal/repos"
	"github.com/lingopath/lingopath-backend/internal/types"
)

// ErrEnrollmentNotFound is returned when a resync is requested for a course
// version the user never enrolled into.
var ErrEnrollmentNotFound = fmt.Errorf("enrollment not found")

// lessonPassPercent is the minimum best-score percentage for a lesson to
// count toward enrollment completion.
const lessonPassPercent = 70.0

// ProgressSyncService recomputes enrollment progress from lesson_progress
// rows. The rollup is a full recomputation every time, so replaying it is
// harmless. A lesson counts only while its best score passes and the
// completion is fresher than the lesson's content; editing a lesson silently
// drops it from the fraction until the learner passes it again.
type ProgressSyncService interface {
	SyncAfterLesson(ctx context.Context, tx *gorm.DB, userID, lessonID uuid.UUID) error
	ResyncEnrollment(ctx context.Context, tx *gorm.DB, userID, courseVersionID uuid.UUID) (*types.Enrollment, error)
	ListEnrollments(ctx context.Context, userID uuid.UUID) ([]*types.Enrollment, error)
}

type progressSyncService struct {
	db             *gorm.DB
	log            *logger.Logger
	lessonRepo     repos.LessonRepo
	progressRepo   repos.LessonProgressRepo
	enrollmentRepo repos.EnrollmentRepo
	notifier       SessionNotifier
}

func NewProgressSyncService(
	db *gorm.DB,
	baseLog *logger.Logger,
	lessonRepo repos.LessonRepo,
	progressRepo repos.LessonProgressRepo,
	enrollmentRepo repos.EnrollmentRepo,
	notifier SessionNotifier,
) ProgressSyncService {
	return &progressSyncService{
		db:             db,
		log:            baseLog.With("service", "ProgressSyncService"),
		lessonRepo:     lessonRepo,
		progressRepo:   progressRepo,
		enrollmentRepo: enrollmentRepo,
		notifier:       notifier,
	}
}

func (s *progressSyncService) SyncAfterLesson(ctx context.Context, tx *gorm.DB, userID, lessonID uuid.UUID) error {
	lessons, err := s.lessonRepo.GetByIDs(ctx, tx, []uuid.UUID{lessonID})
	if err != nil {
		return fmt.Errorf("load lesson: %w", err)
	}
	if len(lessons) == 0 {
		return fmt.Errorf("lesson %s not found", lessonID)
	}

	_, err = s.ResyncEnrollment(ctx, tx, userID, lessons[0].CourseVersionID)
	if err == ErrEnrollmentNotFound {
		// Practicing a lesson without an enrollment is allowed; there is
		// simply nothing to roll up.
		return nil
	}
	return err
}

func (s *progressSyncService) ResyncEnrollment(ctx context.Context, tx *gorm.DB, userID, courseVersionID uuid.UUID) (*types.Enrollment, error) {
	enrollment, err := s.enrollmentRepo.GetByUserAndVersion(ctx, tx, userID, courseVersionID)
	if err != nil {
		return nil, fmt.Errorf("load enrollment: %w", err)
	}
	if enrollment == nil {
		return nil, ErrEnrollmentNotFound
	}

	lessons, err := s.lessonRepo.GetByCourseVersionID(ctx, tx, courseVersionID)
	if err != nil {
		return nil, fmt.Errorf("load lessons: %w", err)
	}

	lessonIDs := make([]uuid.UUID, 0, len(lessons))
	for _, l := range lessons {
		lessonIDs = append(lessonIDs, l.ID)
	}

	progresses, err := s.progressRepo.GetByUserAndLessonIDs(ctx, tx, userID, lessonIDs)
	if err != nil {
		return nil, fmt.Errorf("load lesson progress: %w", err)
	}
	byLesson := make(map[uuid.UUID]*types.LessonProgress, len(progresses))
	for _, p := range progresses {
		byLesson[p.LessonID] = p
	}

	completed := 0
	for _, l := range lessons {
		p := byLesson[l.ID]
		if p == nil || p.CompletedAt == nil {
			continue
		}
		if percentageOf(p.Score, p.MaxScore) < lessonPassPercent {
			continue
		}
		// Completions older than the lesson content are stale.
		if p.CompletedAt.Before(l.ContentUpdatedAt) {
			continue
		}
		completed++
	}

	fraction := 0.0
	if len(lessons) > 0 {
		fraction = float64(completed) / float64(len(lessons)) * 100
	}
	enrollment.Progress = clampPercent(round2(fraction))

	// Status only ever moves forward; a later content edit can lower the
	// progress number but never un-complete the enrollment.
	if completed == len(lessons) && len(lessons) > 0 && enrollment.Status != types.EnrollmentStatusCompleted {
		now := time.Now()
		enrollment.Status = types.EnrollmentStatusCompleted
		enrollment.CompletedAt = &now
	}

	if err := s.enrollmentRepo.Save(ctx, tx, enrollment); err != nil {
		return nil, fmt.Errorf("save enrollment: %w", err)
	}

	s.notifier.EnrollmentSynced(userID, enrollment)

	s.log.Debug("resynced enrollment",
		"user_id", userID,
		"course_version_id", courseVersionID,
		"completed", completed,
		"total", len(lessons),
		"progress", enrollment.Progress,
	)
	return enrollment, nil
}

func (s *progressSyncService) ListEnrollments(ctx context.Context, userID uuid.UUID) ([]*types.Enrollment, error) {
	return s.enrollmentRepo.GetByUserID(ctx, nil, userID)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func clampPercent(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
