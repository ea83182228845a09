package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/lingopath/lingopath-backend/internal/config"
	"github.com/lingopath/lingopath-backend/internal/repos/testutil"
	"github.com/lingopath/lingopath-backend/internal/types"
)

func completeLesson(t *testing.T, stack *sessionStack, userID, lessonID uuid.UUID, score float64, completedAt time.Time) {
	t.Helper()
	p := &types.LessonProgress{
		ID:          uuid.New(),
		UserID:      userID,
		LessonID:    lessonID,
		Score:       score,
		MaxScore:    100,
		CompletedAt: &completedAt,
	}
	if err := stack.db.Create(p).Error; err != nil {
		t.Fatalf("seed progress: %v", err)
	}
}

func TestResyncEnrollmentCountsFreshCompletions(t *testing.T) {
	stack := newSessionStack(t, &fakeAIClient{}, config.Default().Worker)
	ctx := context.Background()

	user := testutil.SeedUser(t, ctx, stack.db, "rollup@test.dev")
	course := testutil.SeedCourse(t, ctx, stack.db, "fr")
	version := testutil.SeedCourseVersion(t, ctx, stack.db, course.ID, 1)
	l0 := testutil.SeedLesson(t, ctx, stack.db, version.ID, 0)
	l1 := testutil.SeedLesson(t, ctx, stack.db, version.ID, 1)
	l2 := testutil.SeedLesson(t, ctx, stack.db, version.ID, 2)
	testutil.SeedEnrollment(t, ctx, stack.db, user.ID, version.ID)

	completeLesson(t, stack, user.ID, l0.ID, 80, time.Now())
	completeLesson(t, stack, user.ID, l1.ID, 100, time.Now())
	// Below the pass threshold: finished but not counted.
	completeLesson(t, stack, user.ID, l2.ID, 40, time.Now())

	enrollment, err := stack.sync.ResyncEnrollment(ctx, nil, user.ID, version.ID)
	if err != nil {
		t.Fatalf("ResyncEnrollment: %v", err)
	}
	if enrollment.Progress != 66.67 {
		t.Fatalf("progress: want=66.67 got=%v", enrollment.Progress)
	}
	if enrollment.Status != types.EnrollmentStatusInProgress {
		t.Fatalf("status: want=in_progress got=%q", enrollment.Status)
	}

	// Rollup is a full recomputation; replaying it changes nothing.
	again, err := stack.sync.ResyncEnrollment(ctx, nil, user.ID, version.ID)
	if err != nil {
		t.Fatalf("ResyncEnrollment (replay): %v", err)
	}
	if again.Progress != enrollment.Progress || again.Status != enrollment.Status {
		t.Fatalf("replayed rollup drifted: %v/%q vs %v/%q", again.Progress, again.Status, enrollment.Progress, enrollment.Status)
	}
}

func TestResyncEnrollmentIgnoresStaleCompletions(t *testing.T) {
	stack := newSessionStack(t, &fakeAIClient{}, config.Default().Worker)
	ctx := context.Background()

	user := testutil.SeedUser(t, ctx, stack.db, "stale-rollup@test.dev")
	course := testutil.SeedCourse(t, ctx, stack.db, "fr")
	version := testutil.SeedCourseVersion(t, ctx, stack.db, course.ID, 1)
	lesson := testutil.SeedLesson(t, ctx, stack.db, version.ID, 0)
	testutil.SeedEnrollment(t, ctx, stack.db, user.ID, version.ID)

	// Completed before the last content edit: does not count.
	completeLesson(t, stack, user.ID, lesson.ID, 80, lesson.ContentUpdatedAt.Add(-time.Minute))

	enrollment, err := stack.sync.ResyncEnrollment(ctx, nil, user.ID, version.ID)
	if err != nil {
		t.Fatalf("ResyncEnrollment: %v", err)
	}
	if enrollment.Progress != 0 {
		t.Fatalf("stale completion counted: progress=%v", enrollment.Progress)
	}
}

func TestResyncEnrollmentCompletionIsOneWay(t *testing.T) {
	stack := newSessionStack(t, &fakeAIClient{}, config.Default().Worker)
	ctx := context.Background()

	user := testutil.SeedUser(t, ctx, stack.db, "oneway@test.dev")
	course := testutil.SeedCourse(t, ctx, stack.db, "fr")
	version := testutil.SeedCourseVersion(t, ctx, stack.db, course.ID, 1)
	lesson := testutil.SeedLesson(t, ctx, stack.db, version.ID, 0)
	testutil.SeedEnrollment(t, ctx, stack.db, user.ID, version.ID)

	completeLesson(t, stack, user.ID, lesson.ID, 80, time.Now())

	enrollment, err := stack.sync.ResyncEnrollment(ctx, nil, user.ID, version.ID)
	if err != nil {
		t.Fatalf("ResyncEnrollment: %v", err)
	}
	if enrollment.Status != types.EnrollmentStatusCompleted {
		t.Fatalf("status: want=completed got=%q", enrollment.Status)
	}
	if enrollment.CompletedAt == nil {
		t.Fatalf("completed_at not set")
	}
	completedAt := *enrollment.CompletedAt

	// A content edit after completion lowers the fraction but never the
	// status.
	if err := stack.db.Model(&types.Lesson{}).
		Where("id = ?", lesson.ID).
		Update("content_updated_at", time.Now().Add(time.Hour)).Error; err != nil {
		t.Fatalf("bump content_updated_at: %v", err)
	}

	resynced, err := stack.sync.ResyncEnrollment(ctx, nil, user.ID, version.ID)
	if err != nil {
		t.Fatalf("ResyncEnrollment (after edit): %v", err)
	}
	if resynced.Progress != 0 {
		t.Fatalf("progress after edit: want=0 got=%v", resynced.Progress)
	}
	if resynced.Status != types.EnrollmentStatusCompleted {
		t.Fatalf("completion regressed: got=%q", resynced.Status)
	}
	if resynced.CompletedAt == nil || !resynced.CompletedAt.Equal(completedAt) {
		t.Fatalf("completed_at changed on resync")
	}
}

func TestResyncEnrollmentUnknownEnrollment(t *testing.T) {
	stack := newSessionStack(t, &fakeAIClient{}, config.Default().Worker)
	ctx := context.Background()
	user := testutil.SeedUser(t, ctx, stack.db, "noenroll@test.dev")

	_, err := stack.sync.ResyncEnrollment(ctx, nil, user.ID, uuid.New())
	if err != ErrEnrollmentNotFound {
		t.Fatalf("want ErrEnrollmentNotFound, got %v", err)
	}
}

func TestSyncAfterLessonWithoutEnrollmentIsNoOp(t *testing.T) {
	stack := newSessionStack(t, &fakeAIClient{}, config.Default().Worker)
	ctx := context.Background()

	user := testutil.SeedUser(t, ctx, stack.db, "practice@test.dev")
	course := testutil.SeedCourse(t, ctx, stack.db, "fr")
	version := testutil.SeedCourseVersion(t, ctx, stack.db, course.ID, 1)
	lesson := testutil.SeedLesson(t, ctx, stack.db, version.ID, 0)

	if err := stack.sync.SyncAfterLesson(ctx, nil, user.ID, lesson.ID); err != nil {
		t.Fatalf("SyncAfterLesson without enrollment: %v", err)
	}
}
