package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lingopath/lingopath-backend/internal/config"
	"github.com/lingopath/lingopath-backend/internal/repos"
	"github.com/lingopath/lingopath-backend/internal/repos/testutil"
	"github.com/lingopath/lingopath-backend/internal/types"
)

type sessionStack struct {
	db       *gorm.DB
	sessions TestSessionService
	worker   GradingWorkerService
	ledger   AttemptLedgerService
	sync     ProgressSyncService
	runRepo  repos.GradingRunRepo
	wrong    repos.WrongAnswerRepo
	progress repos.LessonProgressRepo
	enroll   repos.EnrollmentRepo
}

func newSessionStack(t *testing.T, ai AIScoringClient, workerCfg config.WorkerConfig) *sessionStack {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)

	lessonRepo := repos.NewLessonRepo(db, log)
	questionRepo := repos.NewTestQuestionRepo(db, log)
	sessionRepo := repos.NewTestSessionRepo(db, log)
	snapshotRepo := repos.NewSessionQuestionRepo(db, log)
	progressRepo := repos.NewLessonProgressRepo(db, log)
	wrongRepo := repos.NewWrongAnswerRepo(db, log)
	enrollmentRepo := repos.NewEnrollmentRepo(db, log)
	runRepo := repos.NewGradingRunRepo(db, log)

	notifier := NewSessionNotifier(nil)
	grading := NewGradingService(log, ai, config.Default().Grading)
	ledger := NewAttemptLedgerService(db, log, progressRepo, wrongRepo)
	sync := NewProgressSyncService(db, log, lessonRepo, progressRepo, enrollmentRepo, notifier)
	worker := NewGradingWorkerService(db, log, runRepo, sessionRepo, snapshotRepo, lessonRepo, grading, nil, notifier, workerCfg)
	sessions := NewTestSessionService(db, log, lessonRepo, questionRepo, sessionRepo, snapshotRepo, grading, ledger, sync, worker, notifier)
	worker.BindSessions(sessions)

	return &sessionStack{
		db:       db,
		sessions: sessions,
		worker:   worker,
		ledger:   ledger,
		sync:     sync,
		runRepo:  runRepo,
		wrong:    wrongRepo,
		progress: progressRepo,
		enroll:   enrollmentRepo,
	}
}

type seededLesson struct {
	user      *types.User
	version   *types.CourseVersion
	lesson    *types.Lesson
	questions []*types.TestQuestion
}

func seedDeterministicLesson(t *testing.T, db *gorm.DB, email string) *seededLesson {
	t.Helper()
	ctx := context.Background()
	user := testutil.SeedUser(t, ctx, db, email)
	course := testutil.SeedCourse(t, ctx, db, "fr")
	version := testutil.SeedCourseVersion(t, ctx, db, course.ID, 1)
	lesson := testutil.SeedLesson(t, ctx, db, version.ID, 0)
	testutil.SeedEnrollment(t, ctx, db, user.ID, version.ID)

	questions := []*types.TestQuestion{
		testutil.SeedQuestion(t, ctx, db, lesson.ID, 0, types.QuestionTypeMultipleChoice, "le chat", 25),
		testutil.SeedQuestion(t, ctx, db, lesson.ID, 1, types.QuestionTypeFillBlank, "paris||Paris City", 25),
		testutil.SeedQuestion(t, ctx, db, lesson.ID, 2, types.QuestionTypeOrdering, "je,suis,la", 25),
	}
	return &seededLesson{user: user, version: version, lesson: lesson, questions: questions}
}

func TestStartSessionSnapshotsQuestions(t *testing.T) {
	stack := newSessionStack(t, &fakeAIClient{}, config.Default().Worker)
	seed := seedDeterministicLesson(t, stack.db, "start@test.dev")
	ctx := context.Background()

	view, err := stack.sessions.StartSession(ctx, seed.user.ID, seed.lesson.ID)
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	if view.Session.Status != types.SessionStatusPending {
		t.Fatalf("status: want=%q got=%q", types.SessionStatusPending, view.Session.Status)
	}
	if view.Session.AttemptNumber != 1 {
		t.Fatalf("attempt: want=1 got=%d", view.Session.AttemptNumber)
	}
	if len(view.Questions) != 3 {
		t.Fatalf("snapshot size: want=3 got=%d", len(view.Questions))
	}

	second, err := stack.sessions.StartSession(ctx, seed.user.ID, seed.lesson.ID)
	if err != nil {
		t.Fatalf("StartSession (second): %v", err)
	}
	if second.Session.AttemptNumber != 2 {
		t.Fatalf("second attempt: want=2 got=%d", second.Session.AttemptNumber)
	}
}

func TestStartSessionUnknownLesson(t *testing.T) {
	stack := newSessionStack(t, &fakeAIClient{}, config.Default().Worker)
	ctx := context.Background()
	user := testutil.SeedUser(t, ctx, stack.db, "nolesson@test.dev")

	_, err := stack.sessions.StartSession(ctx, user.ID, uuid.New())
	if err != ErrLessonNotFound {
		t.Fatalf("want ErrLessonNotFound, got %v", err)
	}
}

func TestSubmitDeterministicSessionCompletesInline(t *testing.T) {
	stack := newSessionStack(t, &fakeAIClient{}, config.Default().Worker)
	seed := seedDeterministicLesson(t, stack.db, "det@test.dev")
	ctx := context.Background()

	view, err := stack.sessions.StartSession(ctx, seed.user.ID, seed.lesson.ID)
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}

	answers := []types.AnswerInput{
		{QuestionID: seed.questions[0].ID, Text: "le chat"},
		{QuestionID: seed.questions[1].ID, Text: "PARIS"},
		{QuestionID: seed.questions[2].ID, Text: "suis,je,la"},
	}
	result, err := stack.sessions.SubmitSession(ctx, seed.user.ID, view.Session.ID, answers)
	if err != nil {
		t.Fatalf("SubmitSession: %v", err)
	}

	s := result.Session
	if s.Status != types.SessionStatusCompleted {
		t.Fatalf("status: want=%q got=%q", types.SessionStatusCompleted, s.Status)
	}
	if s.Score != 50 || s.MaxScore != 75 {
		t.Fatalf("totals: want=50/75 got=%v/%v", s.Score, s.MaxScore)
	}
	if s.NeedsReview {
		t.Fatalf("fully deterministic session must not need review")
	}
	if s.CompletedAt == nil {
		t.Fatalf("completed_at not set")
	}

	progress, err := stack.progress.GetByUserAndLesson(ctx, nil, seed.user.ID, seed.lesson.ID)
	if err != nil {
		t.Fatalf("load progress: %v", err)
	}
	if progress == nil {
		t.Fatalf("progress row missing after finalize")
	}
	if progress.Score != 50 {
		t.Fatalf("progress score: want=50 got=%v", progress.Score)
	}
	if progress.CompletedAt == nil {
		t.Fatalf("progress completed_at not set")
	}

	wrong, err := stack.wrong.GetByUserAndLesson(ctx, nil, seed.user.ID, seed.lesson.ID)
	if err != nil {
		t.Fatalf("load wrong answers: %v", err)
	}
	if len(wrong) != 1 {
		t.Fatalf("wrong answer rows: want=1 got=%d", len(wrong))
	}
	if wrong[0].QuestionID != seed.questions[2].ID {
		t.Fatalf("wrong answer points at the wrong question")
	}

	// 50/75 is below the lesson pass threshold, so the rollup ran but the
	// lesson does not count yet.
	enrollment, err := stack.enroll.GetByUserAndVersion(ctx, nil, seed.user.ID, seed.version.ID)
	if err != nil {
		t.Fatalf("load enrollment: %v", err)
	}
	if enrollment.Progress != 0 {
		t.Fatalf("enrollment progress: want=0 got=%v", enrollment.Progress)
	}
	if enrollment.Status != types.EnrollmentStatusInProgress {
		t.Fatalf("enrollment status: want=%q got=%q", types.EnrollmentStatusInProgress, enrollment.Status)
	}
}

func TestSubmitSessionReplayIsIdempotent(t *testing.T) {
	stack := newSessionStack(t, &fakeAIClient{}, config.Default().Worker)
	seed := seedDeterministicLesson(t, stack.db, "replay@test.dev")
	ctx := context.Background()

	view, err := stack.sessions.StartSession(ctx, seed.user.ID, seed.lesson.ID)
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	answers := []types.AnswerInput{
		{QuestionID: seed.questions[0].ID, Text: "le chat"},
	}
	first, err := stack.sessions.SubmitSession(ctx, seed.user.ID, view.Session.ID, answers)
	if err != nil {
		t.Fatalf("SubmitSession: %v", err)
	}

	// Different answers on replay must not change anything.
	replay, err := stack.sessions.SubmitSession(ctx, seed.user.ID, view.Session.ID, []types.AnswerInput{
		{QuestionID: seed.questions[0].ID, Text: "wrong"},
		{QuestionID: seed.questions[1].ID, Text: "paris"},
		{QuestionID: seed.questions[2].ID, Text: "je,suis,la"},
	})
	if err != nil {
		t.Fatalf("SubmitSession (replay): %v", err)
	}
	if replay.Session.Score != first.Session.Score {
		t.Fatalf("replay changed score: want=%v got=%v", first.Session.Score, replay.Session.Score)
	}
	if replay.Session.Status != types.SessionStatusCompleted {
		t.Fatalf("replay status: want=completed got=%q", replay.Session.Status)
	}

	wrong, err := stack.wrong.GetByUserAndLesson(ctx, nil, seed.user.ID, seed.lesson.ID)
	if err != nil {
		t.Fatalf("load wrong answers: %v", err)
	}
	if len(wrong) != 2 {
		t.Fatalf("replay must not append wrong answer rows: want=2 got=%d", len(wrong))
	}
}

func TestSubmitSessionOwnership(t *testing.T) {
	stack := newSessionStack(t, &fakeAIClient{}, config.Default().Worker)
	seed := seedDeterministicLesson(t, stack.db, "owner@test.dev")
	ctx := context.Background()
	intruder := testutil.SeedUser(t, ctx, stack.db, "intruder@test.dev")

	view, err := stack.sessions.StartSession(ctx, seed.user.ID, seed.lesson.ID)
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	_, err = stack.sessions.SubmitSession(ctx, intruder.ID, view.Session.ID, nil)
	if err != ErrNotSessionOwner {
		t.Fatalf("want ErrNotSessionOwner, got %v", err)
	}
	_, err = stack.sessions.GetSession(ctx, intruder.ID, view.Session.ID)
	if err != ErrNotSessionOwner {
		t.Fatalf("GetSession: want ErrNotSessionOwner, got %v", err)
	}
}

func TestSubmitMixedSessionDefersToQueueAndWorkerCompletes(t *testing.T) {
	ai := &fakeAIClient{pronunciationScore: 40}
	stack := newSessionStack(t, ai, config.Default().Worker)
	seed := seedDeterministicLesson(t, stack.db, "mixed@test.dev")
	ctx := context.Background()
	speaking := testutil.SeedQuestion(t, ctx, stack.db, seed.lesson.ID, 3, types.QuestionTypeSpeaking, "bonjour tout le monde", 25)

	view, err := stack.sessions.StartSession(ctx, seed.user.ID, seed.lesson.ID)
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}

	answers := []types.AnswerInput{
		{QuestionID: seed.questions[0].ID, Text: "le chat"},
		{QuestionID: seed.questions[1].ID, Text: "paris"},
		{QuestionID: seed.questions[2].ID, Text: "je,suis,la"},
		{QuestionID: speaking.ID, AudioKey: "answers/a.wav"},
	}
	submitted, err := stack.sessions.SubmitSession(ctx, seed.user.ID, view.Session.ID, answers)
	if err != nil {
		t.Fatalf("SubmitSession: %v", err)
	}
	if submitted.Session.Status != types.SessionStatusGrading {
		t.Fatalf("status: want=%q got=%q", types.SessionStatusGrading, submitted.Session.Status)
	}

	run, err := stack.runRepo.GetLatestBySessionID(ctx, nil, view.Session.ID)
	if err != nil {
		t.Fatalf("load run: %v", err)
	}
	if run == nil || run.Status != types.GradingRunStatusQueued {
		t.Fatalf("queued run missing, got %+v", run)
	}

	// A replayed submit while grading must not enqueue a second run.
	if _, err := stack.sessions.SubmitSession(ctx, seed.user.ID, view.Session.ID, answers); err != nil {
		t.Fatalf("SubmitSession (replay): %v", err)
	}
	var runCount int64
	if err := stack.db.Model(&types.GradingRun{}).Where("session_id = ?", view.Session.ID).Count(&runCount).Error; err != nil {
		t.Fatalf("count runs: %v", err)
	}
	if runCount != 1 {
		t.Fatalf("run count: want=1 got=%d", runCount)
	}

	processed, err := stack.worker.ProcessNext(ctx)
	if err != nil {
		t.Fatalf("ProcessNext: %v", err)
	}
	if !processed {
		t.Fatalf("worker found no runnable run")
	}
	if ai.pronunciationCalls != 1 {
		t.Fatalf("pronunciation calls: want=1 got=%d", ai.pronunciationCalls)
	}

	final, err := stack.sessions.GetSession(ctx, seed.user.ID, view.Session.ID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	s := final.Session
	if s.Status != types.SessionStatusCompleted {
		t.Fatalf("status after worker: want=completed got=%q", s.Status)
	}
	if s.Score != 75 || s.MaxScore != 100 {
		t.Fatalf("totals: want=75/100 got=%v/%v", s.Score, s.MaxScore)
	}
	if !s.NeedsReview {
		t.Fatalf("imperfect AI session must need review")
	}

	// 75% passes the lesson, so the worker's finalize rolled the enrollment
	// all the way up.
	enrollment, err := stack.enroll.GetByUserAndVersion(ctx, nil, seed.user.ID, seed.version.ID)
	if err != nil {
		t.Fatalf("load enrollment: %v", err)
	}
	if enrollment.Progress != 100 || enrollment.Status != types.EnrollmentStatusCompleted {
		t.Fatalf("enrollment after worker: want=100/completed got=%v/%q", enrollment.Progress, enrollment.Status)
	}

	run, err = stack.runRepo.GetLatestBySessionID(ctx, nil, view.Session.ID)
	if err != nil {
		t.Fatalf("reload run: %v", err)
	}
	if run.Status != types.GradingRunStatusSucceeded {
		t.Fatalf("run status: want=succeeded got=%q", run.Status)
	}
}

func TestFinalizeGradedReplaysAreNoOps(t *testing.T) {
	stack := newSessionStack(t, &fakeAIClient{}, config.Default().Worker)
	seed := seedDeterministicLesson(t, stack.db, "finalize@test.dev")
	ctx := context.Background()

	view, err := stack.sessions.StartSession(ctx, seed.user.ID, seed.lesson.ID)
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	answers := []types.AnswerInput{
		{QuestionID: seed.questions[0].ID, Text: "le chat"},
		{QuestionID: seed.questions[1].ID, Text: "paris"},
		{QuestionID: seed.questions[2].ID, Text: "je,suis,la"},
	}
	submitted, err := stack.sessions.SubmitSession(ctx, seed.user.ID, view.Session.ID, answers)
	if err != nil {
		t.Fatalf("SubmitSession: %v", err)
	}

	before, err := stack.progress.GetByUserAndLesson(ctx, nil, seed.user.ID, seed.lesson.ID)
	if err != nil {
		t.Fatalf("load progress: %v", err)
	}
	firstCompletedAt := *before.CompletedAt

	time.Sleep(10 * time.Millisecond)
	// A second finalize loses the status gate and must touch nothing.
	sq := []*types.SessionQuestion{}
	if err := stack.db.Where("session_id = ?", view.Session.ID).Find(&sq).Error; err != nil {
		t.Fatalf("load snapshot: %v", err)
	}
	if err := stack.sessions.FinalizeGraded(ctx, submitted.Session, sq); err != nil {
		t.Fatalf("FinalizeGraded (replay): %v", err)
	}

	after, err := stack.progress.GetByUserAndLesson(ctx, nil, seed.user.ID, seed.lesson.ID)
	if err != nil {
		t.Fatalf("reload progress: %v", err)
	}
	if !after.CompletedAt.Equal(firstCompletedAt) {
		t.Fatalf("replayed finalize moved completed_at")
	}
}
