package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/lingopath/lingopath-backend/internal/config"
	"github.com/lingopath/lingopath-backend/internal/db"
	"github.com/lingopath/lingopath-backend/internal/handlers"
	"github.com/lingopath/lingopath-backend/internal/logger"
	"github.com/lingopath/lingopath-backend/internal/middleware"
	"github.com/lingopath/lingopath-backend/internal/observability"
	"github.com/lingopath/lingopath-backend/internal/repos"
	"github.com/lingopath/lingopath-backend/internal/server"
	"github.com/lingopath/lingopath-backend/internal/services"
	"github.com/lingopath/lingopath-backend/internal/utils"
)

func main() {
	// Logger
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Env
	log.Info("Loading environment variables from main...")
	jwtSecretKey := utils.GetEnv("JWT_SECRET_KEY", "defaultsecret", log)

	// Config
	cfg, err := config.Load(log)
	if err != nil {
		log.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	// Tracing
	otelShutdown := observability.InitOTel(context.Background(), log, observability.OtelConfig{
		ServiceName: "lingopath-backend",
		Environment: utils.GetEnv("APP_ENV", "development", log),
		Version:     utils.GetEnv("APP_VERSION", "", log),
	})
	if otelShutdown != nil {
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(ctx)
		}()
	}

	// Postgres
	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Error("Postgres init failed", "error", err)
		os.Exit(1)
	}
	if err = postgresService.AutoMigrateAll(); err != nil {
		log.Warn("Postgres auto migration failed", "error", err)
	}
	thePG := postgresService.DB()

	// Repos
	log.Info("Setting up Repos from main...")
	lessonRepo := repos.NewLessonRepo(thePG, log)
	questionRepo := repos.NewTestQuestionRepo(thePG, log)
	sessionRepo := repos.NewTestSessionRepo(thePG, log)
	snapshotRepo := repos.NewSessionQuestionRepo(thePG, log)
	progressRepo := repos.NewLessonProgressRepo(thePG, log)
	wrongAnswerRepo := repos.NewWrongAnswerRepo(thePG, log)
	enrollmentRepo := repos.NewEnrollmentRepo(thePG, log)
	gradingRunRepo := repos.NewGradingRunRepo(thePG, log)

	// Scoring backends
	log.Info("Setting up Services from main...")
	bucketService, err := services.NewBucketService(log)
	if err != nil {
		log.Warn("Could not init BucketService", "error", err)
	}
	var speechScorer services.SpeechScorerService
	var writingScorer services.WritingScorerService
	if bucketService != nil {
		speechScorer, err = services.NewSpeechScorerService(log, bucketService)
		if err != nil {
			log.Warn("Could not init SpeechScorerService", "error", err)
		}
		writingScorer, err = services.NewWritingScorerService(log, bucketService)
		if err != nil {
			log.Warn("Could not init WritingScorerService", "error", err)
		}
	}
	aiClient := services.NewAIScoringClient(log, speechScorer, writingScorer)

	// Realtime events
	eventBus, err := services.NewRedisEventBus(log)
	if err != nil {
		log.Warn("Could not init RedisEventBus, notifications disabled", "error", err)
	}
	notifier := services.NewSessionNotifier(eventBus)

	// Services
	gradingService := services.NewGradingService(log, aiClient, cfg.Grading)
	ledgerService := services.NewAttemptLedgerService(thePG, log, progressRepo, wrongAnswerRepo)
	progressSyncService := services.NewProgressSyncService(thePG, log, lessonRepo, progressRepo, enrollmentRepo, notifier)

	var sessionService services.TestSessionService
	workerService := services.NewGradingWorkerService(
		thePG,
		log,
		gradingRunRepo,
		sessionRepo,
		snapshotRepo,
		lessonRepo,
		gradingService,
		nil, // wired below, after the session service exists
		notifier,
		cfg.Worker,
	)
	sessionService = services.NewTestSessionService(
		thePG,
		log,
		lessonRepo,
		questionRepo,
		sessionRepo,
		snapshotRepo,
		gradingService,
		ledgerService,
		progressSyncService,
		workerService,
		notifier,
	)
	workerService.BindSessions(sessionService)
	workerService.StartWorker(context.Background())

	// Handlers
	log.Info("Setting up handlers from main...")
	sessionHandler := handlers.NewSessionHandler(log, sessionService)
	progressHandler := handlers.NewProgressHandler(log, ledgerService)
	enrollmentHandler := handlers.NewEnrollmentHandler(log, progressSyncService)

	// Middleware
	log.Info("Setting up middleware from main...")
	authMiddleware := middleware.NewAuthMiddleware(log, jwtSecretKey)

	// Router
	log.Info("Setting up router from main...")
	router := server.NewRouter(server.RouterConfig{
		AuthMiddleware:    authMiddleware,
		SessionHandler:    sessionHandler,
		ProgressHandler:   progressHandler,
		EnrollmentHandler: enrollmentHandler,
	})

	port := utils.GetEnv("PORT", "8080", log)
	fmt.Printf("Server listening on :%s\n", port)
	if err := router.Run(":" + port); err != nil {
		log.Warn("Server failed", "error", err)
	}
}
