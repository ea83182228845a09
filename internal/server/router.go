package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/lingopath/lingopath-backend/internal/handlers"
	"github.com/lingopath/lingopath-backend/internal/middleware"
)

type RouterConfig struct {
	AuthMiddleware    *middleware.AuthMiddleware
	SessionHandler    *handlers.SessionHandler
	ProgressHandler   *handlers.ProgressHandler
	EnrollmentHandler *handlers.EnrollmentHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	router.Use(otelgin.Middleware("lingopath-backend"))

	// Cors
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{
			"http://localhost:80",
			"http://localhost:3000",
			"http://localhost:5174",
		},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	// ===============
	// || Public    ||
	// ===============
	router.GET("/healthcheck", handlers.HealthCheck)

	// ===============
	// || Protected ||
	// ===============
	api := router.Group("/api")
	api.Use(cfg.AuthMiddleware.RequireAuth())
	// Sessions
	api.POST("/lessons/:id/sessions", cfg.SessionHandler.StartSession)
	api.POST("/sessions/:id/submit", cfg.SessionHandler.SubmitSession)
	api.GET("/sessions/:id", cfg.SessionHandler.GetSession)
	// Progress
	api.GET("/lessons/:id/progress", cfg.ProgressHandler.GetLessonProgress)
	api.GET("/lessons/:id/wrong-answers", cfg.ProgressHandler.GetWrongAnswers)
	// Enrollments
	api.GET("/enrollments", cfg.EnrollmentHandler.ListEnrollments)
	api.POST("/enrollments/:versionId/resync", cfg.EnrollmentHandler.ResyncEnrollment)

	return router
}
