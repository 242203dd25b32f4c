package router

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-academy/internal/config"
	"github.com/stemsi/exstem-academy/internal/handler"
	"github.com/stemsi/exstem-academy/internal/metrics"
	"github.com/stemsi/exstem-academy/internal/middleware"
	"github.com/stemsi/exstem-academy/internal/response"
	"github.com/stemsi/exstem-academy/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Attempt   *handler.AttemptHandler
	Exam      *handler.ExamHandler
	Dashboard *handler.DashboardHandler
	Monitor   *handler.MonitorHandler
	WS        *handler.WSHandler
	System    *handler.SystemHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	authService *service.AuthService,
	handlers *Handlers,
	limiter *middleware.RateLimiter,
	cfg *config.Config,
	log zerolog.Logger,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.New()
	router.Use(gin.Recovery())

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	router.Use(response.RequestIDMiddleware())
	router.Use(middleware.RequestLogger(log))

	router.GET("/health", handlers.System.Health)
	router.GET("/metrics", metrics.Handler())

	// ─── 1. Student Group (JWT, rate limited) ──────────────────────────
	studentAPI := router.Group("/api/v1/student")
	studentAPI.Use(
		middleware.RequireStudentJWT(authService),
		limiter.Middleware(),
		middleware.Brotli(),
	)
	{
		exams := studentAPI.Group("/exams/:exam_ref")
		exams.GET("/paper", middleware.PrivateCache(60), handlers.Attempt.GetPaper)
		exams.POST("/attempts", middleware.NoStore(), handlers.Attempt.BeginAttempt)
		exams.GET("/attempts", middleware.NoStore(), handlers.Attempt.ListAttempts)

		attempts := studentAPI.Group("/attempts/:attempt_id")
		attempts.Use(middleware.NoStore())
		attempts.GET("", handlers.Attempt.GetAttempt)
		attempts.PUT("/answers/:question_id", handlers.Attempt.AnswerQuestion)
		attempts.POST("/goto", handlers.Attempt.GotoQuestion)
		attempts.POST("/submit", handlers.Attempt.SubmitAttempt)
		attempts.POST("/abandon", handlers.Attempt.AbandonAttempt)
		attempts.POST("/persist", handlers.Attempt.PersistAttempt)
	}

	// ─── 2. WebSocket Group (Student WS Auth) ──────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireStudentWSAuth(authService))
	{
		ws.GET("/student/attempts/:attempt_id/stream", handlers.WS.AttemptStream)
	}

	// ─── 3. Admin Group (JWT + permission) ─────────────────────────────
	adminAPI := router.Group("/api/v1/admin")
	adminAPI.Use(
		middleware.RequireAdminJWT(authService),
		middleware.RequirePermission(service.PermExamCacheManage),
	)
	{
		adminAPI.POST("/exams/:exam_ref/refresh-cache", handlers.Exam.RefreshCache)
		adminAPI.GET("/exams/:exam_ref/dashboard", handlers.Dashboard.GetExamDashboard)
		adminAPI.GET("/exams/:exam_ref/monitor", handlers.Monitor.MonitorExamSSE)
	}

	return router
}
