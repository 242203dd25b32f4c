package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-academy/internal/config"
	"github.com/stemsi/exstem-academy/internal/database"
	"github.com/stemsi/exstem-academy/internal/handler"
	"github.com/stemsi/exstem-academy/internal/logger"
	"github.com/stemsi/exstem-academy/internal/middleware"
	"github.com/stemsi/exstem-academy/internal/repository"
	"github.com/stemsi/exstem-academy/internal/router"
	"github.com/stemsi/exstem-academy/internal/service"
	"github.com/stemsi/exstem-academy/internal/validator"
	"github.com/stemsi/exstem-academy/internal/worker"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Msg("Starting ExStem Academy exam engine")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Connect to PostgreSQL and Redis ───────────────────────────────
	stores, err := database.Connect(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to data stores")
	}
	defer stores.Close()

	// ─── Initialize Repositories ───────────────────────────────────────
	examRepo := repository.NewExamRepository(stores.Pool)
	attemptRepo := repository.NewAttemptRepository(stores.Pool)
	certificateRepo := repository.NewCertificateRepository(stores.Pool)
	dashboardRepo := repository.NewDashboardRepository(stores.Pool)

	// ─── Initialize Services ──────────────────────────────────────────
	authService := service.NewAuthService(cfg.JWTSecret)
	catalog := service.NewExamCatalogService(examRepo, stores.Redis, cfg.ExamCacheTTL, log)
	attempts := service.NewAttemptService(
		catalog,
		attemptRepo,
		worker.NewCertificateQueue(stores.Redis),
		stores.Redis,
		service.AttemptOptions{
			TickInterval:   cfg.TimerTick,
			PersistTimeout: cfg.PersistTimeout,
			ReapInterval:   cfg.ReaperInterval,
		},
		log,
	)

	dashboardService := service.NewDashboardService(dashboardRepo, catalog, attempts)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Attempt:   handler.NewAttemptHandler(attempts, catalog, log),
		Exam:      handler.NewExamHandler(catalog, attempts, log),
		Dashboard: handler.NewDashboardHandler(dashboardService, log),
		Monitor:   handler.NewMonitorHandler(stores.Redis, catalog, attempts, log),
		WS:        handler.NewWSHandler(attempts, log, cfg.AllowedOrigins),
		System: handler.NewSystemHandler(log,
			handler.HealthCheck{Name: "postgres", Ping: stores.PingPostgres},
			handler.HealthCheck{Name: "redis", Ping: stores.PingRedis},
		),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())
	workersDone := make(chan struct{})

	certificateWorker := worker.NewCertificateWorker(certificateRepo, stores.Redis, log)
	go func() {
		certificateWorker.Start(workerCtx)
		close(workersDone)
	}()
	go attempts.StartReaper(workerCtx)

	limiter := middleware.NewRateLimiter(120, time.Minute)
	go sweepLimiter(workerCtx, limiter, log)

	// ─── Prewarm Redis Caches ─────────────────────────────────────────
	// Published exams are loaded before traffic is accepted.
	if err := catalog.PrewarmAll(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to prewarm exam caches")
	}

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(authService, handlers, limiter, cfg, log)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests (5s timeout).
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Stop live timers. In-progress attempts are not scored.
	attempts.Shutdown()

	// 3. Stop background workers and wait for the certificate queue to flush.
	workerCancel()
	select {
	case <-workersDone:
	case <-time.After(5 * time.Second):
		log.Warn().Msg("Certificate worker did not stop in time")
	}

	log.Info().Msg("Shutdown complete")
}

func sweepLimiter(ctx context.Context, limiter *middleware.RateLimiter, log zerolog.Logger) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := limiter.Sweep(10 * time.Minute); n > 0 {
				log.Debug().Int("buckets", n).Msg("Rate limiter swept")
			}
		}
	}
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
