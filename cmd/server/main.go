package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/labexam-backend/internal/cache"
	"github.com/stemsi/labexam-backend/internal/clock"
	"github.com/stemsi/labexam-backend/internal/config"
	"github.com/stemsi/labexam-backend/internal/database"
	"github.com/stemsi/labexam-backend/internal/handler"
	"github.com/stemsi/labexam-backend/internal/logger"
	"github.com/stemsi/labexam-backend/internal/middleware"
	"github.com/stemsi/labexam-backend/internal/repository"
	"github.com/stemsi/labexam-backend/internal/repository/memory"
	"github.com/stemsi/labexam-backend/internal/router"
	"github.com/stemsi/labexam-backend/internal/service"
	"github.com/stemsi/labexam-backend/internal/validator"
	"github.com/stemsi/labexam-backend/internal/worker"
)

// contentCacheTTL bounds how long a published exam's payload stays in Redis.
const contentCacheTTL = 24 * time.Hour

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("store", cfg.StoreDriver).
		Str("submit_policy", cfg.SubmitPolicy).
		Msg("Starting Lab Exam Backend")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	checks := map[string]handler.Check{}

	// ─── Storage ───────────────────────────────────────────────────────
	var stores service.Stores
	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		log.Warn().Msg("Using in-memory store, data is lost on restart")
		st := memory.NewStore()
		stores = service.Stores{
			Users: st.Users, Devices: st.Devices, Exams: st.Exams, Questions: st.Questions,
			Sessions: st.Sessions, Responses: st.Responses, Events: st.Events,
		}
	default:
		pool, err := database.NewPostgresPool(ctx, cfg, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
		}
		defer pool.Close()
		stores = postgresStores(pool)
		checks["postgres"] = pool.Ping
	}

	// ─── Connect to Redis (optional) ───────────────────────────────────
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	var (
		contentCache cache.ContentCache = cache.NopContentCache{}
		monitorBus   cache.MonitorBus   = cache.NewLocalMonitorBus()
	)
	if rdb != nil {
		defer rdb.Close()
		contentCache = cache.NewRedisContentCache(rdb, contentCacheTTL)
		monitorBus = cache.NewRedisMonitorBus(rdb)
		checks["redis"] = redisCheck(rdb)
	}

	// ─── Initialize Services ──────────────────────────────────────────
	clk := clock.System{}
	authService := service.NewAuthService(cfg, stores.Users, log)
	examService := service.NewExamService(stores, contentCache, log)
	deviceService := service.NewDeviceService(stores, clk, log)
	sessionService := service.NewSessionService(cfg, stores, examService, deviceService, authService, monitorBus, clk, log)
	monitorService := service.NewMonitorService(stores, examService, clk)

	// Heartbeats share one per-session budget across REST and WebSocket.
	heartbeatLimiter := middleware.NewRateLimiter(cfg.HeartbeatRatePerMin, cfg.HeartbeatRatePerMin/2+1, middleware.BySession)
	defer heartbeatLimiter.Stop()

	// ─── Initialize Handlers ──────────────────────────────────────────
	refresh := time.Duration(cfg.MonitorRefreshSeconds) * time.Second
	handlers := &router.Handlers{
		Auth:    handler.NewAuthHandler(authService, log),
		Client:  handler.NewClientHandler(sessionService, examService, deviceService, log),
		Exam:    handler.NewExamHandler(examService, log),
		Monitor: handler.NewMonitorHandler(monitorService, monitorBus, refresh, log),
		Admin:   handler.NewAdminHandler(authService, deviceService, monitorService, log),
		WS:      handler.NewWSHandler(sessionService, heartbeatLimiter, log, cfg.AllowedOrigins),
		System:  handler.NewSystemHandler(checks, log),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())
	workerDone := make(chan struct{})

	expiryWorker := worker.NewExpiryWorker(sessionService, cfg.ExpirySweepInterval, cfg.ExpiryGrace, log)
	go func() {
		defer close(workerDone)
		expiryWorker.Start(workerCtx)
	}()

	// ─── Prewarm Content Cache ────────────────────────────────────────
	// Load all published exams BEFORE accepting traffic so the first wave of
	// starts does not stampede the database.
	if err := examService.PrewarmAllCaches(ctx); err != nil {
		log.Warn().Err(err).Msg("Cache prewarm failed")
	}

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(router.Services{Auth: authService, Device: deviceService}, handlers, heartbeatLimiter, cfg)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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

	// 2. Stop the expiry sweeper after its current batch.
	workerCancel()
	select {
	case <-workerDone:
	case <-time.After(5 * time.Second):
		log.Warn().Msg("Expiry worker did not stop in time")
	}

	log.Info().Msg("Shutdown complete")
}

func postgresStores(pool *pgxpool.Pool) service.Stores {
	return service.Stores{
		Users:     repository.NewUserRepository(pool),
		Devices:   repository.NewDeviceRepository(pool),
		Exams:     repository.NewExamRepository(pool),
		Questions: repository.NewQuestionRepository(pool),
		Sessions:  repository.NewSessionRepository(pool),
		Responses: repository.NewResponseRepository(pool),
		Events:    repository.NewEventRepository(pool),
	}
}

func redisCheck(rdb *redis.Client) handler.Check {
	return func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	}
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339Nano
}
