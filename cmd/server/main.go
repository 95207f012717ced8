package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"github.com/datacomunidad/assess-backend/internal/config"
	"github.com/datacomunidad/assess-backend/internal/database"
	"github.com/datacomunidad/assess-backend/internal/engine"
	"github.com/datacomunidad/assess-backend/internal/grading"
	"github.com/datacomunidad/assess-backend/internal/handler"
	"github.com/datacomunidad/assess-backend/internal/logger"
	"github.com/datacomunidad/assess-backend/internal/metrics"
	"github.com/datacomunidad/assess-backend/internal/repository"
	"github.com/datacomunidad/assess-backend/internal/router"
	"github.com/datacomunidad/assess-backend/internal/service"
	"github.com/datacomunidad/assess-backend/internal/validator"
	ws "github.com/datacomunidad/assess-backend/internal/websocket"
	"github.com/datacomunidad/assess-backend/internal/worker"
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
		Msg("Starting Assess Backend")

	// ─── Initialize Validator & Metrics ────────────────────────────────
	validator.Setup()
	metrics.Init()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	// ─── Connect to Redis ──────────────────────────────────────────────
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	// ─── Initialize Repositories ───────────────────────────────────────
	assessmentRepo := repository.NewAssessmentRepository(pool)
	questionRepo := repository.NewQuestionRepository(pool)
	attemptRepo := repository.NewAttemptRepository(pool)
	answerRepo := repository.NewAnswerRepository(pool)
	resultRepo := repository.NewResultRepository(pool)
	certificateRepo := repository.NewCertificateRepository(pool)
	skillRepo := repository.NewSkillRepository(pool)

	// ─── Initialize Engine & Services ──────────────────────────────────
	clk := clock.New()
	hub := ws.NewHub(log)

	assessmentService := service.NewAssessmentService(assessmentRepo, questionRepo, rdb, log)
	certificateService := service.NewCertificateService(certificateRepo, cfg.CertBaseURL, log)
	scoringService := service.NewScoringService(
		attemptRepo, answerRepo, resultRepo, skillRepo,
		assessmentService, certificateService, rdb, log,
	)

	manager := engine.NewManager(engine.Deps{
		Store:     attemptRepo,
		Saver:     service.NewAnswerSink(rdb),
		Submitter: scoringService,
		Events:    hub,
		Evaluator: grading.NewEvaluator(),
		Clock:     clk,
		Log:       log,
		WarnAfter: cfg.TimeWarningSeconds,
	})

	attemptService := service.NewAttemptService(
		attemptRepo, questionRepo, answerRepo, resultRepo,
		assessmentService, certificateService, manager, rdb, clk, log,
	)
	leaderboardService := service.NewLeaderboardService(attemptRepo, rdb, cfg.LeaderboardSize, log)
	skillService := service.NewSkillService(skillRepo, log)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Assessment:  handler.NewAssessmentHandler(assessmentService),
		Attempt:     handler.NewAttemptHandler(attemptService),
		Certificate: handler.NewCertificateHandler(certificateService),
		Leaderboard: handler.NewLeaderboardHandler(assessmentService, leaderboardService, log),
		Profile:     handler.NewProfileHandler(attemptService, certificateService, skillService),
		System:      handler.NewSystemHandler(pool, rdb, attemptService, log),
		WS:          handler.NewWSHandler(attemptService, hub, log, cfg.AllowedOrigins),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())

	answerWorker := worker.NewAnswerWorker(answerRepo, rdb, log)
	expiryWorker := worker.NewExpiryWorker(
		attemptRepo, assessmentService, scoringService,
		time.Duration(cfg.ExpirySweepSeconds)*time.Second,
		time.Duration(cfg.ExpiryGraceSeconds)*time.Second,
		log,
	)
	leaderboardWorker := worker.NewLeaderboardWorker(
		leaderboardService, assessmentRepo, rdb,
		time.Duration(cfg.LeaderboardRebuildMinutes)*time.Minute,
		log,
	)

	go answerWorker.Start(workerCtx)
	go expiryWorker.Start(workerCtx)
	go leaderboardWorker.Start(workerCtx)

	// Keep the session gauge current.
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-workerCtx.Done():
				return
			case <-ticker.C:
				metrics.ActiveSessions.Set(float64(manager.ActiveCount()))
			}
		}
	}()

	// ─── Prewarm Redis Caches ─────────────────────────────────────────
	// Load all published assessments into Redis BEFORE accepting traffic.
	// This avoids race conditions from lazy loading under thundering herd.
	if err := assessmentService.PrewarmAllCaches(ctx); err != nil {
		log.Warn().Err(err).Msg("Cache prewarm failed")
	}

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(handlers, cfg)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: r,
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

	// 2. Freeze live sessions and persist their progress so a restarted
	// instance can rebuild them.
	sessionCtx, sessionCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer sessionCancel()
	manager.Shutdown(sessionCtx)

	// 3. Stop background workers and wait for queues to drain.
	workerCancel()
	time.Sleep(2 * time.Second) // Allow workers to drain.

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
