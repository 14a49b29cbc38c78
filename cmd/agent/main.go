package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-client/internal/apiclient"
	"github.com/stemsi/exstem-client/internal/config"
	"github.com/stemsi/exstem-client/internal/database"
	"github.com/stemsi/exstem-client/internal/handler"
	"github.com/stemsi/exstem-client/internal/logger"
	"github.com/stemsi/exstem-client/internal/notification"
	"github.com/stemsi/exstem-client/internal/repository"
	"github.com/stemsi/exstem-client/internal/router"
	"github.com/stemsi/exstem-client/internal/service"
	"github.com/stemsi/exstem-client/internal/validator"
	"github.com/stemsi/exstem-client/internal/worker"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.AgentPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Msg("Starting ExStem Client Agent")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Open the Embedded Store ───────────────────────────────────────
	db, err := database.NewSQLiteDB(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open SQLite store")
	}
	defer db.Close()

	if err := database.MigrateUp(db, log); err != nil {
		log.Fatal().Err(err).Msg("Failed to migrate SQLite store")
	}

	if err := os.MkdirAll(cfg.SpoolDir, 0o755); err != nil {
		log.Fatal().Err(err).Str("dir", cfg.SpoolDir).Msg("Failed to create spool directory")
	}

	// ─── Initialize Repositories ───────────────────────────────────────
	submissionRepo := repository.NewSubmissionRepository(db, cfg.SyncMaxRetries)
	quizRepo := repository.NewQuizAttemptRepository(db, cfg.SyncMaxRetries)
	statusRepo := repository.NewAttemptStatusRepository(db)
	timeTrustRepo := repository.NewTimeTrustRepository(db)
	accountRepo := repository.NewAccountRepository(db)

	// ─── Remote API Client ─────────────────────────────────────────────
	api := apiclient.New(cfg.APIBaseURL, cfg.APITimeout, log)

	// ─── Initialize Services ──────────────────────────────────────────
	guardService := service.NewTimeGuardService(timeTrustRepo, cfg.TimeDriftTolerance, log)
	syncService := service.NewSyncService(api, statusRepo, log)

	eventsHandler := handler.NewEventsHandler(log, cfg.AllowedOrigins)
	notifier := notification.Multi{
		notification.NewLogNotifier(log),
		eventsHandler,
	}

	wipeOffline := func(ctx context.Context) error {
		for _, wipe := range []func(context.Context) error{
			submissionRepo.DeleteAll,
			quizRepo.DeleteAll,
			statusRepo.DeleteAll,
			timeTrustRepo.DeleteAll,
		} {
			if err := wipe(ctx); err != nil {
				return err
			}
		}
		return nil
	}

	authService := service.NewAuthService(accountRepo, api, guardService, wipeOffline, cfg.BcryptCost, log)
	connService := service.NewConnectivityService(api, cfg.ProbeInterval, log)
	schedulerService := service.NewSchedulerService(submissionRepo, quizRepo, syncService, authService, connService, notifier, log)
	assessmentService := service.NewAssessmentService(
		quizRepo,
		submissionRepo,
		statusRepo,
		guardService,
		syncService,
		api,
		api,
		connService,
		log,
	)

	// Re-install the persisted token so a restarted agent keeps working
	// without forcing a fresh login.
	authService.RestoreToken(ctx)

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())

	syncWorker := worker.NewSyncWorker(schedulerService, cfg.SyncInterval, log)
	if err := syncWorker.Register(); err != nil {
		log.Fatal().Err(err).Msg("Failed to register background sync")
	}

	// Connectivity recovery triggers an immediate flush; the UI event
	// stream mirrors every transition.
	connService.Subscribe(eventsHandler.ConnectivityChanged)
	connService.Subscribe(func(online bool) {
		if online {
			go schedulerService.RunOnce(workerCtx)
		}
	})
	go connService.Start(workerCtx)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Auth:       handler.NewAuthHandler(authService, connService),
		Assessment: handler.NewAssessmentHandler(cfg, assessmentService),
		Sync:       handler.NewSyncHandler(schedulerService, syncWorker, connService, submissionRepo, quizRepo),
		Events:     eventsHandler,
	}

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(authService, handlers, cfg)

	// ─── Create HTTP Server ────────────────────────────────────────────
	// Loopback only: the agent serves the local UI shell, never the LAN.
	srv := &http.Server{
		Addr:    "127.0.0.1:" + cfg.AgentPort,
		Handler: r,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("Agent listening")
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

	// 2. Stop the background flush and the connectivity probe.
	if err := syncWorker.Unregister(); err != nil {
		log.Error().Err(err).Msg("Background sync shutdown error")
	}
	workerCancel()

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
