package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/issue-tracker/internal/api/http"
	"github.com/spec-kit/issue-tracker/internal/api/http/handlers"
	"github.com/spec-kit/issue-tracker/internal/classifier"
	"github.com/spec-kit/issue-tracker/internal/config"
	"github.com/spec-kit/issue-tracker/internal/events"
	"github.com/spec-kit/issue-tracker/internal/gitscrum"
	"github.com/spec-kit/issue-tracker/internal/mailbox"
	"github.com/spec-kit/issue-tracker/internal/mailer"
	"github.com/spec-kit/issue-tracker/internal/observability"
	"github.com/spec-kit/issue-tracker/internal/persistence"
	"github.com/spec-kit/issue-tracker/internal/repository"
	"github.com/spec-kit/issue-tracker/internal/scheduler"
	"github.com/spec-kit/issue-tracker/internal/service"
	"github.com/spec-kit/issue-tracker/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	var ticketRepo repository.TicketRepository
	if pool := pg.PoolHandle(); pool != nil {
		ticketRepo = repository.NewTicketRepository(pool)
	} else {
		logger.Warn("running with in-memory ticket store; tickets will not survive restarts")
		ticketRepo = repository.NewMemoryTicketRepository()
	}

	issueClassifier, err := classifier.NewGemini(ctx, cfg.Classifier, logger)
	if err != nil {
		logger.Fatal("failed to init classifier", zap.Error(err))
	}
	defer issueClassifier.Close() //nolint:errcheck

	dispatcher := events.NewInMemoryDispatcher()
	metrics := observability.NewMetrics()

	notificationService := service.NewNotificationService(
		dispatcher,
		mailer.NewSMTPMailer(cfg.SMTP),
		logger,
		cfg.Tracker.EmployeeEmail,
	)
	worker.StartNotificationWorker(notificationService)

	tracker := service.NewTrackerService(service.TrackerDependencies{
		TicketRepo:       ticketRepo,
		Mail:             mailbox.NewIMAPSource(cfg.Mailbox, logger),
		SeenCache:        mailbox.NewSeenCache(redis.Client, logger),
		Classifier:       issueClassifier,
		Gateway:          gitscrum.NewClient(cfg.GitScrum),
		Dispatcher:       dispatcher,
		Logger:           logger,
		Metrics:          metrics,
		WaitHoursPerPass: cfg.Tracker.ReconcileSweepHours,
		Parallelism:      cfg.Tracker.SweepParallelism,
	})

	sched, err := scheduler.New(cfg.Tracker, scheduler.Jobs{
		Intake:    tracker.IntakeSweep,
		Reconcile: tracker.ReconcileSweep,
	}, logger)
	if err != nil {
		logger.Fatal("failed to init scheduler", zap.Error(err))
	}
	sched.Start()

	app := fiber.New()
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Status: handlers.NewStatusHandler(cfg.App.Name, metrics),
		Health: handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis),
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer stopCancel()
	if err := sched.Stop(stopCtx); err != nil {
		logger.Warn("scheduler shutdown incomplete", zap.Error(err))
	}

	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
