package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/omnivurse/crm-eco-sub010/api/controllers"
	"github.com/omnivurse/crm-eco-sub010/api/routes"
	"github.com/omnivurse/crm-eco-sub010/internal/billing"
	"github.com/omnivurse/crm-eco-sub010/internal/notifications"
	"github.com/omnivurse/crm-eco-sub010/pkg/config"
	"github.com/omnivurse/crm-eco-sub010/pkg/db"
	"github.com/omnivurse/crm-eco-sub010/pkg/logger"
	"github.com/omnivurse/crm-eco-sub010/pkg/metrics"
	"github.com/omnivurse/crm-eco-sub010/pkg/migrate"
	"github.com/omnivurse/crm-eco-sub010/pkg/pubsub"
	"github.com/omnivurse/crm-eco-sub010/pkg/redis"
	"github.com/omnivurse/crm-eco-sub010/pkg/square"
)

const shutdownGrace = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(ctx, "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		logg.Error(ctx, "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(ctx, "error closing redis", err)
		}
	}()

	squareClient, err := square.NewClient(ctx, cfg.Square, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap square", err)
		os.Exit(1)
	}

	var pubsubClient *pubsub.Client
	var notifier billing.Notifier = notifications.NoopDispatcher{Logger: logg}
	var pubsubPinger controllers.Pinger
	if cfg.GCP.ProjectID != "" {
		pubsubClient, err = pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
		if err != nil {
			logg.Error(ctx, "failed to bootstrap pubsub", err)
			os.Exit(1)
		}
		defer pubsubClient.Close()

		dispatcher, err := notifications.NewDispatcher(notifications.DispatcherParams{
			Publisher: pubsubClient.NotificationPublisher(),
			Logger:    logg,
		})
		if err != nil {
			logg.Error(ctx, "failed to create notification dispatcher", err)
			os.Exit(1)
		}
		notifier = dispatcher
		pubsubPinger = pubsubClient
	}

	orchestrator, scheduleService, err := buildEngine(cfg, logg, dbClient, squareClient, notifier)
	if err != nil {
		logg.Error(ctx, "failed to build billing engine", err)
		os.Exit(1)
	}

	runService, err := billing.NewLockedRunner(billing.LockedRunnerParams{
		Runner: orchestrator,
		Store:  redisClient,
		Key:    redisClient.RunMarkerKey(cfg.App.Env),
	})
	if err != nil {
		logg.Error(ctx, "failed to build run lock", err)
		os.Exit(1)
	}

	router := routes.NewRouter(routes.RouterParams{
		Config:           cfg,
		Logger:           logg,
		DB:               dbClient,
		Redis:            redisClient,
		PubSub:           pubsubPinger,
		IdempotencyStore: redisClient,
		RunService:       runService,
		ScheduleService:  scheduleService,
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port

	ctx = logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown failed", err)
			os.Exit(1)
		}
		logg.Info(ctx, "api server shut down gracefully")
	}
}

func buildEngine(
	cfg *config.Config,
	logg *logger.Logger,
	dbClient *db.Client,
	gateway *square.Client,
	notifier billing.Notifier,
) (*billing.Orchestrator, *billing.Service, error) {
	repo := billing.NewRepository(dbClient.DB())

	processor, err := billing.NewProcessor(billing.ProcessorParams{
		Repo:    repo,
		Gateway: gateway,
		Logger:  logg,
	})
	if err != nil {
		return nil, nil, err
	}

	policy := billing.PolicyFromConfig(cfg.Billing)

	dueRunner, err := billing.NewDueRunner(billing.DueRunnerParams{
		Repo:      repo,
		Processor: processor,
		Notifier:  notifier,
		Policy:    policy,
		Logger:    logg,
	})
	if err != nil {
		return nil, nil, err
	}

	failureRunner, err := billing.NewFailureRunner(billing.FailureRunnerParams{
		Repo:      repo,
		Processor: processor,
		Notifier:  notifier,
		Policy:    policy,
		Logger:    logg,
	})
	if err != nil {
		return nil, nil, err
	}

	orchestrator, err := billing.NewOrchestrator(billing.OrchestratorParams{
		DueRunner:     dueRunner,
		FailureRunner: failureRunner,
		Logger:        logg,
		Metrics:       metrics.NewBillingRunMetrics(prometheus.DefaultRegisterer),
	})
	if err != nil {
		return nil, nil, err
	}

	scheduleService, err := billing.NewService(billing.ServiceParams{Repo: repo})
	if err != nil {
		return nil, nil, err
	}

	return orchestrator, scheduleService, nil
}
