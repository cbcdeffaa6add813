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
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/omnivurse/crm-eco-sub010/internal/billing"
	"github.com/omnivurse/crm-eco-sub010/internal/cron"
	"github.com/omnivurse/crm-eco-sub010/internal/notifications"
	"github.com/omnivurse/crm-eco-sub010/pkg/config"
	"github.com/omnivurse/crm-eco-sub010/pkg/db"
	"github.com/omnivurse/crm-eco-sub010/pkg/instance"
	"github.com/omnivurse/crm-eco-sub010/pkg/logger"
	"github.com/omnivurse/crm-eco-sub010/pkg/metrics"
	"github.com/omnivurse/crm-eco-sub010/pkg/migrate"
	"github.com/omnivurse/crm-eco-sub010/pkg/pubsub"
	"github.com/omnivurse/crm-eco-sub010/pkg/redis"
	"github.com/omnivurse/crm-eco-sub010/pkg/square"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "billing-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "billing-worker"

	logg = logger.New(logger.Options{
		ServiceName: "billing-worker",
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

	var notifier billing.Notifier = notifications.NoopDispatcher{Logger: logg}
	if cfg.GCP.ProjectID != "" {
		pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
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
	}

	orchestrator, err := buildEngine(cfg, logg, dbClient, squareClient, notifier)
	if err != nil {
		logg.Error(ctx, "failed to build billing engine", err)
		os.Exit(1)
	}

	lockedRunner, err := billing.NewLockedRunner(billing.LockedRunnerParams{
		Runner: orchestrator,
		Store:  redisClient,
		Key:    redisClient.RunMarkerKey(cfg.App.Env),
	})
	if err != nil {
		logg.Error(ctx, "failed to build run lock", err)
		os.Exit(1)
	}

	billingJob, err := cron.NewBillingRunJob(cron.BillingRunJobParams{
		Logger:       logg,
		Orchestrator: lockedRunner,
	})
	if err != nil {
		logg.Error(ctx, "failed to create billing run job", err)
		os.Exit(1)
	}

	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey("billing-worker"), 0)
	if err != nil {
		logg.Error(ctx, "failed to create worker lock", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(billingJob),
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Billing.RunInterval,
	})
	if err != nil {
		logg.Error(ctx, "failed to create worker service", err)
		os.Exit(1)
	}

	startObservabilityServer(ctx, cfg, logg)

	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"instance":    instance.GetID(),
	})
	logg.Info(ctx, "starting billing worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "billing worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "billing worker shutting down gracefully")
}

// startObservabilityServer exposes prometheus metrics and a liveness probe
// alongside the worker loop.
func startObservabilityServer(ctx context.Context, cfg *config.Config, logg *logger.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	server := &http.Server{
		Addr:              ":" + cfg.App.Port,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "observability server stopped unexpectedly", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
}

func buildEngine(
	cfg *config.Config,
	logg *logger.Logger,
	dbClient *db.Client,
	gateway *square.Client,
	notifier billing.Notifier,
) (*billing.Orchestrator, error) {
	repo := billing.NewRepository(dbClient.DB())

	processor, err := billing.NewProcessor(billing.ProcessorParams{
		Repo:    repo,
		Gateway: gateway,
		Logger:  logg,
	})
	if err != nil {
		return nil, err
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
		return nil, err
	}

	failureRunner, err := billing.NewFailureRunner(billing.FailureRunnerParams{
		Repo:      repo,
		Processor: processor,
		Notifier:  notifier,
		Policy:    policy,
		Logger:    logg,
	})
	if err != nil {
		return nil, err
	}

	return billing.NewOrchestrator(billing.OrchestratorParams{
		DueRunner:     dueRunner,
		FailureRunner: failureRunner,
		Logger:        logg,
		Metrics:       metrics.NewBillingRunMetrics(prometheus.DefaultRegisterer),
	})
}
