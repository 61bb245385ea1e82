package main

import (
	"context"
	"errors"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/opsledger/webhooks-backend/internal/analytics"
	"github.com/opsledger/webhooks-backend/internal/cron"
	"github.com/opsledger/webhooks-backend/internal/delivery"
	"github.com/opsledger/webhooks-backend/internal/subscriptions"
	"github.com/opsledger/webhooks-backend/pkg/bigquery"
	"github.com/opsledger/webhooks-backend/pkg/config"
	"github.com/opsledger/webhooks-backend/pkg/db"
	"github.com/opsledger/webhooks-backend/pkg/logger"
	"github.com/opsledger/webhooks-backend/pkg/metrics"
	"github.com/opsledger/webhooks-backend/pkg/migrate"
	"github.com/opsledger/webhooks-backend/pkg/redis"
	"github.com/opsledger/webhooks-backend/pkg/security"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "delivery-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "delivery-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	sealer, err := security.NewSealer(cfg.Secrets)
	if err != nil {
		logg.Error(context.Background(), "failed to create secret sealer", err)
		os.Exit(1)
	}

	subscriptionService, err := subscriptions.NewService(subscriptions.NewRepository(dbClient.DB()), sealer)
	if err != nil {
		logg.Error(context.Background(), "failed to create subscription service", err)
		os.Exit(1)
	}

	deliveryRepo := delivery.NewRepository(dbClient.DB())
	deliveryMetrics := metrics.NewDeliveryMetrics(prometheus.DefaultRegisterer)

	var recorder delivery.OutcomeRecorder
	if cfg.BigQuery.Enabled {
		bqClient, err := bigquery.NewClient(context.Background(), cfg.GCP, cfg.BigQuery, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to bootstrap bigquery", err)
			os.Exit(1)
		}
		defer func() {
			if err := bqClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing bigquery", err)
			}
		}()

		writer, err := analytics.New(bqClient, analytics.Config{
			Table:     cfg.BigQuery.DeliveryEventsTable,
			BatchSize: cfg.BigQuery.BatchSize,
		})
		if err != nil {
			logg.Error(context.Background(), "failed to create delivery fact writer", err)
			os.Exit(1)
		}
		recorder = writer
	}

	scheduler, err := delivery.NewScheduler(delivery.SchedulerParams{
		Logger:        logg,
		Store:         deliveryRepo,
		Subscriptions: subscriptionService,
		Dispatcher:    delivery.NewHTTPDispatcher(cfg.Dispatch),
		Policy:        delivery.NewPolicy(cfg.Retry),
		Metrics:       deliveryMetrics,
		Recorder:      recorder,
		BatchSize:     cfg.Dispatch.BatchSize,
		Concurrency:   cfg.Dispatch.Concurrency,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create retry scheduler", err)
		os.Exit(1)
	}

	passLock, err := cron.NewRedisLock(redisClient, redisClient.LockKey("delivery-pass"), cfg.Worker.LockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create pass lock", err)
		os.Exit(1)
	}

	passRunner, err := delivery.NewRunner(logg, scheduler, passLock, deliveryMetrics)
	if err != nil {
		logg.Error(context.Background(), "failed to create pass runner", err)
		os.Exit(1)
	}

	retryJob, err := cron.NewRetryPassJob(passRunner)
	if err != nil {
		logg.Error(context.Background(), "failed to create retry pass job", err)
		os.Exit(1)
	}

	reaperJob, err := cron.NewInFlightReaperJob(logg, deliveryRepo, cfg.Worker.InFlightTimeout)
	if err != nil {
		logg.Error(context.Background(), "failed to create inflight reaper job", err)
		os.Exit(1)
	}

	cycleLock, err := cron.NewRedisLock(redisClient, redisClient.LockKey("delivery-worker-cycle"), cfg.Worker.LockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create worker lock", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(retryJob, reaperJob),
		Lock:     cycleLock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Worker.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create worker service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env})
	logg.Info(ctx, "starting delivery worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "delivery worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "delivery worker shutting down gracefully")
}
