package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/opsledger/webhooks-backend/api/controllers"
	"github.com/opsledger/webhooks-backend/api/routes"
	"github.com/opsledger/webhooks-backend/internal/cron"
	"github.com/opsledger/webhooks-backend/internal/delivery"
	"github.com/opsledger/webhooks-backend/internal/events"
	"github.com/opsledger/webhooks-backend/internal/subscriptions"
	"github.com/opsledger/webhooks-backend/pkg/config"
	"github.com/opsledger/webhooks-backend/pkg/db"
	"github.com/opsledger/webhooks-backend/pkg/logger"
	"github.com/opsledger/webhooks-backend/pkg/metrics"
	"github.com/opsledger/webhooks-backend/pkg/migrate"
	"github.com/opsledger/webhooks-backend/pkg/redis"
	"github.com/opsledger/webhooks-backend/pkg/security"
)

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

	eventService, err := events.NewService(logg, subscriptionService, deliveryRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create event service", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	deliveryMetrics := metrics.NewDeliveryMetrics(registry)

	scheduler, err := delivery.NewScheduler(delivery.SchedulerParams{
		Logger:        logg,
		Store:         deliveryRepo,
		Subscriptions: subscriptionService,
		Dispatcher:    delivery.NewHTTPDispatcher(cfg.Dispatch),
		Policy:        delivery.NewPolicy(cfg.Retry),
		Metrics:       deliveryMetrics,
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

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	var bigqueryPinger controllers.Pinger // analytics export is optional and worker-only

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.RouterParams{
			Config:         cfg,
			Logger:         logg,
			DBPinger:       dbClient,
			RedisPinger:    redisClient,
			BigQueryPinger: bigqueryPinger,
			Registry:       registry,
			PassRunner:     passRunner,
			Deliveries:     deliveryRepo,
			Events:         eventService,
		}),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
