package main

import (
	"context"
	"errors"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"go.uber.org/multierr"

	"github.com/opsledger/webhooks-backend/internal/delivery"
	"github.com/opsledger/webhooks-backend/internal/events"
	"github.com/opsledger/webhooks-backend/internal/subscriptions"
	"github.com/opsledger/webhooks-backend/pkg/config"
	"github.com/opsledger/webhooks-backend/pkg/db"
	"github.com/opsledger/webhooks-backend/pkg/logger"
	"github.com/opsledger/webhooks-backend/pkg/migrate"
	"github.com/opsledger/webhooks-backend/pkg/pubsub"
	"github.com/opsledger/webhooks-backend/pkg/security"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "events-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "events-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	pubsubClient, err := pubsub.NewClient(context.Background(), cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap pubsub", err)
		os.Exit(1)
	}

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

	fanout, err := events.NewService(logg, subscriptionService, delivery.NewRepository(dbClient.DB()))
	if err != nil {
		logg.Error(context.Background(), "failed to create event service", err)
		os.Exit(1)
	}

	consumer, err := events.NewConsumer(fanout, pubsubClient.EventsSubscription(), logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create events consumer", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env})
	logg.Info(ctx, "starting events worker")

	runErr := consumer.Run(ctx)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		logg.Error(ctx, "events worker stopped unexpectedly", runErr)
	}

	var closeErr error
	closeErr = multierr.Append(closeErr, pubsubClient.Close())
	closeErr = multierr.Append(closeErr, dbClient.Close())
	if closeErr != nil {
		logg.Error(ctx, "error closing resources", closeErr)
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		os.Exit(1)
	}

	logg.Info(ctx, "events worker shutting down gracefully")
}
