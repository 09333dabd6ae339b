package main

import (
	"context"
	"errors"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/giftmarket/giftmarket-backend/internal/catalog"
	"github.com/giftmarket/giftmarket-backend/internal/cron"
	"github.com/giftmarket/giftmarket-backend/internal/giftorders"
	"github.com/giftmarket/giftmarket-backend/internal/ledger"
	"github.com/giftmarket/giftmarket-backend/internal/notifications"
	"github.com/giftmarket/giftmarket-backend/internal/shipping"
	"github.com/giftmarket/giftmarket-backend/pkg/config"
	"github.com/giftmarket/giftmarket-backend/pkg/db"
	"github.com/giftmarket/giftmarket-backend/pkg/enums"
	"github.com/giftmarket/giftmarket-backend/pkg/logger"
	"github.com/giftmarket/giftmarket-backend/pkg/metrics"
	"github.com/giftmarket/giftmarket-backend/pkg/migrate"
	"github.com/giftmarket/giftmarket-backend/pkg/outbox"
	"github.com/giftmarket/giftmarket-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
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

	redisClient, err := redis.New(context.Background(), cfg.Redis)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	gormDB := dbClient.DB()
	outboxRepo := outbox.NewRepository(gormDB)
	outboxSvc := outbox.NewService(outboxRepo, logg)

	ledgerSvc, err := ledger.NewService(ledger.NewRepository(gormDB), dbClient, outboxSvc)
	if err != nil {
		logg.Error(context.Background(), "failed to create ledger service", err)
		os.Exit(1)
	}

	baseCurrency, err := enums.ParseCurrency(cfg.Rates.BaseCurrency)
	if err != nil {
		logg.Error(context.Background(), "invalid base currency", err)
		os.Exit(1)
	}
	calculator, err := shipping.NewCalculator(shipping.DefaultTariff())
	if err != nil {
		logg.Error(context.Background(), "failed to build shipping calculator", err)
		os.Exit(1)
	}
	shippingSvc, err := shipping.NewService(calculator, shipping.StaticRates{Base: baseCurrency}, baseCurrency)
	if err != nil {
		logg.Error(context.Background(), "failed to create shipping service", err)
		os.Exit(1)
	}

	giftOrdersSvc, err := giftorders.NewService(
		giftorders.NewRepository(gormDB),
		catalog.NewRepository(gormDB),
		ledgerSvc,
		shippingSvc,
		dbClient,
		outboxSvc,
		cfg.Orders.GiftCancelWindow,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create gift orders service", err)
		os.Exit(1)
	}

	expiryJob, err := cron.NewGiftOrderExpiryJob(giftOrdersSvc, cfg.Cron.GiftOrderPaymentTTL, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create gift order expiry job", err)
		os.Exit(1)
	}
	notificationJob, err := cron.NewNotificationRetentionJob(notifications.NewRepository(gormDB), cfg.Cron.NotificationRetention, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create notification retention job", err)
		os.Exit(1)
	}
	outboxJob, err := cron.NewOutboxRetentionJob(outboxRepo, cfg.Outbox.RetentionDays, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create outbox retention job", err)
		os.Exit(1)
	}

	runner, err := cron.NewRunner(
		redisClient,
		cfg.Cron.Interval,
		cfg.Cron.LockTTL,
		metrics.NewJobMetrics(prometheus.DefaultRegisterer),
		logg,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron runner", err)
		os.Exit(1)
	}
	runner.Register(expiryJob, notificationJob, outboxJob)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env})
	logg.Info(ctx, "starting cron worker")

	if err := runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}
