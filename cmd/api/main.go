package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"

	webhookcontrollers "github.com/giftmarket/giftmarket-backend/api/controllers/webhooks"
	"github.com/giftmarket/giftmarket-backend/api/routes"
	"github.com/giftmarket/giftmarket-backend/internal/accounts"
	"github.com/giftmarket/giftmarket-backend/internal/catalog"
	"github.com/giftmarket/giftmarket-backend/internal/deposits"
	"github.com/giftmarket/giftmarket-backend/internal/giftorders"
	"github.com/giftmarket/giftmarket-backend/internal/ledger"
	"github.com/giftmarket/giftmarket-backend/internal/notifications"
	"github.com/giftmarket/giftmarket-backend/internal/orders"
	"github.com/giftmarket/giftmarket-backend/internal/refunds"
	"github.com/giftmarket/giftmarket-backend/internal/shipping"
	"github.com/giftmarket/giftmarket-backend/pkg/config"
	"github.com/giftmarket/giftmarket-backend/pkg/db"
	"github.com/giftmarket/giftmarket-backend/pkg/enums"
	"github.com/giftmarket/giftmarket-backend/pkg/logger"
	"github.com/giftmarket/giftmarket-backend/pkg/migrate"
	"github.com/giftmarket/giftmarket-backend/pkg/outbox"
	"github.com/giftmarket/giftmarket-backend/pkg/pubsub"
	"github.com/giftmarket/giftmarket-backend/pkg/redis"
	"github.com/giftmarket/giftmarket-backend/pkg/square"
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

	pubsubClient, err := pubsub.NewClient(context.Background(), cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap pubsub", err)
		os.Exit(1)
	}
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing pubsub client", err)
		}
	}()

	squareClient, err := square.NewClient(context.Background(), cfg.Square, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap square client", err)
		os.Exit(1)
	}

	gormDB := dbClient.DB()
	outboxSvc := outbox.NewService(outbox.NewRepository(gormDB), logg)

	ledgerSvc, err := ledger.NewService(ledger.NewRepository(gormDB), dbClient, outboxSvc)
	if err != nil {
		logg.Error(context.Background(), "failed to create ledger service", err)
		os.Exit(1)
	}
	accountsSvc, err := accounts.NewService(accounts.NewRepository(gormDB))
	if err != nil {
		logg.Error(context.Background(), "failed to create accounts service", err)
		os.Exit(1)
	}
	catalogRepo := catalog.NewRepository(gormDB)
	catalogSvc, err := catalog.NewService(catalogRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create catalog service", err)
		os.Exit(1)
	}
	ordersSvc, err := orders.NewService(orders.NewRepository(gormDB), catalogRepo, ledgerSvc, dbClient, outboxSvc)
	if err != nil {
		logg.Error(context.Background(), "failed to create orders service", err)
		os.Exit(1)
	}

	baseCurrency, err := enums.ParseCurrency(cfg.Rates.BaseCurrency)
	if err != nil {
		logg.Error(context.Background(), "invalid base currency", err)
		os.Exit(1)
	}
	tariff := shipping.DefaultTariff()
	if cfg.Shipping.FragileSurchargeBps > 0 {
		tariff.FragileSurchargeBps = int64(cfg.Shipping.FragileSurchargeBps)
	}
	calculator, err := shipping.NewCalculator(tariff)
	if err != nil {
		logg.Error(context.Background(), "failed to build shipping calculator", err)
		os.Exit(1)
	}
	var rates shipping.RateProvider = shipping.DefaultStaticRates()
	if cfg.Rates.ProviderURL != "" {
		rates = shipping.HTTPRates{URL: cfg.Rates.ProviderURL}
	}
	cachedRates, err := shipping.NewCachedRates(rates, cfg.Rates.RefreshTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to build rate cache", err)
		os.Exit(1)
	}
	shippingSvc, err := shipping.NewService(calculator, cachedRates, baseCurrency)
	if err != nil {
		logg.Error(context.Background(), "failed to create shipping service", err)
		os.Exit(1)
	}

	giftOrdersSvc, err := giftorders.NewService(
		giftorders.NewRepository(gormDB),
		catalogRepo,
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
	refundsSvc, err := refunds.NewService(refunds.NewRepository(gormDB), ledgerSvc, dbClient, outboxSvc)
	if err != nil {
		logg.Error(context.Background(), "failed to create refunds service", err)
		os.Exit(1)
	}
	depositsSvc, err := deposits.NewService(squareClient, ledgerSvc, cfg.Gateway.VerifyTimeout, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create deposits service", err)
		os.Exit(1)
	}
	notificationsSvc, err := notifications.NewService(notifications.NewRepository(gormDB))
	if err != nil {
		logg.Error(context.Background(), "failed to create notifications service", err)
		os.Exit(1)
	}
	webhookGuard, err := webhookcontrollers.NewGuard(redisClient)
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook guard", err)
		os.Exit(1)
	}

	router := routes.NewRouter(routes.Deps{
		Config:        cfg,
		Logger:        logg,
		DB:            dbClient,
		Redis:         redisClient,
		PubSub:        pubsubClient,
		Square:        squareClient,
		WebhookGuard:  webhookGuard,
		Accounts:      accountsSvc,
		Ledger:        ledgerSvc,
		Catalog:       catalogSvc,
		Orders:        ordersSvc,
		GiftOrders:    giftOrdersSvc,
		Refunds:       refundsSvc,
		Shipping:      shippingSvc,
		Deposits:      depositsSvc,
		Notifications: notificationsSvc,
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:    addr,
		Handler: router,
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
			logg.Error(ctx, "error shutting down api server", err)
		}
	}

	logg.Info(ctx, "api server shutting down gracefully")
}
