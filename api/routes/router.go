package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/giftmarket/giftmarket-backend/api/controllers"
	webhookcontrollers "github.com/giftmarket/giftmarket-backend/api/controllers/webhooks"
	"github.com/giftmarket/giftmarket-backend/api/middleware"
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
	"github.com/giftmarket/giftmarket-backend/pkg/logger"
	pkgredis "github.com/giftmarket/giftmarket-backend/pkg/redis"
	"github.com/giftmarket/giftmarket-backend/pkg/square"
)

// Deps carries everything the HTTP surface needs. The router stays a pure
// wiring layer so cmd/api owns construction order and shutdown.
type Deps struct {
	Config *config.Config
	Logger *logger.Logger

	DB     db.Pinger
	Redis  *pkgredis.Client
	PubSub controllers.Pinger

	Square       *square.Client
	WebhookGuard *webhookcontrollers.Guard

	Accounts      accounts.Service
	Ledger        ledger.Service
	Catalog       catalog.Service
	Orders        orders.Service
	GiftOrders    giftorders.Service
	Refunds       refunds.Service
	Shipping      shipping.Service
	Deposits      deposits.Service
	Notifications notifications.Service
}

func NewRouter(d Deps) http.Handler {
	cfg := d.Config
	logg := d.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, map[string]controllers.Pinger{
			"postgres": d.DB,
			"redis":    d.Redis,
			"pubsub":   d.PubSub,
		}))
	})

	r.Route("/api/public", func(r chi.Router) {
		r.Get("/tracking/{code}", controllers.TrackingResolve(d.GiftOrders, logg))
	})

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/square", webhookcontrollers.SquareWebhook(d.Deposits, d.Square, d.WebhookGuard, logg))
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(d.Redis, logg))

		r.Route("/v1/accounts", func(r chi.Router) {
			r.Get("/me", controllers.AccountMe(d.Accounts, logg))
			r.Get("/me/balance", controllers.AccountBalance(d.Ledger, logg))
			r.Get("/me/transactions", controllers.AccountTransactions(d.Ledger, logg))
			r.Put("/me/preferences/cashback", controllers.AccountSetCashbackPreference(d.Accounts, logg))
		})

		r.Route("/v1/products", func(r chi.Router) {
			r.Get("/", controllers.ProductList(d.Catalog, logg))
			r.Get("/{productId}", controllers.ProductDetail(d.Catalog, logg))
		})

		r.Route("/v1/orders", func(r chi.Router) {
			r.Post("/", controllers.OrderPurchase(d.Orders, logg))
			r.Get("/", controllers.OrderList(d.Orders, logg))
			r.Get("/{orderId}", controllers.OrderDetail(d.Orders, logg))
			r.Post("/{orderId}/cancel", controllers.OrderCancel(d.Orders, logg))
			r.Post("/{orderId}/refund/accept", controllers.OrderAcceptRefund(d.Refunds, logg))
		})

		r.Route("/v1/gift-orders", func(r chi.Router) {
			r.Post("/", controllers.GiftOrderCreate(d.GiftOrders, logg))
			r.Get("/", controllers.GiftOrderList(d.GiftOrders, logg))
			r.Get("/{giftOrderId}", controllers.GiftOrderDetail(d.GiftOrders, logg))
			r.Post("/{giftOrderId}/confirm-payment", controllers.GiftOrderConfirmPayment(d.GiftOrders, logg))
			r.Post("/{giftOrderId}/cancel", controllers.GiftOrderCancel(d.GiftOrders, logg))
			r.Post("/{giftOrderId}/shipping/recalculate", controllers.GiftOrderRecalculateShipping(d.GiftOrders, logg))
			r.Post("/{giftOrderId}/refund/accept", controllers.GiftOrderAcceptRefund(d.Refunds, logg))
		})

		r.Post("/v1/shipping/quote", controllers.ShippingQuote(d.Shipping, logg))
		r.Post("/v1/deposits", controllers.DepositCreate(d.Deposits, logg))

		r.Route("/v1/notifications", func(r chi.Router) {
			r.Get("/", controllers.NotificationList(d.Notifications, logg))
			r.Post("/{notificationId}/read", controllers.NotificationMarkRead(d.Notifications, logg))
			r.Post("/read-all", controllers.NotificationMarkAllRead(d.Notifications, logg))
		})
	})

	r.Route("/api/admin", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireAnyRole(logg, "admin", "ops"))
		r.Use(middleware.Idempotency(d.Redis, logg))

		r.Route("/v1/accounts", func(r chi.Router) {
			r.Post("/", controllers.AdminProvisionAccount(d.Accounts, logg))
			r.Post("/{accountId}/disable", controllers.AdminDisableAccount(d.Accounts, logg))
		})
		r.Route("/v1/orders", func(r chi.Router) {
			r.Post("/{orderId}/advance", controllers.AdminAdvanceOrder(d.Orders, logg))
			r.Post("/{orderId}/refund", controllers.AdminMarkOrderRefunded(d.Refunds, logg))
		})
		r.Route("/v1/gift-orders", func(r chi.Router) {
			r.Post("/{giftOrderId}/advance", controllers.AdminAdvanceGiftOrder(d.GiftOrders, logg))
			r.Post("/{giftOrderId}/refund", controllers.AdminMarkGiftOrderRefunded(d.Refunds, logg))
		})
	})

	return r
}
