package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/Cheertaboi/storefront-order-service/internal/api/handlers"
	"github.com/Cheertaboi/storefront-order-service/internal/api/httpx"
	"github.com/Cheertaboi/storefront-order-service/internal/api/middleware"
	"github.com/Cheertaboi/storefront-order-service/internal/config"
	"github.com/Cheertaboi/storefront-order-service/pkg/logger"
)

const healthTimeout = 2 * time.Second

// Deps is everything the router needs to serve requests.
type Deps struct {
	Orders   handlers.OrderService
	Coupons  handlers.CouponService
	Auth     *middleware.Authenticator
	Webhooks config.WebhookConfig
	Logger   *zap.Logger
	Ping     func(ctx context.Context) error
}

// NewRouter builds the HTTP router for the order service
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Trace)
	r.Use(middleware.Logger(deps.Logger))
	r.Use(middleware.Recoverer)

	orderHandler := handlers.NewOrderHandler(deps.Orders)
	adminHandler := handlers.NewAdminHandler(deps.Orders)
	couponHandler := handlers.NewCouponHandler(deps.Coupons)
	webhookHandler := handlers.NewPaymentWebhookHandler(deps.Orders, deps.Webhooks)

	// health
	r.Get("/health", health(deps.Ping))

	// signed server-to-server callbacks carry no caller identity
	r.Post("/webhooks/payments", webhookHandler.Handle)

	r.Group(func(r chi.Router) {
		r.Use(deps.Auth.Identify)

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", orderHandler.PlaceOrder)
			r.Get("/", orderHandler.ListOrders)
			r.Get("/{id}", orderHandler.GetOrder)
		})

		r.Post("/coupons/apply", couponHandler.Apply)

		// Admin endpoints
		r.Route("/admin", func(r chi.Router) {
			r.Use(deps.Auth.RequireAdmin)

			r.Post("/orders", adminHandler.PlaceOrder)
			r.Route("/orders/{id}", func(r chi.Router) {
				r.Get("/", adminHandler.GetOrder)
				r.Delete("/", adminHandler.Delete)
				r.Patch("/status", adminHandler.UpdateStatus)
				r.Patch("/payment", adminHandler.UpdatePayment)
				r.Post("/cancel", adminHandler.Cancel)
			})

			r.Post("/coupons", couponHandler.Create)
			r.Patch("/coupons/{code}/active", couponHandler.SetActive)
		})
	})

	return r
}

func health(ping func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ping != nil {
			ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
			defer cancel()
			if err := ping(ctx); err != nil {
				logger.FromContext(r.Context()).Error("health check failed", zap.Error(err))
				httpx.WriteError(r.Context(), w, httpx.NewError("unavailable", "database unreachable", http.StatusServiceUnavailable))
				return
			}
		}
		httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
