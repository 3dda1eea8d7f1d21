package handlers

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/Cheertaboi/storefront-order-service/internal/models"
	"github.com/Cheertaboi/storefront-order-service/internal/service"
)

// OrderService is the part of service.OrderService the HTTP layer calls.
type OrderService interface {
	PlaceOrder(ctx context.Context, cmd service.PlaceOrderCommand) (models.Order, error)
	PlaceAdminOrder(ctx context.Context, cmd service.AdminOrderCommand) (models.Order, error)
	GetOrder(ctx context.Context, id int64, caller models.Caller) (models.Order, error)
	ListOrders(ctx context.Context, caller models.Caller, limit int) ([]models.Order, error)
	AdminGetOrder(ctx context.Context, id int64) (models.Order, error)
	DeleteOrder(ctx context.Context, id int64) error
	UpdateDeliveryStatus(ctx context.Context, id int64, status string) (models.Order, error)
	CancelOrder(ctx context.Context, id int64) (models.Order, error)
	RecordPayment(ctx context.Context, id int64, status string) (models.Order, error)
}

// CouponService is the part of service.CouponService the HTTP layer calls.
type CouponService interface {
	Preview(ctx context.Context, code string, cartTotal decimal.Decimal) (models.CouponQuote, error)
	CreateCoupon(ctx context.Context, cmd service.CreateCouponCommand) (models.Coupon, error)
	SetActive(ctx context.Context, code string, active bool) error
}

var (
	_ OrderService  = (*service.OrderService)(nil)
	_ CouponService = (*service.CouponService)(nil)
)
