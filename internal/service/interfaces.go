package service

import (
	"context"

	"github.com/Cheertaboi/storefront-order-service/internal/models"
	"github.com/Cheertaboi/storefront-order-service/pkg/db"
)

// Repos required by services (interfaces so tests can substitute in-memory fakes).

// UnitOfWork runs fn inside one database transaction; fn's error rolls everything back.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, q db.DBTX) error) error
	Queryer() db.DBTX
}

// CatalogReader resolves live product data.
type CatalogReader interface {
	Get(ctx context.Context, q db.DBTX, id int64) (models.Product, error)
}

type ProductRepo interface {
	CatalogReader
	DecrementStock(ctx context.Context, q db.DBTX, id int64, qty int) (remaining int, ok bool, err error)
	RestoreStock(ctx context.Context, q db.DBTX, id int64, qty int) error
}

type CouponRepo interface {
	GetByCode(ctx context.Context, q db.DBTX, code string) (models.Coupon, error)
	Create(ctx context.Context, q db.DBTX, c models.Coupon) (models.Coupon, error)
	SetActive(ctx context.Context, q db.DBTX, code string, active bool) error
}

type UsageRepo interface {
	Claim(ctx context.Context, q db.DBTX, couponID int64) (bool, error)
}

type OrderRepo interface {
	Insert(ctx context.Context, q db.DBTX, o *models.Order) error
	GetByID(ctx context.Context, q db.DBTX, id int64) (models.Order, error)
	LockByID(ctx context.Context, q db.DBTX, id int64) (models.Order, error)
	GetVisible(ctx context.Context, q db.DBTX, id int64, caller models.Caller) (models.Order, error)
	ListVisible(ctx context.Context, q db.DBTX, caller models.Caller, limit int) ([]models.Order, error)
	UpdateDeliveryStatus(ctx context.Context, q db.DBTX, id int64, status models.DeliveryStatus) error
	UpdatePaymentStatus(ctx context.Context, q db.DBTX, id int64, status models.PaymentStatus) error
	Delete(ctx context.Context, q db.DBTX, id int64) error
}

type ItemRepo interface {
	Insert(ctx context.Context, q db.DBTX, item *models.OrderItem) error
	ListByOrder(ctx context.Context, q db.DBTX, orderID int64) ([]models.OrderItem, error)
	ListByOrders(ctx context.Context, q db.DBTX, orderIDs []int64) (map[int64][]models.OrderItem, error)
}

type CustomerRepo interface {
	FindOrCreateByPhone(ctx context.Context, q db.DBTX, c models.Customer) (models.Customer, error)
}
