package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Order struct {
	ID             int64
	Number         string
	Owner          Owner
	Phone          string
	Area           string
	Address        string
	PaymentMethod  PaymentMethod
	PaymentStatus  PaymentStatus
	DeliveryStatus DeliveryStatus
	Subtotal       decimal.Decimal
	Discount       decimal.Decimal
	FinalAmount    decimal.Decimal
	CouponCode     *string
	Items          []OrderItem
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// OrderItem carries the name and unit price as they were when the order was placed.
type OrderItem struct {
	ID          int64
	OrderID     int64
	ProductID   int64
	ProductName string
	Price       decimal.Decimal
	Quantity    int
}

func (i OrderItem) LineTotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}
