package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type DiscountType string

const (
	DiscountFlat       DiscountType = "flat"
	DiscountPercentage DiscountType = "percentage"
)

func (t DiscountType) Valid() bool {
	return t == DiscountFlat || t == DiscountPercentage
}

type Coupon struct {
	ID          int64
	Code        string
	Type        DiscountType
	Value       decimal.Decimal
	MinOrder    decimal.Decimal
	MaxDiscount decimal.NullDecimal
	StartsAt    *time.Time
	ExpiresAt   *time.Time
	UsageLimit  *int
	UsedCount   int
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NormalizeCouponCode is the canonical form codes are stored and looked up in.
func NormalizeCouponCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Exhausted reports whether a usage limit exists and has been reached.
func (c Coupon) Exhausted() bool {
	return c.UsageLimit != nil && c.UsedCount >= *c.UsageLimit
}
