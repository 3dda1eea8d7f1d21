package models

import "github.com/shopspring/decimal"

// CouponQuote is the outcome of evaluating a coupon against a subtotal.
type CouponQuote struct {
	CouponID    int64
	Code        string
	Discount    decimal.Decimal
	FinalAmount decimal.Decimal
}
