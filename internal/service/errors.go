package service

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput signals a malformed or incomplete request the caller can correct.
	ErrInvalidInput = errors.New("invalid input")
	// ErrProductUnavailable indicates a cart line references a missing or unpublished product.
	ErrProductUnavailable = errors.New("product unavailable")
	// ErrCouponNotEligible indicates the coupon cannot be applied to this order.
	ErrCouponNotEligible = errors.New("coupon not eligible")
	// ErrInsufficientStock indicates a line asks for more units than are on hand.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrOrderNotFound indicates the order does not exist or is not visible to the caller.
	ErrOrderNotFound = errors.New("order not found")
	// ErrInvalidTransition indicates a status change the lifecycle does not allow.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrCouponNotFound is returned by coupon administration when no coupon has the code.
	ErrCouponNotFound = errors.New("coupon not found")
	// ErrCouponConflict indicates a coupon with the same code already exists.
	ErrCouponConflict = errors.New("coupon already exists")
	// ErrPersistence wraps storage failures. Its detail is for logs, not for callers.
	ErrPersistence = errors.New("persistence error")
)

var domainErrors = []error{
	ErrInvalidInput,
	ErrProductUnavailable,
	ErrCouponNotEligible,
	ErrInsufficientStock,
	ErrOrderNotFound,
	ErrInvalidTransition,
	ErrCouponNotFound,
	ErrCouponConflict,
	ErrPersistence,
}

func persistence(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrPersistence, op, err)
}

// classify leaves domain errors untouched and turns anything else (begin, commit,
// driver and context errors) into ErrPersistence.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	for _, known := range domainErrors {
		if errors.Is(err, known) {
			return err
		}
	}
	return persistence(op, err)
}

// Reason returns a stable, low-cardinality label for err.
func Reason(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrProductUnavailable):
		return "product_unavailable"
	case errors.Is(err, ErrCouponNotEligible):
		return "coupon_not_eligible"
	case errors.Is(err, ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, ErrOrderNotFound):
		return "order_not_found"
	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, ErrCouponNotFound):
		return "coupon_not_found"
	case errors.Is(err, ErrCouponConflict):
		return "coupon_conflict"
	default:
		return "persistence_error"
	}
}
