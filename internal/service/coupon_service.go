package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Cheertaboi/storefront-order-service/internal/cache"
	"github.com/Cheertaboi/storefront-order-service/internal/models"
	"github.com/Cheertaboi/storefront-order-service/internal/repository"
	"github.com/Cheertaboi/storefront-order-service/pkg/db"
	"github.com/Cheertaboi/storefront-order-service/pkg/logger"
)

const pqUniqueViolation = "23505"

var hundred = decimal.NewFromInt(100)

// CouponServiceDeps bundles collaborators required to construct the coupon service.
type CouponServiceDeps struct {
	Coupons    CouponRepo
	Usage      UsageRepo
	UnitOfWork UnitOfWork
	Cache      *cache.CouponCache
	Clock      func() time.Time
}

// CouponService evaluates coupons against a subtotal and consumes their usage.
type CouponService struct {
	coupons CouponRepo
	usage   UsageRepo
	uow     UnitOfWork
	cache   *cache.CouponCache
	clock   func() time.Time
}

func NewCouponService(deps CouponServiceDeps) (*CouponService, error) {
	if deps.Coupons == nil {
		return nil, errors.New("coupon service: coupon repository is required")
	}
	if deps.Usage == nil {
		return nil, errors.New("coupon service: usage repository is required")
	}
	if deps.UnitOfWork == nil {
		return nil, errors.New("coupon service: unit of work is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &CouponService{
		coupons: deps.Coupons,
		usage:   deps.Usage,
		uow:     deps.UnitOfWork,
		cache:   deps.Cache,
		clock:   func() time.Time { return clock().UTC() },
	}, nil
}

// EvaluateCoupon checks eligibility of c for subtotal at now and computes the discount.
// The discount is rounded to cents and never exceeds the subtotal.
func EvaluateCoupon(c models.Coupon, subtotal decimal.Decimal, now time.Time) (decimal.Decimal, error) {
	switch {
	case !c.IsActive:
		return decimal.Zero, fmt.Errorf("%w: coupon %s is not active", ErrCouponNotEligible, c.Code)
	case c.StartsAt != nil && now.Before(*c.StartsAt):
		return decimal.Zero, fmt.Errorf("%w: coupon %s is not valid yet", ErrCouponNotEligible, c.Code)
	case c.ExpiresAt != nil && now.After(*c.ExpiresAt):
		return decimal.Zero, fmt.Errorf("%w: coupon %s has expired", ErrCouponNotEligible, c.Code)
	case c.Exhausted():
		return decimal.Zero, fmt.Errorf("%w: coupon %s has reached its usage limit", ErrCouponNotEligible, c.Code)
	case subtotal.LessThan(c.MinOrder):
		return decimal.Zero, fmt.Errorf("%w: coupon %s requires a minimum order of %s",
			ErrCouponNotEligible, c.Code, c.MinOrder.StringFixed(2))
	}

	var discount decimal.Decimal
	switch c.Type {
	case models.DiscountFlat:
		discount = c.Value
	case models.DiscountPercentage:
		discount = subtotal.Mul(c.Value).Div(hundred)
		if c.MaxDiscount.Valid && discount.GreaterThan(c.MaxDiscount.Decimal) {
			discount = c.MaxDiscount.Decimal
		}
	default:
		return decimal.Zero, fmt.Errorf("%w: coupon %s has unknown type %q", ErrCouponNotEligible, c.Code, c.Type)
	}

	discount = discount.Round(2)
	if discount.GreaterThan(subtotal) {
		discount = subtotal
	}
	if discount.IsNegative() {
		discount = decimal.Zero
	}
	return discount, nil
}

// Quote reads the coupon through q and evaluates it against subtotal without consuming it.
func (s *CouponService) Quote(ctx context.Context, q db.DBTX, code string, subtotal decimal.Decimal) (models.CouponQuote, error) {
	normalized := models.NormalizeCouponCode(code)
	if normalized == "" {
		return models.CouponQuote{}, fmt.Errorf("%w: coupon code is required", ErrInvalidInput)
	}

	c, err := s.coupons.GetByCode(ctx, q, normalized)
	if errors.Is(err, repository.ErrNotFound) {
		return models.CouponQuote{}, fmt.Errorf("%w: coupon %s does not exist", ErrCouponNotEligible, normalized)
	}
	if err != nil {
		return models.CouponQuote{}, persistence("read coupon", err)
	}
	return s.quote(c, subtotal)
}

func (s *CouponService) quote(c models.Coupon, subtotal decimal.Decimal) (models.CouponQuote, error) {
	discount, err := EvaluateCoupon(c, subtotal, s.clock())
	if err != nil {
		return models.CouponQuote{}, err
	}
	return models.CouponQuote{
		CouponID:    c.ID,
		Code:        models.NormalizeCouponCode(c.Code),
		Discount:    discount,
		FinalAmount: FinalAmount(subtotal, discount),
	}, nil
}

// Redeem consumes one use of a quoted coupon inside the caller's transaction.
func (s *CouponService) Redeem(ctx context.Context, q db.DBTX, quote models.CouponQuote) error {
	ok, err := s.usage.Claim(ctx, q, quote.CouponID)
	if err != nil {
		return persistence("claim coupon", err)
	}
	if !ok {
		return fmt.Errorf("%w: coupon %s has reached its usage limit", ErrCouponNotEligible, quote.Code)
	}
	return nil
}

// forget drops the cached copy of a coupon whose usage just changed.
func (s *CouponService) forget(code string) {
	s.cache.Delete(code)
}

// Preview evaluates a coupon for a checkout screen. Nothing is persisted.
func (s *CouponService) Preview(ctx context.Context, code string, cartTotal decimal.Decimal) (models.CouponQuote, error) {
	ctx, span := tracer.Start(ctx, "CouponService.Preview")
	quote, err := s.preview(ctx, code, cartTotal)
	endSpan(span, err)
	return quote, err
}

func (s *CouponService) preview(ctx context.Context, code string, cartTotal decimal.Decimal) (models.CouponQuote, error) {
	if cartTotal.IsNegative() {
		return models.CouponQuote{}, fmt.Errorf("%w: cart total must not be negative", ErrInvalidInput)
	}
	normalized := models.NormalizeCouponCode(code)
	if normalized == "" {
		return models.CouponQuote{}, fmt.Errorf("%w: coupon code is required", ErrInvalidInput)
	}

	if c, ok := s.cache.Get(normalized); ok {
		return s.quote(c, cartTotal)
	}

	c, err := s.coupons.GetByCode(ctx, s.uow.Queryer(), normalized)
	if errors.Is(err, repository.ErrNotFound) {
		return models.CouponQuote{}, fmt.Errorf("%w: coupon %s does not exist", ErrCouponNotEligible, normalized)
	}
	if err != nil {
		logger.FromContext(ctx).Error("coupon lookup failed", zap.String("code", normalized), zap.Error(err))
		return models.CouponQuote{}, persistence("read coupon", err)
	}
	s.cache.Set(c)
	return s.quote(c, cartTotal)
}

// CreateCouponCommand describes a coupon an admin wants to create.
type CreateCouponCommand struct {
	Code        string
	Type        string
	Value       decimal.Decimal
	MinOrder    decimal.Decimal
	MaxDiscount *decimal.Decimal
	StartsAt    *time.Time
	ExpiresAt   *time.Time
	UsageLimit  *int
	Active      bool
}

func (s *CouponService) CreateCoupon(ctx context.Context, cmd CreateCouponCommand) (models.Coupon, error) {
	c, err := couponFromCommand(cmd)
	if err != nil {
		return models.Coupon{}, err
	}

	var created models.Coupon
	err = s.uow.RunInTx(ctx, func(ctx context.Context, q db.DBTX) error {
		out, err := s.coupons.Create(ctx, q, c)
		if err != nil {
			var pqErr *pq.Error
			if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
				return fmt.Errorf("%w: %s", ErrCouponConflict, c.Code)
			}
			return persistence("create coupon", err)
		}
		created = out
		return nil
	})
	if err != nil {
		return models.Coupon{}, classify("create coupon", err)
	}
	logger.FromContext(ctx).Info("coupon created", zap.String("code", created.Code), zap.Int64("coupon_id", created.ID))
	return created, nil
}

// SetActive toggles a coupon and drops any cached copy of it.
func (s *CouponService) SetActive(ctx context.Context, code string, active bool) error {
	normalized := models.NormalizeCouponCode(code)
	if normalized == "" {
		return fmt.Errorf("%w: coupon code is required", ErrInvalidInput)
	}
	err := s.uow.RunInTx(ctx, func(ctx context.Context, q db.DBTX) error {
		err := s.coupons.SetActive(ctx, q, normalized, active)
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrCouponNotFound, normalized)
		}
		if err != nil {
			return persistence("toggle coupon", err)
		}
		return nil
	})
	if err != nil {
		return classify("toggle coupon", err)
	}
	s.cache.Delete(normalized)
	return nil
}

func couponFromCommand(cmd CreateCouponCommand) (models.Coupon, error) {
	code := models.NormalizeCouponCode(cmd.Code)
	kind := models.DiscountType(strings.ToLower(strings.TrimSpace(cmd.Type)))

	var problems []string
	if code == "" {
		problems = append(problems, "code is required")
	}
	if !kind.Valid() {
		problems = append(problems, "type must be flat or percentage")
	}
	if !cmd.Value.IsPositive() {
		problems = append(problems, "value must be positive")
	}
	if kind == models.DiscountPercentage && cmd.Value.GreaterThan(hundred) {
		problems = append(problems, "percentage value must not exceed 100")
	}
	if cmd.MinOrder.IsNegative() {
		problems = append(problems, "min_order must not be negative")
	}
	if cmd.MaxDiscount != nil {
		if kind != models.DiscountPercentage {
			problems = append(problems, "max_discount only applies to percentage coupons")
		} else if !cmd.MaxDiscount.IsPositive() {
			problems = append(problems, "max_discount must be positive")
		}
	}
	if cmd.UsageLimit != nil && *cmd.UsageLimit < 1 {
		problems = append(problems, "usage_limit must be at least 1")
	}
	if cmd.StartsAt != nil && cmd.ExpiresAt != nil && !cmd.ExpiresAt.After(*cmd.StartsAt) {
		problems = append(problems, "expires_at must be after starts_at")
	}
	if len(problems) > 0 {
		return models.Coupon{}, fmt.Errorf("%w: %s", ErrInvalidInput, strings.Join(problems, "; "))
	}

	c := models.Coupon{
		Code:       code,
		Type:       kind,
		Value:      cmd.Value,
		MinOrder:   cmd.MinOrder,
		StartsAt:   cmd.StartsAt,
		ExpiresAt:  cmd.ExpiresAt,
		UsageLimit: cmd.UsageLimit,
		IsActive:   cmd.Active,
	}
	if cmd.MaxDiscount != nil {
		c.MaxDiscount = decimal.NewNullDecimal(*cmd.MaxDiscount)
	}
	return c, nil
}
