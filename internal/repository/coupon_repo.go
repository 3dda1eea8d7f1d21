package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Cheertaboi/storefront-order-service/internal/models"
	"github.com/Cheertaboi/storefront-order-service/pkg/db"
)

const couponColumns = `id, code, type, value, min_order, max_discount, starts_at, expires_at,
	usage_limit, used_count, is_active, created_at, updated_at`

type CouponRepo struct{}

func NewCouponRepo() *CouponRepo {
	return &CouponRepo{}
}

// GetByCode looks the coupon up case-insensitively.
func (r *CouponRepo) GetByCode(ctx context.Context, q db.DBTX, code string) (models.Coupon, error) {
	query := `SELECT ` + couponColumns + ` FROM coupons WHERE UPPER(code) = $1`

	c, err := scanCoupon(q.QueryRowContext(ctx, query, models.NormalizeCouponCode(code)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Coupon{}, ErrNotFound
		}
		return models.Coupon{}, fmt.Errorf("get coupon: %w", err)
	}
	return c, nil
}

func (r *CouponRepo) Create(ctx context.Context, q db.DBTX, c models.Coupon) (models.Coupon, error) {
	query := `
		INSERT INTO coupons
		(code, type, value, min_order, max_discount, starts_at, expires_at, usage_limit, used_count, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 0, $9, NOW(), NOW())
		RETURNING ` + couponColumns

	var usageLimit sql.NullInt64
	if c.UsageLimit != nil {
		usageLimit = sql.NullInt64{Int64: int64(*c.UsageLimit), Valid: true}
	}

	created, err := scanCoupon(q.QueryRowContext(ctx, query,
		models.NormalizeCouponCode(c.Code),
		string(c.Type),
		c.Value,
		c.MinOrder,
		c.MaxDiscount,
		nullTime(c.StartsAt),
		nullTime(c.ExpiresAt),
		usageLimit,
		c.IsActive,
	))
	if err != nil {
		return models.Coupon{}, fmt.Errorf("insert coupon: %w", err)
	}
	return created, nil
}

// SetActive toggles the active flag; ErrNotFound when no coupon has the code.
func (r *CouponRepo) SetActive(ctx context.Context, q db.DBTX, code string, active bool) error {
	query := `UPDATE coupons SET is_active = $2, updated_at = NOW() WHERE UPPER(code) = $1`

	res, err := q.ExecContext(ctx, query, models.NormalizeCouponCode(code), active)
	if err != nil {
		return fmt.Errorf("set coupon active: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set coupon active: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanCoupon(row rowScanner) (models.Coupon, error) {
	var (
		c          models.Coupon
		kind       string
		startsAt   sql.NullTime
		expiresAt  sql.NullTime
		usageLimit sql.NullInt64
	)
	err := row.Scan(
		&c.ID,
		&c.Code,
		&kind,
		&c.Value,
		&c.MinOrder,
		&c.MaxDiscount,
		&startsAt,
		&expiresAt,
		&usageLimit,
		&c.UsedCount,
		&c.IsActive,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return models.Coupon{}, err
	}
	c.Type = models.DiscountType(kind)
	if startsAt.Valid {
		t := startsAt.Time
		c.StartsAt = &t
	}
	if expiresAt.Valid {
		t := expiresAt.Time
		c.ExpiresAt = &t
	}
	if usageLimit.Valid {
		limit := int(usageLimit.Int64)
		c.UsageLimit = &limit
	}
	return c, nil
}
