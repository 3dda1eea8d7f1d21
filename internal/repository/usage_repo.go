package repository

import (
	"context"
	"fmt"

	"github.com/Cheertaboi/storefront-order-service/pkg/db"
)

type UsageRepo struct{}

func NewUsageRepo() *UsageRepo {
	return &UsageRepo{}
}

// Claim consumes one use of the coupon. The limit check and the increment are a single
// conditional statement, so concurrent orders cannot push used_count past usage_limit.
// It reports false when the coupon is inactive or exhausted.
func (r *UsageRepo) Claim(ctx context.Context, q db.DBTX, couponID int64) (bool, error) {
	query := `
		UPDATE coupons
		SET used_count = used_count + 1,
		    updated_at = NOW()
		WHERE id = $1
		  AND is_active
		  AND (usage_limit IS NULL OR used_count < usage_limit)
	`

	res, err := q.ExecContext(ctx, query, couponID)
	if err != nil {
		return false, fmt.Errorf("claim coupon usage: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim coupon usage: %w", err)
	}
	return n == 1, nil
}
