package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Cheertaboi/storefront-order-service/internal/models"
	"github.com/Cheertaboi/storefront-order-service/pkg/db"
)

// ProductRepo is the catalog reader plus the two stock mutations orders need.
type ProductRepo struct{}

func NewProductRepo() *ProductRepo {
	return &ProductRepo{}
}

func (r *ProductRepo) Get(ctx context.Context, q db.DBTX, id int64) (models.Product, error) {
	var (
		p      models.Product
		status string
	)
	err := q.QueryRowContext(ctx,
		`SELECT id, name, price, stock, status FROM products WHERE id = $1`, id,
	).Scan(&p.ID, &p.Name, &p.Price, &p.Stock, &status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Product{}, ErrNotFound
		}
		return models.Product{}, fmt.Errorf("get product %d: %w", id, err)
	}
	p.Status = models.ProductStatus(status)
	return p, nil
}

// DecrementStock removes qty units only if that many are on hand. On success it returns
// the remaining stock; otherwise ok is false and remaining is the stock currently visible.
func (r *ProductRepo) DecrementStock(ctx context.Context, q db.DBTX, id int64, qty int) (remaining int, ok bool, err error) {
	query := `
		UPDATE products
		SET stock = stock - $2,
		    updated_at = NOW()
		WHERE id = $1 AND stock >= $2
		RETURNING stock
	`
	err = q.QueryRowContext(ctx, query, id, qty).Scan(&remaining)
	if err == nil {
		return remaining, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, false, fmt.Errorf("decrement stock for product %d: %w", id, err)
	}

	err = q.QueryRowContext(ctx, `SELECT stock FROM products WHERE id = $1`, id).Scan(&remaining)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, ErrNotFound
		}
		return 0, false, fmt.Errorf("read stock for product %d: %w", id, err)
	}
	return remaining, false, nil
}

func (r *ProductRepo) RestoreStock(ctx context.Context, q db.DBTX, id int64, qty int) error {
	res, err := q.ExecContext(ctx,
		`UPDATE products SET stock = stock + $2, updated_at = NOW() WHERE id = $1`, id, qty)
	if err != nil {
		return fmt.Errorf("restore stock for product %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("restore stock for product %d: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("restore stock for product %d: %w", id, ErrNotFound)
	}
	return nil
}
