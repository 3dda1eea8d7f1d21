package repository

import (
	"context"
	"fmt"

	"github.com/lib/pq"

	"github.com/Cheertaboi/storefront-order-service/internal/models"
	"github.com/Cheertaboi/storefront-order-service/pkg/db"
)

type ItemRepo struct{}

func NewItemRepo() *ItemRepo {
	return &ItemRepo{}
}

func (r *ItemRepo) Insert(ctx context.Context, q db.DBTX, item *models.OrderItem) error {
	query := `
		INSERT INTO order_items (order_id, product_id, product_name, price, quantity)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`
	err := q.QueryRowContext(ctx, query,
		item.OrderID,
		item.ProductID,
		item.ProductName,
		item.Price,
		item.Quantity,
	).Scan(&item.ID)
	if err != nil {
		return fmt.Errorf("insert order item: %w", err)
	}
	return nil
}

func (r *ItemRepo) ListByOrder(ctx context.Context, q db.DBTX, orderID int64) ([]models.OrderItem, error) {
	byOrder, err := r.ListByOrders(ctx, q, []int64{orderID})
	if err != nil {
		return nil, err
	}
	return byOrder[orderID], nil
}

// ListByOrders loads the items of several orders in one round-trip, keyed by order id.
func (r *ItemRepo) ListByOrders(ctx context.Context, q db.DBTX, orderIDs []int64) (map[int64][]models.OrderItem, error) {
	out := make(map[int64][]models.OrderItem, len(orderIDs))
	if len(orderIDs) == 0 {
		return out, nil
	}

	query := `
		SELECT id, order_id, product_id, product_name, price, quantity
		FROM order_items
		WHERE order_id = ANY($1)
		ORDER BY order_id, id
	`
	rows, err := q.QueryContext(ctx, query, pq.Array(orderIDs))
	if err != nil {
		return nil, fmt.Errorf("list order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var it models.OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.ProductName, &it.Price, &it.Quantity); err != nil {
			return nil, fmt.Errorf("list order items: %w", err)
		}
		out[it.OrderID] = append(out[it.OrderID], it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list order items: %w", err)
	}
	return out, nil
}
