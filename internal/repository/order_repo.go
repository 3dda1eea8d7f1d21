package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Cheertaboi/storefront-order-service/internal/models"
	"github.com/Cheertaboi/storefront-order-service/pkg/db"
)

const orderColumns = `id, order_number, user_id, checkout_session_id, phone, area, address,
	payment_method, payment_status, delivery_status, total_amount, discount_amount, final_amount,
	coupon_code, created_at, updated_at`

// visibleTo matches an order owned by the caller's user id, or a guest order carrying the
// caller's session id. $2 is the user id (NULL when anonymous) and $3 the session id.
const visibleTo = `(($2::BIGINT IS NOT NULL AND user_id = $2)
	OR (user_id IS NULL AND $3::TEXT <> '' AND checkout_session_id = $3))`

type OrderRepo struct{}

func NewOrderRepo() *OrderRepo {
	return &OrderRepo{}
}

// Insert persists the order header and fills in ID and timestamps.
func (r *OrderRepo) Insert(ctx context.Context, q db.DBTX, o *models.Order) error {
	if !o.Owner.Valid() {
		return errors.New("insert order: owner is required")
	}
	userID, sessionID := ownerColumns(o.Owner)

	query := `
		INSERT INTO orders
		(order_number, user_id, checkout_session_id, phone, area, address, payment_method,
		 payment_status, delivery_status, total_amount, discount_amount, final_amount, coupon_code,
		 created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, NOW(), NOW())
		RETURNING id, created_at, updated_at
	`
	var coupon sql.NullString
	if o.CouponCode != nil {
		coupon = sql.NullString{String: *o.CouponCode, Valid: true}
	}

	err := q.QueryRowContext(ctx, query,
		o.Number,
		userID,
		sessionID,
		o.Phone,
		o.Area,
		o.Address,
		string(o.PaymentMethod),
		string(o.PaymentStatus),
		string(o.DeliveryStatus),
		o.Subtotal,
		o.Discount,
		o.FinalAmount,
		coupon,
	).Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

// GetByID fetches the order header without ownership scoping.
func (r *OrderRepo) GetByID(ctx context.Context, q db.DBTX, id int64) (models.Order, error) {
	return r.getOne(ctx, q, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
}

// LockByID fetches the order header and holds a row lock until the transaction ends.
func (r *OrderRepo) LockByID(ctx context.Context, q db.DBTX, id int64) (models.Order, error) {
	return r.getOne(ctx, q, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id)
}

// GetVisible fetches the order only if the caller may see it.
func (r *OrderRepo) GetVisible(ctx context.Context, q db.DBTX, id int64, caller models.Caller) (models.Order, error) {
	userID, sessionID := callerArgs(caller)
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1 AND ` + visibleTo
	return r.getOne(ctx, q, query, id, userID, sessionID)
}

// ListVisible returns the caller's orders, newest first.
func (r *OrderRepo) ListVisible(ctx context.Context, q db.DBTX, caller models.Caller, limit int) ([]models.Order, error) {
	userID, sessionID := callerArgs(caller)
	query := `SELECT ` + orderColumns + ` FROM orders WHERE ` + visibleTo + `
		ORDER BY created_at DESC, id DESC LIMIT $1`

	rows, err := q.QueryContext(ctx, query, limit, userID, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var orders []models.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("list orders: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return orders, nil
}

func (r *OrderRepo) UpdateDeliveryStatus(ctx context.Context, q db.DBTX, id int64, status models.DeliveryStatus) error {
	return r.exec(ctx, q, "update delivery status",
		`UPDATE orders SET delivery_status = $2, updated_at = NOW() WHERE id = $1`, id, string(status))
}

func (r *OrderRepo) UpdatePaymentStatus(ctx context.Context, q db.DBTX, id int64, status models.PaymentStatus) error {
	return r.exec(ctx, q, "update payment status",
		`UPDATE orders SET payment_status = $2, updated_at = NOW() WHERE id = $1`, id, string(status))
}

// Delete removes the order; its items go with it through ON DELETE CASCADE.
func (r *OrderRepo) Delete(ctx context.Context, q db.DBTX, id int64) error {
	return r.exec(ctx, q, "delete order", `DELETE FROM orders WHERE id = $1`, id)
}

func (r *OrderRepo) exec(ctx context.Context, q db.DBTX, op, query string, args ...any) error {
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *OrderRepo) getOne(ctx context.Context, q db.DBTX, query string, args ...any) (models.Order, error) {
	o, err := scanOrder(q.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Order{}, ErrNotFound
		}
		return models.Order{}, fmt.Errorf("get order: %w", err)
	}
	return o, nil
}

func scanOrder(row rowScanner) (models.Order, error) {
	var (
		o         models.Order
		userID    sql.NullInt64
		sessionID sql.NullString
		method    string
		payment   string
		delivery  string
		coupon    sql.NullString
	)
	err := row.Scan(
		&o.ID,
		&o.Number,
		&userID,
		&sessionID,
		&o.Phone,
		&o.Area,
		&o.Address,
		&method,
		&payment,
		&delivery,
		&o.Subtotal,
		&o.Discount,
		&o.FinalAmount,
		&coupon,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	if err != nil {
		return models.Order{}, err
	}
	switch {
	case userID.Valid:
		o.Owner = models.AuthenticatedOwner(userID.Int64)
	case sessionID.Valid:
		o.Owner = models.GuestOwner(sessionID.String)
	}
	o.PaymentMethod = models.PaymentMethod(method)
	o.PaymentStatus = models.PaymentStatus(payment)
	o.DeliveryStatus = models.DeliveryStatus(delivery)
	if coupon.Valid {
		code := coupon.String
		o.CouponCode = &code
	}
	return o, nil
}

func ownerColumns(owner models.Owner) (sql.NullInt64, sql.NullString) {
	if id, ok := owner.UserID(); ok {
		return sql.NullInt64{Int64: id, Valid: true}, sql.NullString{}
	}
	session, _ := owner.SessionID()
	return sql.NullInt64{}, sql.NullString{String: session, Valid: true}
}

func callerArgs(caller models.Caller) (sql.NullInt64, string) {
	var userID sql.NullInt64
	if caller.Authenticated() {
		userID = sql.NullInt64{Int64: caller.UserID, Valid: true}
	}
	return userID, caller.SessionID
}
