package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/Cheertaboi/storefront-order-service/internal/models"
	"github.com/Cheertaboi/storefront-order-service/pkg/db"
)

type CustomerRepo struct{}

func NewCustomerRepo() *CustomerRepo {
	return &CustomerRepo{}
}

// FindOrCreateByPhone returns the customer registered under phone, creating one when absent.
// An existing customer's name and email are only filled in, never overwritten with blanks.
func (r *CustomerRepo) FindOrCreateByPhone(ctx context.Context, q db.DBTX, c models.Customer) (models.Customer, error) {
	query := `
		INSERT INTO users (name, phone, email)
		VALUES ($1, $2, NULLIF($3, ''))
		ON CONFLICT (phone) DO UPDATE
		SET name  = COALESCE(NULLIF(EXCLUDED.name, ''), users.name),
		    email = COALESCE(EXCLUDED.email, users.email)
		RETURNING id, name, phone, COALESCE(email, '')
	`

	var out models.Customer
	err := q.QueryRowContext(ctx, query,
		strings.TrimSpace(c.Name),
		strings.TrimSpace(c.Phone),
		strings.TrimSpace(c.Email),
	).Scan(&out.ID, &out.Name, &out.Phone, &out.Email)
	if err != nil {
		return models.Customer{}, fmt.Errorf("find or create customer: %w", err)
	}
	return out, nil
}
