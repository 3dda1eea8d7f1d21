package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/Cheertaboi/storefront-order-service/internal/models"
	"github.com/Cheertaboi/storefront-order-service/internal/repository"
	"github.com/Cheertaboi/storefront-order-service/pkg/db"
)

// PricedLine is a cart line resolved against the catalog at pricing time.
type PricedLine struct {
	Product   models.Product
	Quantity  int
	LineTotal decimal.Decimal
}

type Pricing struct {
	Lines    []PricedLine
	Subtotal decimal.Decimal
}

// PricingCalculator turns cart lines into a subtotal using live catalog prices.
type PricingCalculator struct {
	catalog CatalogReader
}

func NewPricingCalculator(catalog CatalogReader) *PricingCalculator {
	return &PricingCalculator{catalog: catalog}
}

// Price resolves every line in order. A missing or unpublished product fails the whole cart.
func (c *PricingCalculator) Price(ctx context.Context, q db.DBTX, lines []models.CartLine) (Pricing, error) {
	out := Pricing{
		Lines:    make([]PricedLine, 0, len(lines)),
		Subtotal: decimal.Zero,
	}
	for _, line := range lines {
		p, err := c.catalog.Get(ctx, q, line.ProductID)
		if errors.Is(err, repository.ErrNotFound) {
			return Pricing{}, fmt.Errorf("%w: product %d does not exist", ErrProductUnavailable, line.ProductID)
		}
		if err != nil {
			return Pricing{}, persistence("read product", err)
		}
		if !p.Purchasable() {
			return Pricing{}, fmt.Errorf("%w: product %d (%s) is not available for purchase", ErrProductUnavailable, p.ID, p.Name)
		}

		total := p.Price.Mul(decimal.NewFromInt(int64(line.Quantity)))
		out.Lines = append(out.Lines, PricedLine{Product: p, Quantity: line.Quantity, LineTotal: total})
		out.Subtotal = out.Subtotal.Add(total)
	}
	return out, nil
}

// FinalAmount is max(subtotal - discount, 0).
func FinalAmount(subtotal, discount decimal.Decimal) decimal.Decimal {
	final := subtotal.Sub(discount)
	if final.IsNegative() {
		return decimal.Zero
	}
	return final
}
