package models

import "github.com/shopspring/decimal"

type ProductStatus string

const (
	ProductPublished ProductStatus = "published"
	ProductDraft     ProductStatus = "draft"
	ProductArchived  ProductStatus = "archived"
)

// Product is the inventory-relevant projection of a catalog entry.
type Product struct {
	ID     int64
	Name   string
	Price  decimal.Decimal
	Stock  int
	Status ProductStatus
}

func (p Product) Purchasable() bool {
	return p.Status == ProductPublished
}

type Customer struct {
	ID    int64
	Name  string
	Phone string
	Email string
}
