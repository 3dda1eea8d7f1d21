package handlers

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Cheertaboi/storefront-order-service/internal/models"
)

// money renders an amount as a JSON number with two decimals.
func money(d decimal.Decimal) json.Number {
	return json.Number(d.StringFixed(2))
}

type orderItemResponse struct {
	ProductID   int64       `json:"product_id"`
	ProductName string      `json:"product_name"`
	Price       json.Number `json:"price"`
	Quantity    int         `json:"quantity"`
	LineTotal   json.Number `json:"line_total"`
}

type orderResponse struct {
	ID             int64               `json:"id"`
	Number         string              `json:"order_number"`
	Phone          string              `json:"phone"`
	Area           string              `json:"area"`
	Address        string              `json:"address"`
	PaymentMethod  string              `json:"payment_method"`
	PaymentStatus  string              `json:"payment_status"`
	DeliveryStatus string              `json:"delivery_status"`
	Subtotal       json.Number         `json:"subtotal"`
	Discount       json.Number         `json:"discount"`
	FinalAmount    json.Number         `json:"final_amount"`
	CouponCode     *string             `json:"coupon_code,omitempty"`
	Items          []orderItemResponse `json:"items"`
	CreatedAt      time.Time           `json:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at"`
}

func newOrderResponse(o models.Order) orderResponse {
	items := make([]orderItemResponse, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, orderItemResponse{
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			Price:       money(it.Price),
			Quantity:    it.Quantity,
			LineTotal:   money(it.LineTotal()),
		})
	}
	return orderResponse{
		ID:             o.ID,
		Number:         o.Number,
		Phone:          o.Phone,
		Area:           o.Area,
		Address:        o.Address,
		PaymentMethod:  string(o.PaymentMethod),
		PaymentStatus:  string(o.PaymentStatus),
		DeliveryStatus: string(o.DeliveryStatus),
		Subtotal:       money(o.Subtotal),
		Discount:       money(o.Discount),
		FinalAmount:    money(o.FinalAmount),
		CouponCode:     o.CouponCode,
		Items:          items,
		CreatedAt:      o.CreatedAt,
		UpdatedAt:      o.UpdatedAt,
	}
}

// placedResponse is the body returned when an order has been created.
type placedResponse struct {
	OK             bool        `json:"ok"`
	OrderID        int64       `json:"order_id"`
	OrderNumber    string      `json:"order_number"`
	Subtotal       json.Number `json:"subtotal"`
	Discount       json.Number `json:"discount"`
	FinalAmount    json.Number `json:"final_amount"`
	PaymentStatus  string      `json:"payment_status"`
	DeliveryStatus string      `json:"delivery_status"`
}

func newPlacedResponse(o models.Order) placedResponse {
	return placedResponse{
		OK:             true,
		OrderID:        o.ID,
		OrderNumber:    o.Number,
		Subtotal:       money(o.Subtotal),
		Discount:       money(o.Discount),
		FinalAmount:    money(o.FinalAmount),
		PaymentStatus:  string(o.PaymentStatus),
		DeliveryStatus: string(o.DeliveryStatus),
	}
}
