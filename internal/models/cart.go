package models

// CartLine is a (product, quantity) pair submitted for purchase, not yet priced.
type CartLine struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

type DeliveryDetails struct {
	Phone   string `json:"phone"`
	Area    string `json:"area"`
	Address string `json:"address"`
}

type CartRequest struct {
	Cart          []CartLine    `json:"cart"`
	Phone         string        `json:"phone"`
	Area          string        `json:"area"`
	Address       string        `json:"address"`
	PaymentMethod PaymentMethod `json:"payment_method"`
	CouponCode    string        `json:"coupon_code,omitempty"`
}

func (r CartRequest) Delivery() DeliveryDetails {
	return DeliveryDetails{Phone: r.Phone, Area: r.Area, Address: r.Address}
}
