package models

import "strings"

type DeliveryStatus string

const (
	DeliveryPending        DeliveryStatus = "Pending"
	DeliveryProcessing     DeliveryStatus = "Processing"
	DeliveryPacked         DeliveryStatus = "Packed"
	DeliveryShipped        DeliveryStatus = "Shipped"
	DeliveryOutForDelivery DeliveryStatus = "Out for Delivery"
	DeliveryDelivered      DeliveryStatus = "Delivered"
	DeliveryCancelled      DeliveryStatus = "Cancelled"
	DeliveryReturned       DeliveryStatus = "Returned"
)

// deliveryChain is the happy path in order; any forward move along it is legal.
var deliveryChain = []DeliveryStatus{
	DeliveryPending,
	DeliveryProcessing,
	DeliveryPacked,
	DeliveryShipped,
	DeliveryOutForDelivery,
	DeliveryDelivered,
}

var deliverySideExits = map[DeliveryStatus][]DeliveryStatus{
	DeliveryPending:    {DeliveryCancelled},
	DeliveryProcessing: {DeliveryCancelled},
	DeliveryDelivered:  {DeliveryReturned},
}

var deliveryStatuses = map[string]DeliveryStatus{
	"pending":          DeliveryPending,
	"processing":       DeliveryProcessing,
	"packed":           DeliveryPacked,
	"shipped":          DeliveryShipped,
	"out for delivery": DeliveryOutForDelivery,
	"out_for_delivery": DeliveryOutForDelivery,
	"delivered":        DeliveryDelivered,
	"cancelled":        DeliveryCancelled,
	"canceled":         DeliveryCancelled,
	"returned":         DeliveryReturned,
}

// ParseDeliveryStatus accepts the canonical names case-insensitively.
func ParseDeliveryStatus(raw string) (DeliveryStatus, bool) {
	status, ok := deliveryStatuses[strings.ToLower(strings.TrimSpace(raw))]
	return status, ok
}

func (s DeliveryStatus) Terminal() bool {
	return s == DeliveryCancelled || s == DeliveryReturned
}

func (s DeliveryStatus) rank() int {
	for i, step := range deliveryChain {
		if step == s {
			return i
		}
	}
	return -1
}

// CanTransitionTo reports whether moving from s to next is allowed.
// Moves are forward-only; skipping ahead on the chain is permitted.
func (s DeliveryStatus) CanTransitionTo(next DeliveryStatus) bool {
	if s == next || s.Terminal() {
		return false
	}
	for _, exit := range deliverySideExits[s] {
		if exit == next {
			return true
		}
	}
	from, to := s.rank(), next.rank()
	return from >= 0 && to > from
}

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "Pending"
	PaymentPaid     PaymentStatus = "Paid"
	PaymentFailed   PaymentStatus = "Failed"
	PaymentRefunded PaymentStatus = "Refunded"
)

var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentPending: {PaymentPaid, PaymentFailed},
	PaymentFailed:  {PaymentPaid},
	PaymentPaid:    {PaymentRefunded},
}

func ParsePaymentStatus(raw string) (PaymentStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "pending":
		return PaymentPending, true
	case "paid", "succeeded":
		return PaymentPaid, true
	case "failed":
		return PaymentFailed, true
	case "refunded":
		return PaymentRefunded, true
	}
	return "", false
}

func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	for _, allowed := range paymentTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

type PaymentMethod string

const (
	PaymentUPI  PaymentMethod = "upi"
	PaymentCard PaymentMethod = "card"
	PaymentCOD  PaymentMethod = "cod"
)

func ParsePaymentMethod(raw string) (PaymentMethod, bool) {
	switch m := PaymentMethod(strings.ToLower(strings.TrimSpace(raw))); m {
	case PaymentUPI, PaymentCard, PaymentCOD:
		return m, true
	}
	return "", false
}

// Online methods are settled before the order is placed.
func (m PaymentMethod) Online() bool {
	return m == PaymentUPI || m == PaymentCard
}

// InitialPaymentStatus is the payment status a freshly placed order starts in.
func (m PaymentMethod) InitialPaymentStatus() PaymentStatus {
	if m.Online() {
		return PaymentPaid
	}
	return PaymentPending
}
