package service

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/Cheertaboi/storefront-order-service/internal/models"
	"github.com/Cheertaboi/storefront-order-service/internal/repository"
	"github.com/Cheertaboi/storefront-order-service/pkg/db"
	"github.com/Cheertaboi/storefront-order-service/pkg/logger"
)

const (
	channelStorefront = "storefront"
	channelAdmin      = "admin"

	defaultListLimit = 20
	maxListLimit     = 100

	// maxQuantity is the largest quantity of one product an order may carry (INTEGER column).
	maxQuantity = math.MaxInt32
)

// maxOrderAmount is the largest amount a NUMERIC(12,2) money column holds.
var maxOrderAmount = decimal.RequireFromString("9999999999.99")

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	UnitOfWork      UnitOfWork
	Products        ProductRepo
	Orders          OrderRepo
	Items           ItemRepo
	Customers       CustomerRepo
	Coupons         *CouponService
	NumberGenerator func() string
	Meter           metric.Meter
}

// OrderService places orders atomically and serves order reads.
type OrderService struct {
	uow       UnitOfWork
	products  ProductRepo
	orders    OrderRepo
	items     ItemRepo
	customers CustomerRepo
	coupons   *CouponService
	pricing   *PricingCalculator
	newNumber func() string
	metrics   orderMetrics
}

func NewOrderService(deps OrderServiceDeps) (*OrderService, error) {
	switch {
	case deps.UnitOfWork == nil:
		return nil, errors.New("order service: unit of work is required")
	case deps.Products == nil:
		return nil, errors.New("order service: product repository is required")
	case deps.Orders == nil:
		return nil, errors.New("order service: order repository is required")
	case deps.Items == nil:
		return nil, errors.New("order service: item repository is required")
	case deps.Customers == nil:
		return nil, errors.New("order service: customer repository is required")
	case deps.Coupons == nil:
		return nil, errors.New("order service: coupon service is required")
	}

	newNumber := deps.NumberGenerator
	if newNumber == nil {
		newNumber = func() string { return "ORD-" + ulid.Make().String() }
	}

	return &OrderService{
		uow:       deps.UnitOfWork,
		products:  deps.Products,
		orders:    deps.Orders,
		items:     deps.Items,
		customers: deps.Customers,
		coupons:   deps.Coupons,
		pricing:   NewPricingCalculator(deps.Products),
		newNumber: newNumber,
		metrics:   newOrderMetrics(deps.Meter),
	}, nil
}

// PlaceOrderCommand is a storefront checkout.
type PlaceOrderCommand struct {
	Owner         models.Owner
	Lines         []models.CartLine
	Delivery      models.DeliveryDetails
	PaymentMethod string
	CouponCode    string
}

// AdminOrderCommand is an order entered by staff on behalf of a customer identified by phone.
type AdminOrderCommand struct {
	Customer      models.Customer
	Lines         []models.CartLine
	Area          string
	Address       string
	PaymentMethod string
	CouponCode    string
}

// placement is the validated form shared by both order channels.
type placement struct {
	channel    string
	owner      models.Owner
	customer   *models.Customer
	lines      []models.CartLine
	delivery   models.DeliveryDetails
	method     models.PaymentMethod
	couponCode string
	takeStock  bool
}

// PlaceOrder creates a storefront order. Stock is not reserved on this path.
func (s *OrderService) PlaceOrder(ctx context.Context, cmd PlaceOrderCommand) (models.Order, error) {
	ctx, span := tracer.Start(ctx, "OrderService.PlaceOrder")
	order, err := s.placeStorefront(ctx, cmd)
	s.metrics.record(ctx, channelStorefront, err)
	endSpan(span, err)
	return order, err
}

func (s *OrderService) placeStorefront(ctx context.Context, cmd PlaceOrderCommand) (models.Order, error) {
	if !cmd.Owner.Valid() {
		return models.Order{}, fmt.Errorf("%w: an authenticated user or checkout session is required", ErrInvalidInput)
	}
	p, err := newPlacement(cmd.Lines, cmd.Delivery, cmd.PaymentMethod)
	if err != nil {
		return models.Order{}, err
	}
	p.channel = channelStorefront
	p.owner = cmd.Owner
	p.couponCode = cmd.CouponCode
	return s.place(ctx, p)
}

// PlaceAdminOrder finds or creates the customer by phone and places an order that
// takes stock for every line.
func (s *OrderService) PlaceAdminOrder(ctx context.Context, cmd AdminOrderCommand) (models.Order, error) {
	ctx, span := tracer.Start(ctx, "OrderService.PlaceAdminOrder")
	order, err := s.placeAdmin(ctx, cmd)
	s.metrics.record(ctx, channelAdmin, err)
	endSpan(span, err)
	return order, err
}

func (s *OrderService) placeAdmin(ctx context.Context, cmd AdminOrderCommand) (models.Order, error) {
	customer := models.Customer{
		Name:  strings.TrimSpace(cmd.Customer.Name),
		Phone: strings.TrimSpace(cmd.Customer.Phone),
		Email: strings.TrimSpace(cmd.Customer.Email),
	}
	if customer.Name == "" {
		return models.Order{}, fmt.Errorf("%w: customer name is required", ErrInvalidInput)
	}
	p, err := newPlacement(cmd.Lines, models.DeliveryDetails{
		Phone:   customer.Phone,
		Area:    cmd.Area,
		Address: cmd.Address,
	}, cmd.PaymentMethod)
	if err != nil {
		return models.Order{}, err
	}
	p.channel = channelAdmin
	p.customer = &customer
	p.couponCode = cmd.CouponCode
	p.takeStock = true
	return s.place(ctx, p)
}

func newPlacement(lines []models.CartLine, delivery models.DeliveryDetails, method string) (placement, error) {
	if len(lines) == 0 {
		return placement{}, fmt.Errorf("%w: cart is empty", ErrInvalidInput)
	}
	for i, line := range lines {
		if line.ProductID <= 0 {
			return placement{}, fmt.Errorf("%w: line %d has no product", ErrInvalidInput, i+1)
		}
		if line.Quantity <= 0 {
			return placement{}, fmt.Errorf("%w: line %d quantity must be positive", ErrInvalidInput, i+1)
		}
		if line.Quantity > maxQuantity {
			return placement{}, fmt.Errorf("%w: line %d quantity exceeds %d", ErrInvalidInput, i+1, maxQuantity)
		}
	}
	totals := make(map[int64]int64, len(lines))
	for _, line := range lines {
		totals[line.ProductID] += int64(line.Quantity)
		if totals[line.ProductID] > maxQuantity {
			return placement{}, fmt.Errorf("%w: product %d quantity exceeds %d", ErrInvalidInput, line.ProductID, maxQuantity)
		}
	}

	delivery = models.DeliveryDetails{
		Phone:   strings.TrimSpace(delivery.Phone),
		Area:    strings.TrimSpace(delivery.Area),
		Address: strings.TrimSpace(delivery.Address),
	}
	var missing []string
	if delivery.Phone == "" {
		missing = append(missing, "phone")
	}
	if delivery.Area == "" {
		missing = append(missing, "area")
	}
	if delivery.Address == "" {
		missing = append(missing, "address")
	}
	if len(missing) > 0 {
		return placement{}, fmt.Errorf("%w: missing %s", ErrInvalidInput, strings.Join(missing, ", "))
	}

	pm, ok := models.ParsePaymentMethod(method)
	if !ok {
		return placement{}, fmt.Errorf("%w: unknown payment method %q", ErrInvalidInput, method)
	}
	return placement{lines: lines, delivery: delivery, method: pm}, nil
}

func (s *OrderService) place(ctx context.Context, p placement) (models.Order, error) {
	var order models.Order
	err := s.uow.RunInTx(ctx, func(ctx context.Context, q db.DBTX) error {
		owner := p.owner
		if p.customer != nil {
			c, err := s.customers.FindOrCreateByPhone(ctx, q, *p.customer)
			if err != nil {
				return persistence("find or create customer", err)
			}
			owner = models.AuthenticatedOwner(c.ID)
		}

		priced, err := s.pricing.Price(ctx, q, p.lines)
		if err != nil {
			return err
		}
		if priced.Subtotal.GreaterThan(maxOrderAmount) {
			return fmt.Errorf("%w: order total %s exceeds %s",
				ErrInvalidInput, priced.Subtotal.StringFixed(2), maxOrderAmount.StringFixed(2))
		}

		discount := decimal.Zero
		var quote *models.CouponQuote
		if strings.TrimSpace(p.couponCode) != "" {
			qt, err := s.coupons.Quote(ctx, q, p.couponCode, priced.Subtotal)
			if err != nil {
				return err
			}
			quote = &qt
			discount = qt.Discount
		}

		o := models.Order{
			Number:         s.newNumber(),
			Owner:          owner,
			Phone:          p.delivery.Phone,
			Area:           p.delivery.Area,
			Address:        p.delivery.Address,
			PaymentMethod:  p.method,
			PaymentStatus:  p.method.InitialPaymentStatus(),
			DeliveryStatus: models.DeliveryPending,
			Subtotal:       priced.Subtotal,
			Discount:       discount,
			FinalAmount:    FinalAmount(priced.Subtotal, discount),
		}
		if quote != nil {
			code := quote.Code
			o.CouponCode = &code
		}
		if err := s.orders.Insert(ctx, q, &o); err != nil {
			return persistence("insert order", err)
		}

		o.Items = make([]models.OrderItem, 0, len(priced.Lines))
		for _, line := range priced.Lines {
			item := models.OrderItem{
				OrderID:     o.ID,
				ProductID:   line.Product.ID,
				ProductName: line.Product.Name,
				Price:       line.Product.Price,
				Quantity:    line.Quantity,
			}
			if err := s.items.Insert(ctx, q, &item); err != nil {
				return persistence("insert order item", err)
			}
			o.Items = append(o.Items, item)
		}

		if quote != nil {
			if err := s.coupons.Redeem(ctx, q, *quote); err != nil {
				return err
			}
		}

		if p.takeStock {
			for _, claim := range stockClaims(o.Items) {
				remaining, ok, err := s.products.DecrementStock(ctx, q, claim.productID, claim.quantity)
				if errors.Is(err, repository.ErrNotFound) {
					return fmt.Errorf("%w: product %d does not exist", ErrProductUnavailable, claim.productID)
				}
				if err != nil {
					return persistence("decrement stock", err)
				}
				if !ok {
					return fmt.Errorf("%w: product %d (%s) has %d available, %d requested",
						ErrInsufficientStock, claim.productID, claim.name, remaining, claim.quantity)
				}
			}
		}

		order = o
		return nil
	})
	if err != nil {
		err = classify("place order", err)
		log := logger.FromContext(ctx).With(zap.String("channel", p.channel), zap.String("reason", Reason(err)))
		if errors.Is(err, ErrPersistence) {
			log.Error("order placement failed", zap.Error(err))
		} else {
			log.Info("order placement rejected", zap.Error(err))
		}
		return models.Order{}, err
	}
	if order.CouponCode != nil {
		s.coupons.forget(*order.CouponCode)
	}

	logger.FromContext(ctx).Info("order placed",
		zap.String("channel", p.channel),
		zap.Int64("order_id", order.ID),
		zap.String("order_number", order.Number),
		zap.String("owner", order.Owner.String()),
		zap.String("final_amount", order.FinalAmount.StringFixed(2)),
	)
	return order, nil
}

// stockClaim is the total quantity of one product an order takes from or returns to stock.
type stockClaim struct {
	productID int64
	name      string
	quantity  int
}

// stockClaims merges items by product and sorts them by product id, so every
// transaction touching stock locks product rows in the same order.
func stockClaims(items []models.OrderItem) []stockClaim {
	claims := make([]stockClaim, 0, len(items))
	index := make(map[int64]int, len(items))
	for _, item := range items {
		if i, ok := index[item.ProductID]; ok {
			claims[i].quantity += item.Quantity
			continue
		}
		index[item.ProductID] = len(claims)
		claims = append(claims, stockClaim{productID: item.ProductID, name: item.ProductName, quantity: item.Quantity})
	}
	slices.SortFunc(claims, func(a, b stockClaim) int {
		return cmp.Compare(a.productID, b.productID)
	})
	return claims
}

// GetOrder returns an order with its items if the caller may see it. Orders the caller
// cannot see are reported as not found.
func (s *OrderService) GetOrder(ctx context.Context, id int64, caller models.Caller) (models.Order, error) {
	ctx, span := tracer.Start(ctx, "OrderService.GetOrder")
	span.SetAttributes(attribute.Int64("order.id", id))
	order, err := s.getOrder(ctx, id, func(ctx context.Context, q db.DBTX) (models.Order, error) {
		if !caller.Authenticated() && caller.SessionID == "" {
			return models.Order{}, repository.ErrNotFound
		}
		return s.orders.GetVisible(ctx, q, id, caller)
	})
	endSpan(span, err)
	return order, err
}

// AdminGetOrder returns any order with its items.
func (s *OrderService) AdminGetOrder(ctx context.Context, id int64) (models.Order, error) {
	ctx, span := tracer.Start(ctx, "OrderService.AdminGetOrder")
	span.SetAttributes(attribute.Int64("order.id", id))
	order, err := s.getOrder(ctx, id, func(ctx context.Context, q db.DBTX) (models.Order, error) {
		return s.orders.GetByID(ctx, q, id)
	})
	endSpan(span, err)
	return order, err
}

func (s *OrderService) getOrder(ctx context.Context, id int64, fetch func(context.Context, db.DBTX) (models.Order, error)) (models.Order, error) {
	q := s.uow.Queryer()
	order, err := fetch(ctx, q)
	if errors.Is(err, repository.ErrNotFound) {
		return models.Order{}, fmt.Errorf("%w: %d", ErrOrderNotFound, id)
	}
	if err != nil {
		return models.Order{}, persistence("get order", err)
	}
	items, err := s.items.ListByOrder(ctx, q, order.ID)
	if err != nil {
		return models.Order{}, persistence("list order items", err)
	}
	order.Items = items
	return order, nil
}

// ListOrders returns the caller's orders, newest first, items included.
func (s *OrderService) ListOrders(ctx context.Context, caller models.Caller, limit int) ([]models.Order, error) {
	ctx, span := tracer.Start(ctx, "OrderService.ListOrders")
	orders, err := s.listOrders(ctx, caller, limit)
	endSpan(span, err)
	return orders, err
}

func (s *OrderService) listOrders(ctx context.Context, caller models.Caller, limit int) ([]models.Order, error) {
	if !caller.Authenticated() && caller.SessionID == "" {
		return []models.Order{}, nil
	}
	switch {
	case limit <= 0:
		limit = defaultListLimit
	case limit > maxListLimit:
		limit = maxListLimit
	}

	q := s.uow.Queryer()
	orders, err := s.orders.ListVisible(ctx, q, caller, limit)
	if err != nil {
		return nil, persistence("list orders", err)
	}
	if len(orders) == 0 {
		return []models.Order{}, nil
	}

	ids := make([]int64, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
	}
	items, err := s.items.ListByOrders(ctx, q, ids)
	if err != nil {
		return nil, persistence("list order items", err)
	}
	for i := range orders {
		orders[i].Items = items[orders[i].ID]
	}
	return orders, nil
}

// DeleteOrder removes an order and its items. Stock is left as it is.
func (s *OrderService) DeleteOrder(ctx context.Context, id int64) error {
	ctx, span := tracer.Start(ctx, "OrderService.DeleteOrder")
	err := s.uow.RunInTx(ctx, func(ctx context.Context, q db.DBTX) error {
		err := s.orders.Delete(ctx, q, id)
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%w: %d", ErrOrderNotFound, id)
		}
		if err != nil {
			return persistence("delete order", err)
		}
		return nil
	})
	err = classify("delete order", err)
	endSpan(span, err)
	if err == nil {
		logger.FromContext(ctx).Info("order deleted", zap.Int64("order_id", id))
	}
	return err
}
