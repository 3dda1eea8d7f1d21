package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Cheertaboi/storefront-order-service/internal/cache"
	"github.com/Cheertaboi/storefront-order-service/internal/models"
	"github.com/Cheertaboi/storefront-order-service/internal/repository"
	"github.com/Cheertaboi/storefront-order-service/pkg/db"
)

// memStore is an in-memory database. memUnitOfWork serializes transactions on mu and
// restores a snapshot when one fails, which is enough to observe atomicity and the
// guarded updates from service code.
type memStore struct {
	mu        sync.Mutex
	products  map[int64]models.Product
	coupons   map[string]models.Coupon
	orders    map[int64]models.Order
	items     map[int64][]models.OrderItem
	customers map[string]models.Customer
	nextID    int64
	now       time.Time

	failItemInsert error
	// loseClaims makes Claim report the coupon as taken, as when another transaction
	// committed the last use between Quote and Claim.
	loseClaims bool

	// product ids in call order, kept across rollbacks
	decrements []int64
	restores   []int64
}

func newMemStore(now time.Time) *memStore {
	return &memStore{
		products:  map[int64]models.Product{},
		coupons:   map[string]models.Coupon{},
		orders:    map[int64]models.Order{},
		items:     map[int64][]models.OrderItem{},
		customers: map[string]models.Customer{},
		nextID:    1000,
		now:       now,
	}
}

type memSnapshot struct {
	products  map[int64]models.Product
	coupons   map[string]models.Coupon
	orders    map[int64]models.Order
	items     map[int64][]models.OrderItem
	customers map[string]models.Customer
	nextID    int64
}

func (s *memStore) snapshot() memSnapshot {
	snap := memSnapshot{
		products:  make(map[int64]models.Product, len(s.products)),
		coupons:   make(map[string]models.Coupon, len(s.coupons)),
		orders:    make(map[int64]models.Order, len(s.orders)),
		items:     make(map[int64][]models.OrderItem, len(s.items)),
		customers: make(map[string]models.Customer, len(s.customers)),
		nextID:    s.nextID,
	}
	for k, v := range s.products {
		snap.products[k] = v
	}
	for k, v := range s.coupons {
		snap.coupons[k] = v
	}
	for k, v := range s.orders {
		snap.orders[k] = v
	}
	for k, v := range s.items {
		snap.items[k] = append([]models.OrderItem(nil), v...)
	}
	for k, v := range s.customers {
		snap.customers[k] = v
	}
	return snap
}

func (s *memStore) restore(snap memSnapshot) {
	s.products = snap.products
	s.coupons = snap.coupons
	s.orders = snap.orders
	s.items = snap.items
	s.customers = snap.customers
	s.nextID = snap.nextID
}

func (s *memStore) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *memStore) itemCount() int {
	n := 0
	for _, items := range s.items {
		n += len(items)
	}
	return n
}

type memUnitOfWork struct {
	store *memStore
}

func (u memUnitOfWork) RunInTx(ctx context.Context, fn func(ctx context.Context, q db.DBTX) error) (err error) {
	u.store.mu.Lock()
	defer u.store.mu.Unlock()

	snap := u.store.snapshot()
	committed := false
	defer func() {
		if !committed {
			u.store.restore(snap)
		}
	}()

	if err := fn(ctx, nil); err != nil {
		return err
	}
	committed = true
	return nil
}

func (u memUnitOfWork) Queryer() db.DBTX {
	return nil
}

type memProducts struct{ store *memStore }

func (r memProducts) Get(_ context.Context, _ db.DBTX, id int64) (models.Product, error) {
	p, ok := r.store.products[id]
	if !ok {
		return models.Product{}, repository.ErrNotFound
	}
	return p, nil
}

func (r memProducts) DecrementStock(_ context.Context, _ db.DBTX, id int64, qty int) (int, bool, error) {
	r.store.decrements = append(r.store.decrements, id)
	p, ok := r.store.products[id]
	if !ok {
		return 0, false, repository.ErrNotFound
	}
	if p.Stock < qty {
		return p.Stock, false, nil
	}
	p.Stock -= qty
	r.store.products[id] = p
	return p.Stock, true, nil
}

func (r memProducts) RestoreStock(_ context.Context, _ db.DBTX, id int64, qty int) error {
	r.store.restores = append(r.store.restores, id)
	p, ok := r.store.products[id]
	if !ok {
		return fmt.Errorf("restore stock for product %d: %w", id, repository.ErrNotFound)
	}
	p.Stock += qty
	r.store.products[id] = p
	return nil
}

type memCoupons struct{ store *memStore }

func (r memCoupons) GetByCode(_ context.Context, _ db.DBTX, code string) (models.Coupon, error) {
	c, ok := r.store.coupons[models.NormalizeCouponCode(code)]
	if !ok {
		return models.Coupon{}, repository.ErrNotFound
	}
	return c, nil
}

func (r memCoupons) Create(_ context.Context, _ db.DBTX, c models.Coupon) (models.Coupon, error) {
	key := models.NormalizeCouponCode(c.Code)
	if _, exists := r.store.coupons[key]; exists {
		return models.Coupon{}, &pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint"}
	}
	c.ID = r.store.id()
	c.CreatedAt = r.store.now
	c.UpdatedAt = r.store.now
	r.store.coupons[key] = c
	return c, nil
}

func (r memCoupons) SetActive(_ context.Context, _ db.DBTX, code string, active bool) error {
	key := models.NormalizeCouponCode(code)
	c, ok := r.store.coupons[key]
	if !ok {
		return repository.ErrNotFound
	}
	c.IsActive = active
	r.store.coupons[key] = c
	return nil
}

func (r memCoupons) Claim(_ context.Context, _ db.DBTX, couponID int64) (bool, error) {
	if r.store.loseClaims {
		return false, nil
	}
	for key, c := range r.store.coupons {
		if c.ID != couponID {
			continue
		}
		if !c.IsActive || (c.UsageLimit != nil && c.UsedCount >= *c.UsageLimit) {
			return false, nil
		}
		c.UsedCount++
		r.store.coupons[key] = c
		return true, nil
	}
	return false, nil
}

type memOrders struct{ store *memStore }

func (r memOrders) Insert(_ context.Context, _ db.DBTX, o *models.Order) error {
	if !o.Owner.Valid() {
		return fmt.Errorf("insert order: owner is required")
	}
	o.ID = r.store.id()
	o.CreatedAt = r.store.now
	o.UpdatedAt = r.store.now
	header := *o
	header.Items = nil
	r.store.orders[o.ID] = header
	return nil
}

func (r memOrders) GetByID(_ context.Context, _ db.DBTX, id int64) (models.Order, error) {
	o, ok := r.store.orders[id]
	if !ok {
		return models.Order{}, repository.ErrNotFound
	}
	return o, nil
}

func (r memOrders) LockByID(ctx context.Context, q db.DBTX, id int64) (models.Order, error) {
	return r.GetByID(ctx, q, id)
}

func (r memOrders) GetVisible(_ context.Context, _ db.DBTX, id int64, caller models.Caller) (models.Order, error) {
	o, ok := r.store.orders[id]
	if !ok || !caller.CanSee(o.Owner) {
		return models.Order{}, repository.ErrNotFound
	}
	return o, nil
}

func (r memOrders) ListVisible(_ context.Context, _ db.DBTX, caller models.Caller, limit int) ([]models.Order, error) {
	var out []models.Order
	for _, o := range r.store.orders {
		if caller.CanSee(o.Owner) {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r memOrders) UpdateDeliveryStatus(_ context.Context, _ db.DBTX, id int64, status models.DeliveryStatus) error {
	o, ok := r.store.orders[id]
	if !ok {
		return repository.ErrNotFound
	}
	o.DeliveryStatus = status
	r.store.orders[id] = o
	return nil
}

func (r memOrders) UpdatePaymentStatus(_ context.Context, _ db.DBTX, id int64, status models.PaymentStatus) error {
	o, ok := r.store.orders[id]
	if !ok {
		return repository.ErrNotFound
	}
	o.PaymentStatus = status
	r.store.orders[id] = o
	return nil
}

func (r memOrders) Delete(_ context.Context, _ db.DBTX, id int64) error {
	if _, ok := r.store.orders[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.store.orders, id)
	delete(r.store.items, id)
	return nil
}

type memItems struct{ store *memStore }

func (r memItems) Insert(_ context.Context, _ db.DBTX, item *models.OrderItem) error {
	if r.store.failItemInsert != nil {
		return r.store.failItemInsert
	}
	item.ID = r.store.id()
	r.store.items[item.OrderID] = append(r.store.items[item.OrderID], *item)
	return nil
}

func (r memItems) ListByOrder(_ context.Context, _ db.DBTX, orderID int64) ([]models.OrderItem, error) {
	return append([]models.OrderItem{}, r.store.items[orderID]...), nil
}

func (r memItems) ListByOrders(_ context.Context, _ db.DBTX, orderIDs []int64) (map[int64][]models.OrderItem, error) {
	out := make(map[int64][]models.OrderItem, len(orderIDs))
	for _, id := range orderIDs {
		out[id] = append([]models.OrderItem{}, r.store.items[id]...)
	}
	return out, nil
}

type memCustomers struct{ store *memStore }

func (r memCustomers) FindOrCreateByPhone(_ context.Context, _ db.DBTX, c models.Customer) (models.Customer, error) {
	if existing, ok := r.store.customers[c.Phone]; ok {
		if c.Name != "" {
			existing.Name = c.Name
		}
		r.store.customers[c.Phone] = existing
		return existing, nil
	}
	c.ID = r.store.id()
	r.store.customers[c.Phone] = c
	return c, nil
}

var testNow = time.Date(2025, time.March, 14, 10, 0, 0, 0, time.UTC)

type testEnv struct {
	store   *memStore
	cache   *cache.CouponCache
	coupons *CouponService
	orders  *OrderService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store := newMemStore(testNow)
	store.products[1] = models.Product{ID: 1, Name: "Notebook", Price: decimal.NewFromInt(100), Stock: 10, Status: models.ProductPublished}
	store.products[2] = models.Product{ID: 2, Name: "Pen", Price: decimal.NewFromInt(40), Stock: 5, Status: models.ProductPublished}
	store.products[3] = models.Product{ID: 3, Name: "Prototype", Price: decimal.NewFromInt(10), Stock: 5, Status: models.ProductDraft}

	uow := memUnitOfWork{store: store}
	couponCache := cache.NewCouponCache(time.Minute)
	coupons, err := NewCouponService(CouponServiceDeps{
		Coupons:    memCoupons{store: store},
		Usage:      memCoupons{store: store},
		UnitOfWork: uow,
		Cache:      couponCache,
		Clock:      func() time.Time { return testNow },
	})
	require.NoError(t, err)

	var seq int
	orders, err := NewOrderService(OrderServiceDeps{
		UnitOfWork: uow,
		Products:   memProducts{store: store},
		Orders:     memOrders{store: store},
		Items:      memItems{store: store},
		Customers:  memCustomers{store: store},
		Coupons:    coupons,
		NumberGenerator: func() string {
			seq++
			return fmt.Sprintf("ORD-TEST-%03d", seq)
		},
	})
	require.NoError(t, err)

	return &testEnv{store: store, cache: couponCache, coupons: coupons, orders: orders}
}

func (e *testEnv) addCoupon(c models.Coupon) models.Coupon {
	e.store.mu.Lock()
	defer e.store.mu.Unlock()
	c.ID = e.store.id()
	c.Code = models.NormalizeCouponCode(c.Code)
	e.store.coupons[c.Code] = c
	return c
}

func (e *testEnv) coupon(code string) models.Coupon {
	e.store.mu.Lock()
	defer e.store.mu.Unlock()
	return e.store.coupons[models.NormalizeCouponCode(code)]
}

func (e *testEnv) stock(id int64) int {
	e.store.mu.Lock()
	defer e.store.mu.Unlock()
	return e.store.products[id].Stock
}

func save10() models.Coupon {
	return models.Coupon{
		Code:        "SAVE10",
		Type:        models.DiscountPercentage,
		Value:       decimal.NewFromInt(10),
		MaxDiscount: decimal.NewNullDecimal(decimal.NewFromInt(15)),
		IsActive:    true,
	}
}

func flat50() models.Coupon {
	return models.Coupon{
		Code:     "FLAT50",
		Type:     models.DiscountFlat,
		Value:    decimal.NewFromInt(50),
		MinOrder: decimal.NewFromInt(100),
		IsActive: true,
	}
}

func assertMoney(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.Equal(t, want, got.StringFixed(2))
}
