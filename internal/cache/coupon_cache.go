package cache

import (
	"sync"
	"time"

	"github.com/Cheertaboi/storefront-order-service/internal/models"
)

type entry struct {
	coupon    models.Coupon
	expiresAt time.Time
}

// CouponCache holds coupon definitions for checkout previews. Order placement never
// reads from it; a zero TTL disables caching.
type CouponCache struct {
	mu    sync.RWMutex
	ttl   time.Duration
	now   func() time.Time
	store map[string]entry
}

func NewCouponCache(ttl time.Duration) *CouponCache {
	return &CouponCache{
		ttl:   ttl,
		now:   time.Now,
		store: make(map[string]entry),
	}
}

func (c *CouponCache) Get(code string) (models.Coupon, bool) {
	if c == nil || c.ttl <= 0 {
		return models.Coupon{}, false
	}
	key := models.NormalizeCouponCode(code)

	c.mu.RLock()
	e, ok := c.store[key]
	c.mu.RUnlock()
	if !ok {
		return models.Coupon{}, false
	}
	if !c.now().Before(e.expiresAt) {
		c.Delete(key)
		return models.Coupon{}, false
	}
	return e.coupon, true
}

func (c *CouponCache) Set(coupon models.Coupon) {
	if c == nil || c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store[models.NormalizeCouponCode(coupon.Code)] = entry{
		coupon:    coupon,
		expiresAt: c.now().Add(c.ttl),
	}
}

func (c *CouponCache) Delete(code string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.store, models.NormalizeCouponCode(code))
}
