package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/Cheertaboi/storefront-order-service/internal/api/httpx"
	"github.com/Cheertaboi/storefront-order-service/internal/models"
	"github.com/Cheertaboi/storefront-order-service/internal/service"
)

// --- Request / Response DTOs ---

type applyCouponRequest struct {
	Code      string           `json:"code"`
	CartTotal *decimal.Decimal `json:"cartTotal"`
}

type applyCouponResponse struct {
	Code        string      `json:"code"`
	Discount    json.Number `json:"discount"`
	FinalAmount json.Number `json:"finalAmount"`
}

type createCouponRequest struct {
	Code        string           `json:"code"`
	Type        string           `json:"type"`
	Value       decimal.Decimal  `json:"value"`
	MinOrder    decimal.Decimal  `json:"min_order"`
	MaxDiscount *decimal.Decimal `json:"max_discount,omitempty"`
	StartsAt    *time.Time       `json:"starts_at,omitempty"` // RFC3339
	ExpiresAt   *time.Time       `json:"expires_at,omitempty"`
	UsageLimit  *int             `json:"usage_limit,omitempty"`
	IsActive    *bool            `json:"is_active,omitempty"`
}

type couponResponse struct {
	ID          int64       `json:"id"`
	Code        string      `json:"code"`
	Type        string      `json:"type"`
	Value       json.Number `json:"value"`
	MinOrder    json.Number `json:"min_order"`
	MaxDiscount json.Number `json:"max_discount,omitempty"`
	StartsAt    *time.Time  `json:"starts_at,omitempty"`
	ExpiresAt   *time.Time  `json:"expires_at,omitempty"`
	UsageLimit  *int        `json:"usage_limit,omitempty"`
	UsedCount   int         `json:"used_count"`
	IsActive    bool        `json:"is_active"`
}

type activeRequest struct {
	Active *bool `json:"active"`
}

type CouponHandler struct {
	coupons CouponService
}

func NewCouponHandler(coupons CouponService) *CouponHandler {
	return &CouponHandler{coupons: coupons}
}

// Apply handles POST /coupons/apply. It only previews the discount; nothing is redeemed.
func (h *CouponHandler) Apply(w http.ResponseWriter, r *http.Request) {
	var req applyCouponRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, r, err.Error())
		return
	}
	if req.CartTotal == nil {
		writeBadRequest(w, r, "cartTotal is required")
		return
	}

	quote, err := h.coupons.Preview(r.Context(), req.Code, *req.CartTotal)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, applyCouponResponse{
		Code:        quote.Code,
		Discount:    money(quote.Discount),
		FinalAmount: money(quote.FinalAmount),
	})
}

// Create handles POST /admin/coupons
func (h *CouponHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createCouponRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, r, err.Error())
		return
	}
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}

	c, err := h.coupons.CreateCoupon(r.Context(), service.CreateCouponCommand{
		Code:        req.Code,
		Type:        req.Type,
		Value:       req.Value,
		MinOrder:    req.MinOrder,
		MaxDiscount: req.MaxDiscount,
		StartsAt:    req.StartsAt,
		ExpiresAt:   req.ExpiresAt,
		UsageLimit:  req.UsageLimit,
		Active:      active,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, newCouponResponse(c))
}

// SetActive handles PATCH /admin/coupons/{code}/active
func (h *CouponHandler) SetActive(w http.ResponseWriter, r *http.Request) {
	var req activeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, r, err.Error())
		return
	}
	if req.Active == nil {
		writeBadRequest(w, r, "active is required")
		return
	}

	code := models.NormalizeCouponCode(chi.URLParam(r, "code"))
	if err := h.coupons.SetActive(r.Context(), code, *req.Active); err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"code": code, "is_active": *req.Active})
}

func newCouponResponse(c models.Coupon) couponResponse {
	out := couponResponse{
		ID:         c.ID,
		Code:       c.Code,
		Type:       string(c.Type),
		Value:      money(c.Value),
		MinOrder:   money(c.MinOrder),
		StartsAt:   c.StartsAt,
		ExpiresAt:  c.ExpiresAt,
		UsageLimit: c.UsageLimit,
		UsedCount:  c.UsedCount,
		IsActive:   c.IsActive,
	}
	if c.MaxDiscount.Valid {
		out.MaxDiscount = money(c.MaxDiscount.Decimal)
	}
	return out
}
