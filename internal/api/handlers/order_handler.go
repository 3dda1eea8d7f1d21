package handlers

import (
	"net/http"
	"strconv"

	"github.com/Cheertaboi/storefront-order-service/internal/api/httpx"
	"github.com/Cheertaboi/storefront-order-service/internal/api/middleware"
	"github.com/Cheertaboi/storefront-order-service/internal/models"
	"github.com/Cheertaboi/storefront-order-service/internal/service"
)

type OrderHandler struct {
	orders OrderService
}

func NewOrderHandler(orders OrderService) *OrderHandler {
	return &OrderHandler{orders: orders}
}

// PlaceOrder handles POST /orders
func (h *OrderHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req models.CartRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, r, err.Error())
		return
	}

	caller := middleware.CallerFromContext(r.Context())
	order, err := h.orders.PlaceOrder(r.Context(), service.PlaceOrderCommand{
		Owner:         caller.Owner(),
		Lines:         req.Cart,
		Delivery:      req.Delivery(),
		PaymentMethod: string(req.PaymentMethod),
		CouponCode:    req.CouponCode,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, newPlacedResponse(order))
}

// GetOrder handles GET /orders/{id}
func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := orderIDParam(r)
	if err != nil {
		writeBadRequest(w, r, err.Error())
		return
	}
	order, err := h.orders.GetOrder(r.Context(), id, middleware.CallerFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, newOrderResponse(order))
}

// ListOrders handles GET /orders
func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeBadRequest(w, r, "limit must be a positive integer")
			return
		}
		limit = n
	}

	orders, err := h.orders.ListOrders(r.Context(), middleware.CallerFromContext(r.Context()), limit)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	out := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		out = append(out, newOrderResponse(o))
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"orders": out})
}
