package handlers

import (
	"net/http"

	"github.com/Cheertaboi/storefront-order-service/internal/api/httpx"
	"github.com/Cheertaboi/storefront-order-service/internal/models"
	"github.com/Cheertaboi/storefront-order-service/internal/service"
)

type adminOrderRequest struct {
	Name          string            `json:"name"`
	Phone         string            `json:"phone"`
	Email         string            `json:"email,omitempty"`
	Area          string            `json:"area"`
	Address       string            `json:"address"`
	PaymentMethod string            `json:"payment_method"`
	CouponCode    string            `json:"coupon_code,omitempty"`
	Items         []models.CartLine `json:"items"`
}

type statusRequest struct {
	Status string `json:"status"`
}

type AdminHandler struct {
	orders OrderService
}

func NewAdminHandler(orders OrderService) *AdminHandler {
	return &AdminHandler{orders: orders}
}

// PlaceOrder handles POST /admin/orders
func (h *AdminHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req adminOrderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, r, err.Error())
		return
	}

	order, err := h.orders.PlaceAdminOrder(r.Context(), service.AdminOrderCommand{
		Customer:      models.Customer{Name: req.Name, Phone: req.Phone, Email: req.Email},
		Lines:         req.Items,
		Area:          req.Area,
		Address:       req.Address,
		PaymentMethod: req.PaymentMethod,
		CouponCode:    req.CouponCode,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, newPlacedResponse(order))
}

// GetOrder handles GET /admin/orders/{id}
func (h *AdminHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := orderIDParam(r)
	if err != nil {
		writeBadRequest(w, r, err.Error())
		return
	}
	order, err := h.orders.AdminGetOrder(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, newOrderResponse(order))
}

// UpdateStatus handles PATCH /admin/orders/{id}/status
func (h *AdminHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := orderIDParam(r)
	if err != nil {
		writeBadRequest(w, r, err.Error())
		return
	}
	var req statusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, r, err.Error())
		return
	}

	order, err := h.orders.UpdateDeliveryStatus(r.Context(), id, req.Status)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, newOrderResponse(order))
}

// UpdatePayment handles PATCH /admin/orders/{id}/payment
func (h *AdminHandler) UpdatePayment(w http.ResponseWriter, r *http.Request) {
	id, err := orderIDParam(r)
	if err != nil {
		writeBadRequest(w, r, err.Error())
		return
	}
	var req statusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, r, err.Error())
		return
	}

	order, err := h.orders.RecordPayment(r.Context(), id, req.Status)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, newOrderResponse(order))
}

// Cancel handles POST /admin/orders/{id}/cancel
func (h *AdminHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, err := orderIDParam(r)
	if err != nil {
		writeBadRequest(w, r, err.Error())
		return
	}
	order, err := h.orders.CancelOrder(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, newOrderResponse(order))
}

// Delete handles DELETE /admin/orders/{id}
func (h *AdminHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := orderIDParam(r)
	if err != nil {
		writeBadRequest(w, r, err.Error())
		return
	}
	if err := h.orders.DeleteOrder(r.Context(), id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
