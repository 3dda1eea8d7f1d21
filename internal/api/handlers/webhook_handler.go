package handlers

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/Cheertaboi/storefront-order-service/internal/api/httpx"
	"github.com/Cheertaboi/storefront-order-service/internal/config"
	"github.com/Cheertaboi/storefront-order-service/pkg/logger"
)

type paymentEvent struct {
	OrderID int64  `json:"order_id"`
	Status  string `json:"status"`
}

// PaymentWebhookHandler records payment outcomes pushed by the payment gateway.
type PaymentWebhookHandler struct {
	orders          OrderService
	secret          []byte
	signatureHeader string
}

func NewPaymentWebhookHandler(orders OrderService, cfg config.WebhookConfig) *PaymentWebhookHandler {
	header := cfg.SignatureHeader
	if header == "" {
		header = "X-Signature"
	}
	return &PaymentWebhookHandler{
		orders:          orders,
		secret:          []byte(cfg.PaymentSecret),
		signatureHeader: header,
	}
}

// Handle handles POST /webhooks/payments. The signature header carries the hex
// HMAC-SHA256 of the raw body.
func (h *PaymentWebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if len(h.secret) == 0 {
		httpx.WriteError(ctx, w, httpx.NewError("webhooks_disabled", "payment webhooks are not configured", http.StatusServiceUnavailable))
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeBadRequest(w, r, "unable to read body")
		return
	}
	if !h.verify(body, r.Header.Get(h.signatureHeader)) {
		logger.FromContext(ctx).Warn("payment webhook signature rejected")
		httpx.WriteError(ctx, w, httpx.NewError("signature_mismatch", "signature verification failed", http.StatusUnauthorized))
		return
	}

	var event paymentEvent
	if err := json.NewDecoder(bytes.NewReader(body)).Decode(&event); err != nil {
		writeBadRequest(w, r, "invalid JSON body")
		return
	}
	if event.OrderID <= 0 {
		writeBadRequest(w, r, "order_id is required")
		return
	}

	order, err := h.orders.RecordPayment(ctx, event.OrderID, event.Status)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	logger.FromContext(ctx).Info("payment webhook applied",
		zap.Int64("order_id", order.ID), zap.String("payment_status", string(order.PaymentStatus)))
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"ok":             true,
		"order_id":       order.ID,
		"payment_status": order.PaymentStatus,
	})
}

func (h *PaymentWebhookHandler) verify(body []byte, header string) bool {
	signature, err := decodeSignature(header)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, h.secret)
	_, _ = mac.Write(body)
	return hmac.Equal(signature, mac.Sum(nil))
}

func decodeSignature(value string) ([]byte, error) {
	value = strings.TrimPrefix(strings.TrimSpace(value), "sha256=")
	if value == "" {
		return nil, errors.New("empty signature")
	}
	return hex.DecodeString(value)
}
