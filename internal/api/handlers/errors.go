package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/Cheertaboi/storefront-order-service/internal/api/httpx"
	"github.com/Cheertaboi/storefront-order-service/internal/service"
	"github.com/Cheertaboi/storefront-order-service/pkg/logger"
)

const maxBodyBytes = 1 << 20

// writeServiceError maps service sentinels to HTTP statuses. Persistence detail is
// logged and never returned.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	reason := service.Reason(err)

	var status int
	switch {
	case errors.Is(err, service.ErrOrderNotFound), errors.Is(err, service.ErrCouponNotFound):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrInvalidTransition), errors.Is(err, service.ErrCouponConflict):
		status = http.StatusConflict
	case errors.Is(err, service.ErrInvalidInput),
		errors.Is(err, service.ErrProductUnavailable),
		errors.Is(err, service.ErrCouponNotEligible),
		errors.Is(err, service.ErrInsufficientStock):
		status = http.StatusBadRequest
	default:
		logger.FromContext(ctx).Error("request failed", zap.String("reason", reason), zap.Error(err))
		httpx.WriteError(ctx, w, httpx.NewError("internal_server_error", "internal server error", http.StatusInternalServerError))
		return
	}
	httpx.WriteError(ctx, w, httpx.NewError(reason, err.Error(), status))
}

func writeBadRequest(w http.ResponseWriter, r *http.Request, message string) {
	httpx.WriteError(r.Context(), w, httpx.NewError("invalid_input", message, http.StatusBadRequest))
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

func orderIDParam(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid order id %q", raw)
	}
	return id, nil
}
