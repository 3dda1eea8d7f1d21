package service

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/Cheertaboi/storefront-order-service/internal/models"
	"github.com/Cheertaboi/storefront-order-service/internal/repository"
	"github.com/Cheertaboi/storefront-order-service/pkg/db"
	"github.com/Cheertaboi/storefront-order-service/pkg/logger"
)

// UpdateDeliveryStatus moves an order along the delivery chain. A move to Cancelled
// goes through CancelOrder so stock is restored.
func (s *OrderService) UpdateDeliveryStatus(ctx context.Context, id int64, raw string) (models.Order, error) {
	next, ok := models.ParseDeliveryStatus(raw)
	if !ok {
		return models.Order{}, fmt.Errorf("%w: unknown delivery status %q", ErrInvalidInput, raw)
	}
	if next == models.DeliveryCancelled {
		return s.CancelOrder(ctx, id)
	}

	ctx, span := tracer.Start(ctx, "OrderService.UpdateDeliveryStatus")
	span.SetAttributes(attribute.Int64("order.id", id), attribute.String("order.delivery_status", string(next)))

	var order models.Order
	err := s.uow.RunInTx(ctx, func(ctx context.Context, q db.DBTX) error {
		o, err := s.lock(ctx, q, id)
		if err != nil {
			return err
		}
		if !o.DeliveryStatus.CanTransitionTo(next) {
			return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, o.DeliveryStatus, next)
		}
		if err := s.orders.UpdateDeliveryStatus(ctx, q, id, next); err != nil {
			return persistence("update delivery status", err)
		}
		o.DeliveryStatus = next
		order = o
		return nil
	})
	err = classify("update delivery status", err)
	endSpan(span, err)
	if err != nil {
		return models.Order{}, err
	}

	logger.FromContext(ctx).Info("delivery status updated",
		zap.Int64("order_id", id), zap.String("status", string(next)))
	return order, nil
}

// CancelOrder restores every item's quantity to stock and marks the order Cancelled.
// Either all of it happens or none of it does. Coupon usage is not given back.
func (s *OrderService) CancelOrder(ctx context.Context, id int64) (models.Order, error) {
	ctx, span := tracer.Start(ctx, "OrderService.CancelOrder")
	span.SetAttributes(attribute.Int64("order.id", id))

	var order models.Order
	err := s.uow.RunInTx(ctx, func(ctx context.Context, q db.DBTX) error {
		o, err := s.lock(ctx, q, id)
		if err != nil {
			return err
		}
		if !o.DeliveryStatus.CanTransitionTo(models.DeliveryCancelled) {
			return fmt.Errorf("%w: cannot cancel an order that is %s", ErrInvalidTransition, o.DeliveryStatus)
		}

		items, err := s.items.ListByOrder(ctx, q, id)
		if err != nil {
			return persistence("list order items", err)
		}
		for _, claim := range stockClaims(items) {
			err := s.products.RestoreStock(ctx, q, claim.productID, claim.quantity)
			if errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("%w: product %d (%s) no longer exists", ErrProductUnavailable, claim.productID, claim.name)
			}
			if err != nil {
				return persistence("restore stock", err)
			}
		}

		if err := s.orders.UpdateDeliveryStatus(ctx, q, id, models.DeliveryCancelled); err != nil {
			return persistence("cancel order", err)
		}
		o.DeliveryStatus = models.DeliveryCancelled
		o.Items = items
		order = o
		return nil
	})
	err = classify("cancel order", err)
	endSpan(span, err)
	if err != nil {
		return models.Order{}, err
	}

	logger.FromContext(ctx).Info("order cancelled",
		zap.Int64("order_id", id), zap.Int("items_restocked", len(order.Items)))
	return order, nil
}

// RecordPayment applies a payment status reported by the gateway or an admin.
// Reporting the status the order already has is a no-op.
func (s *OrderService) RecordPayment(ctx context.Context, id int64, raw string) (models.Order, error) {
	next, ok := models.ParsePaymentStatus(raw)
	if !ok {
		return models.Order{}, fmt.Errorf("%w: unknown payment status %q", ErrInvalidInput, raw)
	}

	ctx, span := tracer.Start(ctx, "OrderService.RecordPayment")
	span.SetAttributes(attribute.Int64("order.id", id), attribute.String("order.payment_status", string(next)))

	var (
		order   models.Order
		changed bool
	)
	err := s.uow.RunInTx(ctx, func(ctx context.Context, q db.DBTX) error {
		o, err := s.lock(ctx, q, id)
		if err != nil {
			return err
		}
		order = o
		if o.PaymentStatus == next {
			return nil
		}
		if !o.PaymentStatus.CanTransitionTo(next) {
			return fmt.Errorf("%w: payment %s to %s", ErrInvalidTransition, o.PaymentStatus, next)
		}
		if err := s.orders.UpdatePaymentStatus(ctx, q, id, next); err != nil {
			return persistence("update payment status", err)
		}
		order.PaymentStatus = next
		changed = true
		return nil
	})
	err = classify("record payment", err)
	endSpan(span, err)
	if err != nil {
		return models.Order{}, err
	}

	if changed {
		logger.FromContext(ctx).Info("payment status updated",
			zap.Int64("order_id", id), zap.String("status", string(next)))
	}
	return order, nil
}

func (s *OrderService) lock(ctx context.Context, q db.DBTX, id int64) (models.Order, error) {
	o, err := s.orders.LockByID(ctx, q, id)
	if errors.Is(err, repository.ErrNotFound) {
		return models.Order{}, fmt.Errorf("%w: %d", ErrOrderNotFound, id)
	}
	if err != nil {
		return models.Order{}, persistence("lock order", err)
	}
	return o, nil
}
