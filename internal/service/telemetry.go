package service

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/Cheertaboi/storefront-order-service/internal/service"

var tracer = otel.Tracer(instrumentationName)

type orderMetrics struct {
	placed   metric.Int64Counter
	rejected metric.Int64Counter
}

func newOrderMetrics(meter metric.Meter) orderMetrics {
	if meter == nil {
		meter = otel.Meter(instrumentationName)
	}
	placed, err := meter.Int64Counter("orders.placed",
		metric.WithDescription("Orders committed"), metric.WithUnit("{order}"))
	if err != nil {
		placed = noop.Int64Counter{}
	}
	rejected, err := meter.Int64Counter("orders.rejected",
		metric.WithDescription("Order placements rolled back"), metric.WithUnit("{order}"))
	if err != nil {
		rejected = noop.Int64Counter{}
	}
	return orderMetrics{placed: placed, rejected: rejected}
}

func (m orderMetrics) record(ctx context.Context, channel string, err error) {
	if err == nil {
		m.placed.Add(ctx, 1, metric.WithAttributes(attribute.String("channel", channel)))
		return
	}
	m.rejected.Add(ctx, 1, metric.WithAttributes(
		attribute.String("channel", channel),
		attribute.String("reason", Reason(err)),
	))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, Reason(err))
	}
	span.End()
}
