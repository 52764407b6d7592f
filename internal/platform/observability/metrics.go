package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const metricNamespace = "github.com/VSydorenko/simplyCMS-core-sub001/internal/platform/observability"

// PricingMetrics records price resolution counters. A nil receiver is a no-op.
type PricingMetrics struct {
	resolutions metric.Int64Counter
	applied     metric.Int64Counter
	warnings    metric.Int64Counter
	unavailable metric.Int64Counter
}

// PriceOutcome summarises one resolved price for metric purposes.
type PriceOutcome struct {
	Source          string
	PriceTierID     string
	UsedDefaultTier bool
	Applied         int
	Rejected        int
	Warnings        int
	Discounted      bool
}

// NewPricingMetrics registers the pricing instruments on meter, or on the global provider when
// meter is nil. Registration failures are logged and leave the affected instrument disabled.
func NewPricingMetrics(meter metric.Meter, logger *zap.Logger) *PricingMetrics {
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(metricNamespace)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &PricingMetrics{}
	var err error
	if m.resolutions, err = meter.Int64Counter("pricing.resolutions", metric.WithDescription("Resolved prices")); err != nil {
		logger.Warn("metrics: pricing.resolutions unavailable", zap.Error(err))
	}
	if m.applied, err = meter.Int64Counter("pricing.discounts.applied", metric.WithDescription("Applied discount records")); err != nil {
		logger.Warn("metrics: pricing.discounts.applied unavailable", zap.Error(err))
	}
	if m.warnings, err = meter.Int64Counter("pricing.warnings", metric.WithDescription("Configuration warnings raised while evaluating discounts")); err != nil {
		logger.Warn("metrics: pricing.warnings unavailable", zap.Error(err))
	}
	if m.unavailable, err = meter.Int64Counter("pricing.unavailable", metric.WithDescription("Requests for products without a price")); err != nil {
		logger.Warn("metrics: pricing.unavailable unavailable", zap.Error(err))
	}
	return m
}

// RecordResolution counts a successfully resolved price.
func (m *PricingMetrics) RecordResolution(ctx context.Context, outcome PriceOutcome) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("source", outcome.Source),
		attribute.String("price_tier", outcome.PriceTierID),
		attribute.Bool("default_tier", outcome.UsedDefaultTier),
		attribute.Bool("discounted", outcome.Discounted),
	)
	if m.resolutions != nil {
		m.resolutions.Add(ctx, 1, attrs)
	}
	if m.applied != nil && outcome.Applied > 0 {
		m.applied.Add(ctx, int64(outcome.Applied), metric.WithAttributes(attribute.String("source", outcome.Source)))
	}
	if m.warnings != nil && outcome.Warnings > 0 {
		m.warnings.Add(ctx, int64(outcome.Warnings), metric.WithAttributes(attribute.String("source", outcome.Source)))
	}
}

// RecordUnavailable counts a product that had no usable price row.
func (m *PricingMetrics) RecordUnavailable(ctx context.Context, source string) {
	if m == nil || m.unavailable == nil {
		return
	}
	m.unavailable.Add(ctx, 1, metric.WithAttributes(attribute.String("source", source)))
}
