package verification

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// VerificationMetrics records the outcomes of resolutions, strategies and
// checks.
type VerificationMetrics interface {
	IncResolution(ctx context.Context, source string, ok bool)
	IncStrategyOutcome(ctx context.Context, action, strategy, outcome string)
	ObserveCheck(ctx context.Context, action string, found bool, d time.Duration)
	IncRetryPass(ctx context.Context, action string)
}

type verificationMetrics struct {
	resolutions      metric.Int64Counter
	strategyOutcomes metric.Int64Counter
	checks           metric.Int64Counter
	checkDuration    metric.Float64Histogram
	retryPasses      metric.Int64Counter
}

const namespace = "verification"

// NewVerificationMetrics creates the verification instruments on mp.
func NewVerificationMetrics(mp metric.MeterProvider) (*verificationMetrics, error) {
	meter := mp.Meter(namespace, metric.WithInstrumentationVersion("v0.1.0"))

	m := new(verificationMetrics)
	var err error

	if m.resolutions, err = meter.Int64Counter(
		"resolutions_total",
		metric.WithDescription("Content reference canonicalizations by source and result"),
	); err != nil {
		return nil, err
	}

	if m.strategyOutcomes, err = meter.Int64Counter(
		"strategy_outcomes_total",
		metric.WithDescription("Evidence strategy attempts by outcome (hit, miss, error)"),
	); err != nil {
		return nil, err
	}

	if m.checks, err = meter.Int64Counter(
		"checks_total",
		metric.WithDescription("Engagement checks by action and result"),
	); err != nil {
		return nil, err
	}

	if m.checkDuration, err = meter.Float64Histogram(
		"check_duration_seconds",
		metric.WithDescription("Time spent running a full strategy chain"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	if m.retryPasses, err = meter.Int64Counter(
		"retry_passes_total",
		metric.WithDescription("Delayed second passes run after an empty first pass"),
	); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *verificationMetrics) IncResolution(ctx context.Context, source string, ok bool) {
	m.resolutions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("source", source),
		attribute.Bool("ok", ok),
	))
}

func (m *verificationMetrics) IncStrategyOutcome(ctx context.Context, action, strategy, outcome string) {
	m.strategyOutcomes.Add(ctx, 1, metric.WithAttributes(
		attribute.String("action", action),
		attribute.String("strategy", strategy),
		attribute.String("outcome", outcome),
	))
}

func (m *verificationMetrics) ObserveCheck(ctx context.Context, action string, found bool, d time.Duration) {
	attrs := metric.WithAttributes(attribute.String("action", action), attribute.Bool("found", found))
	m.checks.Add(ctx, 1, attrs)
	m.checkDuration.Record(ctx, d.Seconds(), attrs)
}

func (m *verificationMetrics) IncRetryPass(ctx context.Context, action string) {
	m.retryPasses.Add(ctx, 1, metric.WithAttributes(attribute.String("action", action)))
}
