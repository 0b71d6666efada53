package api

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const namespace = "castverify_api"

// APIMetrics defines the metrics recorded by the HTTP adapter.
type APIMetrics interface {
	IncRequestsTotal(ctx context.Context, method, path string, status int)
	ObserveRequestDuration(ctx context.Context, method, path string, duration time.Duration)
	IncVerifyRequests(ctx context.Context, action string)
	IncRequestErrors(ctx context.Context, reason string)
}

type apiMetrics struct {
	requestsTotal   metric.Int64Counter
	requestDuration metric.Float64Histogram
	verifyRequests  metric.Int64Counter
	requestErrors   metric.Int64Counter
}

// NewAPIMetrics creates the HTTP adapter instruments on mp.
func NewAPIMetrics(mp metric.MeterProvider) (*apiMetrics, error) {
	meter := mp.Meter(namespace, metric.WithInstrumentationVersion("v0.1.0"))

	m := new(apiMetrics)
	var err error

	if m.requestsTotal, err = meter.Int64Counter(
		"requests_total",
		metric.WithDescription("Total number of HTTP requests"),
	); err != nil {
		return nil, err
	}

	if m.requestDuration, err = meter.Float64Histogram(
		"request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	if m.verifyRequests, err = meter.Int64Counter(
		"verify_requests_total",
		metric.WithDescription("Total number of verify-all requests"),
	); err != nil {
		return nil, err
	}

	if m.requestErrors, err = meter.Int64Counter(
		"request_errors_total",
		metric.WithDescription("Total number of failed task requests"),
	); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *apiMetrics) IncRequestsTotal(ctx context.Context, method, path string, status int) {
	m.requestsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("path", path),
		attribute.Int("status", status),
	))
}

func (m *apiMetrics) ObserveRequestDuration(ctx context.Context, method, path string, duration time.Duration) {
	m.requestDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("path", path),
	))
}

func (m *apiMetrics) IncVerifyRequests(ctx context.Context, action string) {
	m.verifyRequests.Add(ctx, 1, metric.WithAttributes(attribute.String("action", action)))
}

func (m *apiMetrics) IncRequestErrors(ctx context.Context, reason string) {
	m.requestErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}
