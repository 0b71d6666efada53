package tasks

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/ahrav/castverify/internal/domain/task"
)

// TaskMetrics records task lifecycle activity.
type TaskMetrics interface {
	IncTransition(ctx context.Context, from, to task.State)
	IncCompleted(ctx context.Context, action string)
	IncAllSatisfied(ctx context.Context, action string)
	IncPollAttempt(ctx context.Context, action string)
	IncAnomaly(ctx context.Context, action string)
	ObserveVerifyAll(ctx context.Context, action string, d time.Duration)
}

type taskMetrics struct {
	transitions      metric.Int64Counter
	completed        metric.Int64Counter
	allSatisfied     metric.Int64Counter
	pollAttempts     metric.Int64Counter
	anomalies        metric.Int64Counter
	verifyAllSweeps  metric.Int64Counter
	verifyAllLatency metric.Float64Histogram
}

const namespace = "tasks"

// NewTaskMetrics creates the task instruments on mp.
func NewTaskMetrics(mp metric.MeterProvider) (*taskMetrics, error) {
	meter := mp.Meter(namespace, metric.WithInstrumentationVersion("v0.1.0"))

	m := new(taskMetrics)
	var err error

	if m.transitions, err = meter.Int64Counter(
		"state_transitions_total",
		metric.WithDescription("Task state transitions by source and target state"),
	); err != nil {
		return nil, err
	}

	if m.completed, err = meter.Int64Counter(
		"completed_total",
		metric.WithDescription("Tasks that reached the completed state"),
	); err != nil {
		return nil, err
	}

	if m.allSatisfied, err = meter.Int64Counter(
		"all_satisfied_total",
		metric.WithDescription("Times every tracked task for an action was completed"),
	); err != nil {
		return nil, err
	}

	if m.pollAttempts, err = meter.Int64Counter(
		"poll_attempts_total",
		metric.WithDescription("Scheduled verification attempts"),
	); err != nil {
		return nil, err
	}

	if m.anomalies, err = meter.Int64Counter(
		"anomalies_total",
		metric.WithDescription("Positive evidence observed for tasks that were never opened"),
	); err != nil {
		return nil, err
	}

	if m.verifyAllSweeps, err = meter.Int64Counter(
		"verify_all_total",
		metric.WithDescription("Verify-all sweeps requested by actors"),
	); err != nil {
		return nil, err
	}

	if m.verifyAllLatency, err = meter.Float64Histogram(
		"verify_all_duration_seconds",
		metric.WithDescription("Time to fan out and join a verify-all sweep"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *taskMetrics) IncTransition(ctx context.Context, from, to task.State) {
	m.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", from.String()),
		attribute.String("to", to.String()),
	))
}

func (m *taskMetrics) IncCompleted(ctx context.Context, action string) {
	m.completed.Add(ctx, 1, metric.WithAttributes(attribute.String("action", action)))
}

func (m *taskMetrics) IncAllSatisfied(ctx context.Context, action string) {
	m.allSatisfied.Add(ctx, 1, metric.WithAttributes(attribute.String("action", action)))
}

func (m *taskMetrics) IncPollAttempt(ctx context.Context, action string) {
	m.pollAttempts.Add(ctx, 1, metric.WithAttributes(attribute.String("action", action)))
}

func (m *taskMetrics) IncAnomaly(ctx context.Context, action string) {
	m.anomalies.Add(ctx, 1, metric.WithAttributes(attribute.String("action", action)))
}

func (m *taskMetrics) ObserveVerifyAll(ctx context.Context, action string, d time.Duration) {
	attrs := metric.WithAttributes(attribute.String("action", action))
	m.verifyAllSweeps.Add(ctx, 1, attrs)
	m.verifyAllLatency.Record(ctx, d.Seconds(), attrs)
}
