package tasks

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/ahrav/castverify/internal/app/verification"
	"github.com/ahrav/castverify/internal/domain/engagement"
	"github.com/ahrav/castverify/internal/domain/task"
	"github.com/ahrav/castverify/pkg/common/logger"
)

type mockVerifier struct{ mock.Mock }

func (m *mockVerifier) Verify(
	ctx context.Context,
	ref engagement.ContentReference,
	actor engagement.ActorID,
	action engagement.ActionKind,
) (verification.Result, error) {
	args := m.Called(ctx, ref, actor, action)
	return args.Get(0).(verification.Result), args.Error(1)
}

type mockRecorder struct{ mock.Mock }

func (m *mockRecorder) IsAlreadyCompleted(ctx context.Context, actor engagement.ActorID, ref engagement.ContentReference) (bool, error) {
	args := m.Called(ctx, actor, ref)
	return args.Bool(0), args.Error(1)
}

func (m *mockRecorder) RecordCompleted(ctx context.Context, actor engagement.ActorID, ref engagement.ContentReference) error {
	args := m.Called(ctx, actor, ref)
	return args.Error(0)
}

type mockStage struct{ mock.Mock }

func (m *mockStage) HasAdvanced(ctx context.Context, actor engagement.ActorID, action engagement.ActionKind) (bool, error) {
	args := m.Called(ctx, actor, action)
	return args.Bool(0), args.Error(1)
}

func (m *mockStage) MarkAdvanced(ctx context.Context, actor engagement.ActorID, action engagement.ActionKind) error {
	args := m.Called(ctx, actor, action)
	return args.Error(0)
}

type mockCatalog struct{ mock.Mock }

func (m *mockCatalog) List(ctx context.Context, action engagement.ActionKind) ([]task.Definition, error) {
	args := m.Called(ctx, action)
	if v := args.Get(0); v != nil {
		return v.([]task.Definition), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockPublisher struct{ mock.Mock }

func (m *mockPublisher) PublishCompleted(ctx context.Context, evt task.CompletedEvent) error {
	args := m.Called(ctx, evt)
	return args.Error(0)
}

func (m *mockPublisher) PublishAllSatisfied(ctx context.Context, evt task.AllSatisfiedEvent) error {
	args := m.Called(ctx, evt)
	return args.Error(0)
}

var testTracer = tracenoop.NewTracerProvider().Tracer("test")

const testActor = engagement.ActorID(42)

func testMetrics(t *testing.T) TaskMetrics {
	t.Helper()
	m, err := NewTaskMetrics(noop.NewMeterProvider())
	require.NoError(t, err)
	return m
}

// idleConfig disables the pre-check delay and keeps polling out of the way
// of tests that drive verification by hand.
func idleConfig() Config {
	return Config{Polling: PollPolicy{InitialDelay: time.Hour, Interval: time.Hour, MaxAttempts: 1}}
}

type harness struct {
	verifier  *mockVerifier
	recorder  *mockRecorder
	stage     *mockStage
	catalog   *mockCatalog
	publisher *mockPublisher
}

func newHarness() *harness {
	return &harness{
		verifier:  new(mockVerifier),
		recorder:  new(mockRecorder),
		stage:     new(mockStage),
		catalog:   new(mockCatalog),
		publisher: new(mockPublisher),
	}
}

func (h *harness) deps() Dependencies {
	return Dependencies{
		Verifier:  h.verifier,
		Recorder:  h.recorder,
		Stage:     h.stage,
		Catalog:   h.catalog,
		Publisher: h.publisher,
	}
}

func (h *harness) tracker(t *testing.T, cfg Config) *Tracker {
	t.Helper()
	tr := NewTracker(testActor, h.deps(), cfg, testMetrics(t), logger.Noop(), testTracer)
	t.Cleanup(tr.Close)
	return tr
}

func likeDef(id, ref string) task.Definition {
	return task.Definition{ID: id, Reference: engagement.ContentReference(ref), Action: engagement.ActionLike}
}
