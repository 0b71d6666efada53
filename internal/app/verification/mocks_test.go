package verification

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/ahrav/castverify/internal/domain/engagement"
	"github.com/ahrav/castverify/pkg/common/logger"
)

type mockSource struct{ mock.Mock }

func (m *mockSource) CastByURL(ctx context.Context, url string) (engagement.Cast, error) {
	args := m.Called(ctx, url)
	return args.Get(0).(engagement.Cast), args.Error(1)
}

func (m *mockSource) CastByHash(ctx context.Context, id engagement.ContentID, viewer engagement.ActorID) (engagement.Cast, error) {
	args := m.Called(ctx, id, viewer)
	return args.Get(0).(engagement.Cast), args.Error(1)
}

func (m *mockSource) Reactors(
	ctx context.Context,
	id engagement.ContentID,
	kind engagement.ReactionType,
	viewer engagement.ActorID,
) ([]engagement.ActorID, error) {
	args := m.Called(ctx, id, kind, viewer)
	if v := args.Get(0); v != nil {
		return v.([]engagement.ActorID), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockSource) Replies(ctx context.Context, id engagement.ContentID, limit int) ([]engagement.Cast, error) {
	args := m.Called(ctx, id, limit)
	if v := args.Get(0); v != nil {
		return v.([]engagement.Cast), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockSource) CastsByParent(ctx context.Context, parent string, limit int) ([]engagement.Cast, error) {
	args := m.Called(ctx, parent, limit)
	if v := args.Get(0); v != nil {
		return v.([]engagement.Cast), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockSource) ActorCasts(ctx context.Context, actor engagement.ActorID, limit int) ([]engagement.Cast, error) {
	args := m.Called(ctx, actor, limit)
	if v := args.Get(0); v != nil {
		return v.([]engagement.Cast), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockResolver struct{ mock.Mock }

func (m *mockResolver) Resolve(ctx context.Context, raw engagement.ContentReference) (engagement.ContentID, error) {
	args := m.Called(ctx, raw)
	return args.Get(0).(engagement.ContentID), args.Error(1)
}

type mapCache struct {
	mu   sync.Mutex
	data map[engagement.ContentReference]engagement.ContentID
}

func newMapCache() *mapCache {
	return &mapCache{data: make(map[engagement.ContentReference]engagement.ContentID)}
}

func (c *mapCache) Get(_ context.Context, raw engagement.ContentReference) (engagement.ContentID, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id, ok := c.data[raw]
	return id, ok, nil
}

func (c *mapCache) Put(_ context.Context, raw engagement.ContentReference, id engagement.ContentID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[raw] = id
	return nil
}

func testMetrics(t *testing.T) VerificationMetrics {
	t.Helper()
	m, err := NewVerificationMetrics(noop.NewMeterProvider())
	require.NoError(t, err)
	return m
}

var testTracer = tracenoop.NewTracerProvider().Tracer("test")

func newTestChecker(t *testing.T, src engagement.EngagementSource) *Checker {
	t.Helper()
	return NewChecker(src, DefaultChains(DefaultLimits()), testMetrics(t), logger.Noop(), testTracer)
}

func boolPtr(b bool) *bool { return &b }
