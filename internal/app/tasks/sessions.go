package tasks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/castverify/internal/domain/engagement"
	"github.com/ahrav/castverify/pkg/common/logger"
	"github.com/ahrav/castverify/pkg/common/timeutil"
)

// ErrSessionsClosed is returned once the registry has been shut down.
var ErrSessionsClosed = errors.New("task sessions closed")

// Sessions holds one Tracker per actor. There is a single active session per
// actor, so no coordination beyond this registry is needed. A session lives
// until it is evicted as idle or the registry is closed.
type Sessions struct {
	deps    Dependencies
	cfg     Config
	metrics TaskMetrics
	clock   timeutil.Provider

	mu       sync.Mutex
	trackers map[engagement.ActorID]*Tracker
	lastSeen map[engagement.ActorID]time.Time
	closed   bool

	logger *logger.Logger
	tracer trace.Tracer
}

// NewSessions creates an empty registry. Trackers share deps and cfg.
func NewSessions(
	deps Dependencies,
	cfg Config,
	metrics TaskMetrics,
	logger *logger.Logger,
	tracer trace.Tracer,
) *Sessions {
	clock := deps.Clock
	if clock == nil {
		clock = timeutil.Default()
	}
	return &Sessions{
		deps:     deps,
		cfg:      cfg,
		metrics:  metrics,
		clock:    clock,
		trackers: make(map[engagement.ActorID]*Tracker),
		lastSeen: make(map[engagement.ActorID]time.Time),
		logger:   logger.With("component", "task_sessions"),
		tracer:   tracer,
	}
}

// Get returns the Tracker for actor, creating it on first use.
func (s *Sessions) Get(actor engagement.ActorID) (*Tracker, error) {
	if !actor.Valid() {
		return nil, fmt.Errorf("%w: %d", engagement.ErrInvalidActor, actor)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrSessionsClosed
	}
	s.lastSeen[actor] = s.clock.Now()
	if t, ok := s.trackers[actor]; ok {
		return t, nil
	}
	t := NewTracker(actor, s.deps, s.cfg, s.metrics, s.logger, s.tracer)
	s.trackers[actor] = t
	return t, nil
}

// Lookup returns the Tracker for actor without creating one.
func (s *Sessions) Lookup(actor engagement.ActorID) (*Tracker, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.trackers[actor]
	if ok {
		s.lastSeen[actor] = s.clock.Now()
	}
	return t, ok
}

// EvictIdle closes and forgets sessions not used for at least ttl. Sessions
// that are still polling or verifying are kept. It returns the number of
// sessions evicted.
func (s *Sessions) EvictIdle(ctx context.Context, ttl time.Duration) int {
	if ttl <= 0 {
		return 0
	}
	_, span := s.tracer.Start(ctx, "task_sessions.evict_idle",
		trace.WithAttributes(attribute.String("ttl", ttl.String())))
	defer span.End()

	cutoff := s.clock.Now().Add(-ttl)

	s.mu.Lock()
	var evicted []*Tracker
	for actor, t := range s.trackers {
		if s.lastSeen[actor].After(cutoff) || !t.Idle() {
			continue
		}
		delete(s.trackers, actor)
		delete(s.lastSeen, actor)
		evicted = append(evicted, t)
	}
	remaining := len(s.trackers)
	s.mu.Unlock()

	for _, t := range evicted {
		t.Close()
	}

	span.SetAttributes(attribute.Int("evicted", len(evicted)), attribute.Int("remaining", remaining))
	if len(evicted) > 0 {
		s.logger.Debug(ctx, "Evicted idle sessions", "evicted", len(evicted), "remaining", remaining)
	}
	return len(evicted)
}

// Run evicts idle sessions every interval until ctx is done.
func (s *Sessions) Run(ctx context.Context, interval, ttl time.Duration) {
	if interval <= 0 || ttl <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.EvictIdle(ctx, ttl)
		}
	}
}

// Len returns the number of live sessions.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.trackers)
}

// Close stops every Tracker and refuses new sessions.
func (s *Sessions) Close() {
	s.mu.Lock()
	s.closed = true
	trackers := make([]*Tracker, 0, len(s.trackers))
	for _, t := range s.trackers {
		trackers = append(trackers, t)
	}
	s.mu.Unlock()

	for _, t := range trackers {
		t.Close()
	}
}
