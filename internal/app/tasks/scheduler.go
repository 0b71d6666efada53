package tasks

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/castverify/pkg/common/logger"
)

// PollPolicy controls background verification of an opened task: one attempt
// after InitialDelay, then one per Interval until MaxAttempts is spent. A
// non-positive MaxAttempts disables polling.
type PollPolicy struct {
	InitialDelay time.Duration
	Interval     time.Duration
	MaxAttempts  int
}

// PollFunc runs one attempt for key. Returning true stops polling for key.
type PollFunc func(ctx context.Context, key string, attempt int) (done bool)

type pollEntry struct {
	id     uint64
	cancel context.CancelFunc
}

// Scheduler runs one cancellable polling loop per task key. Loops are
// independent; cancelling one never affects another.
type Scheduler struct {
	policy PollPolicy

	mu      sync.Mutex
	entries map[string]pollEntry
	nextID  uint64
	stopped bool
	wg      sync.WaitGroup

	logger *logger.Logger
	tracer trace.Tracer
}

// NewScheduler creates a Scheduler using policy.
func NewScheduler(policy PollPolicy, logger *logger.Logger, tracer trace.Tracer) *Scheduler {
	return &Scheduler{
		policy:  policy,
		entries: make(map[string]pollEntry),
		logger:  logger.With("component", "poll_scheduler"),
		tracer:  tracer,
	}
}

// Schedule starts polling key with fn. It returns false without doing
// anything if key is already being polled or the scheduler was stopped.
func (s *Scheduler) Schedule(ctx context.Context, key string, fn PollFunc) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped || s.policy.MaxAttempts <= 0 {
		return false
	}
	if _, ok := s.entries[key]; ok {
		return false
	}

	s.nextID++
	id := s.nextID
	pollCtx, cancel := context.WithCancel(ctx)
	s.entries[key] = pollEntry{id: id, cancel: cancel}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.release(key, id)
		s.run(pollCtx, key, fn)
	}()
	return true
}

func (s *Scheduler) run(ctx context.Context, key string, fn PollFunc) {
	_, span := s.tracer.Start(ctx, "poll_scheduler.loop",
		trace.WithAttributes(
			attribute.String("task_key", key),
			attribute.String("initial_delay", s.policy.InitialDelay.String()),
			attribute.String("interval", s.policy.Interval.String()),
			attribute.Int("max_attempts", s.policy.MaxAttempts),
		))
	defer span.End()

	timer := time.NewTimer(s.policy.InitialDelay)
	defer timer.Stop()

	for attempt := 1; attempt <= s.policy.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			span.AddEvent("poll_cancelled", trace.WithAttributes(attribute.Int("attempt", attempt)))
			return
		case <-timer.C:
		}

		if fn(ctx, key, attempt) {
			span.AddEvent("poll_done", trace.WithAttributes(attribute.Int("attempt", attempt)))
			return
		}
		timer.Reset(s.policy.Interval)
	}

	span.AddEvent("poll_budget_exhausted")
	s.logger.Info(ctx, "Polling budget exhausted", "task_key", key, "attempts", s.policy.MaxAttempts)
}

// release drops the entry for key if it still belongs to loop id.
func (s *Scheduler) release(key string, id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[key]; ok && e.id == id {
		e.cancel()
		delete(s.entries, key)
	}
}

// Cancel stops polling key. It is a no-op if key is not being polled.
func (s *Scheduler) Cancel(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[key]; ok {
		e.cancel()
		delete(s.entries, key)
	}
}

// Active reports whether key is being polled.
func (s *Scheduler) Active(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[key]
	return ok
}

// Len returns the number of active polling loops.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Halt cancels every loop and refuses new ones without waiting. It is safe to
// call from inside a PollFunc.
func (s *Scheduler) Halt() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopped = true
	for key, e := range s.entries {
		e.cancel()
		delete(s.entries, key)
	}
}

// Stop halts the scheduler and waits for running loops to return. It must
// not be called from a PollFunc.
func (s *Scheduler) Stop() {
	s.Halt()
	s.wg.Wait()
}
