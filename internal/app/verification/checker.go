package verification

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/castverify/internal/domain/engagement"
	"github.com/ahrav/castverify/pkg/common/logger"
)

// Checker runs the strategy chain for an action and reports the first
// positive evidence. A strategy that cannot reach its surface counts as "no
// evidence" so the next one still runs; only a missing credential aborts
// the chain.
//
// Facts observed true are remembered for the life of the Checker and are
// answered without further remote calls, so a positive answer can never be
// flipped back by a later, staler response.
type Checker struct {
	source engagement.EngagementSource
	chains Chains

	mu        sync.RWMutex
	confirmed map[string]struct{}

	metrics VerificationMetrics
	logger  *logger.Logger
	tracer  trace.Tracer
}

var _ engagement.Checker = (*Checker)(nil)

// NewChecker creates a Checker.
func NewChecker(
	source engagement.EngagementSource,
	chains Chains,
	metrics VerificationMetrics,
	logger *logger.Logger,
	tracer trace.Tracer,
) *Checker {
	return &Checker{
		source:    source,
		chains:    chains,
		confirmed: make(map[string]struct{}),
		metrics:   metrics,
		logger:    logger.With("component", "engagement_checker"),
		tracer:    tracer,
	}
}

// Check reports whether actor performed action on id.
func (c *Checker) Check(
	ctx context.Context,
	id engagement.ContentID,
	actor engagement.ActorID,
	action engagement.ActionKind,
) (bool, error) {
	return c.CheckOrigin(ctx, id, engagement.ContentReference(id), actor, action)
}

// CheckOrigin is Check with the reference the id was derived from, which
// adds one more spelling for linkage comparisons.
func (c *Checker) CheckOrigin(
	ctx context.Context,
	id engagement.ContentID,
	origin engagement.ContentReference,
	actor engagement.ActorID,
	action engagement.ActionKind,
) (bool, error) {
	ctx, span := c.tracer.Start(ctx, "engagement_checker.check",
		trace.WithAttributes(
			attribute.String("content_id", id.String()),
			attribute.Int64("actor", int64(actor)),
			attribute.String("action", action.String()),
		))
	defer span.End()

	if err := validate(id, actor, action); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid check")
		return false, err
	}

	fact := engagement.Fact{Content: id, Actor: actor, Action: action}
	if c.isConfirmed(fact) {
		span.AddEvent("fact_already_confirmed")
		return true, nil
	}

	chain, ok := c.chains[action]
	if !ok || len(chain) == 0 {
		err := fmt.Errorf("%w: no strategies for %s", engagement.ErrUnknownAction, action)
		span.RecordError(err)
		span.SetStatus(codes.Error, "no chain")
		return false, err
	}

	start := time.Now()
	probe := NewProbe(c.source, id, origin, actor, action)
	logger := logger.NewLoggerContext(c.logger.With(
		"content_id", id.String(),
		"actor", int64(actor),
		"action", action.String(),
	))

	for _, strategy := range chain {
		if err := ctx.Err(); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "context done")
			return false, err
		}

		found, err := strategy.Attempt(ctx, probe)
		if err != nil {
			if errors.Is(err, engagement.ErrNotConfigured) {
				span.RecordError(err)
				span.SetStatus(codes.Error, "not configured")
				return false, err
			}
			c.metrics.IncStrategyOutcome(ctx, action.String(), strategy.Name(), "error")
			span.AddEvent("strategy_error", trace.WithAttributes(
				attribute.String("strategy", strategy.Name()),
				attribute.String("error", err.Error()),
			))
			logger.Warn(ctx, "Evidence strategy failed, trying next", "strategy", strategy.Name(), "error", err)
			continue
		}

		if found {
			c.metrics.IncStrategyOutcome(ctx, action.String(), strategy.Name(), "hit")
			c.metrics.ObserveCheck(ctx, action.String(), true, time.Since(start))
			c.confirm(fact)
			span.SetAttributes(attribute.String("matched_strategy", strategy.Name()))
			span.SetStatus(codes.Ok, "evidence found")
			logger.Debug(ctx, "Engagement evidence found", "strategy", strategy.Name())
			return true, nil
		}
		c.metrics.IncStrategyOutcome(ctx, action.String(), strategy.Name(), "miss")
	}

	c.metrics.ObserveCheck(ctx, action.String(), false, time.Since(start))
	span.SetStatus(codes.Ok, "no evidence")
	logger.Debug(ctx, "No engagement evidence from any strategy", "strategies", len(chain))
	return false, nil
}

func validate(id engagement.ContentID, actor engagement.ActorID, action engagement.ActionKind) error {
	if id == "" {
		return engagement.ErrEmptyReference
	}
	if !actor.Valid() {
		return fmt.Errorf("%w: %d", engagement.ErrInvalidActor, actor)
	}
	if !action.Valid() {
		return fmt.Errorf("%w: %q", engagement.ErrUnknownAction, action)
	}
	return nil
}

func (c *Checker) isConfirmed(f engagement.Fact) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.confirmed[f.Key()]
	return ok
}

func (c *Checker) confirm(f engagement.Fact) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.confirmed[f.Key()] = struct{}{}
}
