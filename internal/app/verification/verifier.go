package verification

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/castverify/internal/domain/engagement"
	"github.com/ahrav/castverify/pkg/common/logger"
)

// Result is the outcome of one verification pass.
type Result struct {
	ContentID engagement.ContentID
	Found     bool
	// Passes is 2 when the delayed retry pass ran.
	Passes int
}

// Verifier runs one verification pass: canonicalize the reference, then
// check. Replies index slower than reactions, so a Comment pass that finds
// nothing waits and runs the chain a second time before giving up.
type Verifier struct {
	content *ContentService
	checker *Checker

	commentRetryDelay time.Duration

	metrics VerificationMetrics
	logger  *logger.Logger
	tracer  trace.Tracer
}

// NewVerifier creates a Verifier. A negative commentRetryDelay disables the
// retry pass.
func NewVerifier(
	content *ContentService,
	checker *Checker,
	commentRetryDelay time.Duration,
	metrics VerificationMetrics,
	logger *logger.Logger,
	tracer trace.Tracer,
) *Verifier {
	return &Verifier{
		content:           content,
		checker:           checker,
		commentRetryDelay: commentRetryDelay,
		metrics:           metrics,
		logger:            logger.With("component", "verifier"),
		tracer:            tracer,
	}
}

// Verify runs a pass for (ref, actor, action). A failure to canonicalize
// returns an *engagement.ResolutionError; finding no evidence is not an error.
func (v *Verifier) Verify(
	ctx context.Context,
	ref engagement.ContentReference,
	actor engagement.ActorID,
	action engagement.ActionKind,
) (Result, error) {
	ctx, span := v.tracer.Start(ctx, "verifier.verify",
		trace.WithAttributes(
			attribute.String("reference", ref.String()),
			attribute.Int64("actor", int64(actor)),
			attribute.String("action", action.String()),
		))
	defer span.End()

	id, err := v.content.Canonicalize(ctx, ref)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "canonicalize failed")
		return Result{}, err
	}
	res := Result{ContentID: id, Passes: 1}

	found, err := v.checker.CheckOrigin(ctx, id, ref, actor, action)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "check failed")
		return res, err
	}

	if !found && action == engagement.ActionComment && v.commentRetryDelay >= 0 {
		span.AddEvent("comment_retry_pass", trace.WithAttributes(
			attribute.String("delay", v.commentRetryDelay.String())))
		v.logger.Debug(ctx, "No reply found, retrying after delay",
			"reference", ref.String(), "actor", int64(actor), "delay", v.commentRetryDelay)

		if err := sleep(ctx, v.commentRetryDelay); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "context done during retry delay")
			return res, err
		}
		v.metrics.IncRetryPass(ctx, action.String())
		res.Passes = 2

		found, err = v.checker.CheckOrigin(ctx, id, ref, actor, action)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "retry check failed")
			return res, err
		}
	}

	res.Found = found
	span.SetAttributes(attribute.Bool("found", found), attribute.Int("passes", res.Passes))
	span.SetStatus(codes.Ok, "verification pass complete")
	return res, nil
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
