package verification

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/ahrav/castverify/internal/domain/engagement"
	"github.com/ahrav/castverify/pkg/common/logger"
)

// RemoteResolver resolves references through the content-by-URL endpoint. It
// issues exactly one request per call and never retries; retries belong to
// the task scheduler.
type RemoteResolver struct {
	lookup engagement.ContentLookup

	logger *logger.Logger
	tracer trace.Tracer
}

var _ engagement.Resolver = (*RemoteResolver)(nil)

// NewRemoteResolver creates a resolver backed by lookup.
func NewRemoteResolver(lookup engagement.ContentLookup, logger *logger.Logger, tracer trace.Tracer) *RemoteResolver {
	return &RemoteResolver{
		lookup: lookup,
		logger: logger.With("component", "content_resolver"),
		tracer: tracer,
	}
}

// Resolve turns raw into a ContentID. All failures are *engagement.ResolutionError.
func (r *RemoteResolver) Resolve(ctx context.Context, raw engagement.ContentReference) (engagement.ContentID, error) {
	ctx, span := r.tracer.Start(ctx, "content_resolver.resolve",
		trace.WithAttributes(attribute.String("reference", raw.String())))
	defer span.End()

	fail := func(err error) (engagement.ContentID, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, "resolution failed")
		return "", engagement.NewResolutionError(raw, err)
	}

	target := engagement.EnsureScheme(raw)
	if target == "" {
		return fail(engagement.ErrEmptyReference)
	}

	cast, err := r.lookup.CastByURL(ctx, target)
	if err != nil {
		return fail(err)
	}

	hash := strings.ToLower(strings.TrimSpace(cast.Hash))
	id, needs := engagement.Normalize(engagement.ContentReference(hash))
	if hash == "" || needs {
		return fail(fmt.Errorf("response carried no usable hash: %q", cast.Hash))
	}

	span.SetAttributes(attribute.String("content_id", id.String()))
	span.SetStatus(codes.Ok, "resolved")
	return id, nil
}

// ContentService canonicalizes references: locally when the Normalizer can,
// then from the cache, and only then remotely. Concurrent resolutions of the
// same reference share one remote call.
type ContentService struct {
	resolver engagement.Resolver
	cache    engagement.ResolutionCache
	group    singleflight.Group

	metrics VerificationMetrics
	logger  *logger.Logger
	tracer  trace.Tracer
}

// NewContentService creates a ContentService. cache may be nil.
func NewContentService(
	resolver engagement.Resolver,
	cache engagement.ResolutionCache,
	metrics VerificationMetrics,
	logger *logger.Logger,
	tracer trace.Tracer,
) *ContentService {
	return &ContentService{
		resolver: resolver,
		cache:    cache,
		metrics:  metrics,
		logger:   logger.With("component", "content_service"),
		tracer:   tracer,
	}
}

// Canonicalize returns the ContentID for raw.
func (s *ContentService) Canonicalize(ctx context.Context, raw engagement.ContentReference) (engagement.ContentID, error) {
	ctx, span := s.tracer.Start(ctx, "content_service.canonicalize",
		trace.WithAttributes(attribute.String("reference", raw.String())))
	defer span.End()

	if id, needs := engagement.Normalize(raw); !needs {
		s.metrics.IncResolution(ctx, "direct", true)
		span.SetAttributes(attribute.String("source", "direct"))
		return id, nil
	}

	key := engagement.ContentReference(strings.TrimSpace(raw.String()))
	if s.cache != nil {
		id, ok, err := s.cache.Get(ctx, key)
		if err != nil {
			s.logger.Warn(ctx, "Resolution cache read failed", "reference", raw.String(), "error", err)
		} else if ok {
			s.metrics.IncResolution(ctx, "cache", true)
			span.SetAttributes(attribute.String("source", "cache"))
			return id, nil
		}
	}

	// The shared call outlives any one caller; each caller still stops
	// waiting when its own ctx is done.
	sharedCtx := context.WithoutCancel(ctx)
	ch := s.group.DoChan(string(key), func() (any, error) {
		return s.resolver.Resolve(sharedCtx, key)
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		err := ctx.Err()
		span.RecordError(err)
		span.SetStatus(codes.Error, "context done while resolving")
		return "", err
	case res = <-ch:
	}

	v, err := res.Val, res.Err
	span.SetAttributes(attribute.String("source", "remote"), attribute.Bool("shared", res.Shared))
	if err != nil {
		s.metrics.IncResolution(ctx, "remote", false)
		span.RecordError(err)
		span.SetStatus(codes.Error, "resolution failed")
		if !errors.Is(err, engagement.ErrNotConfigured) {
			s.logger.Info(ctx, "Content reference not resolved", "reference", raw.String(), "error", err)
		}
		return "", err
	}

	id := v.(engagement.ContentID)
	s.metrics.IncResolution(ctx, "remote", true)
	if s.cache != nil {
		if err := s.cache.Put(ctx, key, id); err != nil {
			s.logger.Warn(ctx, "Resolution cache write failed", "reference", raw.String(), "error", err)
		}
	}
	return id, nil
}
