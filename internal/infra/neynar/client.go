// Package neynar is a client for the Neynar v2 Farcaster API. It exposes the
// endpoints the verification engine gathers evidence from and converts their
// loosely shaped responses into engagement.Cast values.
package neynar

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/castverify/internal/domain/engagement"
	"github.com/ahrav/castverify/pkg/common"
	"github.com/ahrav/castverify/pkg/common/logger"
)

// DefaultBaseURL is the public API root.
const DefaultBaseURL = "https://api.neynar.com"

const apiPrefix = "/v2/farcaster"

// maxErrorBody caps how much of a failed response body is kept in errors.
const maxErrorBody = 2048

// ErrMalformedResponse is returned when a success response lacks the payload.
var ErrMalformedResponse = errors.New("malformed api response")

// APIError is a non-200 response.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("neynar api returned status %d: %s", e.StatusCode, e.Body)
}

// Config holds client settings.
type Config struct {
	APIKey         string
	BaseURL        string
	Timeout        time.Duration
	RateLimitRPS   float64
	RateLimitBurst int
	// HTTPClient overrides the default instrumented client.
	HTTPClient *http.Client
}

// Client talks to the Neynar API. Every call is rate limited and traced.
type Client struct {
	apiKey      string
	baseURL     string
	httpClient  *http.Client
	rateLimiter *common.RateLimiter

	logger *logger.Logger
	tracer trace.Tracer
}

var (
	_ engagement.ContentLookup    = (*Client)(nil)
	_ engagement.EngagementSource = (*Client)(nil)
)

// New creates a client. A blank API key is accepted; every call then fails
// with engagement.ErrNotConfigured before touching the network.
func New(cfg Config, logger *logger.Logger, tracer trace.Tracer) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}

	return &Client{
		apiKey:      CleanAPIKey(cfg.APIKey),
		baseURL:     baseURL,
		httpClient:  httpClient,
		rateLimiter: common.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst),
		logger:      logger.With("component", "neynar_client"),
		tracer:      tracer,
	}
}

// CleanAPIKey strips surrounding whitespace and any embedded line breaks or
// tabs that creep in when keys are pasted into env files.
func CleanAPIKey(key string) string {
	return strings.TrimSpace(strings.NewReplacer("\r", "", "\n", "", "\t", "").Replace(key))
}

// Configured reports whether a credential is present.
func (c *Client) Configured() bool { return c.apiKey != "" }

// CastByURL looks a cast up by its web address.
func (c *Client) CastByURL(ctx context.Context, castURL string) (engagement.Cast, error) {
	q := url.Values{}
	q.Set("identifier", castURL)
	q.Set("type", "url")
	return c.fetchCast(ctx, "neynar_client.cast_by_url", q)
}

// CastByHash fetches a cast by hash. A positive viewer scopes viewer_context
// and reaction fields to that actor.
func (c *Client) CastByHash(ctx context.Context, id engagement.ContentID, viewer engagement.ActorID) (engagement.Cast, error) {
	q := url.Values{}
	q.Set("identifier", id.String())
	q.Set("type", "hash")
	if viewer.Valid() {
		q.Set("viewer_fid", viewer.String())
	}
	return c.fetchCast(ctx, "neynar_client.cast_by_hash", q)
}

func (c *Client) fetchCast(ctx context.Context, spanName string, q url.Values) (engagement.Cast, error) {
	var env castEnvelope
	if err := c.get(ctx, spanName, "/cast", q, &env); err != nil {
		return engagement.Cast{}, err
	}
	w, ok := env.cast()
	if !ok {
		return engagement.Cast{}, fmt.Errorf("%w: no cast in body", ErrMalformedResponse)
	}
	return w.toDomain(), nil
}

// Reactors lists actors with a reaction of the given kind on id.
func (c *Client) Reactors(
	ctx context.Context,
	id engagement.ContentID,
	kind engagement.ReactionType,
	viewer engagement.ActorID,
) ([]engagement.ActorID, error) {
	q := url.Values{}
	q.Set("cast_hash", id.String())
	q.Set("types", string(kind))
	if viewer.Valid() {
		q.Set("viewer_fid", viewer.String())
	}

	var env listEnvelope
	if err := c.get(ctx, "neynar_client.reactions", "/reactions", q, &env); err != nil {
		return nil, err
	}

	var out []engagement.ActorID
	for _, r := range env.Reactions {
		out = append(out, r.actors()...)
	}
	return out, nil
}

// Replies lists direct replies to id.
func (c *Client) Replies(ctx context.Context, id engagement.ContentID, limit int) ([]engagement.Cast, error) {
	q := url.Values{}
	q.Set("identifier", id.String())
	q.Set("type", "hash")
	q.Set("limit", strconv.Itoa(limit))
	return c.fetchList(ctx, "neynar_client.replies", "/cast/replies", q)
}

// CastsByParent lists casts whose parent is the given hash spelling.
func (c *Client) CastsByParent(ctx context.Context, parent string, limit int) ([]engagement.Cast, error) {
	q := url.Values{}
	q.Set("parent_hash", parent)
	q.Set("limit", strconv.Itoa(limit))
	return c.fetchList(ctx, "neynar_client.casts_by_parent", "/casts", q)
}

// ActorCasts lists the actor's most recent casts.
func (c *Client) ActorCasts(ctx context.Context, actor engagement.ActorID, limit int) ([]engagement.Cast, error) {
	q := url.Values{}
	q.Set("fid", actor.String())
	q.Set("limit", strconv.Itoa(limit))
	return c.fetchList(ctx, "neynar_client.actor_casts", "/user/casts", q)
}

func (c *Client) fetchList(ctx context.Context, spanName, path string, q url.Values) ([]engagement.Cast, error) {
	var env listEnvelope
	if err := c.get(ctx, spanName, path, q, &env); err != nil {
		return nil, err
	}
	return castsToDomain(env.casts()), nil
}

// User is a remote account as shown next to a task.
type User struct {
	FID       engagement.ActorID
	Username  string
	AvatarURL string
}

// UserByFID looks up a user by numeric id.
func (c *Client) UserByFID(ctx context.Context, fid engagement.ActorID) (User, error) {
	q := url.Values{}
	q.Set("fid", fid.String())
	return c.fetchUser(ctx, "neynar_client.user_by_fid", "/user/by_fid", q)
}

// UserByUsername looks up a user by handle. A leading @ is ignored.
func (c *Client) UserByUsername(ctx context.Context, username string) (User, error) {
	q := url.Values{}
	q.Set("username", strings.TrimPrefix(strings.TrimSpace(username), "@"))
	return c.fetchUser(ctx, "neynar_client.user_by_username", "/user/by_username", q)
}

func (c *Client) fetchUser(ctx context.Context, spanName, path string, q url.Values) (User, error) {
	var env userEnvelope
	if err := c.get(ctx, spanName, path, q, &env); err != nil {
		return User{}, err
	}
	u, ok := env.user()
	if !ok || u.FID <= 0 {
		return User{}, fmt.Errorf("%w: no user in body", ErrMalformedResponse)
	}
	return User{FID: engagement.ActorID(u.FID), Username: u.Username, AvatarURL: u.avatar()}, nil
}

// get performs one GET against the API and decodes a 200 body into out.
func (c *Client) get(ctx context.Context, spanName, path string, q url.Values, out any) error {
	ctx, span := c.tracer.Start(ctx, spanName,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("path", path)),
	)
	defer span.End()

	if !c.Configured() {
		span.RecordError(engagement.ErrNotConfigured)
		span.SetStatus(codes.Error, "api key missing")
		return engagement.ErrNotConfigured
	}

	if err := c.rateLimiter.Wait(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "rate limiter wait failed")
		return fmt.Errorf("rate limiter wait failed: %w", err)
	}

	endpoint := c.baseURL + apiPrefix + path + "?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to create request")
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("api_key", c.apiKey)
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "request failed")
		return fmt.Errorf("request %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("status_code", resp.StatusCode))
	c.updateRateLimits(resp.Header)

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
		span.RecordError(apiErr)
		span.SetStatus(codes.Error, "non-200 response")
		c.logger.Debug(ctx, "Neynar request failed", "path", path, "status", resp.StatusCode)
		return apiErr
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to decode response")
		return fmt.Errorf("%w: decoding %s: %v", ErrMalformedResponse, path, err)
	}

	span.SetStatus(codes.Ok, "request completed")
	return nil
}

// updateRateLimits spreads the remaining quota over the time left in the
// current window when the API advertises one.
func (c *Client) updateRateLimits(headers http.Header) {
	remaining, _ := strconv.ParseInt(headers.Get("X-RateLimit-Remaining"), 10, 64)
	reset, _ := strconv.ParseInt(headers.Get("X-RateLimit-Reset"), 10, 64)
	if remaining <= 0 || reset <= 0 {
		return
	}

	window := time.Until(time.Unix(reset, 0))
	if window <= 0 {
		return
	}
	rps := float64(remaining) / window.Seconds()
	burst := int(remaining / 10)
	c.rateLimiter.UpdateLimits(rps*0.9, burst)
}
