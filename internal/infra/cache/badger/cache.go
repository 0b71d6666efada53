// Package badger caches resolved content identifiers in BadgerDB so a
// reference is resolved remotely at most once per TTL, across restarts when
// a path is configured.
package badger

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/castverify/internal/domain/engagement"
	"github.com/ahrav/castverify/pkg/common/logger"
)

const keyPrefix = "ref:"

// DefaultTTL bounds how long a resolution is trusted. Content ids never
// change, so this only limits growth.
const DefaultTTL = 30 * 24 * time.Hour

// Config configures the cache. An empty Path keeps everything in memory.
type Config struct {
	Path string
	TTL  time.Duration
}

// Cache is a ResolutionCache backed by BadgerDB.
type Cache struct {
	db  *badger.DB
	ttl time.Duration

	logger *logger.Logger
	tracer trace.Tracer
}

var _ engagement.ResolutionCache = (*Cache)(nil)

// badgerLogger routes BadgerDB's internal logging through our logger.
type badgerLogger struct {
	log *logger.Logger
}

func (l badgerLogger) Errorf(format string, args ...any) {
	l.log.Error(context.Background(), strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l badgerLogger) Warningf(format string, args ...any) {
	l.log.Warn(context.Background(), strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l badgerLogger) Infof(format string, args ...any) {
	l.log.Debug(context.Background(), strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l badgerLogger) Debugf(format string, args ...any) {
	l.log.Debug(context.Background(), strings.TrimSpace(fmt.Sprintf(format, args...)))
}

// Open opens the cache described by cfg.
func Open(cfg Config, log *logger.Logger, tracer trace.Tracer) (*Cache, error) {
	log = log.With("component", "resolution_cache")

	var opts badger.Options
	if cfg.Path == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create cache directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithLogger(badgerLogger{log: log}).WithLoggingLevel(badger.WARNING)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger cache: %w", err)
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{db: db, ttl: ttl, logger: log, tracer: tracer}, nil
}

func cacheKey(raw engagement.ContentReference) []byte {
	return []byte(keyPrefix + strings.TrimSpace(raw.String()))
}

// Get returns the cached id for raw.
func (c *Cache) Get(ctx context.Context, raw engagement.ContentReference) (engagement.ContentID, bool, error) {
	_, span := c.tracer.Start(ctx, "resolution_cache.get",
		trace.WithAttributes(attribute.String("reference", raw.String())))
	defer span.End()

	var id engagement.ContentID
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(cacheKey(raw))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			id = engagement.ContentID(val)
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		span.SetAttributes(attribute.Bool("hit", false))
		return "", false, nil
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "cache read failed")
		return "", false, fmt.Errorf("read cached resolution: %w", err)
	}

	span.SetAttributes(attribute.Bool("hit", true))
	return id, true, nil
}

// Put stores id for raw.
func (c *Cache) Put(ctx context.Context, raw engagement.ContentReference, id engagement.ContentID) error {
	_, span := c.tracer.Start(ctx, "resolution_cache.put",
		trace.WithAttributes(
			attribute.String("reference", raw.String()),
			attribute.String("content_id", id.String()),
		))
	defer span.End()

	err := c.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry(cacheKey(raw), []byte(id)).WithTTL(c.ttl))
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "cache write failed")
		return fmt.Errorf("write cached resolution: %w", err)
	}
	return nil
}

// Close flushes and closes the database.
func (c *Cache) Close() error { return c.db.Close() }
