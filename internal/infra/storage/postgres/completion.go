// Package postgres persists completions, stage markers and the task catalog
// in PostgreSQL.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/castverify/internal/db"
	"github.com/ahrav/castverify/internal/domain/engagement"
	"github.com/ahrav/castverify/internal/domain/task"
	"github.com/ahrav/castverify/internal/infra/storage"
)

var defaultDBAttributes = []attribute.KeyValue{
	attribute.String("db.system", "postgresql"),
}

var _ task.CompletionRecorder = (*completionStore)(nil)

// completionStore records confirmed completions per (actor, reference).
// Inserts ignore conflicts, which makes RecordCompleted an idempotent upsert.
type completionStore struct {
	q      *db.Queries
	tracer trace.Tracer
}

// NewCompletionStore creates a postgres-backed CompletionRecorder.
func NewCompletionStore(pool *pgxpool.Pool, tracer trace.Tracer) *completionStore {
	return &completionStore{q: db.New(pool), tracer: tracer}
}

func completionAttrs(actor engagement.ActorID, ref engagement.ContentReference) []attribute.KeyValue {
	return append([]attribute.KeyValue{
		attribute.Int64("actor", int64(actor)),
		attribute.String("reference", ref.String()),
	}, defaultDBAttributes...)
}

// IsAlreadyCompleted reports whether actor has a recorded completion for ref.
func (s *completionStore) IsAlreadyCompleted(
	ctx context.Context,
	actor engagement.ActorID,
	ref engagement.ContentReference,
) (bool, error) {
	var exists bool
	err := storage.ExecuteAndTrace(ctx, s.tracer, "postgres.completions.exists", completionAttrs(actor, ref),
		func(ctx context.Context) error {
			var err error
			exists, err = s.q.CompletionExists(ctx, db.CompletionExistsParams{
				ActorFid:  int64(actor),
				Reference: ref.String(),
			})
			if err != nil {
				return fmt.Errorf("failed to look up completion: %w", err)
			}
			return nil
		})
	return exists, err
}

// RecordCompleted stores the completion. Recording the same pair twice is
// not an error.
func (s *completionStore) RecordCompleted(
	ctx context.Context,
	actor engagement.ActorID,
	ref engagement.ContentReference,
) error {
	return storage.ExecuteAndTrace(ctx, s.tracer, "postgres.completions.record", completionAttrs(actor, ref),
		func(ctx context.Context) error {
			if err := s.q.InsertCompletion(ctx, db.InsertCompletionParams{
				ActorFid:  int64(actor),
				Reference: ref.String(),
			}); err != nil {
				return fmt.Errorf("failed to record completion: %w", err)
			}
			return nil
		})
}
