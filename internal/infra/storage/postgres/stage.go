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

var _ task.StageMarker = (*stageStore)(nil)

// stageStore remembers which actors already advanced past the task stage of
// an action.
type stageStore struct {
	q      *db.Queries
	tracer trace.Tracer
}

// NewStageStore creates a postgres-backed StageMarker.
func NewStageStore(pool *pgxpool.Pool, tracer trace.Tracer) *stageStore {
	return &stageStore{q: db.New(pool), tracer: tracer}
}

func stageAttrs(actor engagement.ActorID, action engagement.ActionKind) []attribute.KeyValue {
	return append([]attribute.KeyValue{
		attribute.Int64("actor", int64(actor)),
		attribute.String("action", action.String()),
	}, defaultDBAttributes...)
}

func (s *stageStore) HasAdvanced(ctx context.Context, actor engagement.ActorID, action engagement.ActionKind) (bool, error) {
	var exists bool
	err := storage.ExecuteAndTrace(ctx, s.tracer, "postgres.stage.has_advanced", stageAttrs(actor, action),
		func(ctx context.Context) error {
			var err error
			exists, err = s.q.StageAdvanceExists(ctx, db.StageAdvanceExistsParams{
				ActorFid: int64(actor),
				Action:   action.String(),
			})
			if err != nil {
				return fmt.Errorf("failed to look up stage marker: %w", err)
			}
			return nil
		})
	return exists, err
}

func (s *stageStore) MarkAdvanced(ctx context.Context, actor engagement.ActorID, action engagement.ActionKind) error {
	return storage.ExecuteAndTrace(ctx, s.tracer, "postgres.stage.mark_advanced", stageAttrs(actor, action),
		func(ctx context.Context) error {
			if err := s.q.InsertStageAdvance(ctx, db.InsertStageAdvanceParams{
				ActorFid: int64(actor),
				Action:   action.String(),
			}); err != nil {
				return fmt.Errorf("failed to mark stage advanced: %w", err)
			}
			return nil
		})
}
