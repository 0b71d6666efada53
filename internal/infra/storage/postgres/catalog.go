package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/castverify/internal/db"
	"github.com/ahrav/castverify/internal/domain/engagement"
	"github.com/ahrav/castverify/internal/domain/task"
	"github.com/ahrav/castverify/internal/infra/storage"
)

var (
	_ task.Catalog       = (*catalogStore)(nil)
	_ task.CatalogWriter = (*catalogStore)(nil)
)

// catalogStore keeps task definitions ordered by their seed position.
type catalogStore struct {
	pool   *pgxpool.Pool
	q      *db.Queries
	tracer trace.Tracer
}

// NewCatalogStore creates a postgres-backed task catalog.
func NewCatalogStore(pool *pgxpool.Pool, tracer trace.Tracer) *catalogStore {
	return &catalogStore{pool: pool, q: db.New(pool), tracer: tracer}
}

// List returns the definitions for action, or all of them when action is
// empty.
func (s *catalogStore) List(ctx context.Context, action engagement.ActionKind) ([]task.Definition, error) {
	dbAttrs := append([]attribute.KeyValue{attribute.String("action", action.String())}, defaultDBAttributes...)

	var defs []task.Definition
	err := storage.ExecuteAndTrace(ctx, s.tracer, "postgres.catalog.list", dbAttrs, func(ctx context.Context) error {
		if action == "" {
			rows, err := s.q.ListTaskDefinitions(ctx)
			if err != nil {
				return fmt.Errorf("failed to list task definitions: %w", err)
			}
			for _, r := range rows {
				defs = append(defs, toDefinition(r.ID, r.Reference, r.Action, r.Username, r.AvatarUrl))
			}
			return nil
		}

		rows, err := s.q.ListTaskDefinitionsByAction(ctx, action.String())
		if err != nil {
			return fmt.Errorf("failed to list task definitions for %s: %w", action, err)
		}
		for _, r := range rows {
			defs = append(defs, toDefinition(r.ID, r.Reference, r.Action, r.Username, r.AvatarUrl))
		}
		return nil
	})
	return defs, err
}

func toDefinition(id, ref, action, username, avatar string) task.Definition {
	return task.Definition{
		ID:        id,
		Reference: engagement.ContentReference(ref),
		Action:    engagement.ActionKind(action),
		Username:  username,
		AvatarURL: avatar,
	}
}

// Upsert writes defs in one transaction. A definition's position is its
// index in defs.
func (s *catalogStore) Upsert(ctx context.Context, defs []task.Definition) error {
	dbAttrs := append([]attribute.KeyValue{attribute.Int("definition_count", len(defs))}, defaultDBAttributes...)

	return storage.ExecuteAndTrace(ctx, s.tracer, "postgres.catalog.upsert", dbAttrs, func(ctx context.Context) error {
		return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
			q := s.q.WithTx(tx)
			for i, def := range defs {
				if !def.Action.Valid() {
					return fmt.Errorf("%w: %q for task %s", engagement.ErrUnknownAction, def.Action, def.Key())
				}
				if err := q.UpsertTaskDefinition(ctx, db.UpsertTaskDefinitionParams{
					ID:        def.Key(),
					Reference: def.Reference.String(),
					Action:    def.Action.String(),
					Username:  def.Username,
					AvatarUrl: def.AvatarURL,
					Position:  int32(i),
				}); err != nil {
					return fmt.Errorf("failed to upsert task definition %s: %w", def.Key(), err)
				}
			}
			return nil
		})
	})
}
