package task

import (
	"context"

	"github.com/ahrav/castverify/internal/domain/engagement"
)

// CompletionRecorder durably persists confirmed completions. RecordCompleted
// must be an idempotent upsert.
type CompletionRecorder interface {
	IsAlreadyCompleted(ctx context.Context, actor engagement.ActorID, ref engagement.ContentReference) (bool, error)
	RecordCompleted(ctx context.Context, actor engagement.ActorID, ref engagement.ContentReference) error
}

// StageMarker remembers that an actor already advanced past the task stage
// for an action, so the all-satisfied signal fires once across reloads.
type StageMarker interface {
	HasAdvanced(ctx context.Context, actor engagement.ActorID, action engagement.ActionKind) (bool, error)
	MarkAdvanced(ctx context.Context, actor engagement.ActorID, action engagement.ActionKind) error
}

// Catalog lists task definitions. An empty action lists every definition.
type Catalog interface {
	List(ctx context.Context, action engagement.ActionKind) ([]Definition, error)
}

// CatalogWriter seeds a catalog.
type CatalogWriter interface {
	Upsert(ctx context.Context, defs []Definition) error
}

// EventPublisher announces task lifecycle changes to other systems.
type EventPublisher interface {
	PublishCompleted(ctx context.Context, evt CompletedEvent) error
	PublishAllSatisfied(ctx context.Context, evt AllSatisfiedEvent) error
}
