// Package memory provides in-process implementations of the task persistence
// ports for development, the CLI and tests. Nothing survives a restart.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/ahrav/castverify/internal/domain/engagement"
	"github.com/ahrav/castverify/internal/domain/task"
)

var (
	_ task.CompletionRecorder = (*CompletionStore)(nil)
	_ task.StageMarker        = (*StageStore)(nil)
	_ task.Catalog            = (*Catalog)(nil)
	_ task.CatalogWriter      = (*Catalog)(nil)
)

type completionKey struct {
	actor engagement.ActorID
	ref   engagement.ContentReference
}

// CompletionStore records completions in a map.
type CompletionStore struct {
	mu        sync.RWMutex
	completed map[completionKey]struct{}
}

// NewCompletionStore creates an empty CompletionStore.
func NewCompletionStore() *CompletionStore {
	return &CompletionStore{completed: make(map[completionKey]struct{})}
}

func (s *CompletionStore) IsAlreadyCompleted(_ context.Context, actor engagement.ActorID, ref engagement.ContentReference) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.completed[completionKey{actor, ref}]
	return ok, nil
}

func (s *CompletionStore) RecordCompleted(_ context.Context, actor engagement.ActorID, ref engagement.ContentReference) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completed[completionKey{actor, ref}] = struct{}{}
	return nil
}

type stageKey struct {
	actor  engagement.ActorID
	action engagement.ActionKind
}

// StageStore records stage advances in a map.
type StageStore struct {
	mu       sync.RWMutex
	advanced map[stageKey]struct{}
}

// NewStageStore creates an empty StageStore.
func NewStageStore() *StageStore {
	return &StageStore{advanced: make(map[stageKey]struct{})}
}

func (s *StageStore) HasAdvanced(_ context.Context, actor engagement.ActorID, action engagement.ActionKind) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.advanced[stageKey{actor, action}]
	return ok, nil
}

func (s *StageStore) MarkAdvanced(_ context.Context, actor engagement.ActorID, action engagement.ActionKind) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.advanced[stageKey{actor, action}] = struct{}{}
	return nil
}

// Catalog keeps task definitions in insertion order.
type Catalog struct {
	mu    sync.RWMutex
	order []string
	defs  map[string]task.Definition
}

// NewCatalog creates a Catalog seeded with defs. Seeding fails as a whole
// when any definition has an unknown action.
func NewCatalog(defs ...task.Definition) (*Catalog, error) {
	c := &Catalog{defs: make(map[string]task.Definition)}
	if err := c.Upsert(context.Background(), defs); err != nil {
		return nil, err
	}
	return c, nil
}

// List returns the definitions for action, or all of them when action is
// empty.
func (c *Catalog) List(_ context.Context, action engagement.ActionKind) ([]task.Definition, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]task.Definition, 0, len(c.order))
	for _, key := range c.order {
		def := c.defs[key]
		if action == "" || def.Action == action {
			out = append(out, def)
		}
	}
	return out, nil
}

// Upsert adds or replaces defs. Replaced definitions keep their position.
// Nothing is written if any definition is invalid.
func (c *Catalog) Upsert(_ context.Context, defs []task.Definition) error {
	for _, def := range defs {
		if !def.Action.Valid() {
			return fmt.Errorf("%w: %q for task %s", engagement.ErrUnknownAction, def.Action, def.Key())
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, def := range defs {
		key := def.Key()
		if _, ok := c.defs[key]; !ok {
			c.order = append(c.order, key)
		}
		c.defs[key] = def
	}
	return nil
}
