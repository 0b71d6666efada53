package verification

import (
	"context"
	"sync"

	"github.com/ahrav/castverify/internal/domain/engagement"
)

// Probe is the input to one strategy chain run. It memoizes the two cast
// fetches that several strategies inspect, so the viewer flag and the
// embedded reaction list are read from a single response.
type Probe struct {
	Content engagement.ContentID
	Origin  engagement.ContentReference
	Actor   engagement.ActorID
	Action  engagement.ActionKind

	source engagement.EngagementSource

	mu      sync.Mutex
	fetched map[bool]castResult
}

type castResult struct {
	cast engagement.Cast
	err  error
}

// NewProbe creates a probe for one check.
func NewProbe(
	source engagement.EngagementSource,
	id engagement.ContentID,
	origin engagement.ContentReference,
	actor engagement.ActorID,
	action engagement.ActionKind,
) *Probe {
	return &Probe{
		Content: id,
		Origin:  origin,
		Actor:   actor,
		Action:  action,
		source:  source,
		fetched: make(map[bool]castResult, 2),
	}
}

// Source returns the remote evidence source.
func (p *Probe) Source() engagement.EngagementSource { return p.source }

// Cast returns the content item, scoped to the actor when viewerScoped is
// set. The first call per scope hits the network; later calls reuse the
// result, errors included.
func (p *Probe) Cast(ctx context.Context, viewerScoped bool) (engagement.Cast, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if r, ok := p.fetched[viewerScoped]; ok {
		return r.cast, r.err
	}

	var viewer engagement.ActorID
	if viewerScoped {
		viewer = p.Actor
	}
	cast, err := p.source.CastByHash(ctx, p.Content, viewer)
	p.fetched[viewerScoped] = castResult{cast: cast, err: err}
	return cast, err
}

// Variants returns the hash spellings to try against linkage fields.
func (p *Probe) Variants() []string {
	return engagement.HashVariants(p.Content, p.Origin)
}
