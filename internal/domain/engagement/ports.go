package engagement

import "context"

// ReactionType selects a reactions-by-type query.
type ReactionType string

const (
	ReactionLikes   ReactionType = "likes"
	ReactionRecasts ReactionType = "recasts"
)

// ContentLookup resolves a non canonical reference (a URL) into a content item.
type ContentLookup interface {
	CastByURL(ctx context.Context, url string) (Cast, error)
}

// EngagementSource is the set of independent remote surfaces that expose
// engagement evidence. A zero viewer means the request is not viewer scoped.
type EngagementSource interface {
	CastByHash(ctx context.Context, id ContentID, viewer ActorID) (Cast, error)
	Reactors(ctx context.Context, id ContentID, kind ReactionType, viewer ActorID) ([]ActorID, error)
	Replies(ctx context.Context, id ContentID, limit int) ([]Cast, error)
	CastsByParent(ctx context.Context, parent string, limit int) ([]Cast, error)
	ActorCasts(ctx context.Context, actor ActorID, limit int) ([]Cast, error)
}

// Resolver turns a raw reference into a ContentID.
type Resolver interface {
	Resolve(ctx context.Context, raw ContentReference) (ContentID, error)
}

// Checker decides whether an engagement fact holds.
type Checker interface {
	Check(ctx context.Context, id ContentID, actor ActorID, action ActionKind) (bool, error)
}

// ResolutionCache remembers reference to ContentID mappings. A mapping never
// changes once derived, so implementations only expire entries to bound their
// size; a miss simply falls through to the resolver.
type ResolutionCache interface {
	Get(ctx context.Context, raw ContentReference) (ContentID, bool, error)
	Put(ctx context.Context, raw ContentReference, id ContentID) error
}
