package verification

import (
	"context"
	"errors"
	"fmt"

	"github.com/ahrav/castverify/internal/domain/engagement"
)

// Strategy is one independent way of looking for evidence of an engagement.
// Attempt returns true on positive evidence, false when this surface shows
// nothing, and an error when the surface could not be read.
type Strategy interface {
	Name() string
	Attempt(ctx context.Context, p *Probe) (bool, error)
}

// Limits caps how many items the list based strategies request.
type Limits struct {
	Replies  int
	Children int
	History  int
}

// DefaultLimits match the page sizes the remote API accepts for each list.
func DefaultLimits() Limits {
	return Limits{Replies: 100, Children: 200, History: 300}
}

// Chains maps each action to its strategies in priority order. Reordering or
// extending a chain is a change to this data only.
type Chains map[engagement.ActionKind][]Strategy

// DefaultChains builds the standard chains.
func DefaultChains(limits Limits) Chains {
	return Chains{
		engagement.ActionLike: {
			viewerFlag{action: engagement.ActionLike},
			embeddedReactions{action: engagement.ActionLike},
		},
		engagement.ActionRecast: {
			viewerFlag{action: engagement.ActionRecast},
			embeddedReactions{action: engagement.ActionRecast},
			reactionsByType{kind: engagement.ReactionRecasts},
		},
		engagement.ActionComment: {
			embeddedReplies{viewerScoped: true},
			embeddedReplies{viewerScoped: false},
			repliesByParent{limit: limits.Replies},
			childrenByParent{limit: limits.Children},
			actorHistory{limit: limits.History},
		},
	}
}

// viewerFlag reads the per-viewer reaction flag on a viewer scoped fetch.
type viewerFlag struct {
	action engagement.ActionKind
}

func (s viewerFlag) Name() string { return "viewer_flag" }

func (s viewerFlag) Attempt(ctx context.Context, p *Probe) (bool, error) {
	cast, err := p.Cast(ctx, true)
	if err != nil {
		return false, err
	}
	flag := cast.ViewerLiked
	if s.action == engagement.ActionRecast {
		flag = cast.ViewerRecasted
	}
	return flag != nil && *flag, nil
}

// embeddedReactions scans the reaction list embedded in the same response.
type embeddedReactions struct {
	action engagement.ActionKind
}

func (s embeddedReactions) Name() string { return "embedded_reactions" }

func (s embeddedReactions) Attempt(ctx context.Context, p *Probe) (bool, error) {
	cast, err := p.Cast(ctx, true)
	if err != nil {
		return false, err
	}
	if s.action == engagement.ActionRecast {
		return cast.RecastBy(p.Actor), nil
	}
	return cast.LikedBy(p.Actor), nil
}

// reactionsByType queries the reactions endpoint filtered by type and viewer.
type reactionsByType struct {
	kind engagement.ReactionType
}

func (s reactionsByType) Name() string { return "reactions_by_type" }

func (s reactionsByType) Attempt(ctx context.Context, p *Probe) (bool, error) {
	actors, err := p.Source().Reactors(ctx, p.Content, s.kind, p.Actor)
	if err != nil {
		return false, err
	}
	for _, a := range actors {
		if a == p.Actor {
			return true, nil
		}
	}
	return false, nil
}

// embeddedReplies looks for the actor among replies embedded in the item.
type embeddedReplies struct {
	viewerScoped bool
}

func (s embeddedReplies) Name() string {
	if s.viewerScoped {
		return "embedded_replies_viewer"
	}
	return "embedded_replies"
}

func (s embeddedReplies) Attempt(ctx context.Context, p *Probe) (bool, error) {
	cast, err := p.Cast(ctx, s.viewerScoped)
	if err != nil {
		return false, err
	}
	return engagement.AnyAuthoredBy(cast.Replies, p.Actor), nil
}

// repliesByParent scans the dedicated replies endpoint.
type repliesByParent struct {
	limit int
}

func (s repliesByParent) Name() string { return "replies_by_parent" }

func (s repliesByParent) Attempt(ctx context.Context, p *Probe) (bool, error) {
	replies, err := p.Source().Replies(ctx, p.Content, s.limit)
	if err != nil {
		return false, err
	}
	return engagement.AnyAuthoredBy(replies, p.Actor), nil
}

// childrenByParent queries the generic children endpoint once per hash
// spelling, since parent linkage is not normalized upstream. Each spelling is
// scanned up to limit children on its own.
type childrenByParent struct {
	limit int
}

func (s childrenByParent) Name() string { return "children_by_parent" }

func (s childrenByParent) Attempt(ctx context.Context, p *Probe) (bool, error) {
	variants := p.Variants()
	var errs []error
	for _, variant := range variants {
		children, err := p.Source().CastsByParent(ctx, variant, s.limit)
		if err != nil {
			if errors.Is(err, engagement.ErrNotConfigured) || ctx.Err() != nil {
				return false, err
			}
			errs = append(errs, fmt.Errorf("parent %s: %w", variant, err))
			continue
		}
		if len(children) > s.limit {
			children = children[:s.limit]
		}
		if engagement.AnyAuthoredBy(children, p.Actor) {
			return true, nil
		}
	}
	if len(errs) > 0 && len(errs) == len(variants) {
		return false, errors.Join(errs...)
	}
	return false, nil
}

// actorHistory checks whether any of the actor's recent items links to the
// target through a parent or thread field.
type actorHistory struct {
	limit int
}

func (s actorHistory) Name() string { return "actor_history" }

func (s actorHistory) Attempt(ctx context.Context, p *Probe) (bool, error) {
	casts, err := p.Source().ActorCasts(ctx, p.Actor, s.limit)
	if err != nil {
		return false, err
	}
	variants := p.Variants()
	for _, c := range casts {
		if c.LinksTo(variants) {
			return true, nil
		}
	}
	return false, nil
}
