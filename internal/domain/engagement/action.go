package engagement

import (
	"fmt"
	"strings"
)

// ActionKind is the kind of engagement being verified. It selects the
// strategy chain that runs.
type ActionKind string

const (
	// ActionLike is a like reaction on a content item.
	ActionLike ActionKind = "like"

	// ActionRecast is a recast (share) of a content item.
	ActionRecast ActionKind = "recast"

	// ActionComment is a reply authored under a content item.
	ActionComment ActionKind = "comment"
)

// Actions lists every supported kind in display order.
var Actions = []ActionKind{ActionLike, ActionRecast, ActionComment}

// String returns the string representation of the ActionKind.
func (a ActionKind) String() string { return string(a) }

// Valid reports whether a is a member of the closed set.
func (a ActionKind) Valid() bool {
	switch a {
	case ActionLike, ActionRecast, ActionComment:
		return true
	default:
		return false
	}
}

// ParseActionKind converts a string into an ActionKind. Matching is case
// insensitive and accepts the "reply" and "share" synonyms.
func ParseActionKind(s string) (ActionKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "like", "likes":
		return ActionLike, nil
	case "recast", "recasts", "share":
		return ActionRecast, nil
	case "comment", "comments", "reply":
		return ActionComment, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownAction, s)
	}
}
