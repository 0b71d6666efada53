package engagement

// Cast is the normalized view of a remote content item. The remote schema
// spells the same relation under several keys, so every slice here collects
// the values of all known aliases and a match on any of them counts.
type Cast struct {
	Hash string

	// Authors holds every author id alias present on the item.
	Authors []ActorID

	// Linkages holds every parent and thread hash spelling present.
	Linkages []string

	// ViewerLiked and ViewerRecasted are only set on viewer scoped fetches
	// and only when the remote populated them.
	ViewerLiked    *bool
	ViewerRecasted *bool

	Likes   []ActorID
	Recasts []ActorID

	// Replies are replies embedded in the item itself.
	Replies []Cast
}

// AuthoredBy reports whether any author alias equals actor.
func (c Cast) AuthoredBy(actor ActorID) bool {
	return containsActor(c.Authors, actor)
}

// LikedBy reports whether actor appears in the embedded like list.
func (c Cast) LikedBy(actor ActorID) bool { return containsActor(c.Likes, actor) }

// RecastBy reports whether actor appears in the embedded recast list.
func (c Cast) RecastBy(actor ActorID) bool { return containsActor(c.Recasts, actor) }

// LinksTo reports whether any parent or thread linkage equals one of the
// hash variants.
func (c Cast) LinksTo(variants []string) bool {
	for _, l := range c.Linkages {
		for _, v := range variants {
			if SameContent(l, v) {
				return true
			}
		}
	}
	return false
}

// AnyAuthoredBy reports whether one of casts was written by actor.
func AnyAuthoredBy(casts []Cast, actor ActorID) bool {
	for _, c := range casts {
		if c.AuthoredBy(actor) {
			return true
		}
	}
	return false
}

func containsActor(ids []ActorID, actor ActorID) bool {
	for _, id := range ids {
		if id == actor {
			return true
		}
	}
	return false
}
