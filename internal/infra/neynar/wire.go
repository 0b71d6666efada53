package neynar

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/ahrav/castverify/internal/domain/engagement"
)

// flexInt decodes an id that the API sometimes sends as a number and
// sometimes as a numeric string. Anything else decodes to zero.
type flexInt int64

func (f *flexInt) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = 0
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			*f = 0
			return nil
		}
		*f = flexInt(n)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		*f = 0
		return nil
	}
	if i, err := n.Int64(); err == nil {
		*f = flexInt(i)
		return nil
	}
	if fl, err := n.Float64(); err == nil {
		*f = flexInt(int64(fl))
	}
	return nil
}

type hashRef struct {
	Hash string `json:"hash"`
}

type pfp struct {
	URL string `json:"url"`
}

type wireUser struct {
	FID      flexInt `json:"fid"`
	Username string  `json:"username"`
	PfpURL   string  `json:"pfp_url"`
	Pfp      *pfp    `json:"pfp"`
	Profile  *struct {
		Pfp *pfp `json:"pfp"`
	} `json:"profile"`
}

func (u *wireUser) avatar() string {
	switch {
	case u == nil:
		return ""
	case u.Pfp != nil && u.Pfp.URL != "":
		return u.Pfp.URL
	case u.PfpURL != "":
		return u.PfpURL
	case u.Profile != nil && u.Profile.Pfp != nil:
		return u.Profile.Pfp.URL
	default:
		return ""
	}
}

type wireReaction struct {
	FID        flexInt   `json:"fid"`
	ReactorFID flexInt   `json:"reactor_fid"`
	User       *wireUser `json:"user"`
	Author     *wireUser `json:"author"`
}

func (r wireReaction) actors() []engagement.ActorID {
	ids := []flexInt{r.FID, r.ReactorFID}
	if r.User != nil {
		ids = append(ids, r.User.FID)
	}
	if r.Author != nil {
		ids = append(ids, r.Author.FID)
	}
	return collectActors(ids...)
}

type viewerContext struct {
	Liked    *bool `json:"liked"`
	Recasted *bool `json:"recasted"`
}

type wireThread struct {
	Hash    string     `json:"hash"`
	Casts   []wireCast `json:"casts"`
	Replies []wireCast `json:"replies"`
}

// wireReplies accepts both `"replies": [...]` and `"replies": {"casts": [...]}`.
// A bare count object decodes to no casts.
type wireReplies struct {
	Casts []wireCast
}

func (w *wireReplies) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return nil
	}
	switch b[0] {
	case '[':
		return json.Unmarshal(b, &w.Casts)
	case '{':
		var obj struct {
			Casts []wireCast `json:"casts"`
		}
		if err := json.Unmarshal(b, &obj); err != nil {
			return err
		}
		w.Casts = obj.Casts
	}
	return nil
}

type wireCast struct {
	Hash         string         `json:"hash"`
	FID          flexInt        `json:"fid"`
	AuthorFID    flexInt        `json:"author_fid"`
	Author       *wireUser      `json:"author"`
	ParentHash   string         `json:"parent_hash"`
	Parent       *hashRef       `json:"parent"`
	ParentAuthor *hashRef       `json:"parent_author"`
	ThreadHash   string         `json:"thread_hash"`
	Thread       *wireThread    `json:"thread"`
	Viewer       *viewerContext `json:"viewer_context"`
	Reactions    *struct {
		Likes   []wireReaction `json:"likes"`
		Recasts []wireReaction `json:"recasts"`
	} `json:"reactions"`
	Replies       wireReplies `json:"replies"`
	DirectReplies []wireCast  `json:"direct_replies"`
}

func (w wireCast) toDomain() engagement.Cast {
	c := engagement.Cast{Hash: strings.ToLower(w.Hash)}

	authorIDs := []flexInt{w.FID, w.AuthorFID}
	if w.Author != nil {
		authorIDs = append([]flexInt{w.Author.FID}, authorIDs...)
	}
	c.Authors = collectActors(authorIDs...)

	linkages := []string{w.ParentHash, w.ThreadHash}
	if w.Parent != nil {
		linkages = append(linkages, w.Parent.Hash)
	}
	if w.ParentAuthor != nil {
		linkages = append(linkages, w.ParentAuthor.Hash)
	}
	if w.Thread != nil {
		linkages = append(linkages, w.Thread.Hash)
	}
	for _, l := range linkages {
		if l != "" {
			c.Linkages = append(c.Linkages, l)
		}
	}

	if w.Viewer != nil {
		c.ViewerLiked = w.Viewer.Liked
		c.ViewerRecasted = w.Viewer.Recasted
	}

	if w.Reactions != nil {
		for _, r := range w.Reactions.Likes {
			c.Likes = append(c.Likes, r.actors()...)
		}
		for _, r := range w.Reactions.Recasts {
			c.Recasts = append(c.Recasts, r.actors()...)
		}
	}

	var replies []wireCast
	replies = append(replies, w.Replies.Casts...)
	replies = append(replies, w.DirectReplies...)
	if w.Thread != nil {
		replies = append(replies, w.Thread.Casts...)
		replies = append(replies, w.Thread.Replies...)
	}
	c.Replies = castsToDomain(replies)

	return c
}

func castsToDomain(in []wireCast) []engagement.Cast {
	if len(in) == 0 {
		return nil
	}
	out := make([]engagement.Cast, 0, len(in))
	for _, w := range in {
		out = append(out, w.toDomain())
	}
	return out
}

func collectActors(ids ...flexInt) []engagement.ActorID {
	var out []engagement.ActorID
	for _, id := range ids {
		if id > 0 {
			out = append(out, engagement.ActorID(id))
		}
	}
	return out
}

// castEnvelope covers both `{"cast": ...}` and `{"result": {"cast": ...}}`.
type castEnvelope struct {
	Cast   *wireCast `json:"cast"`
	Result *struct {
		Cast *wireCast `json:"cast"`
	} `json:"result"`
}

func (e castEnvelope) cast() (wireCast, bool) {
	if e.Cast != nil {
		return *e.Cast, true
	}
	if e.Result != nil && e.Result.Cast != nil {
		return *e.Result.Cast, true
	}
	return wireCast{}, false
}

type castList struct {
	Casts   wireReplies `json:"casts"`
	Replies wireReplies `json:"replies"`
}

func (l castList) all() []wireCast {
	out := make([]wireCast, 0, len(l.Casts.Casts)+len(l.Replies.Casts))
	out = append(out, l.Casts.Casts...)
	return append(out, l.Replies.Casts...)
}

// listEnvelope covers the list shapes seen across endpoints and API versions:
// top level, under result, and under result.result.
type listEnvelope struct {
	castList
	Reactions []wireReaction `json:"reactions"`
	Result    *struct {
		castList
		Result *castList `json:"result"`
	} `json:"result"`
}

func (e listEnvelope) casts() []wireCast {
	out := e.castList.all()
	if e.Result != nil {
		out = append(out, e.Result.castList.all()...)
		if e.Result.Result != nil {
			out = append(out, e.Result.Result.all()...)
		}
	}
	return out
}

type userEnvelope struct {
	User   *wireUser `json:"user"`
	Result *struct {
		User *wireUser `json:"user"`
	} `json:"result"`
}

func (e userEnvelope) user() (*wireUser, bool) {
	if e.User != nil {
		return e.User, true
	}
	if e.Result != nil && e.Result.User != nil {
		return e.Result.User, true
	}
	return nil, false
}
