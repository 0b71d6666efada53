package engagement

import (
	"fmt"
	"strconv"
	"strings"
)

// ActorID identifies a user on the remote network. It is supplied by the
// caller and never derived here.
type ActorID int64

// Valid reports whether the id is positive.
func (a ActorID) Valid() bool { return a > 0 }

// String returns the decimal form.
func (a ActorID) String() string { return strconv.FormatInt(int64(a), 10) }

// ParseActorID parses a decimal actor id and rejects non-positive values.
func ParseActorID(s string) (ActorID, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidActor, s)
	}
	if n <= 0 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidActor, n)
	}
	return ActorID(n), nil
}
