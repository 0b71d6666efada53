package engagement

import "fmt"

// Fact is the unit of truth the engine produces: did Actor perform Action on
// Content. Once observed true it stays true for the life of the process.
type Fact struct {
	Content ContentID
	Actor   ActorID
	Action  ActionKind
}

// Key returns a stable map key for the fact.
func (f Fact) Key() string {
	return fmt.Sprintf("%s|%d|%s", f.Content, f.Actor, f.Action)
}
