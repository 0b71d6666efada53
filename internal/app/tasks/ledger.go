package tasks

import (
	"sync"
	"time"
)

// Ledger is the write-once set of task keys confirmed complete during this
// process lifetime. It is consulted before any reload rebuilds a record, so a
// confirmed task can never be downgraded by staler upstream data.
type Ledger struct {
	mu        sync.RWMutex
	confirmed map[string]time.Time
}

// NewLedger creates an empty Ledger.
func NewLedger() *Ledger {
	return &Ledger{confirmed: make(map[string]time.Time)}
}

// Confirm adds key to the ledger. It reports false when key was already
// present, in which case the original confirmation time is kept.
func (l *Ledger) Confirm(key string, at time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.confirmed[key]; ok {
		return false
	}
	l.confirmed[key] = at
	return true
}

// Confirmed reports whether key is in the ledger and when it was added.
func (l *Ledger) Confirmed(key string) (time.Time, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	at, ok := l.confirmed[key]
	return at, ok
}

// Len returns the number of confirmed keys.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.confirmed)
}
