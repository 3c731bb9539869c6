package mcp

import (
	"sync"
	"time"
)

// explainTracker records recent jobwatch_explain calls so handleOverride can
// tell when a caller pins a decision it never looked at and nudge them.
//
// Keyed on (userID, dedupeKey) with a fixed window. In-memory and per
// process; the nudge is advisory.
type explainTracker struct {
	mu     sync.Mutex
	seen   map[explainKey]time.Time
	window time.Duration
	now    func() time.Time
}

type explainKey struct {
	userID    string
	dedupeKey string
}

func newExplainTracker(window time.Duration) *explainTracker {
	return &explainTracker{
		seen:   make(map[explainKey]time.Time),
		window: window,
		now:    time.Now,
	}
}

// Record notes that userID looked at the explanation of dedupeKey.
func (t *explainTracker) Record(userID, dedupeKey string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.seen[explainKey{userID, dedupeKey}] = t.now()

	if len(t.seen) > 1000 {
		t.purgeStale()
	}
}

// WasExplained reports whether userID explained dedupeKey within the window.
func (t *explainTracker) WasExplained(userID, dedupeKey string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	k := explainKey{userID, dedupeKey}
	ts, ok := t.seen[k]
	if !ok {
		return false
	}
	if t.now().Sub(ts) > t.window {
		delete(t.seen, k)
		return false
	}
	return true
}

// purgeStale removes entries older than the window. Must be called with mu held.
func (t *explainTracker) purgeStale() {
	now := t.now()
	for k, ts := range t.seen {
		if now.Sub(ts) > t.window {
			delete(t.seen, k)
		}
	}
}
