package mcp

import (
	"fmt"
	"testing"
	"time"
)

// fakeClock drives an explainTracker without sleeping.
type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time         { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newClockedTracker(window time.Duration) (*explainTracker, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	tracker := newExplainTracker(window)
	tracker.now = clock.now
	return tracker, clock
}

func TestExplainTracker_RecordAndCheck(t *testing.T) {
	tracker, _ := newClockedTracker(time.Hour)

	if tracker.WasExplained("op", "v1:a") {
		t.Fatal("expected WasExplained to return false before any Record")
	}
	tracker.Record("op", "v1:a")
	if !tracker.WasExplained("op", "v1:a") {
		t.Fatal("expected WasExplained to return true after Record")
	}
}

func TestExplainTracker_DifferentKeysAndUsers(t *testing.T) {
	tracker, _ := newClockedTracker(time.Hour)
	tracker.Record("op", "v1:a")

	if tracker.WasExplained("op", "v1:b") {
		t.Fatal("expected WasExplained to return false for another key")
	}
	if tracker.WasExplained("other", "v1:a") {
		t.Fatal("expected WasExplained to return false for another user")
	}
}

func TestExplainTracker_Expiry(t *testing.T) {
	tracker, clock := newClockedTracker(time.Minute)
	tracker.Record("op", "v1:a")
	clock.advance(2 * time.Minute)

	if tracker.WasExplained("op", "v1:a") {
		t.Fatal("expected WasExplained to return false after window expired")
	}
	tracker.mu.Lock()
	defer tracker.mu.Unlock()
	if len(tracker.seen) != 0 {
		t.Fatalf("expired entry should be dropped on lookup, have %d", len(tracker.seen))
	}
}

func TestExplainTracker_RefreshExtendsWindow(t *testing.T) {
	tracker, clock := newClockedTracker(time.Minute)
	tracker.Record("op", "v1:a")
	clock.advance(40 * time.Second)
	tracker.Record("op", "v1:a")
	clock.advance(40 * time.Second)

	if !tracker.WasExplained("op", "v1:a") {
		t.Fatal("expected WasExplained to return true after refresh")
	}
}

func TestExplainTracker_PurgeStale(t *testing.T) {
	tracker, clock := newClockedTracker(time.Minute)
	for i := range 1100 {
		tracker.Record("op", fmt.Sprintf("v1:%d", i))
	}
	clock.advance(time.Hour)

	// The next record crosses the size threshold and purges.
	tracker.Record("op", "v1:fresh")

	tracker.mu.Lock()
	count := len(tracker.seen)
	tracker.mu.Unlock()
	if count != 1 {
		t.Fatalf("expected only the fresh entry to survive, got %d entries", count)
	}
	if !tracker.WasExplained("op", "v1:fresh") {
		t.Fatal("expected fresh entry to survive purge")
	}
}
