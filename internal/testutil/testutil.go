// Package testutil provides deterministic time and ID sources for tests.
package testutil

import (
	"sync"
	"time"
)

// Clock is a settable time source for tests.
//
// Gate TTL and ledger timestamps both take a now func; pinning it lets
// tests cross the five-minute validation window without sleeping.
//
// Thread-safety: all methods lock.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock creates a Clock pinned at the given instant.
func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

// Now returns the pinned instant. Pass c.Now as a now func.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Set pins the clock to a specific instant.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// FixedIDs returns predetermined IDs in order.
//
// This enables deterministic golden comparison of audit logs. Panics
// when exhausted: fail-fast for test misconfiguration (the test produced
// more entries than expected).
//
// Thread-safety: safe for concurrent use via internal mutex.
type FixedIDs struct {
	mu  sync.Mutex
	ids []string
	idx int
}

// NewFixedIDs creates a generator that returns ids in order.
func NewFixedIDs(ids ...string) *FixedIDs {
	return &FixedIDs{ids: ids}
}

// Generate returns the next predetermined ID.
func (g *FixedIDs) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.idx >= len(g.ids) {
		panic("FixedIDs: all ids exhausted")
	}
	id := g.ids[g.idx]
	g.idx++
	return id
}
