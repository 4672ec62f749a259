package signal

import (
	"sync"
	"time"
)

// DeferredEntry is a candidate that aged out before execution, kept for
// review rather than force-executed.
type DeferredEntry struct {
	Candidate  Candidate
	DeferredAt time.Time
}

// DeferredList collects expired candidates as missed opportunities. Bounded;
// the oldest entries are dropped once capacity is reached.
type DeferredList struct {
	mu      sync.Mutex
	cap     int
	entries []DeferredEntry
}

// NewDeferredList builds a list retaining at most capacity entries.
func NewDeferredList(capacity int) *DeferredList {
	if capacity <= 0 {
		capacity = 256
	}
	return &DeferredList{cap: capacity}
}

// Add records an expired candidate.
func (d *DeferredList) Add(c Candidate) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.entries = append(d.entries, DeferredEntry{Candidate: c, DeferredAt: time.Now()})
	if len(d.entries) > d.cap {
		d.entries = d.entries[len(d.entries)-d.cap:]
	}
}

// Snapshot returns a copy of the deferred entries, oldest first.
func (d *DeferredList) Snapshot() []DeferredEntry {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]DeferredEntry, len(d.entries))
	copy(out, d.entries)
	return out
}

// Len reports how many deferred candidates are retained.
func (d *DeferredList) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.entries)
}
