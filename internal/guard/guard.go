// Package guard hosts the process-wide registry that keeps concurrently
// running strategy instances from stacking duplicate or conflicting entries
// on one underlying. A single Registry is constructed at startup and injected
// into every evaluator so ownership is visible rather than implicit.
package guard

import (
	"sync"
	"time"

	"tradepilot-go/internal/market"
)

// DefaultCooldown is the minimum spacing between orders on one underlying.
const DefaultCooldown = 120 * time.Second

// retention bounds how long stale order stamps are kept before lazy pruning.
const retention = time.Hour

// PositionView exposes the open-position book the guard consults for
// same-direction conflicts. The engine's shared book implements it.
type PositionView interface {
	// OpenDirection returns the direction of an open position on the
	// underlying root, if any.
	OpenDirection(root string) (market.Direction, bool)
}

// Admission is the guard's verdict for a proposed entry.
type Admission int

const (
	// AdmissionClear lets the candidate continue.
	AdmissionClear Admission = iota
	// AdmissionReversal lets an opposite-direction candidate continue past
	// the cooldown to close/flip the existing position.
	AdmissionReversal
	// AdmissionBlockedOpen rejects: a same-direction position is already open.
	AdmissionBlockedOpen
	// AdmissionBlockedCooldown rejects: an order on this root is too recent.
	AdmissionBlockedCooldown
)

// Registry maps underlying roots to their most recent order time. Writes are
// append/overwrite; reads compare against the cooldown window. Entries older
// than an hour are pruned opportunistically on write.
type Registry struct {
	mu        sync.RWMutex
	lastOrder map[string]time.Time
	now       func() time.Time
}

// Option configures registry construction.
type Option func(*Registry)

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRegistry builds an empty shared registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		lastOrder: make(map[string]time.Time),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// MarkOrder records that an order was just placed on the underlying root.
func (r *Registry) MarkOrder(root string) {
	if root == "" {
		return
	}
	now := r.now()
	r.mu.Lock()
	r.lastOrder[root] = now
	for key, ts := range r.lastOrder {
		if now.Sub(ts) > retention {
			delete(r.lastOrder, key)
		}
	}
	r.mu.Unlock()
}

// LastOrder returns the most recent order stamp for the root.
func (r *Registry) LastOrder(root string) (time.Time, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ts, ok := r.lastOrder[root]
	return ts, ok
}

// CoolingDown reports whether an order on the root happened inside window.
func (r *Registry) CoolingDown(root string, window time.Duration) bool {
	if window <= 0 {
		window = DefaultCooldown
	}
	ts, ok := r.LastOrder(root)
	if !ok {
		return false
	}
	return r.now().Sub(ts) < window
}

// Admit combines the open-position conflict check with the order cooldown.
// An opposite-direction candidate against an open position is a reversal and
// bypasses the cooldown.
func (r *Registry) Admit(root string, dir market.Direction, window time.Duration, positions PositionView) Admission {
	if positions != nil {
		if open, ok := positions.OpenDirection(root); ok {
			if open == dir {
				return AdmissionBlockedOpen
			}
			return AdmissionReversal
		}
	}
	if r.CoolingDown(root, window) {
		return AdmissionBlockedCooldown
	}
	return AdmissionClear
}

// Size reports the number of retained order stamps.
func (r *Registry) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.lastOrder)
}
