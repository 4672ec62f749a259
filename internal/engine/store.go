package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"tradepilot-go/internal/market"
)

// ErrNoHistory marks a read for a symbol the store has never seen.
var ErrNoHistory = errors.New("no history for symbol")

// defaultCapacity is one full session of minute bars.
const defaultCapacity = 390

// Store is the engine's in-memory bar history: one rolling series per symbol
// plus the previous session's OHLC. It backs the estimator and level
// calculator reads and rolls the session accumulator over calendar changes.
type Store struct {
	mu       sync.RWMutex
	clock    market.SessionClock
	capacity int
	series   map[string]*market.Series
	day      map[string]market.Bar
	prior    map[string]market.Bar
}

// NewStore builds an empty store for the exchange calendar.
func NewStore(clock market.SessionClock, capacity int) *Store {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &Store{
		clock:    clock,
		capacity: capacity,
		series:   make(map[string]*market.Series),
		day:      make(map[string]market.Bar),
		prior:    make(map[string]market.Bar),
	}
}

// SeedPrior installs a prior-session bar fetched at startup, before any live
// bar has closed.
func (s *Store) SeedPrior(symbol string, b market.Bar) {
	if symbol == "" {
		return
	}
	s.mu.Lock()
	s.prior[symbol] = b
	s.mu.Unlock()
}

// Append folds a closed bar into the symbol's series and merges it into the
// session accumulator. A calendar change rolls the accumulated session into
// the prior slot.
func (s *Store) Append(symbol string, b market.Bar) {
	if symbol == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	sr := s.series[symbol]
	if sr == nil {
		sr = market.NewSeries(s.capacity)
		s.series[symbol] = sr
	}
	sr.Append(b)

	cur, ok := s.day[symbol]
	if !ok || cur.Ts.IsZero() {
		s.day[symbol] = b
		return
	}
	if !s.clock.SameTradingDay(cur.Ts, b.Ts) {
		s.prior[symbol] = cur
		s.day[symbol] = b
		return
	}
	if b.High > cur.High {
		cur.High = b.High
	}
	if b.Low < cur.Low {
		cur.Low = b.Low
	}
	cur.Close = b.Close
	cur.Volume += b.Volume
	s.day[symbol] = cur
}

// RecentBars returns up to n most recent closed bars, oldest first.
func (s *Store) RecentBars(ctx context.Context, symbol string, n int) ([]market.Bar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	sr := s.series[symbol]
	if sr == nil || sr.Len() == 0 {
		return nil, fmt.Errorf("%s: %w", symbol, ErrNoHistory)
	}
	return sr.Tail(n), nil
}

// PriorSession returns the previous trading day's OHLC as one bar.
func (s *Store) PriorSession(ctx context.Context, symbol string) (market.Bar, error) {
	if err := ctx.Err(); err != nil {
		return market.Bar{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.prior[symbol]
	if !ok {
		return market.Bar{}, fmt.Errorf("%s: %w", symbol, ErrNoHistory)
	}
	return b, nil
}

// SessionOpen returns the first traded price of the current session.
func (s *Store) SessionOpen(symbol string) (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.day[symbol]
	if !ok || b.Open <= 0 {
		return 0, false
	}
	return b.Open, true
}
