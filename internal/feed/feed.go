// Package feed hosts market-data providers. Each provider pushes quotes onto
// a channel until its context is cancelled; the engine owns routing.
package feed

import (
	"context"
	"math"
	"sort"
	"strings"
	"time"

	"tradepilot-go/internal/market"
	"tradepilot-go/internal/metrics"
)

// Provider is a pluggable quote stream implementation.
type Provider interface {
	// Run pushes quotes onto out until ctx is cancelled.
	Run(ctx context.Context, out chan<- market.Quote) error
	Name() string
}

const (
	// ProviderStub emits deterministic synthetic quotes (tests/offline work).
	ProviderStub = "stub"
	// ProviderWebsocket streams quotes from a venue websocket.
	ProviderWebsocket = "websocket"
)

// dedupe normalizes a symbol list: trimmed, uppercased, sorted, unique.
func dedupe(symbols []string) []string {
	unique := make(map[string]struct{}, len(symbols))
	for _, sym := range symbols {
		sym = strings.ToUpper(strings.TrimSpace(sym))
		if sym == "" {
			continue
		}
		unique[sym] = struct{}{}
	}
	out := make([]string, 0, len(unique))
	for sym := range unique {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

// Stub emits a deterministic synthetic walk per symbol: a slow drift with a
// superimposed wave, enough texture for trend and volatility code to chew on.
type Stub struct {
	symbols  []string
	interval time.Duration
	start    float64
}

// NewStub builds a stub provider over the symbol list.
func NewStub(symbols []string, interval time.Duration) *Stub {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	return &Stub{symbols: dedupe(symbols), interval: interval, start: 100.0}
}

// Name identifies the provider in logs.
func (s *Stub) Name() string { return ProviderStub }

// Run pushes synthetic quotes until the context is cancelled.
func (s *Stub) Run(ctx context.Context, out chan<- market.Quote) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	step := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ts := <-ticker.C:
			step++
			for i, sym := range s.symbols {
				base := s.start * float64(i+1)
				px := base + 0.05*float64(step) + 0.6*math.Sin(float64(step)/7)
				q := market.Quote{
					Symbol: sym,
					Last:   px,
					Bid:    px - 0.05,
					Ask:    px + 0.05,
					Volume: 100,
					Ts:     ts,
				}
				select {
				case out <- q:
					metrics.QuotesTotal.WithLabelValues(sym).Inc()
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
	}
}
