// Package engine runs the per-symbol evaluation loops and wires the shared
// guard, caches, and broker into one decision path.
package engine

import (
	"strings"

	"tradepilot-go/internal/market"
	"tradepilot-go/internal/signal"
)

// Tactic turns closed bars into entry candidates. Bars arrive oldest first;
// implementations must be safe for concurrent use across symbol loops.
type Tactic interface {
	OnBar(symbol string, bars []market.Bar) *signal.Candidate
	Name() string
}

// Params expresses tunable knobs required by tactic constructors.
type Params struct {
	LookbackBars int
	Threshold    float64
	MinVolume    float64
}

// Build returns a tactic implementation matching the configured mode.
func Build(mode string, params Params) Tactic {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", "momentum", "trend", "trend_follow":
		return NewMomentum(params.Threshold, params.LookbackBars, params.MinVolume)
	default:
		return NewMomentum(params.Threshold, params.LookbackBars, params.MinVolume)
	}
}
