package engine

import (
	"math"

	"tradepilot-go/internal/market"
	"tradepilot-go/internal/signal"
)

// Momentum emits candidates when the close-to-close move over a lookback of
// bars exceeds a threshold alongside minimum traded value. It is stateless:
// the engine's bar store carries the history.
type Momentum struct {
	threshold float64
	lookback  int
	minVolume float64
}

// NewMomentum builds a momentum tactic using percent change and volume filters.
func NewMomentum(threshold float64, lookbackBars int, minVolume float64) *Momentum {
	if threshold <= 0 {
		threshold = 0.004
	}
	if lookbackBars <= 0 {
		lookbackBars = 5
	}
	return &Momentum{
		threshold: threshold,
		lookback:  lookbackBars,
		minVolume: math.Max(0, minVolume),
	}
}

// Name returns the configured identifier for logging.
func (m *Momentum) Name() string { return "Momentum" }

// OnBar evaluates momentum and volume to decide whether to emit a candidate.
func (m *Momentum) OnBar(symbol string, bars []market.Bar) *signal.Candidate {
	if symbol == "" || len(bars) < m.lookback+1 {
		return nil
	}

	window := bars[len(bars)-m.lookback-1:]
	anchor := window[0].Close
	last := window[len(window)-1].Close
	if anchor <= 0 || last <= 0 {
		return nil
	}

	change := (last - anchor) / anchor
	if math.Abs(change) < m.threshold {
		return nil
	}
	if m.minVolume > 0 {
		var notional float64
		for _, b := range window[1:] {
			notional += b.Volume * b.Close
		}
		if notional < m.minVolume {
			return nil
		}
	}

	dir := market.Long
	if change < 0 {
		dir = market.Short
	}
	c := signal.NewCandidate(symbol, dir, m.confidence(change), last, m.Name())
	return &c
}

// confidence maps the momentum ratio over threshold onto the 0..10 scale:
// 6.0 right at the threshold, two points per additional full multiple.
func (m *Momentum) confidence(change float64) float64 {
	ratio := math.Abs(change) / m.threshold
	return math.Min(signal.MaxConfidence, 6+2*(ratio-1))
}
