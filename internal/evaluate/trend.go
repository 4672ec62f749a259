package evaluate

import (
	"math"

	"tradepilot-go/internal/market"
)

// Reading is one horizon's trend verdict: direction by majority vote of
// moving-average slope, momentum, and price-vs-average position, plus the raw
// momentum retained for overtake and mean-reversion checks.
type Reading struct {
	Dir      int     // +1 up, -1 down, 0 flat/insufficient data
	Momentum float64 // net close-to-close change over the horizon
}

// horizonRead votes a direction for the trailing n-bar horizon. The slope
// vote needs 2n bars of history; with less it abstains.
func horizonRead(bars []market.Bar, n int) Reading {
	if n <= 0 || len(bars) < n+1 {
		return Reading{}
	}
	last := bars[len(bars)-1].Close
	momentum := last - bars[len(bars)-1-n].Close

	votes := signOf(momentum)
	ma := sma(bars, n)
	votes += signOf(last - ma)
	if len(bars) >= 2*n {
		prev := sma(bars[:len(bars)-n], n)
		votes += signOf(ma - prev)
	}

	return Reading{Dir: signOf(float64(votes)), Momentum: momentum}
}

// alignmentScore counts horizons agreeing with the candidate direction.
func alignmentScore(dir market.Direction, readings [3]Reading) int {
	want := int(dir.Sign())
	score := 0
	for _, r := range readings {
		if r.Dir == want {
			score++
		}
	}
	return score
}

// sma averages the closes of the last n bars.
func sma(bars []market.Bar, n int) float64 {
	if n <= 0 || len(bars) < n {
		return 0
	}
	var sum float64
	for _, b := range bars[len(bars)-n:] {
		sum += b.Close
	}
	return sum / float64(n)
}

// sigmaStretch measures how far the last close sits from the n-bar average
// in standard deviations, signed relative to the trade direction: negative
// values mean price is stretched against the direction (a mean-reversion
// setup in its favor).
func sigmaStretch(bars []market.Bar, n int, dir market.Direction) float64 {
	if n < 2 || len(bars) < n {
		return 0
	}
	mean := sma(bars, n)
	var variance float64
	for _, b := range bars[len(bars)-n:] {
		variance += (b.Close - mean) * (b.Close - mean)
	}
	std := math.Sqrt(variance / float64(n-1))
	if std <= 0 {
		return 0
	}
	last := bars[len(bars)-1].Close
	return dir.Sign() * (last - mean) / std
}

func signOf(v float64) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}
