package evaluate

import (
	"fmt"

	"tradepilot-go/internal/volatility"
)

// RuleContext carries the facts each threshold rule inspects.
type RuleContext struct {
	Alignment            int
	CounterTrendAdmitted bool    // score 0 admitted as reversal or overtake
	Stretch              float64 // sigma stretch relative to direction
	RSMargin             float64 // relative-strength margin in direction
	RSMinMargin          float64
	Regime               volatility.Regime
}

// Rule is one named, independently testable threshold adjustment. Applies
// decides whether it fires; Adjust is the signed shift it contributes.
type Rule struct {
	Name    string
	Adjust  float64
	Applies func(RuleContext) bool
}

// RuleWeights preserves the scenario-table constants as configuration
// defaults; their provenance is not derivable, so they are knobs not code.
type RuleWeights struct {
	TrendFollowing float64 `yaml:"trend_following"`
	CounterTrend   float64 `yaml:"counter_trend"`
	MeanReversion  float64 `yaml:"mean_reversion"`
	StrongRS       float64 `yaml:"strong_relative_strength"`
	HighVolatility float64 `yaml:"high_volatility"`
	LowVolatility  float64 `yaml:"low_volatility"`
}

func (w RuleWeights) withDefaults() RuleWeights {
	if w.TrendFollowing == 0 {
		w.TrendFollowing = -1.5
	}
	if w.CounterTrend == 0 {
		w.CounterTrend = 1.5
	}
	if w.MeanReversion == 0 {
		w.MeanReversion = -0.8
	}
	if w.StrongRS == 0 {
		w.StrongRS = -0.5
	}
	if w.HighVolatility == 0 {
		w.HighVolatility = 0.5
	}
	if w.LowVolatility == 0 {
		w.LowVolatility = -0.2
	}
	return w
}

// thresholdRules builds the ordered rule list from the configured weights.
func thresholdRules(w RuleWeights, meanRevSigma, rsStrongFactor float64) []Rule {
	return []Rule{
		{
			Name:   "trend_following",
			Adjust: w.TrendFollowing,
			Applies: func(rc RuleContext) bool {
				return rc.Alignment == 3
			},
		},
		{
			Name:   "counter_trend",
			Adjust: w.CounterTrend,
			Applies: func(rc RuleContext) bool {
				return rc.CounterTrendAdmitted
			},
		},
		{
			Name:   "mean_reversion",
			Adjust: w.MeanReversion,
			Applies: func(rc RuleContext) bool {
				return rc.Stretch <= -meanRevSigma
			},
		},
		{
			Name:   "strong_relative_strength",
			Adjust: w.StrongRS,
			Applies: func(rc RuleContext) bool {
				return rc.RSMinMargin > 0 && rc.RSMargin >= rsStrongFactor*rc.RSMinMargin
			},
		},
		{
			Name:   "high_volatility",
			Adjust: w.HighVolatility,
			Applies: func(rc RuleContext) bool {
				return rc.Regime == volatility.RegimeHigh
			},
		},
		{
			Name:   "low_volatility",
			Adjust: w.LowVolatility,
			Applies: func(rc RuleContext) bool {
				return rc.Regime == volatility.RegimeLow
			},
		},
	}
}

// applyRules sums the firing adjustments onto base and clamps to the bounds.
// The notes name every rule that fired together with its contribution.
func applyRules(base, floor, ceil float64, rules []Rule, rc RuleContext) (float64, []string) {
	threshold := base
	var notes []string
	for _, rule := range rules {
		if !rule.Applies(rc) {
			continue
		}
		threshold += rule.Adjust
		notes = append(notes, fmt.Sprintf("%s %+.1f", rule.Name, rule.Adjust))
	}
	if threshold < floor {
		threshold = floor
	}
	if threshold > ceil {
		threshold = ceil
	}
	return threshold, notes
}
