// Package volatility blends a true-range average with a GARCH(1,1)-style
// recursive variance into one per-instrument estimate, classified into a
// coarse regime used by downstream threshold and target logic.
package volatility

import (
	"math"
	"time"

	"github.com/rs/zerolog"

	"tradepilot-go/internal/cache"
	"tradepilot-go/internal/market"
)

// Regime classifies recent volatility character relative to price.
type Regime string

const (
	// RegimeLow marks blended volatility under 1% of price.
	RegimeLow Regime = "LOW"
	// RegimeNormal marks blended volatility between 1% and 3% of price.
	RegimeNormal Regime = "NORMAL"
	// RegimeHigh marks blended volatility above 3% of price.
	RegimeHigh Regime = "HIGH"
)

// Estimate is the per-instrument output consumed by levels and evaluation.
type Estimate struct {
	Symbol     string
	TrueRange  float64 // trailing true-range average, price scale
	Garch      float64 // GARCH(1,1) sigma mapped to price scale
	Blended    float64 // 70/30 garch/true-range blend, clamped
	Regime     Regime
	Degraded   bool // conservative fallback, not computed from data
	ComputedAt time.Time
}

// Config carries the estimator knobs; zero values fall back to defaults.
type Config struct {
	Window      int     // trailing true-range window
	Omega       float64 // GARCH constant term
	Alpha       float64 // weight on last squared return
	Beta        float64 // weight on last variance
	GarchWeight float64 // blend share for the GARCH term
	MinPct      float64 // clamp floor as fraction of price
	MaxPct      float64 // clamp ceiling as fraction of price
	FallbackPct float64 // no-data default as fraction of price
	TTL         time.Duration
}

func (c Config) withDefaults() Config {
	if c.Window <= 0 {
		c.Window = 14
	}
	if c.Omega <= 0 {
		c.Omega = 1e-6
	}
	if c.Alpha <= 0 {
		c.Alpha = 0.12
	}
	if c.Beta <= 0 {
		c.Beta = 0.85
	}
	if c.GarchWeight <= 0 || c.GarchWeight >= 1 {
		c.GarchWeight = 0.7
	}
	if c.MinPct <= 0 {
		c.MinPct = 0.003
	}
	if c.MaxPct <= 0 {
		c.MaxPct = 0.08
	}
	if c.FallbackPct <= 0 {
		c.FallbackPct = 0.02
	}
	if c.TTL <= 0 {
		c.TTL = 30 * time.Minute
	}
	return c
}

// minBlendBars is the history needed before the GARCH term participates.
const minBlendBars = 10

// Estimator computes and caches blended volatility per instrument.
type Estimator struct {
	cfg   Config
	log   zerolog.Logger
	cache *cache.Cache[string, Estimate]
	now   func() time.Time
}

// NewEstimator builds an estimator with a rolling-TTL cache.
func NewEstimator(cfg Config, log zerolog.Logger) *Estimator {
	cfg = cfg.withDefaults()
	return &Estimator{
		cfg:   cfg,
		log:   log,
		cache: cache.New[string, Estimate](cache.TTL(cfg.TTL)),
		now:   time.Now,
	}
}

// For returns the cached estimate for symbol, recomputing from bars when the
// cached value has aged out.
func (e *Estimator) For(symbol string, bars []market.Bar) Estimate {
	est, _ := e.cache.GetOrCompute(symbol, func() (Estimate, error) {
		return e.Compute(symbol, bars), nil
	})
	return est
}

// Invalidate drops the cached estimate so the next read recomputes.
func (e *Estimator) Invalidate(symbol string) { e.cache.Invalidate(symbol) }

// Compute derives a fresh estimate from the supplied bars (oldest first).
// Fewer than two bars degrades to a conservative default; fewer than ten
// skips the GARCH term and uses the true-range average alone.
func (e *Estimator) Compute(symbol string, bars []market.Bar) Estimate {
	now := e.now()
	if len(bars) < 2 {
		price := lastClose(bars)
		est := Estimate{Symbol: symbol, Degraded: true, ComputedAt: now}
		if price > 0 {
			est.Blended = price * e.cfg.FallbackPct
			est.Regime = e.classify(est.Blended, price)
		} else {
			est.Regime = RegimeNormal
		}
		e.log.Debug().Str("symbol", symbol).Int("bars", len(bars)).Msg("volatility fallback: insufficient history")
		return est
	}

	price := bars[len(bars)-1].Close
	tr := trueRangeAverage(bars, e.cfg.Window)
	est := Estimate{Symbol: symbol, TrueRange: tr, ComputedAt: now}

	if len(bars) >= minBlendBars {
		est.Garch = e.garchSigma(bars) * price
		est.Blended = e.cfg.GarchWeight*est.Garch + (1-e.cfg.GarchWeight)*tr
	} else {
		est.Blended = tr
	}
	est.Blended = clamp(est.Blended, price*e.cfg.MinPct, price*e.cfg.MaxPct)
	est.Regime = e.classify(est.Blended, price)
	return est
}

func (e *Estimator) classify(blended, price float64) Regime {
	if price <= 0 {
		return RegimeNormal
	}
	pct := blended / price
	switch {
	case pct < 0.01:
		return RegimeLow
	case pct > 0.03:
		return RegimeHigh
	default:
		return RegimeNormal
	}
}

// trueRangeAverage is the mean of max(H-L, |H-prevC|, |L-prevC|) over up to
// window trailing bars. The first bar only seeds prevClose.
func trueRangeAverage(bars []market.Bar, window int) float64 {
	start := 1
	if len(bars)-1 > window {
		start = len(bars) - window
	}
	var sum float64
	var n int
	for i := start; i < len(bars); i++ {
		prev := bars[i-1].Close
		b := bars[i]
		tr := math.Max(b.High-b.Low, math.Max(math.Abs(b.High-prev), math.Abs(b.Low-prev)))
		sum += tr
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// garchSigma runs the GARCH(1,1) recursion over close-to-close returns,
// seeded with the sample variance, and returns the terminal sigma.
func (e *Estimator) garchSigma(bars []market.Bar) float64 {
	returns := make([]float64, 0, len(bars)-1)
	for i := 1; i < len(bars); i++ {
		prev := bars[i-1].Close
		if prev <= 0 {
			continue
		}
		returns = append(returns, (bars[i].Close-prev)/prev)
	}
	if len(returns) < 2 {
		return 0
	}

	var mean float64
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))
	var variance float64
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns) - 1)

	sigma2 := variance
	for _, r := range returns {
		sigma2 = e.cfg.Omega + e.cfg.Alpha*r*r + e.cfg.Beta*sigma2
	}
	return math.Sqrt(sigma2)
}

func lastClose(bars []market.Bar) float64 {
	if len(bars) == 0 {
		return 0
	}
	return bars[len(bars)-1].Close
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
