// Package evaluate runs candidate signals through the sequential filter
// pipeline: freshness, duplicate/cooldown guard, relative strength,
// multi-timeframe alignment, and the adaptive confidence threshold. Any
// filter may reject with a machine-readable reason; the first hit wins.
package evaluate

import (
	"math"
	"time"

	"github.com/rs/zerolog"

	"tradepilot-go/internal/guard"
	"tradepilot-go/internal/market"
	"tradepilot-go/internal/signal"
	"tradepilot-go/internal/volatility"
)

// Config carries the evaluator knobs; zero values fall back to defaults.
type Config struct {
	Validity       time.Duration
	Cooldown       time.Duration
	RSMinMargin    float64 // minimum relative-strength agreement, fraction
	RSStrongFactor float64 // multiples of the minimum that count as strong
	ShortHorizon   int
	MediumHorizon  int
	LongHorizon    int
	OvertakeFactor float64 // short momentum multiple that overrides conflict
	MeanRevSigma   float64 // stretch that marks a mean-reversion setup
	BaseThreshold  float64
	ThresholdFloor float64
	ThresholdCeil  float64
	Weights        RuleWeights
}

func (c Config) withDefaults() Config {
	if c.Validity <= 0 {
		c.Validity = signal.DefaultValidity
	}
	if c.Cooldown <= 0 {
		c.Cooldown = guard.DefaultCooldown
	}
	if c.RSMinMargin <= 0 {
		c.RSMinMargin = 0.001
	}
	if c.RSStrongFactor <= 0 {
		c.RSStrongFactor = 3.0
	}
	if c.ShortHorizon <= 0 {
		c.ShortHorizon = 5
	}
	if c.MediumHorizon <= 0 {
		c.MediumHorizon = 15
	}
	if c.LongHorizon <= 0 {
		c.LongHorizon = 30
	}
	if c.OvertakeFactor <= 0 {
		c.OvertakeFactor = 2.0
	}
	if c.MeanRevSigma <= 0 {
		c.MeanRevSigma = 2.0
	}
	if c.BaseThreshold <= 0 {
		c.BaseThreshold = 0.8 * signal.MaxConfidence
	}
	if c.ThresholdFloor <= 0 {
		c.ThresholdFloor = 7.0
	}
	if c.ThresholdCeil <= 0 {
		c.ThresholdCeil = 9.0
	}
	c.Weights = c.Weights.withDefaults()
	return c
}

// Input bundles the per-symbol market context one evaluation reads.
type Input struct {
	Root            string // underlying root for guard checks
	Bars            []market.Bar
	SymbolChange    float64 // session fractional change of the instrument
	BenchmarkChange float64 // session fractional change of the benchmark
	Volatility      volatility.Estimate
}

// Evaluator decides accept or reject for each candidate exactly once. The
// guard registry and position view are shared across all strategy instances
// and injected at construction.
type Evaluator struct {
	cfg       Config
	registry  *guard.Registry
	positions guard.PositionView
	deferred  *signal.DeferredList
	rules     []Rule
	log       zerolog.Logger
	now       func() time.Time
}

// New builds an evaluator around the shared guard state.
func New(cfg Config, registry *guard.Registry, positions guard.PositionView, deferred *signal.DeferredList, log zerolog.Logger) *Evaluator {
	cfg = cfg.withDefaults()
	return &Evaluator{
		cfg:       cfg,
		registry:  registry,
		positions: positions,
		deferred:  deferred,
		rules:     thresholdRules(cfg.Weights, cfg.MeanRevSigma, cfg.RSStrongFactor),
		log:       log,
		now:       time.Now,
	}
}

// Reversal reports whether the candidate opposes an open position on root.
func (e *Evaluator) Reversal(c signal.Candidate, root string) bool {
	if c.Reversal {
		return true
	}
	if e.positions == nil {
		return false
	}
	open, ok := e.positions.OpenDirection(root)
	return ok && open == c.Direction.Opposite()
}

// Evaluate runs the filter pipeline and returns the single verdict.
func (e *Evaluator) Evaluate(c signal.Candidate, in Input) signal.Outcome {
	if err := c.Validate(); err != nil {
		e.log.Warn().Err(err).Str("symbol", c.Symbol).Msg("malformed candidate rejected")
		return signal.Reject(c, signal.ReasonInvalid, err.Error())
	}

	now := e.now()
	if c.Expired(now, e.cfg.Validity) {
		if e.deferred != nil {
			e.deferred.Add(c)
		}
		e.log.Debug().Str("symbol", c.Symbol).Dur("age", c.Age(now)).Msg("candidate expired, deferred")
		return signal.Reject(c, signal.ReasonExpired)
	}

	reversal := false
	switch e.registry.Admit(in.Root, c.Direction, e.cfg.Cooldown, e.positions) {
	case guard.AdmissionBlockedOpen:
		return signal.Reject(c, signal.ReasonOpenPosition)
	case guard.AdmissionBlockedCooldown:
		if c.Reversal {
			// flagged reversals skip the order cooldown too
			reversal = true
			break
		}
		return signal.Reject(c, signal.ReasonCooldown)
	case guard.AdmissionReversal:
		reversal = true
	}

	rsMargin := c.Direction.Sign() * (in.SymbolChange - in.BenchmarkChange)
	if rsMargin < e.cfg.RSMinMargin {
		return signal.Reject(c, signal.ReasonRelativeStrength)
	}

	readings := [3]Reading{
		horizonRead(in.Bars, e.cfg.ShortHorizon),
		horizonRead(in.Bars, e.cfg.MediumHorizon),
		horizonRead(in.Bars, e.cfg.LongHorizon),
	}
	align := alignmentScore(c.Direction, readings)
	counterTrend := false
	if align == 0 && readings[2].Dir == -int(c.Direction.Sign()) {
		overtake := math.Abs(readings[0].Momentum) >= e.cfg.OvertakeFactor*math.Abs(readings[2].Momentum) &&
			signOf(readings[0].Momentum) == int(c.Direction.Sign())
		if !reversal && !overtake {
			return signal.Reject(c, signal.ReasonTrendConflict)
		}
		counterTrend = true
	}

	rc := RuleContext{
		Alignment:            align,
		CounterTrendAdmitted: counterTrend,
		Stretch:              sigmaStretch(in.Bars, e.cfg.ShortHorizon, c.Direction),
		RSMargin:             rsMargin,
		RSMinMargin:          e.cfg.RSMinMargin,
		Regime:               in.Volatility.Regime,
	}
	threshold, notes := applyRules(e.cfg.BaseThreshold, e.cfg.ThresholdFloor, e.cfg.ThresholdCeil, e.rules, rc)

	scaled := math.Min(c.Confidence*multiplier(align), signal.MaxConfidence)
	if scaled < threshold {
		out := signal.Reject(c, signal.ReasonBelowThreshold, notes...)
		out.Confidence = scaled
		out.Threshold = threshold
		out.Alignment = align
		return out
	}

	e.log.Info().
		Str("symbol", c.Symbol).
		Float64("confidence", scaled).
		Float64("threshold", threshold).
		Int("alignment", align).
		Bool("reversal", reversal).
		Msg("candidate accepted")
	return signal.Accept(c, scaled, threshold, align, notes)
}

// multiplier maps the alignment score onto the confidence scale factor.
func multiplier(align int) float64 {
	switch align {
	case 3:
		return 1.5
	case 2:
		return 1.2
	case 1:
		return 0.8
	default:
		return 0.5
	}
}
