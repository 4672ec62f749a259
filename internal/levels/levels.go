// Package levels derives stop-loss and target prices from entry, volatility,
// and once-daily pivot levels, and validates the resulting risk/reward.
package levels

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"tradepilot-go/internal/cache"
	"tradepilot-go/internal/market"
	"tradepilot-go/internal/volatility"
)

// ErrUnusable marks stop/target pairs that fail the risk/reward gate.
var ErrUnusable = errors.New("stop/target levels unusable")

// Pivots are the classic floor-trader levels from the prior session's OHLC.
type Pivots struct {
	P  float64
	R1 float64
	R2 float64
	S1 float64
	S2 float64
}

// PivotsFrom computes the pivot set for one prior-session bar.
func PivotsFrom(prior market.Bar) Pivots {
	p := (prior.High + prior.Low + prior.Close) / 3
	return Pivots{
		P:  p,
		R1: 2*p - prior.Low,
		R2: p + (prior.High - prior.Low),
		S1: 2*p - prior.High,
		S2: p - (prior.High - prior.Low),
	}
}

// protective returns the pivot levels on the loss side of entry for the
// direction, sorted nearest to entry first.
func (pv Pivots) protective(entry float64, dir market.Direction) []float64 {
	all := []float64{pv.P, pv.R1, pv.R2, pv.S1, pv.S2}
	var side []float64
	for _, lv := range all {
		if lv <= 0 {
			continue
		}
		if dir == market.Long && lv < entry {
			side = append(side, lv)
		}
		if dir == market.Short && lv > entry {
			side = append(side, lv)
		}
	}
	// ties in distance resolve to nearest-by-absolute-distance; equal
	// distances keep the lower level for longs by sort stability
	sort.Slice(side, func(i, j int) bool {
		return math.Abs(side[i]-entry) < math.Abs(side[j]-entry)
	})
	return side
}

// Levels is a validated stop/target pair with its derived risk figures.
type Levels struct {
	Stop      float64
	Target    float64
	Risk      float64 // per-unit loss at stop
	Reward    float64 // per-unit gain at target
	RR        float64 // reward divided by risk
	Tightened bool    // stop pulled in to a pivot or the low-capital band
}

// Config carries the calculator knobs; zero values fall back to defaults.
type Config struct {
	StopVolMultiple float64 // stop distance in volatility units
	PivotNearVol    float64 // pivot tighten lower bound, volatility units
	PivotFarVol     float64 // pivot tighten upper bound, volatility units
	MinStopPct      float64 // stop distance floor as fraction of entry
	MaxStopPct      float64 // stop distance ceiling as fraction of entry
	LowCapitalBase  float64 // sizing base under which the band narrows
	LowCapMaxPct    float64 // narrowed ceiling for low-capital accounts
	TargetLow       float64 // target multiple in a LOW regime
	TargetNormal    float64
	TargetHigh      float64
	RRMin           float64
	RRMax           float64
}

func (c Config) withDefaults() Config {
	if c.StopVolMultiple <= 0 {
		c.StopVolMultiple = 1.5
	}
	if c.PivotNearVol <= 0 {
		c.PivotNearVol = 0.25
	}
	if c.PivotFarVol <= 0 {
		c.PivotFarVol = 1.5
	}
	if c.MinStopPct <= 0 {
		c.MinStopPct = 0.005
	}
	if c.MaxStopPct <= 0 {
		c.MaxStopPct = 0.05
	}
	if c.LowCapitalBase <= 0 {
		c.LowCapitalBase = 50000
	}
	if c.LowCapMaxPct <= 0 {
		c.LowCapMaxPct = 0.03
	}
	if c.TargetLow <= 0 {
		c.TargetLow = 2.5
	}
	if c.TargetNormal <= 0 {
		c.TargetNormal = 2.2
	}
	if c.TargetHigh <= 0 {
		c.TargetHigh = 1.8
	}
	if c.RRMin <= 0 {
		c.RRMin = 0.45
	}
	if c.RRMax <= 0 {
		c.RRMax = 5.0
	}
	return c
}

// Calculator derives levels per candidate, memoizing pivots per calendar day.
type Calculator struct {
	cfg    Config
	log    zerolog.Logger
	source market.HistorySource
	pivots *cache.Cache[string, Pivots]
}

// NewCalculator builds a calculator whose pivot cache rolls over at the
// calendar-day boundary in loc.
func NewCalculator(cfg Config, source market.HistorySource, loc *time.Location, log zerolog.Logger) *Calculator {
	return &Calculator{
		cfg:    cfg.withDefaults(),
		log:    log,
		source: source,
		pivots: cache.New[string, Pivots](cache.CalendarDay(loc)),
	}
}

// PivotsFor returns the day's pivot set for symbol, computing it from the
// prior session on first use each day. A missing prior session yields a zero
// set; callers then skip pivot tightening rather than fail the trade.
func (c *Calculator) PivotsFor(symbol string) Pivots {
	pv, err := c.pivots.GetOrCompute(symbol, func() (Pivots, error) {
		ctx, cancel := context5s()
		defer cancel()
		prior, err := c.source.PriorSession(ctx, symbol)
		if err != nil {
			return Pivots{}, err
		}
		return PivotsFrom(prior), nil
	})
	if err != nil {
		c.log.Warn().Err(err).Str("symbol", symbol).Msg("prior session unavailable, skipping pivots")
		return Pivots{}
	}
	return pv
}

// Compute derives and validates stop/target for the trade idea. sizingBase
// narrows the allowed stop band for low-capital accounts so a minimum order
// value stays reachable after sizing.
func (c *Calculator) Compute(symbol string, entry float64, dir market.Direction, est volatility.Estimate, sizingBase float64) (Levels, error) {
	if entry <= 0 {
		return Levels{}, fmt.Errorf("entry %.2f must be positive: %w", entry, ErrUnusable)
	}
	vol := est.Blended
	if vol <= 0 {
		return Levels{}, fmt.Errorf("volatility missing for %s: %w", symbol, ErrUnusable)
	}

	sign := dir.Sign()
	stop := entry - sign*c.cfg.StopVolMultiple*vol
	tightened := false

	// pull the stop in to the nearest protective pivot when one sits at a
	// sensible distance between the raw stop and entry
	pv := c.PivotsFor(symbol)
	for _, level := range pv.protective(entry, dir) {
		dist := math.Abs(entry - level)
		if dist < c.cfg.PivotNearVol*vol || dist > c.cfg.PivotFarVol*vol {
			continue
		}
		if math.Abs(entry-level) < math.Abs(entry-stop) {
			stop = level
			tightened = true
		}
		break
	}

	stop, band := c.clampStop(entry, sign, stop, sizingBase)
	tightened = tightened || band

	risk := sign * (entry - stop)
	if risk <= 0 {
		return Levels{}, fmt.Errorf("risk %.4f at stop %.2f: %w", risk, stop, ErrUnusable)
	}

	target := entry + sign*vol*c.targetMultiple(est.Regime)
	reward := sign * (target - entry)
	if reward <= 0 {
		return Levels{}, fmt.Errorf("reward %.4f at target %.2f: %w", reward, target, ErrUnusable)
	}
	rr := reward / risk
	if rr < c.cfg.RRMin || rr > c.cfg.RRMax {
		return Levels{}, fmt.Errorf("reward:risk %.2f outside [%.2f, %.2f]: %w", rr, c.cfg.RRMin, c.cfg.RRMax, ErrUnusable)
	}

	return Levels{Stop: stop, Target: target, Risk: risk, Reward: reward, RR: rr, Tightened: tightened}, nil
}

// Tighten pulls the stop in to the narrow band ceiling so the sizer can retry
// once when a wide stop made a low-capital account unsizeable.
func (c *Calculator) Tighten(lv Levels, entry float64, dir market.Direction) (Levels, error) {
	sign := dir.Sign()
	maxDist := entry * c.cfg.LowCapMaxPct
	if lv.Risk <= maxDist {
		return lv, fmt.Errorf("stop already inside the narrow band: %w", ErrUnusable)
	}
	lv.Stop = entry - sign*maxDist
	lv.Risk = maxDist
	lv.RR = lv.Reward / lv.Risk
	lv.Tightened = true
	if lv.RR > c.cfg.RRMax {
		return Levels{}, fmt.Errorf("tightened reward:risk %.2f outside [%.2f, %.2f]: %w", lv.RR, c.cfg.RRMin, c.cfg.RRMax, ErrUnusable)
	}
	return lv, nil
}

func (c *Calculator) clampStop(entry, sign, stop, sizingBase float64) (float64, bool) {
	maxPct := c.cfg.MaxStopPct
	if sizingBase > 0 && sizingBase < c.cfg.LowCapitalBase {
		maxPct = c.cfg.LowCapMaxPct
	}
	dist := sign * (entry - stop)
	switch {
	case dist > entry*maxPct:
		return entry - sign*entry*maxPct, true
	case dist < entry*c.cfg.MinStopPct:
		return entry - sign*entry*c.cfg.MinStopPct, true
	default:
		return stop, false
	}
}

// context5s bounds the once-daily prior-session read.
func context5s() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Second)
}

func (c *Calculator) targetMultiple(reg volatility.Regime) float64 {
	switch reg {
	case volatility.RegimeLow:
		return c.cfg.TargetLow
	case volatility.RegimeHigh:
		return c.cfg.TargetHigh
	default:
		return c.cfg.TargetNormal
	}
}
