package instrument

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"tradepilot-go/internal/market"
	"tradepilot-go/internal/signal"
	"tradepilot-go/internal/volatility"
)

// ErrNoInstrument marks candidates no tradable form can express. Index
// underlyings that fail the options gates land here rather than silently
// defaulting to an untradable cash position.
var ErrNoInstrument = errors.New("no tradable instrument form")

// Resolution is the chosen representation for an accepted signal.
type Resolution struct {
	Form      Form
	Symbol    string
	Root      string
	Direction market.Direction
	LotSize   int
	Leverage  float64
}

// SelectorConfig carries the selection thresholds; zero values fall back to
// defaults.
type SelectorConfig struct {
	OptionsConfidence float64 // options on conviction alone
	OptionsHighVol    float64 // options bar in a HIGH regime
	FuturesConfidence float64
	MinExpiryDays     int
	IVElevated        float64 // annualized percent above which IV is rich
	MinPremium        float64
	MinAlignment      int // trend-strength gate for options
	MinTradedValue    float64
	CashLeverage      float64
	DerivLeverage     float64
}

func (c SelectorConfig) withDefaults() SelectorConfig {
	if c.OptionsConfidence <= 0 {
		c.OptionsConfidence = 9.0
	}
	if c.OptionsHighVol <= 0 {
		c.OptionsHighVol = 8.5
	}
	if c.FuturesConfidence <= 0 {
		c.FuturesConfidence = 8.5
	}
	if c.MinExpiryDays <= 0 {
		c.MinExpiryDays = 3
	}
	if c.IVElevated <= 0 {
		c.IVElevated = 45
	}
	if c.MinPremium <= 0 {
		c.MinPremium = 5
	}
	if c.MinAlignment <= 0 {
		c.MinAlignment = 2
	}
	if c.MinTradedValue <= 0 {
		c.MinTradedValue = 1e6
	}
	if c.CashLeverage <= 0 {
		c.CashLeverage = 1
	}
	if c.DerivLeverage <= 0 {
		c.DerivLeverage = 4
	}
	return c
}

// optionGate is one named secondary check an options resolution must pass.
type optionGate struct {
	name string
	pass func(m Meta, out signal.Outcome, now time.Time, cfg SelectorConfig) bool
}

var optionGates = []optionGate{
	{"expiry_distance", func(m Meta, _ signal.Outcome, now time.Time, cfg SelectorConfig) bool {
		return !m.Expiry.IsZero() && m.Expiry.Sub(now) >= time.Duration(cfg.MinExpiryDays)*24*time.Hour
	}},
	{"implied_vol", func(m Meta, _ signal.Outcome, _ time.Time, cfg SelectorConfig) bool {
		return m.ImpliedVol > 0 && m.ImpliedVol <= cfg.IVElevated
	}},
	{"premium_floor", func(m Meta, _ signal.Outcome, _ time.Time, cfg SelectorConfig) bool {
		return m.Premium >= cfg.MinPremium
	}},
	{"trend_strength", func(_ Meta, out signal.Outcome, _ time.Time, cfg SelectorConfig) bool {
		return out.Alignment >= cfg.MinAlignment
	}},
	{"liquidity", func(m Meta, _ signal.Outcome, _ time.Time, cfg SelectorConfig) bool {
		return m.AvgTradedValue >= cfg.MinTradedValue
	}},
}

// Selector chooses the instrument form for accepted candidates.
type Selector struct {
	cfg     SelectorConfig
	catalog *Catalog
	log     zerolog.Logger
	now     func() time.Time
}

// NewSelector builds a selector over the shared catalog.
func NewSelector(cfg SelectorConfig, catalog *Catalog, log zerolog.Logger) *Selector {
	return &Selector{cfg: cfg.withDefaults(), catalog: catalog, log: log, now: time.Now}
}

// Select resolves the best form for the candidate given its adjusted
// confidence and the volatility regime. Downstream failures of a derivative
// resolution map back to cash via CashFallback; only index underlyings with
// no viable options route fail outright.
func (s *Selector) Select(c signal.Candidate, out signal.Outcome, regime volatility.Regime) (Resolution, error) {
	root := Root(c.Symbol)
	meta, known := s.catalog.Lookup(root)
	if !known {
		// uncatalogued names trade cash only
		return s.CashFallback(c), nil
	}

	wantsOptions := out.Confidence >= s.cfg.OptionsConfidence ||
		(regime == volatility.RegimeHigh && out.Confidence >= s.cfg.OptionsHighVol) ||
		meta.Index
	if wantsOptions && meta.HasOptions {
		if gate, ok := s.passesOptionGates(meta, out); ok {
			return Resolution{
				Form:      Options,
				Symbol:    meta.OptionSymbol,
				Root:      root,
				Direction: c.Direction,
				LotSize:   meta.LotSize,
				Leverage:  s.cfg.DerivLeverage,
			}, nil
		} else if meta.Index {
			return Resolution{}, fmt.Errorf("index %s failed options gate %s: %w", root, gate, ErrNoInstrument)
		}
	}
	if meta.Index {
		return Resolution{}, fmt.Errorf("index %s below options bar: %w", root, ErrNoInstrument)
	}

	if out.Confidence >= s.cfg.FuturesConfidence && meta.HasFutures {
		return Resolution{
			Form:      Futures,
			Symbol:    meta.FuturesSymbol,
			Root:      root,
			Direction: c.Direction,
			LotSize:   meta.LotSize,
			Leverage:  s.cfg.DerivLeverage,
		}, nil
	}
	return s.CashFallback(c), nil
}

// passesOptionGates runs the ordered secondary checks, returning the first
// failing gate's name.
func (s *Selector) passesOptionGates(meta Meta, out signal.Outcome) (string, bool) {
	now := s.now()
	for _, g := range optionGates {
		if !g.pass(meta, out, now, s.cfg) {
			s.log.Debug().Str("root", meta.Root).Str("gate", g.name).Msg("options gate failed")
			return g.name, false
		}
	}
	return "", true
}

// CashFallback expresses the candidate as a plain cash position, preserving
// direction: a bearish derivative intent becomes a short cash position.
func (s *Selector) CashFallback(c signal.Candidate) Resolution {
	return Resolution{
		Form:      Cash,
		Symbol:    c.Symbol,
		Root:      Root(c.Symbol),
		Direction: c.Direction,
		LotSize:   1,
		Leverage:  s.cfg.CashLeverage,
	}
}
