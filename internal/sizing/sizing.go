// Package sizing turns an accepted, levelled candidate into a sized order
// intent under loss, leverage, margin, and lot-size caps. Size math runs off
// a sizing base stabilized once per trading day so intraday capital
// consumption does not shrink later entries.
package sizing

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"tradepilot-go/internal/broker"
	"tradepilot-go/internal/cache"
	"tradepilot-go/internal/instrument"
	"tradepilot-go/internal/levels"
	"tradepilot-go/internal/signal"
)

var (
	// ErrUnsizeable marks candidates no positive quantity can express.
	ErrUnsizeable = errors.New("no sizeable quantity")
	// ErrMarginCap marks orders unaffordable within the per-trade margin cap.
	ErrMarginCap = errors.New("margin cap exceeded")
	// ErrDegraded marks sizing aborted because margin state is unknowable.
	ErrDegraded = errors.New("margin state unavailable")
)

// MarginSource is the broker read the sizer depends on.
type MarginSource interface {
	AvailableMargin(ctx context.Context) (float64, error)
}

// Config carries the sizing knobs; zero values fall back to defaults.
type Config struct {
	RiskPct        float64 // per-trade loss budget as a fraction of the base
	MinOrderValue  float64
	DerivCapPct    float64 // per-trade margin cap for derivatives
	CashCapPct     float64
	LowCapitalBase float64 // below this the wide-stop retry is attempted
}

func (c Config) withDefaults() Config {
	if c.RiskPct <= 0 {
		c.RiskPct = 0.01
	}
	if c.MinOrderValue <= 0 {
		c.MinOrderValue = 5000
	}
	if c.DerivCapPct <= 0 {
		c.DerivCapPct = 0.80
	}
	if c.CashCapPct <= 0 {
		c.CashCapPct = 0.60
	}
	if c.LowCapitalBase <= 0 {
		c.LowCapitalBase = 50000
	}
	return c
}

// Sizer computes quantities for resolved instruments.
type Sizer struct {
	cfg    Config
	margin MarginSource
	levels *levels.Calculator
	log    zerolog.Logger

	base *cache.Cache[string, float64]

	mu          sync.Mutex
	lastMargin  float64
	marginKnown bool
}

const baseKey = "sizing_base"

// New builds a sizer whose sizing base stabilizes at the first margin query
// of each calendar day in loc.
func New(cfg Config, margin MarginSource, lc *levels.Calculator, loc *time.Location, log zerolog.Logger) *Sizer {
	return &Sizer{
		cfg:    cfg.withDefaults(),
		margin: margin,
		levels: lc,
		log:    log,
		base:   cache.New[string, float64](cache.CalendarDay(loc)),
	}
}

// SizingBase returns the day's stabilized capital figure, querying the
// broker only on the first call of each trading day.
func (s *Sizer) SizingBase(ctx context.Context) (float64, error) {
	return s.base.GetOrCompute(baseKey, func() (float64, error) {
		m, err := s.margin.AvailableMargin(ctx)
		if err != nil {
			return 0, fmt.Errorf("first margin query of the day: %w", err)
		}
		s.log.Info().Float64("base", m).Msg("sizing base stabilized for the day")
		return m, nil
	})
}

// availableNow reads live margin, degrading to the last good read on a
// collaborator error.
func (s *Sizer) availableNow(ctx context.Context) (float64, error) {
	m, err := s.margin.AvailableMargin(ctx)
	if err == nil {
		s.mu.Lock()
		s.lastMargin, s.marginKnown = m, true
		s.mu.Unlock()
		return m, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.marginKnown {
		s.log.Warn().Err(err).Float64("last_good", s.lastMargin).Msg("margin query failed, reusing last known good")
		return s.lastMargin, nil
	}
	return 0, fmt.Errorf("%w: %v", ErrDegraded, err)
}

// Size computes the final quantity for the resolution and wraps it into the
// single order intent this candidate may produce. A wide stop on a
// low-capital base is tightened once and sizing retried before rejecting.
func (s *Sizer) Size(ctx context.Context, c signal.Candidate, lv levels.Levels, res instrument.Resolution) (broker.OrderIntent, error) {
	base, err := s.SizingBase(ctx)
	if err != nil {
		return broker.OrderIntent{}, fmt.Errorf("%w: %v", ErrDegraded, err)
	}
	avail, err := s.availableNow(ctx)
	if err != nil {
		return broker.OrderIntent{}, err
	}

	qty := s.quantity(base, avail, c.Entry, lv.Risk, res)
	if float64(qty)*c.Entry < s.cfg.MinOrderValue && base < s.cfg.LowCapitalBase && !lv.Tightened {
		tightened, terr := s.levels.Tighten(lv, c.Entry, c.Direction)
		if terr == nil {
			lv = tightened
			qty = s.quantity(base, avail, c.Entry, lv.Risk, res)
			s.log.Debug().Str("symbol", c.Symbol).Int("qty", qty).Msg("resized after stop tighten")
		}
	}

	notional := float64(qty) * c.Entry
	if qty <= 0 || notional < s.cfg.MinOrderValue {
		return broker.OrderIntent{}, fmt.Errorf("qty %d notional %.2f under floor %.2f: %w", qty, notional, s.cfg.MinOrderValue, ErrUnsizeable)
	}

	required := notional / res.Leverage
	capPct := s.cfg.DerivCapPct
	if res.Form == instrument.Cash {
		capPct = s.cfg.CashCapPct
	}
	if required > avail*capPct {
		return broker.OrderIntent{}, fmt.Errorf("margin %.2f over cap %.2f: %w", required, avail*capPct, ErrMarginCap)
	}

	return broker.OrderIntent{
		ID:             uuid.New(),
		Form:           res.Form,
		Symbol:         res.Symbol,
		Underlying:     res.Root,
		Direction:      res.Direction,
		Qty:            qty,
		OrderType:      broker.Market,
		Price:          c.Entry,
		Stop:           lv.Stop,
		Target:         lv.Target,
		MarginEstimate: required,
	}, nil
}

// quantity is min(risk-based, leverage-based, feasibility) floored to lot.
func (s *Sizer) quantity(base, avail, entry, risk float64, res instrument.Resolution) int {
	if entry <= 0 || risk <= 0 || res.Leverage <= 0 {
		return 0
	}
	riskQty := math.Floor(s.cfg.RiskPct * base / risk)
	levQty := math.Floor(base * res.Leverage / entry)
	feasQty := math.Floor(avail * res.Leverage / entry)

	qty := int(math.Min(riskQty, math.Min(levQty, feasQty)))
	lot := res.LotSize
	if lot <= 1 {
		return qty
	}
	return (qty / lot) * lot
}
