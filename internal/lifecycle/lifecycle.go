// Package lifecycle owns open positions from entry to close: trailing-stop
// ratchets, partial profit booking, age and session-end closure, and
// emergency exits. All mutation happens through OnTick and the broker
// reconciliation hooks, and replaying an identical tick is a no-op.
package lifecycle

import (
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"tradepilot-go/internal/broker"
	"tradepilot-go/internal/instrument"
	"tradepilot-go/internal/market"
)

// State is the lifecycle stage of an open position.
type State string

const (
	StateEntered          State = "ENTERED"
	StateScaled           State = "SCALED"
	StatePartiallyExited  State = "PARTIALLY_EXITED"
	StateTrailingAdjusted State = "TRAILING_ADJUSTED"
	StateClosed           State = "CLOSED"
)

// Exit triggers carried on every exit intent.
const (
	TriggerStop       = "exit_stop"
	TriggerTrailing   = "exit_trailing"
	TriggerTarget     = "exit_target"
	TriggerTimeout    = "exit_timeout"
	TriggerSessionEnd = "exit_session_end"
	TriggerEmergency  = "exit_emergency"
	TriggerPartial    = "exit_partial"
	TriggerReversal   = "exit_reversal"
)

// Position is the managed record for one open trade. It is owned by the
// manager and mutated only via lifecycle transitions.
type Position struct {
	ID           uuid.UUID
	Symbol       string
	Underlying   string
	Form         instrument.Form
	Direction    market.Direction
	Entry        float64
	Qty          int
	RemainingQty int
	Stop         float64
	Target       float64
	TrailingStop float64 // 0 until the first ratchet
	PartialDone  bool
	LotSize      int
	EnteredAt    time.Time
	State        State
}

// Unrealized is the open P&L of the remaining quantity at price.
func (p Position) Unrealized(price float64) float64 {
	return p.Direction.Sign() * (price - p.Entry) * float64(p.RemainingQty)
}

// GainPct is the signed fractional move in the position's favor.
func (p Position) GainPct(price float64) float64 {
	if p.Entry <= 0 {
		return 0
	}
	return p.Direction.Sign() * (price - p.Entry) / p.Entry
}

// Config carries the lifecycle knobs; zero values fall back to defaults.
type Config struct {
	MaxAge              time.Duration // hard holding cap
	OptionsMaxAge       time.Duration // tighter cap against time decay
	PreCloseWindow      time.Duration // mandatory close before session end
	EmergencyLossAbs    float64       // absolute currency loss cap
	EmergencyLossPct    float64       // loss cap as fraction of entry notional
	ProfitLockPct       float64       // gain at which trailing starts
	OptionsLockPct      float64
	LockFraction        float64 // share of the gain the trail protects
	OptionsLockFraction float64
	PartialTriggerPct   float64 // gain at which a partial books
	PartialPct          float64 // share of remaining qty booked
	MinOrderValue       float64 // partial/remainder floor
}

func (c Config) withDefaults() Config {
	if c.MaxAge <= 0 {
		c.MaxAge = 4 * time.Hour
	}
	if c.OptionsMaxAge <= 0 {
		c.OptionsMaxAge = 90 * time.Minute
	}
	if c.PreCloseWindow <= 0 {
		c.PreCloseWindow = 15 * time.Minute
	}
	if c.EmergencyLossAbs <= 0 {
		c.EmergencyLossAbs = 10000
	}
	if c.EmergencyLossPct <= 0 {
		c.EmergencyLossPct = 0.05
	}
	if c.ProfitLockPct <= 0 {
		c.ProfitLockPct = 0.015
	}
	if c.OptionsLockPct <= 0 {
		c.OptionsLockPct = 0.01
	}
	if c.LockFraction <= 0 {
		c.LockFraction = 0.5
	}
	if c.OptionsLockFraction <= 0 {
		c.OptionsLockFraction = 0.65
	}
	if c.PartialTriggerPct <= 0 {
		c.PartialTriggerPct = 0.025
	}
	if c.PartialPct <= 0 {
		c.PartialPct = 0.5
	}
	if c.MinOrderValue <= 0 {
		c.MinOrderValue = 5000
	}
	return c
}

// Manager tracks every open position of one strategy instance. It also
// serves as the guard's position view.
type Manager struct {
	cfg   Config
	clock market.SessionClock
	log   zerolog.Logger
	mu    sync.RWMutex
	open  map[string]*Position
}

// NewManager builds an empty manager.
func NewManager(cfg Config, clock market.SessionClock, log zerolog.Logger) *Manager {
	return &Manager{
		cfg:   cfg.withDefaults(),
		clock: clock,
		log:   log,
		open:  make(map[string]*Position),
	}
}

// Track registers a freshly filled position.
func (m *Manager) Track(p Position) {
	if p.State == "" {
		p.State = StateEntered
	}
	if p.RemainingQty == 0 {
		p.RemainingQty = p.Qty
	}
	if p.LotSize <= 0 {
		p.LotSize = 1
	}
	m.mu.Lock()
	m.open[p.Symbol] = &p
	m.mu.Unlock()
	m.log.Info().Str("symbol", p.Symbol).Str("side", string(p.Direction)).Int("qty", p.Qty).Float64("entry", p.Entry).Msg("position tracked")
}

// OpenDirection implements the guard's position view over underlying roots.
func (m *Manager) OpenDirection(root string) (market.Direction, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.open {
		if p.Underlying == root {
			return p.Direction, true
		}
	}
	return "", false
}

// Position returns a copy of the tracked position for symbol.
func (m *Manager) Position(symbol string) (Position, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.open[symbol]
	if !ok {
		return Position{}, false
	}
	return *p, true
}

// Snapshot copies the open set.
func (m *Manager) Snapshot() []Position {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Position, 0, len(m.open))
	for _, p := range m.open {
		out = append(out, *p)
	}
	return out
}

// OnTick runs the per-tick protocol on the position for q.Symbol and returns
// the exit intents (if any) the engine must dispatch. Exit checks run in
// priority order and the first hit wins; management adjustments only happen
// when no exit fires.
func (m *Manager) OnTick(q market.Quote) []broker.ExitIntent {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.open[q.Symbol]
	if !ok || q.Last <= 0 {
		return nil
	}

	if trigger := m.exitTrigger(p, q); trigger != "" {
		return m.fullExitLocked(p, q.Last, trigger)
	}

	var intents []broker.ExitIntent
	gain := p.GainPct(q.Last)

	lockAt, lockFrac := m.cfg.ProfitLockPct, m.cfg.LockFraction
	if p.Form == instrument.Options {
		lockAt, lockFrac = m.cfg.OptionsLockPct, m.cfg.OptionsLockFraction
	}
	if gain >= lockAt {
		// locks lockFrac of the favorable move on both sides: above entry
		// for longs, below entry for shorts
		trail := p.Entry + lockFrac*(q.Last-p.Entry)
		if m.raiseTrail(p, trail) {
			p.State = StateTrailingAdjusted
			m.log.Debug().Str("symbol", p.Symbol).Float64("trail", p.TrailingStop).Msg("trailing stop ratcheted")
		}
	}

	if gain >= m.cfg.PartialTriggerPct && !p.PartialDone {
		intents = append(intents, m.partialLocked(p, q.Last)...)
	}
	return intents
}

// exitTrigger returns the terminal trigger a tick fires, or empty.
func (m *Manager) exitTrigger(p *Position, q market.Quote) string {
	if m.clock.InsidePreClose(q.Ts, m.cfg.PreCloseWindow) {
		return TriggerSessionEnd
	}

	unreal := p.Unrealized(q.Last)
	if unreal <= -m.cfg.EmergencyLossAbs || unreal <= -m.cfg.EmergencyLossPct*p.Entry*float64(p.RemainingQty) {
		return TriggerEmergency
	}

	sign := p.Direction.Sign()
	if p.TrailingStop > 0 && sign*(q.Last-p.TrailingStop) <= 0 {
		return TriggerTrailing
	}
	if p.Stop > 0 && sign*(q.Last-p.Stop) <= 0 {
		return TriggerStop
	}
	if p.Target > 0 && sign*(q.Last-p.Target) >= 0 {
		return TriggerTarget
	}

	maxAge := m.cfg.MaxAge
	if p.Form == instrument.Options {
		maxAge = m.cfg.OptionsMaxAge
	}
	if q.Ts.Sub(p.EnteredAt) >= maxAge {
		return TriggerTimeout
	}
	return ""
}

// raiseTrail ratchets the trailing stop monotonically in the profit
// direction. Returns whether it moved.
func (m *Manager) raiseTrail(p *Position, trail float64) bool {
	if p.TrailingStop == 0 {
		p.TrailingStop = trail
		return true
	}
	if p.Direction == market.Long && trail > p.TrailingStop {
		p.TrailingStop = trail
		return true
	}
	if p.Direction == market.Short && trail < p.TrailingStop {
		p.TrailingStop = trail
		return true
	}
	return false
}

// partialLocked books the configured share of the remaining quantity,
// re-routing to a full exit when either side would fall below the minimum
// order value.
func (m *Manager) partialLocked(p *Position, price float64) []broker.ExitIntent {
	qty := int(math.Floor(float64(p.RemainingQty) * m.cfg.PartialPct))
	if p.LotSize > 1 {
		qty = (qty / p.LotSize) * p.LotSize
	}
	remainder := p.RemainingQty - qty
	if qty <= 0 ||
		float64(qty)*price < m.cfg.MinOrderValue ||
		float64(remainder)*price < m.cfg.MinOrderValue {
		return m.fullExitLocked(p, price, TriggerPartial)
	}

	p.PartialDone = true
	p.RemainingQty = remainder
	p.State = StatePartiallyExited
	m.log.Info().Str("symbol", p.Symbol).Int("qty", qty).Int("remaining", remainder).Msg("partial profit booked")
	return []broker.ExitIntent{{
		ID:         uuid.New(),
		Symbol:     p.Symbol,
		Underlying: p.Underlying,
		Form:       p.Form,
		Direction:  p.Direction,
		Qty:        qty,
		Kind:       broker.Partial,
		Trigger:    TriggerPartial,
		Price:      price,
	}}
}

// fullExitLocked closes the position and removes it from the open set.
func (m *Manager) fullExitLocked(p *Position, price float64, trigger string) []broker.ExitIntent {
	qty := p.RemainingQty
	p.RemainingQty = 0
	p.State = StateClosed
	delete(m.open, p.Symbol)
	m.log.Info().Str("symbol", p.Symbol).Str("trigger", trigger).Int("qty", qty).Float64("px", price).Msg("position closed")
	return []broker.ExitIntent{{
		ID:         uuid.New(),
		Symbol:     p.Symbol,
		Underlying: p.Underlying,
		Form:       p.Form,
		Direction:  p.Direction,
		Qty:        qty,
		Kind:       broker.Full,
		Trigger:    trigger,
		Price:      price,
	}}
}

// CloseUnderlying force-closes the open position on the underlying root, if
// any, and returns the full-exit intent the engine must dispatch. Used to
// clear the book before an accepted reversal entry.
func (m *Manager) CloseUnderlying(root string, price float64, trigger string) []broker.ExitIntent {
	if root == "" || price <= 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.open {
		if p.Underlying == root {
			return m.fullExitLocked(p, price, trigger)
		}
	}
	return nil
}

// ScaleIn folds a late or additional fill into the tracked position,
// re-averaging the entry.
func (m *Manager) ScaleIn(symbol string, qty int, price float64) {
	if qty <= 0 || price <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.open[symbol]
	if !ok {
		return
	}
	total := p.Entry*float64(p.Qty) + price*float64(qty)
	p.Qty += qty
	p.RemainingQty += qty
	p.Entry = total / float64(p.Qty)
	p.State = StateScaled
	m.log.Info().Str("symbol", symbol).Int("qty", qty).Float64("avg", p.Entry).Msg("position scaled")
}

// Reconcile folds the broker's authoritative book into the open set: late
// fills scale in, shrunken quantities are adopted, and positions the broker
// no longer reports are dropped.
func (m *Manager) Reconcile(records []broker.PositionRecord) {
	bySymbol := make(map[string]broker.PositionRecord, len(records))
	for _, r := range records {
		bySymbol[r.Symbol] = r
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for symbol, p := range m.open {
		rec, ok := bySymbol[symbol]
		if !ok {
			delete(m.open, symbol)
			m.log.Warn().Str("symbol", symbol).Msg("broker no longer reports position, dropping")
			continue
		}
		switch {
		case rec.Qty > p.RemainingQty:
			extra := rec.Qty - p.RemainingQty
			total := p.Entry*float64(p.Qty) + rec.AvgPrice*float64(extra)
			p.Qty += extra
			p.RemainingQty = rec.Qty
			p.Entry = total / float64(p.Qty)
			p.State = StateScaled
			m.log.Info().Str("symbol", symbol).Int("qty", extra).Msg("late fill reconciled")
		case rec.Qty < p.RemainingQty:
			p.RemainingQty = rec.Qty
			m.log.Warn().Str("symbol", symbol).Int("qty", rec.Qty).Msg("broker reports smaller position, adopting")
		}
	}
}
