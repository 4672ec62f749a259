package broker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"tradepilot-go/internal/market"
	"tradepilot-go/internal/metrics"
)

func direction(s string) market.Direction {
	if s == string(market.Short) {
		return market.Short
	}
	return market.Long
}

// Fill records one paper execution for later inspection.
type Fill struct {
	OrderID uuid.UUID `json:"order_id"`
	Symbol  string    `json:"symbol"`
	Side    string    `json:"side"`
	Qty     int       `json:"qty"`
	Price   float64   `json:"price"`
	Trigger string    `json:"trigger,omitempty"`
	Ts      time.Time `json:"ts"`
}

// Ledger stores paper fills in memory for quick inspection.
type Ledger struct {
	mu    sync.Mutex
	fills []Fill
}

// NewLedger creates an empty ledger optionally pre-sizing storage.
func NewLedger(capacity int) *Ledger {
	if capacity < 0 {
		capacity = 0
	}
	return &Ledger{fills: make([]Fill, 0, capacity)}
}

// Record appends a fill to the ledger.
func (l *Ledger) Record(f Fill) {
	l.mu.Lock()
	l.fills = append(l.fills, f)
	l.mu.Unlock()
}

// Snapshot returns a copy of the recorded fills.
func (l *Ledger) Snapshot() []Fill {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Fill, len(l.fills))
	copy(out, l.fills)
	return out
}

type paperPosition struct {
	symbol     string
	underlying string
	direction  string
	qty        int
	avgPrice   decimal.Decimal
	margin     decimal.Decimal
}

// Paper is an in-process broker: immediate fills at the reference price,
// margin-model accounting in decimals so cash never drifts from float noise.
type Paper struct {
	log       zerolog.Logger
	ledger    *Ledger
	mu        sync.Mutex
	cash      decimal.Decimal
	margin    decimal.Decimal
	positions map[string]*paperPosition
}

// NewPaper builds a paper broker funded with startingCash.
func NewPaper(startingCash float64, ledger *Ledger, log zerolog.Logger) *Paper {
	return &Paper{
		log:       log,
		ledger:    ledger,
		cash:      decimal.NewFromFloat(startingCash),
		positions: make(map[string]*paperPosition),
	}
}

// PlaceOrder fills the intent immediately at its reference price, blocking
// the estimated margin. Same-direction placements on an open symbol scale
// in; opposite-direction placements must be routed through ExitPosition
// first.
func (p *Paper) PlaceOrder(ctx context.Context, intent OrderIntent) (OrderAck, error) {
	if err := ctx.Err(); err != nil {
		return OrderAck{}, err
	}
	if intent.Qty <= 0 {
		return OrderAck{}, errors.New("quantity must be positive")
	}
	price := intent.Price
	if intent.OrderType == Limit && intent.LimitPrice > 0 {
		price = intent.LimitPrice
	}
	if price <= 0 {
		return OrderAck{}, errors.New("price must be positive")
	}

	qty := decimal.NewFromInt(int64(intent.Qty))
	px := decimal.NewFromFloat(price)
	notional := qty.Mul(px)
	margin := decimal.NewFromFloat(intent.MarginEstimate)
	if margin.IsZero() {
		margin = notional
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	free := p.cash.Sub(p.margin)
	if margin.GreaterThan(free) {
		return OrderAck{}, fmt.Errorf("margin %s exceeds free %s", margin.StringFixed(2), free.StringFixed(2))
	}

	pos := p.positions[intent.Symbol]
	switch {
	case pos == nil:
		p.positions[intent.Symbol] = &paperPosition{
			symbol:     intent.Symbol,
			underlying: intent.Underlying,
			direction:  string(intent.Direction),
			qty:        intent.Qty,
			avgPrice:   px,
			margin:     margin,
		}
	case pos.direction == string(intent.Direction):
		total := decimal.NewFromInt(int64(pos.qty)).Mul(pos.avgPrice).Add(notional)
		pos.qty += intent.Qty
		pos.avgPrice = total.Div(decimal.NewFromInt(int64(pos.qty)))
		pos.margin = pos.margin.Add(margin)
	default:
		return OrderAck{}, fmt.Errorf("opposite position open on %s, exit first", intent.Symbol)
	}
	p.margin = p.margin.Add(margin)

	metrics.IntentsTotal.WithLabelValues(string(intent.Form)).Inc()
	p.log.Info().
		Str("symbol", intent.Symbol).
		Str("form", string(intent.Form)).
		Str("side", string(intent.Direction)).
		Int("qty", intent.Qty).
		Float64("px", price).
		Msg("paper fill")
	if p.ledger != nil {
		p.ledger.Record(Fill{OrderID: intent.ID, Symbol: intent.Symbol, Side: string(intent.Direction), Qty: intent.Qty, Price: price, Ts: time.Now()})
	}
	return OrderAck{OrderID: intent.ID, FilledQty: intent.Qty, AvgPrice: price, PlacedAt: time.Now()}, nil
}

// ExitPosition unwinds qty units at the intent price, realizing P&L into
// cash and releasing blocked margin pro rata.
func (p *Paper) ExitPosition(ctx context.Context, intent ExitIntent) (OrderAck, error) {
	if err := ctx.Err(); err != nil {
		return OrderAck{}, err
	}
	if intent.Qty <= 0 || intent.Price <= 0 {
		return OrderAck{}, errors.New("exit needs positive qty and price")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	pos := p.positions[intent.Symbol]
	if pos == nil {
		return OrderAck{}, fmt.Errorf("no open position on %s", intent.Symbol)
	}
	if intent.Qty > pos.qty {
		return OrderAck{}, fmt.Errorf("exit qty %d exceeds open %d", intent.Qty, pos.qty)
	}

	px := decimal.NewFromFloat(intent.Price)
	qty := decimal.NewFromInt(int64(intent.Qty))
	sign := decimal.NewFromInt(1)
	if pos.direction == "SHORT" {
		sign = decimal.NewFromInt(-1)
	}
	realized := px.Sub(pos.avgPrice).Mul(qty).Mul(sign)
	release := pos.margin.Mul(qty).Div(decimal.NewFromInt(int64(pos.qty)))

	p.cash = p.cash.Add(realized)
	p.margin = p.margin.Sub(release)
	pos.margin = pos.margin.Sub(release)
	pos.qty -= intent.Qty
	if pos.qty == 0 {
		delete(p.positions, intent.Symbol)
	}

	metrics.ExitsTotal.WithLabelValues(intent.Trigger).Inc()
	p.log.Info().
		Str("symbol", intent.Symbol).
		Str("kind", string(intent.Kind)).
		Str("trigger", intent.Trigger).
		Int("qty", intent.Qty).
		Float64("px", intent.Price).
		Str("realized", realized.StringFixed(2)).
		Msg("paper exit")
	if p.ledger != nil {
		side := "SELL"
		if pos.direction == "SHORT" {
			side = "BUY"
		}
		p.ledger.Record(Fill{OrderID: intent.ID, Symbol: intent.Symbol, Side: side, Qty: intent.Qty, Price: intent.Price, Trigger: intent.Trigger, Ts: time.Now()})
	}
	return OrderAck{OrderID: intent.ID, FilledQty: intent.Qty, AvgPrice: intent.Price, PlacedAt: time.Now()}, nil
}

// OpenPositions returns the broker-side book.
func (p *Paper) OpenPositions(ctx context.Context) ([]PositionRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]PositionRecord, 0, len(p.positions))
	for _, pos := range p.positions {
		avg, _ := pos.avgPrice.Float64()
		out = append(out, PositionRecord{
			Symbol:     pos.symbol,
			Underlying: pos.underlying,
			Direction:  direction(pos.direction),
			Qty:        pos.qty,
			AvgPrice:   avg,
		})
	}
	return out, nil
}

// AvailableMargin reports cash not blocked by open positions.
func (p *Paper) AvailableMargin(ctx context.Context) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	free, _ := p.cash.Sub(p.margin).Float64()
	return free, nil
}

// CancelOrder is a no-op: paper orders fill immediately and never rest.
func (p *Paper) CancelOrder(ctx context.Context, id uuid.UUID) error {
	return ctx.Err()
}

// Cash reports current cash including realized P&L.
func (p *Paper) Cash() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	out, _ := p.cash.Float64()
	return out
}
