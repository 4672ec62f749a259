// Package broker defines the order-facing surface of the engine: sized order
// intents, exit intents, and the Client interface the runner dispatches
// through. A decimal-backed paper implementation serves tests and dry runs.
package broker

import (
	"context"
	"time"

	"github.com/google/uuid"

	"tradepilot-go/internal/instrument"
	"tradepilot-go/internal/market"
)

// OrderType distinguishes market from limit placement.
type OrderType string

const (
	// Market fills at the venue's best price.
	Market OrderType = "MARKET"
	// Limit rests at LimitPrice for the validity window.
	Limit OrderType = "LIMIT"
)

// ExitKind distinguishes a partial booking from a full close.
type ExitKind string

const (
	// Partial books a fraction of the open quantity.
	Partial ExitKind = "PARTIAL"
	// Full closes the remaining quantity.
	Full ExitKind = "FULL"
)

// OrderIntent is the one sized order produced per accepted candidate.
type OrderIntent struct {
	ID             uuid.UUID
	Form           instrument.Form
	Symbol         string
	Underlying     string
	Direction      market.Direction
	Qty            int
	OrderType      OrderType
	Price          float64 // reference price; paper fills market orders here
	LimitPrice     float64
	Validity       time.Duration
	Stop           float64
	Target         float64
	MarginEstimate float64
}

// Notional is the order's money value at its reference price.
func (o OrderIntent) Notional() float64 { return float64(o.Qty) * o.Price }

// ExitIntent asks the broker to unwind part or all of an open position.
type ExitIntent struct {
	ID         uuid.UUID
	Symbol     string
	Underlying string
	Form       instrument.Form
	Direction  market.Direction // direction of the position being unwound
	Qty        int
	Kind       ExitKind
	Trigger    string // exit_stop, exit_target, exit_trailing, ...
	Price      float64
}

// OrderAck is the broker's acceptance record for a placement or exit.
type OrderAck struct {
	OrderID   uuid.UUID
	FilledQty int
	AvgPrice  float64
	PlacedAt  time.Time
}

// PositionRecord is the broker's authoritative view of one open position,
// reconciled against the engine's book each tick.
type PositionRecord struct {
	Symbol     string
	Underlying string
	Direction  market.Direction
	Qty        int
	AvgPrice   float64
}

// Client is the order-submission collaborator. Every call is context-bounded;
// a timeout on placement is terminal for that signal and must not be retried
// blindly, while read-path timeouts degrade to last-known-good at the caller.
type Client interface {
	PlaceOrder(ctx context.Context, intent OrderIntent) (OrderAck, error)
	ExitPosition(ctx context.Context, intent ExitIntent) (OrderAck, error)
	OpenPositions(ctx context.Context) ([]PositionRecord, error)
	AvailableMargin(ctx context.Context) (float64, error)
	CancelOrder(ctx context.Context, id uuid.UUID) error
}
