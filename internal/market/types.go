// Package market standardizes payloads shared between the feed, evaluation,
// and lifecycle layers.
package market

import "time"

// Direction expresses the side of a trade idea or open position.
type Direction string

const (
	// Long profits when price rises.
	Long Direction = "LONG"
	// Short profits when price falls.
	Short Direction = "SHORT"
)

// Sign returns +1 for Long and -1 for Short.
func (d Direction) Sign() float64 {
	if d == Short {
		return -1
	}
	return 1
}

// Opposite returns the reversed direction.
func (d Direction) Opposite() Direction {
	if d == Long {
		return Short
	}
	return Long
}

// Valid reports whether the direction is one of the two known sides.
func (d Direction) Valid() bool { return d == Long || d == Short }

// Quote models the per-tick snapshot consumed by strategy evaluation.
type Quote struct {
	Symbol string
	Last   float64
	Bid    float64
	Ask    float64
	Volume float64
	Ts     time.Time
}

// Bar is the normalized OHLCV row used for volatility, pivots, and trend work.
type Bar struct {
	Ts     time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Range returns the bar's high-low span.
func (b Bar) Range() float64 { return b.High - b.Low }
