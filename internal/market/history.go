package market

import (
	"context"
	"time"
)

// HistorySource is the read surface of the market-data collaborator used by
// the estimators. Implementations must honour context deadlines; callers keep
// a last-known-good copy and degrade when a read fails.
type HistorySource interface {
	// RecentBars returns up to n most recent closed bars, oldest first.
	RecentBars(ctx context.Context, symbol string, n int) ([]Bar, error)
	// PriorSession returns the previous trading day's OHLC as one bar.
	PriorSession(ctx context.Context, symbol string) (Bar, error)
}

// SessionClock answers calendar questions against the exchange timezone.
type SessionClock struct {
	loc   *time.Location
	close time.Duration // offset from midnight, e.g. 15h30m
}

// NewSessionClock builds a clock for the given location and close-of-session
// offset from midnight.
func NewSessionClock(loc *time.Location, closeOffset time.Duration) SessionClock {
	if loc == nil {
		loc = time.UTC
	}
	return SessionClock{loc: loc, close: closeOffset}
}

// Location exposes the exchange timezone.
func (c SessionClock) Location() *time.Location { return c.loc }

// SessionClose returns the close instant for the trading day containing t.
func (c SessionClock) SessionClose(t time.Time) time.Time {
	local := t.In(c.loc)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, c.loc)
	return midnight.Add(c.close)
}

// InsidePreClose reports whether t falls within window of the session close.
func (c SessionClock) InsidePreClose(t time.Time, window time.Duration) bool {
	cl := c.SessionClose(t)
	return !t.Before(cl.Add(-window)) && t.Before(cl.Add(window))
}

// SameTradingDay reports whether a and b share a calendar day at the exchange.
func (c SessionClock) SameTradingDay(a, b time.Time) bool {
	ay, am, ad := a.In(c.loc).Date()
	by, bm, bd := b.In(c.loc).Date()
	return ay == by && am == bm && ad == bd
}
