package market

import (
	"testing"
	"time"
)

func TestSeriesCapEviction(t *testing.T) {
	s := NewSeries(3)
	base := time.Date(2025, 6, 2, 9, 15, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		s.Append(Bar{Ts: base.Add(time.Duration(i) * time.Minute), Close: float64(i)})
	}
	bars := s.Snapshot()
	if len(bars) != 3 {
		t.Fatalf("expected 3 bars after eviction, got %d", len(bars))
	}
	if bars[0].Close != 2 || bars[2].Close != 4 {
		t.Fatalf("unexpected window: first=%.0f last=%.0f", bars[0].Close, bars[2].Close)
	}
}

func TestSeriesTail(t *testing.T) {
	s := NewSeries(10)
	base := time.Date(2025, 6, 2, 9, 15, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		s.Append(Bar{Ts: base.Add(time.Duration(i) * time.Minute), Close: float64(i)})
	}
	tail := s.Tail(2)
	if len(tail) != 2 || tail[0].Close != 2 || tail[1].Close != 3 {
		t.Fatalf("unexpected tail: %+v", tail)
	}
	if got := s.Tail(99); len(got) != 4 {
		t.Fatalf("expected full history for oversized tail, got %d", len(got))
	}
}

func TestAggregatorClosesOnBoundary(t *testing.T) {
	agg := NewAggregator(time.Minute)
	base := time.Date(2025, 6, 2, 9, 15, 0, 0, time.UTC)

	if _, ok := agg.Update(Quote{Symbol: "RELIANCE", Last: 100, Volume: 10, Ts: base}); ok {
		t.Fatalf("first quote must not close a bar")
	}
	if _, ok := agg.Update(Quote{Symbol: "RELIANCE", Last: 102, Volume: 5, Ts: base.Add(20 * time.Second)}); ok {
		t.Fatalf("same-minute quote must not close a bar")
	}
	if _, ok := agg.Update(Quote{Symbol: "RELIANCE", Last: 99, Volume: 5, Ts: base.Add(40 * time.Second)}); ok {
		t.Fatalf("same-minute quote must not close a bar")
	}

	closed, ok := agg.Update(Quote{Symbol: "RELIANCE", Last: 101, Volume: 1, Ts: base.Add(61 * time.Second)})
	if !ok {
		t.Fatalf("expected bar close on minute boundary")
	}
	if closed.Open != 100 || closed.High != 102 || closed.Low != 99 || closed.Close != 99 {
		t.Fatalf("unexpected OHLC: %+v", closed)
	}
	if closed.Volume != 20 {
		t.Fatalf("expected aggregated volume 20, got %.0f", closed.Volume)
	}
}

func TestSessionClockPreClose(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Kolkata")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	clock := NewSessionClock(loc, 15*time.Hour+30*time.Minute)

	at := time.Date(2025, 6, 2, 15, 20, 0, 0, loc)
	if !clock.InsidePreClose(at, 15*time.Minute) {
		t.Fatalf("15:20 should be inside a 15m pre-close window")
	}
	earlier := time.Date(2025, 6, 2, 14, 0, 0, 0, loc)
	if clock.InsidePreClose(earlier, 15*time.Minute) {
		t.Fatalf("14:00 should be outside the pre-close window")
	}
	if !clock.SameTradingDay(at, earlier) {
		t.Fatalf("same calendar day expected")
	}
	nextDay := at.Add(24 * time.Hour)
	if clock.SameTradingDay(at, nextDay) {
		t.Fatalf("different trading days expected")
	}
}
