package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"tradepilot-go/internal/market"
)

func testClock() market.SessionClock {
	return market.NewSessionClock(time.UTC, 15*time.Hour+30*time.Minute)
}

func TestStoreRecentBars(t *testing.T) {
	s := NewStore(testClock(), 10)
	ts := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		s.Append("RELIANCE", market.Bar{
			Ts: ts.Add(time.Duration(i) * time.Minute), Open: 100, High: 101, Low: 99, Close: 100 + float64(i), Volume: 10,
		})
	}

	bars, err := s.RecentBars(context.Background(), "RELIANCE", 3)
	if err != nil {
		t.Fatalf("RecentBars returned error: %v", err)
	}
	if len(bars) != 3 {
		t.Fatalf("expected 3 bars, got %d", len(bars))
	}
	if bars[2].Close != 104 {
		t.Fatalf("expected newest close 104, got %.1f", bars[2].Close)
	}

	if _, err := s.RecentBars(context.Background(), "UNKNOWN", 3); !errors.Is(err, ErrNoHistory) {
		t.Fatalf("expected ErrNoHistory, got %v", err)
	}
}

func TestStoreSessionRollover(t *testing.T) {
	s := NewStore(testClock(), 1000)
	day1 := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	s.Append("TCS", market.Bar{Ts: day1, Open: 100, High: 102, Low: 99, Close: 101, Volume: 10})
	s.Append("TCS", market.Bar{Ts: day1.Add(time.Minute), Open: 101, High: 105, Low: 100, Close: 104, Volume: 20})

	if _, err := s.PriorSession(context.Background(), "TCS"); !errors.Is(err, ErrNoHistory) {
		t.Fatalf("no prior session should exist yet, got %v", err)
	}

	day2 := day1.Add(24 * time.Hour)
	s.Append("TCS", market.Bar{Ts: day2, Open: 104, High: 106, Low: 103, Close: 105, Volume: 5})

	prior, err := s.PriorSession(context.Background(), "TCS")
	if err != nil {
		t.Fatalf("PriorSession returned error: %v", err)
	}
	if prior.Open != 100 || prior.High != 105 || prior.Low != 99 || prior.Close != 104 {
		t.Fatalf("unexpected prior OHLC: %+v", prior)
	}
	if prior.Volume != 30 {
		t.Fatalf("expected merged volume 30, got %.0f", prior.Volume)
	}

	open, ok := s.SessionOpen("TCS")
	if !ok || open != 104 {
		t.Fatalf("expected new session open 104, got %.1f ok=%v", open, ok)
	}
}

func TestStoreSeedPrior(t *testing.T) {
	s := NewStore(testClock(), 10)
	s.SeedPrior("INFY", market.Bar{Open: 1500, High: 1520, Low: 1490, Close: 1510})

	prior, err := s.PriorSession(context.Background(), "INFY")
	if err != nil {
		t.Fatalf("PriorSession returned error: %v", err)
	}
	if prior.Close != 1510 {
		t.Fatalf("unexpected seeded close: %.0f", prior.Close)
	}
}

func TestStoreHonoursContext(t *testing.T) {
	s := NewStore(testClock(), 10)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.RecentBars(ctx, "RELIANCE", 3); err == nil {
		t.Fatalf("expected context error")
	}
	if _, err := s.PriorSession(ctx, "RELIANCE"); err == nil {
		t.Fatalf("expected context error")
	}
}
