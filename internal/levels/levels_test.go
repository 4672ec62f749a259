package levels

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"tradepilot-go/internal/market"
	"tradepilot-go/internal/volatility"
)

type stubHistory struct {
	prior market.Bar
	err   error
}

func (s stubHistory) RecentBars(ctx context.Context, symbol string, n int) ([]market.Bar, error) {
	return nil, errors.New("not used")
}

func (s stubHistory) PriorSession(ctx context.Context, symbol string) (market.Bar, error) {
	if s.err != nil {
		return market.Bar{}, s.err
	}
	return s.prior, nil
}

func normalEstimate(blended float64) volatility.Estimate {
	return volatility.Estimate{Blended: blended, Regime: volatility.RegimeNormal}
}

func TestComputeMatchesWorkedScenario(t *testing.T) {
	c := NewCalculator(Config{}, stubHistory{err: errors.New("no history")}, time.UTC, zerolog.Nop())

	lv, err := c.Compute("RELIANCE", 100.00, market.Long, normalEstimate(2.00), 100000)
	if err != nil {
		t.Fatalf("Compute returned error: %v", err)
	}
	if math.Abs(lv.Stop-97.00) > 1e-9 {
		t.Fatalf("expected stop 97.00, got %.2f", lv.Stop)
	}
	if lv.Target < 104.0 || lv.Target > 105.0 {
		t.Fatalf("expected target in 104..105, got %.2f", lv.Target)
	}
	if lv.Risk <= 0 || lv.Reward <= 0 {
		t.Fatalf("risk and reward must be positive: %+v", lv)
	}
	if lv.RR < 0.45 || lv.RR > 5.0 {
		t.Fatalf("reward:risk %.2f outside accepted band", lv.RR)
	}
}

func TestShortStopSitsAboveEntry(t *testing.T) {
	c := NewCalculator(Config{}, stubHistory{err: errors.New("no history")}, time.UTC, zerolog.Nop())

	lv, err := c.Compute("INFY", 100.00, market.Short, normalEstimate(2.00), 100000)
	if err != nil {
		t.Fatalf("Compute returned error: %v", err)
	}
	if lv.Stop <= 100.00 {
		t.Fatalf("short stop must sit above entry, got %.2f", lv.Stop)
	}
	if lv.Target >= 100.00 {
		t.Fatalf("short target must sit below entry, got %.2f", lv.Target)
	}
}

func TestPivotTightensStop(t *testing.T) {
	// prior session H=102 L=96 C=99 → P=99, S1=2*99-102=96, R1=2*99-96=102
	hist := stubHistory{prior: market.Bar{High: 102, Low: 96, Close: 99}}
	c := NewCalculator(Config{}, hist, time.UTC, zerolog.Nop())

	// raw stop 100-3=97; pivot P=99 is protective, dist 1.0 within
	// [0.25*2, 1.5*2] and nearer than the raw stop
	lv, err := c.Compute("SBIN", 100.00, market.Long, normalEstimate(2.00), 100000)
	if err != nil {
		t.Fatalf("Compute returned error: %v", err)
	}
	if math.Abs(lv.Stop-99.00) > 1e-9 {
		t.Fatalf("expected pivot-tightened stop 99.00, got %.2f", lv.Stop)
	}
	if !lv.Tightened {
		t.Fatalf("tighten flag should be set")
	}
}

func TestLowCapitalNarrowsStopBand(t *testing.T) {
	c := NewCalculator(Config{}, stubHistory{err: errors.New("no history")}, time.UTC, zerolog.Nop())

	// vol 3.5 → raw stop distance 5.25, above the 3% low-capital ceiling
	lv, err := c.Compute("TCS", 100.00, market.Long, normalEstimate(3.5), 20000)
	if err != nil {
		t.Fatalf("Compute returned error: %v", err)
	}
	if math.Abs(lv.Risk-3.00) > 1e-9 {
		t.Fatalf("expected stop clamped to 3%% of entry, got risk %.2f", lv.Risk)
	}
}

func TestRewardRiskGate(t *testing.T) {
	c := NewCalculator(Config{RRMax: 1.2}, stubHistory{err: errors.New("no history")}, time.UTC, zerolog.Nop())

	// NORMAL target multiple 2.2 vs stop multiple 1.5 → rr ≈ 1.47 > 1.2
	_, err := c.Compute("WIPRO", 100.00, market.Long, normalEstimate(2.00), 100000)
	if !errors.Is(err, ErrUnusable) {
		t.Fatalf("expected ErrUnusable, got %v", err)
	}
}

func TestTightenRetriesWideStop(t *testing.T) {
	c := NewCalculator(Config{}, stubHistory{err: errors.New("no history")}, time.UTC, zerolog.Nop())

	lv := Levels{Stop: 95, Risk: 5, Target: 104.4, Reward: 4.4, RR: 0.88}
	tight, err := c.Tighten(lv, 100.00, market.Long)
	if err != nil {
		t.Fatalf("Tighten returned error: %v", err)
	}
	if math.Abs(tight.Risk-3.00) > 1e-9 {
		t.Fatalf("expected narrowed risk 3.00, got %.2f", tight.Risk)
	}
	if tight.Stop <= lv.Stop {
		t.Fatalf("tightened stop must move toward entry")
	}

	if _, err := c.Tighten(tight, 100.00, market.Long); !errors.Is(err, ErrUnusable) {
		t.Fatalf("second tighten must fail, got %v", err)
	}
}

func TestPivotsFromPriorSession(t *testing.T) {
	pv := PivotsFrom(market.Bar{High: 110, Low: 100, Close: 105})
	if math.Abs(pv.P-105) > 1e-9 {
		t.Fatalf("pivot: got %.2f want 105", pv.P)
	}
	if math.Abs(pv.S1-100) > 1e-9 || math.Abs(pv.R1-110) > 1e-9 {
		t.Fatalf("S1/R1: got %.2f/%.2f want 100/110", pv.S1, pv.R1)
	}
	if math.Abs(pv.S2-95) > 1e-9 || math.Abs(pv.R2-115) > 1e-9 {
		t.Fatalf("S2/R2: got %.2f/%.2f want 95/115", pv.S2, pv.R2)
	}
}
