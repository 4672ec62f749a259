package volatility

import (
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"tradepilot-go/internal/market"
)

func flatBars(n int, price float64) []market.Bar {
	base := time.Date(2025, 6, 2, 9, 15, 0, 0, time.UTC)
	bars := make([]market.Bar, n)
	for i := range bars {
		bars[i] = market.Bar{
			Ts:    base.Add(time.Duration(i) * time.Minute),
			Open:  price,
			High:  price + 1,
			Low:   price - 1,
			Close: price,
		}
	}
	return bars
}

func TestFallbackOnNoHistory(t *testing.T) {
	e := NewEstimator(Config{}, zerolog.Nop())

	est := e.Compute("RELIANCE", []market.Bar{{Close: 2500}})
	if !est.Degraded {
		t.Fatalf("single bar must degrade to fallback")
	}
	want := 2500 * 0.02
	if math.Abs(est.Blended-want) > 1e-9 {
		t.Fatalf("fallback should be 2%% of price: got %.2f want %.2f", est.Blended, want)
	}
}

func TestTrueRangeOnlyWithShortHistory(t *testing.T) {
	e := NewEstimator(Config{}, zerolog.Nop())

	bars := flatBars(5, 1000)
	est := e.Compute("INFY", bars)
	if est.Degraded {
		t.Fatalf("five bars should not degrade")
	}
	if est.Garch != 0 {
		t.Fatalf("GARCH term needs ten bars, got %.4f", est.Garch)
	}
	// each bar spans high-low = 2; flat closes keep TR at 2, clamped up to
	// the 0.3% floor of price 1000 = 3.
	if math.Abs(est.Blended-3.0) > 1e-9 {
		t.Fatalf("expected clamp to floor 3.0, got %.4f", est.Blended)
	}
}

func TestBlendedModeUsesGarch(t *testing.T) {
	e := NewEstimator(Config{}, zerolog.Nop())

	base := time.Date(2025, 6, 2, 9, 15, 0, 0, time.UTC)
	price := 100.0
	bars := make([]market.Bar, 0, 30)
	for i := 0; i < 30; i++ {
		move := 1.5
		if i%2 == 0 {
			move = -1.5
		}
		price += move
		bars = append(bars, market.Bar{
			Ts:    base.Add(time.Duration(i) * time.Minute),
			Open:  price - move,
			High:  math.Max(price, price-move) + 0.5,
			Low:   math.Min(price, price-move) - 0.5,
			Close: price,
		})
	}

	est := e.Compute("TATASTEEL", bars)
	if est.Garch <= 0 {
		t.Fatalf("expected a positive GARCH term with 30 bars")
	}
	if est.TrueRange <= 0 {
		t.Fatalf("expected a positive true-range average")
	}
	want := 0.7*est.Garch + 0.3*est.TrueRange
	last := bars[len(bars)-1].Close
	want = clamp(want, last*0.003, last*0.08)
	if math.Abs(est.Blended-want) > 1e-9 {
		t.Fatalf("blend mismatch: got %.4f want %.4f", est.Blended, want)
	}
}

func TestClampCeiling(t *testing.T) {
	e := NewEstimator(Config{}, zerolog.Nop())

	base := time.Date(2025, 6, 2, 9, 15, 0, 0, time.UTC)
	bars := make([]market.Bar, 0, 12)
	price := 100.0
	for i := 0; i < 12; i++ {
		// wild 20% swings per bar
		move := price * 0.2
		if i%2 == 0 {
			move = -move
		}
		price += move
		bars = append(bars, market.Bar{
			Ts:    base.Add(time.Duration(i) * time.Minute),
			Open:  price - move,
			High:  math.Max(price, price-move),
			Low:   math.Min(price, price-move),
			Close: price,
		})
	}

	est := e.Compute("PENNY", bars)
	ceiling := bars[len(bars)-1].Close * 0.08
	if est.Blended > ceiling+1e-9 {
		t.Fatalf("blended %.4f exceeds 8%% ceiling %.4f", est.Blended, ceiling)
	}
	if est.Regime != RegimeHigh {
		t.Fatalf("ceiling-clamped estimate should classify HIGH, got %s", est.Regime)
	}
}

func TestRegimeClassification(t *testing.T) {
	e := NewEstimator(Config{}, zerolog.Nop())
	cases := []struct {
		blended float64
		price   float64
		want    Regime
	}{
		{0.5, 100, RegimeLow},
		{2.0, 100, RegimeNormal},
		{3.5, 100, RegimeHigh},
	}
	for _, tc := range cases {
		if got := e.classify(tc.blended, tc.price); got != tc.want {
			t.Fatalf("classify(%.1f/%.0f) = %s, want %s", tc.blended, tc.price, got, tc.want)
		}
	}
}

func TestForCachesWithinTTL(t *testing.T) {
	e := NewEstimator(Config{}, zerolog.Nop())

	first := e.For("HDFCBANK", flatBars(12, 1500))
	// different bars, same symbol: cached value must win inside the TTL
	second := e.For("HDFCBANK", flatBars(12, 3000))
	if first.Blended != second.Blended {
		t.Fatalf("expected cached estimate, got %.4f then %.4f", first.Blended, second.Blended)
	}

	e.Invalidate("HDFCBANK")
	third := e.For("HDFCBANK", flatBars(12, 3000))
	if third.Blended == first.Blended {
		t.Fatalf("invalidated symbol should recompute")
	}
}
