package sizing

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"tradepilot-go/internal/instrument"
	"tradepilot-go/internal/levels"
	"tradepilot-go/internal/market"
	"tradepilot-go/internal/signal"
)

type stubMargin struct {
	avail float64
	err   error
	calls int
}

func (s *stubMargin) AvailableMargin(ctx context.Context) (float64, error) {
	s.calls++
	if s.err != nil {
		return 0, s.err
	}
	return s.avail, nil
}

type noHistory struct{}

func (noHistory) RecentBars(ctx context.Context, symbol string, n int) ([]market.Bar, error) {
	return nil, errors.New("no history")
}

func (noHistory) PriorSession(ctx context.Context, symbol string) (market.Bar, error) {
	return market.Bar{}, errors.New("no history")
}

func newSizer(margin *stubMargin) *Sizer {
	lc := levels.NewCalculator(levels.Config{}, noHistory{}, time.UTC, zerolog.Nop())
	return New(Config{}, margin, lc, time.UTC, zerolog.Nop())
}

func cashResolution(symbol string, leverage float64) instrument.Resolution {
	return instrument.Resolution{
		Form:      instrument.Cash,
		Symbol:    symbol,
		Root:      symbol,
		Direction: market.Long,
		LotSize:   1,
		Leverage:  leverage,
	}
}

func TestSizeMatchesWorkedScenario(t *testing.T) {
	margin := &stubMargin{avail: 100000}
	s := newSizer(margin)

	c := signal.NewCandidate("RELIANCE", market.Long, 9.0, 100.00, "momentum")
	lv := levels.Levels{Stop: 97.00, Target: 104.40, Risk: 3.00, Reward: 4.40, RR: 4.40 / 3.00}

	intent, err := s.Size(context.Background(), c, lv, cashResolution("RELIANCE", 4))
	if err != nil {
		t.Fatalf("Size returned error: %v", err)
	}
	if intent.Qty != 333 {
		t.Fatalf("expected risk-capped qty 333, got %d", intent.Qty)
	}
	if math.Abs(intent.Notional()-33300) > 1e-9 {
		t.Fatalf("expected notional 33300, got %.2f", intent.Notional())
	}
	if intent.Notional() > 100000*4 {
		t.Fatalf("notional must never exceed base times leverage")
	}
	if intent.Stop != 97.00 || intent.Target != 104.40 {
		t.Fatalf("levels must be carried onto the intent: %+v", intent)
	}
}

func TestLotSizeFlooring(t *testing.T) {
	margin := &stubMargin{avail: 1000000}
	s := newSizer(margin)

	c := signal.NewCandidate("SBIN", market.Long, 9.0, 600.00, "momentum")
	lv := levels.Levels{Stop: 594.00, Target: 613.2, Risk: 6.00, Reward: 13.2, RR: 2.2}
	res := cashResolution("SBIN24AUGFUT", 4)
	res.Form = instrument.Futures
	res.LotSize = 750

	intent, err := s.Size(context.Background(), c, lv, res)
	if err != nil {
		t.Fatalf("Size returned error: %v", err)
	}
	// risk qty floor(10000/6)=1666 floors to two lots of 750
	if intent.Qty != 1500 {
		t.Fatalf("expected lot-floored qty 1500, got %d", intent.Qty)
	}
}

func TestSubMinimumNotionalRejected(t *testing.T) {
	margin := &stubMargin{avail: 200000}
	s := newSizer(margin)

	// tight risk budget: floor(2000/80) = 25 units of a 100-rupee stock
	c := signal.NewCandidate("PENNY", market.Long, 9.0, 100.00, "momentum")
	lv := levels.Levels{Stop: 20, Target: 110, Risk: 80, Reward: 10, RR: 0.5, Tightened: true}

	_, err := s.Size(context.Background(), c, lv, cashResolution("PENNY", 1))
	if !errors.Is(err, ErrUnsizeable) {
		t.Fatalf("expected ErrUnsizeable, got %v", err)
	}
}

func TestWideStopTightenedAndRetried(t *testing.T) {
	// low-capital day: base 30000, wide 5-point stop on a 100 stock gives
	// floor(300/5)=60 → notional 6000; without the retry a 4.8-point stop
	// would be kept; force a sub-floor first pass via a wider stop
	margin := &stubMargin{avail: 30000}
	s := newSizer(margin)

	c := signal.NewCandidate("MIDCAP", market.Long, 9.0, 100.00, "momentum")
	lv := levels.Levels{Stop: 92.00, Target: 110.00, Risk: 8.00, Reward: 10.00, RR: 1.25}

	intent, err := s.Size(context.Background(), c, lv, cashResolution("MIDCAP", 2))
	if err != nil {
		t.Fatalf("Size returned error: %v", err)
	}
	// tighten pulls risk to 3% of entry; floor(300/3)=100 → notional 10000
	if intent.Qty != 100 {
		t.Fatalf("expected retried qty 100 after tighten, got %d", intent.Qty)
	}
	if math.Abs(intent.Stop-97.00) > 1e-9 {
		t.Fatalf("expected tightened stop 97.00, got %.2f", intent.Stop)
	}
}

func TestMarginCapRejected(t *testing.T) {
	margin := &stubMargin{avail: 100000}
	s := newSizer(margin)
	// consume the day's base, then shrink live margin
	if _, err := s.SizingBase(context.Background()); err != nil {
		t.Fatalf("SizingBase returned error: %v", err)
	}
	margin.avail = 10000

	c := signal.NewCandidate("TCS", market.Long, 9.0, 100.00, "momentum")
	lv := levels.Levels{Stop: 97.00, Target: 104.40, Risk: 3.00, Reward: 4.40, RR: 4.40 / 3.00}

	// feasibility: floor(10000*1/100)=100 → notional 10000, required margin
	// 10000 > 60% of 10000
	_, err := s.Size(context.Background(), c, lv, cashResolution("TCS", 1))
	if !errors.Is(err, ErrMarginCap) {
		t.Fatalf("expected ErrMarginCap, got %v", err)
	}
}

func TestSizingBaseStabilizedOncePerDay(t *testing.T) {
	margin := &stubMargin{avail: 80000}
	s := newSizer(margin)

	first, err := s.SizingBase(context.Background())
	if err != nil {
		t.Fatalf("SizingBase returned error: %v", err)
	}
	margin.avail = 40000
	second, err := s.SizingBase(context.Background())
	if err != nil {
		t.Fatalf("SizingBase returned error: %v", err)
	}
	if first != 80000 || second != 80000 {
		t.Fatalf("base must stay stabilized intraday: %.0f then %.0f", first, second)
	}
	if margin.calls != 1 {
		t.Fatalf("expected a single margin query, got %d", margin.calls)
	}
}

func TestDegradedWhenMarginNeverSeen(t *testing.T) {
	margin := &stubMargin{err: errors.New("broker timeout")}
	s := newSizer(margin)

	c := signal.NewCandidate("RELIANCE", market.Long, 9.0, 100.00, "momentum")
	lv := levels.Levels{Stop: 97.00, Target: 104.40, Risk: 3.00, Reward: 4.40, RR: 4.40 / 3.00}

	_, err := s.Size(context.Background(), c, lv, cashResolution("RELIANCE", 4))
	if !errors.Is(err, ErrDegraded) {
		t.Fatalf("expected ErrDegraded, got %v", err)
	}
}

func TestLiveMarginFailureReusesLastGood(t *testing.T) {
	margin := &stubMargin{avail: 100000}
	s := newSizer(margin)

	c := signal.NewCandidate("RELIANCE", market.Long, 9.0, 100.00, "momentum")
	lv := levels.Levels{Stop: 97.00, Target: 104.40, Risk: 3.00, Reward: 4.40, RR: 4.40 / 3.00}
	if _, err := s.Size(context.Background(), c, lv, cashResolution("RELIANCE", 4)); err != nil {
		t.Fatalf("warm-up Size returned error: %v", err)
	}

	margin.err = errors.New("broker timeout")
	intent, err := s.Size(context.Background(), c, lv, cashResolution("RELIANCE", 4))
	if err != nil {
		t.Fatalf("expected last-known-good reuse, got %v", err)
	}
	if intent.Qty != 333 {
		t.Fatalf("expected qty 333 from cached margin, got %d", intent.Qty)
	}
}
