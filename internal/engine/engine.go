package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"tradepilot-go/internal/broker"
	"tradepilot-go/internal/evaluate"
	"tradepilot-go/internal/feed"
	"tradepilot-go/internal/guard"
	"tradepilot-go/internal/instrument"
	"tradepilot-go/internal/levels"
	"tradepilot-go/internal/lifecycle"
	"tradepilot-go/internal/market"
	"tradepilot-go/internal/metrics"
	"tradepilot-go/internal/signal"
	"tradepilot-go/internal/sizing"
	"tradepilot-go/internal/volatility"
)

// brokerTimeout bounds every broker call made on the hot path.
const brokerTimeout = 5 * time.Second

// Config carries the runner knobs mapped from the YAML config.
type Config struct {
	Symbols        []string
	BarInterval    time.Duration
	HistoryBars    int
	QuoteBuffer    int
	ReconcileEvery time.Duration
}

func (c Config) withDefaults() Config {
	if c.BarInterval <= 0 {
		c.BarInterval = time.Minute
	}
	if c.HistoryBars <= 0 {
		c.HistoryBars = 120
	}
	if c.QuoteBuffer <= 0 {
		c.QuoteBuffer = 256
	}
	if c.ReconcileEvery <= 0 {
		c.ReconcileEvery = 30 * time.Second
	}
	return c
}

// Deps bundles the collaborators the runner wires together. Guard registry,
// caches, and the position book are shared across all symbol loops.
type Deps struct {
	Tactic    Tactic
	Provider  feed.Provider
	Benchmark *feed.Benchmark
	Estimator *volatility.Estimator
	Levels    *levels.Calculator
	Evaluator *evaluate.Evaluator
	Selector  *instrument.Selector
	Sizer     *sizing.Sizer
	Registry  *guard.Registry
	Book      *lifecycle.Manager
	Broker    broker.Client
	Journal   *signal.Journal
	Store     *Store
	Deferred  *signal.DeferredList
}

// Engine fans incoming quotes out to one evaluation loop per symbol and runs
// each candidate through the full decision path.
type Engine struct {
	cfg Config
	d   Deps
	log zerolog.Logger
}

// New builds a runner around the shared collaborators.
func New(cfg Config, d Deps, log zerolog.Logger) *Engine {
	return &Engine{cfg: cfg.withDefaults(), d: d, log: log}
}

// Deferred exposes expired-but-interesting candidates for observability.
func (e *Engine) Deferred() []signal.DeferredEntry {
	if e.d.Deferred == nil {
		return nil
	}
	return e.d.Deferred.Snapshot()
}

// Run starts the provider, routes quotes to their symbol loops, and blocks
// until ctx is done or the provider fails.
func (e *Engine) Run(ctx context.Context) error {
	quotes := make(chan market.Quote, e.cfg.QuoteBuffer)
	lanes := make(map[string]chan market.Quote, len(e.cfg.Symbols))

	var wg sync.WaitGroup
	for _, sym := range e.cfg.Symbols {
		lane := make(chan market.Quote, e.cfg.QuoteBuffer)
		lanes[sym] = lane
		wg.Add(1)
		go func(sym string, lane chan market.Quote) {
			defer wg.Done()
			e.symbolLoop(ctx, sym, lane)
		}(sym, lane)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		e.reconcileLoop(ctx)
	}()

	errc := make(chan error, 1)
	go func() { errc <- e.d.Provider.Run(ctx, quotes) }()

	var runErr error
route:
	for {
		select {
		case <-ctx.Done():
			break route
		case err := <-errc:
			runErr = err
			break route
		case q := <-quotes:
			metrics.QuotesTotal.WithLabelValues(q.Symbol).Inc()
			lane, ok := lanes[q.Symbol]
			if !ok {
				continue
			}
			select {
			case lane <- q:
			default:
				e.log.Warn().Str("symbol", q.Symbol).Msg("quote lane full, dropping")
			}
		}
	}

	for _, lane := range lanes {
		close(lane)
	}
	wg.Wait()

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return fmt.Errorf("provider: %w", runErr)
	}
	return nil
}

// symbolLoop owns one symbol end to end: lifecycle ticks on every quote, bar
// assembly, and candidate evaluation on each bar close.
func (e *Engine) symbolLoop(ctx context.Context, symbol string, lane <-chan market.Quote) {
	agg := market.NewAggregator(e.cfg.BarInterval)
	for q := range lane {
		e.manage(ctx, q)
		if bar, ok := agg.Update(q); ok {
			e.d.Store.Append(symbol, bar)
			e.evaluateBar(ctx, symbol, q)
		}
	}
}

// manage ticks every tracked position on this underlying, proxying the
// underlying price for derivative legs, and dispatches any exits.
func (e *Engine) manage(ctx context.Context, q market.Quote) {
	root := instrument.Root(q.Symbol)
	for _, p := range e.d.Book.Snapshot() {
		if p.Underlying != root {
			continue
		}
		proxy := q
		proxy.Symbol = p.Symbol
		for _, intent := range e.d.Book.OnTick(proxy) {
			e.dispatchExit(ctx, intent)
		}
	}
}

// evaluateBar asks the tactic for a candidate and walks it through the
// decision path. A panic here is recovered so one symbol cannot disturb the
// others.
func (e *Engine) evaluateBar(ctx context.Context, symbol string, q market.Quote) {
	defer func() {
		if r := recover(); r != nil {
			metrics.EvalPanicsTotal.WithLabelValues(symbol).Inc()
			e.log.Error().Str("symbol", symbol).Interface("panic", r).Msg("evaluation panicked")
		}
	}()

	bars, err := e.d.Store.RecentBars(ctx, symbol, e.cfg.HistoryBars)
	if err != nil {
		return
	}
	cand := e.d.Tactic.OnBar(symbol, bars)
	if cand == nil {
		return
	}
	e.decide(ctx, *cand, bars, q)
}

// decide runs volatility, levels, evaluation, instrument selection, sizing,
// and dispatch for one candidate, recording exactly one journal outcome.
func (e *Engine) decide(ctx context.Context, c signal.Candidate, bars []market.Bar, q market.Quote) {
	root := instrument.Root(c.Symbol)
	est := e.d.Estimator.For(c.Symbol, bars)

	out := e.d.Evaluator.Evaluate(c, evaluate.Input{
		Root:            root,
		Bars:            bars,
		SymbolChange:    e.sessionChange(c.Symbol, q.Last),
		BenchmarkChange: e.benchmarkChange(),
		Volatility:      est,
	})
	if !out.Accepted {
		e.record(out)
		return
	}

	base, err := e.d.Sizer.SizingBase(ctx)
	if err != nil {
		e.record(signal.Reject(c, signal.ReasonDegraded, err.Error()))
		return
	}
	lv, err := e.d.Levels.Compute(c.Symbol, c.Entry, c.Direction, est, base)
	if err != nil {
		e.record(signal.Reject(c, signal.ReasonInvalidLevels, err.Error()))
		return
	}
	res, err := e.d.Selector.Select(c, out, est.Regime)
	if err != nil {
		e.record(signal.Reject(c, signal.ReasonNoInstrument, err.Error()))
		return
	}

	intent, err := e.d.Sizer.Size(ctx, c, lv, res)
	if err != nil && res.Form != instrument.Cash {
		// a derivative leg that cannot be sized falls back to cash once
		res = e.d.Selector.CashFallback(c)
		intent, err = e.d.Sizer.Size(ctx, c, lv, res)
	}
	if err != nil {
		e.record(signal.Reject(c, sizeReason(err), err.Error()))
		return
	}

	if e.d.Evaluator.Reversal(c, root) {
		for _, exit := range e.d.Book.CloseUnderlying(root, q.Last, lifecycle.TriggerReversal) {
			e.dispatchExit(ctx, exit)
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, brokerTimeout)
	ack, err := e.d.Broker.PlaceOrder(callCtx, intent)
	cancel()
	if err != nil {
		e.record(signal.Reject(c, signal.ReasonDegraded, err.Error()))
		e.log.Warn().Err(err).Str("symbol", intent.Symbol).Msg("placement failed")
		return
	}

	e.d.Registry.MarkOrder(root)
	e.d.Book.Track(lifecycle.Position{
		ID:           intent.ID,
		Symbol:       intent.Symbol,
		Underlying:   root,
		Form:         res.Form,
		Direction:    c.Direction,
		Entry:        ack.AvgPrice,
		Qty:          ack.FilledQty,
		RemainingQty: ack.FilledQty,
		Stop:         lv.Stop,
		Target:       lv.Target,
		LotSize:      res.LotSize,
		EnteredAt:    ack.PlacedAt,
		State:        lifecycle.StateEntered,
	})
	e.record(out)
	e.log.Info().
		Str("symbol", intent.Symbol).
		Str("dir", string(c.Direction)).
		Int("qty", ack.FilledQty).
		Float64("px", ack.AvgPrice).
		Float64("stop", lv.Stop).
		Float64("target", lv.Target).
		Msg("entered position")
}

// dispatchExit forwards one lifecycle exit intent to the broker.
func (e *Engine) dispatchExit(ctx context.Context, intent broker.ExitIntent) {
	callCtx, cancel := context.WithTimeout(ctx, brokerTimeout)
	defer cancel()
	if _, err := e.d.Broker.ExitPosition(callCtx, intent); err != nil {
		e.log.Error().Err(err).Str("symbol", intent.Symbol).Str("trigger", intent.Trigger).Msg("exit dispatch failed")
	}
}

// reconcileLoop periodically folds the broker's authoritative book into the
// lifecycle manager. A failed read keeps the current book.
func (e *Engine) reconcileLoop(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.ReconcileEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			callCtx, cancel := context.WithTimeout(ctx, brokerTimeout)
			records, err := e.d.Broker.OpenPositions(callCtx)
			cancel()
			if err != nil {
				e.log.Warn().Err(err).Msg("reconcile read failed, keeping book")
				continue
			}
			e.d.Book.Reconcile(records)
		}
	}
}

// sessionChange is the symbol's fractional move since the session open.
func (e *Engine) sessionChange(symbol string, last float64) float64 {
	open, ok := e.d.Store.SessionOpen(symbol)
	if !ok || last <= 0 {
		return 0
	}
	return (last - open) / open
}

func (e *Engine) benchmarkChange() float64 {
	if e.d.Benchmark == nil {
		return 0
	}
	return e.d.Benchmark.Change()
}

// record counts and journals the single verdict for a candidate.
func (e *Engine) record(o signal.Outcome) {
	metrics.SignalsTotal.WithLabelValues(o.Strategy, string(o.Reason)).Inc()
	if e.d.Journal != nil {
		e.d.Journal.Record(o)
	}
}

// sizeReason maps sizer errors onto journal reason codes.
func sizeReason(err error) signal.Reason {
	switch {
	case errors.Is(err, sizing.ErrMarginCap):
		return signal.ReasonMarginCap
	case errors.Is(err, sizing.ErrDegraded):
		return signal.ReasonDegraded
	default:
		return signal.ReasonUnsizeable
	}
}
