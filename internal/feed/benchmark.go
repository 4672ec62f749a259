package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"tradepilot-go/internal/market"
)

// Benchmark polls an index quote over HTTP and tracks its session change for
// the relative-strength filter. A failed poll keeps serving the last good
// quote rather than failing evaluation.
type Benchmark struct {
	symbol   string
	url      string
	interval time.Duration
	client   *http.Client
	log      zerolog.Logger

	mu          sync.RWMutex
	sessionOpen float64
	latest      market.Quote
	haveQuote   bool
}

type benchmarkPayload struct {
	Symbol string  `json:"symbol"`
	Last   float64 `json:"last"`
	Open   float64 `json:"open"`
	Volume float64 `json:"volume"`
}

// NewBenchmark builds a poller for the given index endpoint.
func NewBenchmark(symbol, url string, interval time.Duration, log zerolog.Logger) *Benchmark {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Benchmark{
		symbol:   symbol,
		url:      url,
		interval: interval,
		client:   &http.Client{Timeout: 10 * time.Second},
		log:      log,
	}
}

// Run polls until the context is cancelled.
func (b *Benchmark) Run(ctx context.Context) error {
	if err := b.poll(ctx); err != nil && !errors.Is(err, context.Canceled) {
		b.log.Warn().Err(err).Msg("initial benchmark poll failed")
	}

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := b.poll(ctx); err != nil && !errors.Is(err, context.Canceled) {
				b.log.Warn().Err(err).Msg("benchmark poll failed, serving last known good")
			}
		}
	}
}

func (b *Benchmark) poll(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("http do: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var payload benchmarkPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if payload.Last <= 0 {
		return fmt.Errorf("benchmark quote missing price")
	}
	b.Observe(market.Quote{Symbol: b.symbol, Last: payload.Last, Volume: payload.Volume, Ts: time.Now().UTC()}, payload.Open)
	return nil
}

// Observe records a quote (exported so tests and alternate transports can
// drive the same state). open seeds the session anchor when positive.
func (b *Benchmark) Observe(q market.Quote, open float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sessionOpen <= 0 {
		if open > 0 {
			b.sessionOpen = open
		} else {
			b.sessionOpen = q.Last
		}
	}
	b.latest = q
	b.haveQuote = true
}

// Latest returns the most recent benchmark quote.
func (b *Benchmark) Latest() (market.Quote, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.latest, b.haveQuote
}

// Change reports the fractional move since the session open, zero until the
// first successful poll.
func (b *Benchmark) Change() float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.haveQuote || b.sessionOpen <= 0 {
		return 0
	}
	return (b.latest.Last - b.sessionOpen) / b.sessionOpen
}
