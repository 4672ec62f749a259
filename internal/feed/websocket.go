package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"tradepilot-go/internal/market"
	"tradepilot-go/internal/metrics"
)

// quoteEnvelope is the venue's per-symbol quote message.
type quoteEnvelope struct {
	Symbol string  `json:"s"`
	Last   float64 `json:"ltp"`
	Bid    float64 `json:"bid"`
	Ask    float64 `json:"ask"`
	Volume float64 `json:"v"`
	TsMs   int64   `json:"t"`
}

// Websocket streams quotes from a venue websocket endpoint, reconnecting
// with capped exponential backoff on disconnects.
type Websocket struct {
	url     string
	symbols []string
	log     zerolog.Logger
}

// NewWebsocket builds a websocket provider for the given endpoint.
func NewWebsocket(url string, symbols []string, log zerolog.Logger) *Websocket {
	return &Websocket{url: url, symbols: dedupe(symbols), log: log}
}

// Name identifies the provider in logs.
func (w *Websocket) Name() string { return ProviderWebsocket }

// Run consumes the stream until the context is cancelled, retrying transient
// disconnects.
func (w *Websocket) Run(ctx context.Context, out chan<- market.Quote) error {
	if len(w.symbols) == 0 {
		return fmt.Errorf("websocket feed requires at least one symbol")
	}

	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := w.consume(ctx, out); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.log.Warn().Err(err).Msg("quote stream disconnected, retrying")
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			backoff = time.Duration(math.Min(float64(maxBackoff), float64(backoff)*1.8))
			continue
		}
		return nil
	}
}

func (w *Websocket) consume(ctx context.Context, out chan<- market.Quote) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, w.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	w.log.Info().Str("url", w.url).Strs("symbols", w.symbols).Msg("connected market data feed")

	sub := struct {
		Action  string   `json:"action"`
		Symbols []string `json:"symbols"`
	}{Action: "subscribe", Symbols: w.symbols}
	conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	conn.SetReadLimit(1 << 20)
	conn.SetReadDeadline(time.Now().Add(30 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(30 * time.Second))
		return nil
	})

	pingCtx, pingCancel := context.WithCancel(ctx)
	defer pingCancel()
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					w.log.Warn().Err(err).Msg("feed ping failed")
					return
				}
			case <-pingCtx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		_, message, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var env quoteEnvelope
		if err := json.Unmarshal(message, &env); err != nil {
			w.log.Warn().Err(err).Msg("failed to decode quote message")
			continue
		}
		if env.Symbol == "" || env.Last <= 0 {
			continue
		}
		symbol := strings.ToUpper(env.Symbol)
		q := market.Quote{
			Symbol: symbol,
			Last:   env.Last,
			Bid:    env.Bid,
			Ask:    env.Ask,
			Volume: env.Volume,
			Ts:     time.UnixMilli(env.TsMs),
		}

		select {
		case out <- q:
			metrics.QuotesTotal.WithLabelValues(symbol).Inc()
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
