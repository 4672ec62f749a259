// Package instrument maintains per-underlying contract metadata and chooses
// the cash, futures, or options form that best expresses an accepted signal.
package instrument

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Form enumerates the tradable representations of one underlying.
type Form string

const (
	// Cash is a plain equity position.
	Cash Form = "CASH"
	// Futures is the near-month futures contract.
	Futures Form = "FUTURES"
	// Options is the near-month option contract at the candidate strike.
	Options Form = "OPTIONS"
)

// Meta is the catalog row for one underlying root.
type Meta struct {
	Root           string
	Index          bool // index underlyings trade derivatives only
	LotSize        int
	HasFutures     bool
	HasOptions     bool
	Expiry         time.Time
	ImpliedVol     float64 // annualized percent, e.g. 32.5
	Premium        float64 // indicative option premium per unit
	FuturesSymbol  string
	OptionSymbol   string
	AvgTradedValue float64 // liquidity proxy
}

// Source is the collaborator the catalog refreshes from.
type Source interface {
	Fetch(ctx context.Context) ([]Meta, error)
}

// Catalog caches instrument metadata, refreshed periodically. Reads fall
// back to the last successful fetch when the collaborator is down.
type Catalog struct {
	log      zerolog.Logger
	source   Source
	interval time.Duration
	mu       sync.RWMutex
	entries  map[string]Meta
}

// NewCatalog seeds the catalog and wires the refresh source (nil source
// keeps the seed static).
func NewCatalog(seed []Meta, source Source, interval time.Duration, log zerolog.Logger) *Catalog {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	c := &Catalog{
		log:      log,
		source:   source,
		interval: interval,
		entries:  make(map[string]Meta, len(seed)),
	}
	for _, m := range seed {
		c.entries[m.Root] = m
	}
	return c
}

// Start launches the periodic refresh loop in a goroutine.
func (c *Catalog) Start(ctx context.Context) {
	if c.source == nil {
		return
	}
	go c.loop(ctx)
}

func (c *Catalog) loop(ctx context.Context) {
	if err := c.Refresh(ctx); err != nil {
		c.log.Warn().Err(err).Msg("instrument catalog refresh failed, serving last known good")
	}
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.Refresh(ctx); err != nil {
				c.log.Warn().Err(err).Msg("instrument catalog refresh failed, serving last known good")
			}
		}
	}
}

// Refresh replaces entries with a fresh fetch. A failed fetch leaves the
// previous snapshot untouched.
func (c *Catalog) Refresh(ctx context.Context) error {
	fetchCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	rows, err := c.source.Fetch(fetchCtx)
	if err != nil {
		return err
	}
	next := make(map[string]Meta, len(rows))
	for _, m := range rows {
		next[m.Root] = m
	}
	c.mu.Lock()
	c.entries = next
	c.mu.Unlock()
	c.log.Debug().Int("roots", len(rows)).Msg("instrument catalog refreshed")
	return nil
}

// Lookup returns the metadata for an underlying root.
func (c *Catalog) Lookup(root string) (Meta, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.entries[root]
	return m, ok
}

// Len reports the number of catalogued roots.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Root normalizes a tradable symbol to its underlying root: uppercased,
// exchange prefix dropped, derivative suffixes (expiry, strike, FUT/CE/PE)
// stripped at the first digit.
func Root(symbol string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if i := strings.IndexByte(s, ':'); i >= 0 {
		s = s[i+1:]
	}
	if i := strings.IndexByte(s, '-'); i >= 0 {
		s = s[:i]
	}
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			return s[:i]
		}
	}
	return s
}
