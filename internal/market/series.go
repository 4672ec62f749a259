package market

import (
	"sync"
	"time"
)

// Series keeps a bounded, append-only window of bars for one symbol.
type Series struct {
	mu   sync.Mutex
	cap  int
	bars []Bar
}

// NewSeries builds a series retaining at most capacity bars.
func NewSeries(capacity int) *Series {
	if capacity <= 0 {
		capacity = 512
	}
	return &Series{cap: capacity, bars: make([]Bar, 0, capacity)}
}

// Append adds a closed bar, evicting the oldest once capacity is reached.
func (s *Series) Append(b Bar) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bars = append(s.bars, b)
	if len(s.bars) > s.cap {
		s.bars = s.bars[len(s.bars)-s.cap:]
	}
}

// Snapshot returns a copy of the retained bars, oldest first.
func (s *Series) Snapshot() []Bar {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Bar, len(s.bars))
	copy(out, s.bars)
	return out
}

// Tail returns up to n most recent bars, oldest first.
func (s *Series) Tail(n int) []Bar {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n <= 0 || len(s.bars) == 0 {
		return nil
	}
	if n > len(s.bars) {
		n = len(s.bars)
	}
	out := make([]Bar, n)
	copy(out, s.bars[len(s.bars)-n:])
	return out
}

// Len reports the number of retained bars.
func (s *Series) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.bars)
}

// Aggregator folds quotes into fixed-interval bars and emits each bar as it
// closes. It is not safe for concurrent use; the engine owns one per symbol.
type Aggregator struct {
	interval time.Duration
	open     bool
	cur      Bar
}

// NewAggregator builds an aggregator producing bars of the given interval
// (defaults to one minute).
func NewAggregator(interval time.Duration) *Aggregator {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Aggregator{interval: interval}
}

// Update folds a quote into the working bar. When the quote crosses an
// interval boundary the finished bar is returned with ok=true.
func (a *Aggregator) Update(q Quote) (closed Bar, ok bool) {
	bucket := q.Ts.Truncate(a.interval)
	if !a.open {
		a.cur = Bar{Ts: bucket, Open: q.Last, High: q.Last, Low: q.Last, Close: q.Last, Volume: q.Volume}
		a.open = true
		return Bar{}, false
	}
	if bucket.After(a.cur.Ts) {
		closed = a.cur
		a.cur = Bar{Ts: bucket, Open: q.Last, High: q.Last, Low: q.Last, Close: q.Last, Volume: q.Volume}
		return closed, true
	}
	if q.Last > a.cur.High {
		a.cur.High = q.Last
	}
	if q.Last < a.cur.Low {
		a.cur.Low = q.Last
	}
	a.cur.Close = q.Last
	a.cur.Volume += q.Volume
	return Bar{}, false
}

// Current returns the working bar (zero value before the first quote).
func (a *Aggregator) Current() Bar { return a.cur }
