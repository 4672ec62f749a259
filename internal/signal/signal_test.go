package signal

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"tradepilot-go/internal/market"
)

func TestCandidateValidate(t *testing.T) {
	good := NewCandidate("RELIANCE", market.Long, 7.5, 2850, "momentum")
	if err := good.Validate(); err != nil {
		t.Fatalf("valid candidate rejected: %v", err)
	}

	bad := good
	bad.Confidence = 12
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected out-of-range confidence to fail")
	}

	bad = good
	bad.Entry = 0
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected zero entry to fail")
	}

	bad = good
	bad.Direction = "SIDEWAYS"
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected unknown direction to fail")
	}
}

func TestCandidateExpiry(t *testing.T) {
	c := NewCandidate("TCS", market.Short, 8, 3900, "momentum")
	c.GeneratedAt = time.Now().Add(-121 * time.Second)
	if !c.Expired(time.Now(), DefaultValidity) {
		t.Fatalf("candidate older than the validity window should be expired")
	}
	c.GeneratedAt = time.Now().Add(-30 * time.Second)
	if c.Expired(time.Now(), DefaultValidity) {
		t.Fatalf("fresh candidate should not be expired")
	}
}

func TestReasonDegraded(t *testing.T) {
	if ReasonCooldown.Degraded() {
		t.Fatalf("cooldown is a design filter, not degradation")
	}
	if !ReasonDegraded.Degraded() {
		t.Fatalf("degraded reason should report degraded")
	}
}

func TestDeferredListBounded(t *testing.T) {
	list := NewDeferredList(2)
	for i := 0; i < 4; i++ {
		list.Add(NewCandidate("INFY", market.Long, 6, 1500+float64(i), "momentum"))
	}
	entries := list.Snapshot()
	if len(entries) != 2 {
		t.Fatalf("expected bounded list of 2, got %d", len(entries))
	}
	if entries[0].Candidate.Entry != 1502 {
		t.Fatalf("expected oldest entries dropped, got entry %.0f", entries[0].Candidate.Entry)
	}
}

func TestJournalWritesJSONL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "decisions", "out.jsonl")
	journal, err := NewJournal(path)
	if err != nil {
		t.Fatalf("NewJournal returned error: %v", err)
	}

	c := NewCandidate("HDFCBANK", market.Long, 8.2, 1650, "momentum")
	journal.Record(Accept(c, 9.1, 8.0, 3, nil))
	journal.Record(Reject(c, ReasonCooldown))
	if err := journal.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	defer f.Close()

	var lines []Outcome
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var o Outcome
		if err := json.Unmarshal(scanner.Bytes(), &o); err != nil {
			t.Fatalf("bad journal line: %v", err)
		}
		lines = append(lines, o)
	}
	if len(lines) != 2 {
		t.Fatalf("expected 2 journal lines, got %d", len(lines))
	}
	if !lines[0].Accepted || lines[0].Reason != ReasonAccepted {
		t.Fatalf("first line should be the accept: %+v", lines[0])
	}
	if lines[1].Accepted || lines[1].Reason != ReasonCooldown {
		t.Fatalf("second line should be the cooldown reject: %+v", lines[1])
	}
}
