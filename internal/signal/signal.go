// Package signal defines the candidate trade idea handed to the decision
// pipeline and the machine-readable outcome it produces.
package signal

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"tradepilot-go/internal/market"
)

// DefaultValidity bounds how long an unexecuted candidate stays actionable.
const DefaultValidity = 120 * time.Second

// MaxConfidence is the top of the raw confidence scale.
const MaxConfidence = 10.0

// Candidate is a draft directional trade idea emitted by a strategy. It is
// immutable once handed to the evaluator; every candidate is evaluated
// exactly once (accept, reject, or expire).
type Candidate struct {
	ID          uuid.UUID
	Symbol      string
	Direction   market.Direction
	Confidence  float64 // raw score, 0..10
	Entry       float64
	Stop        float64 // suggested; 0 lets the level calculator decide
	Target      float64 // suggested; 0 lets the level calculator decide
	GeneratedAt time.Time
	Strategy    string
	Reversal    bool // opposite an existing open position on the underlying
}

// NewCandidate stamps a fresh candidate with an ID and generation time.
func NewCandidate(symbol string, dir market.Direction, confidence, entry float64, strategy string) Candidate {
	return Candidate{
		ID:          uuid.New(),
		Symbol:      symbol,
		Direction:   dir,
		Confidence:  confidence,
		Entry:       entry,
		GeneratedAt: time.Now(),
		Strategy:    strategy,
	}
}

// Validate rejects malformed candidates before any evaluation work happens.
func (c Candidate) Validate() error {
	if c.Symbol == "" {
		return errors.New("candidate missing symbol")
	}
	if !c.Direction.Valid() {
		return fmt.Errorf("candidate %s has unknown direction %q", c.Symbol, c.Direction)
	}
	if c.Confidence < 0 || c.Confidence > MaxConfidence {
		return fmt.Errorf("candidate %s confidence %.2f outside [0,%.0f]", c.Symbol, c.Confidence, MaxConfidence)
	}
	if c.Entry <= 0 {
		return fmt.Errorf("candidate %s entry %.2f must be positive", c.Symbol, c.Entry)
	}
	if c.GeneratedAt.IsZero() {
		return errors.New("candidate missing generation time")
	}
	return nil
}

// Age reports how long ago the candidate was generated.
func (c Candidate) Age(now time.Time) time.Duration { return now.Sub(c.GeneratedAt) }

// Expired reports whether the candidate fell outside the validity window.
func (c Candidate) Expired(now time.Time, validity time.Duration) bool {
	if validity <= 0 {
		validity = DefaultValidity
	}
	return c.Age(now) >= validity
}

// Reason is the machine-readable code attached to every evaluation outcome.
type Reason string

const (
	ReasonAccepted         Reason = "accepted"
	ReasonInvalid          Reason = "invalid candidate"
	ReasonExpired          Reason = "validity window elapsed"
	ReasonCooldown         Reason = "cooldown active"
	ReasonOpenPosition     Reason = "same-direction position open"
	ReasonRelativeStrength Reason = "relative strength disagrees"
	ReasonTrendConflict    Reason = "counter to dominant trend"
	ReasonBelowThreshold   Reason = "below adaptive threshold"
	ReasonInvalidLevels    Reason = "stop/target levels unusable"
	ReasonUnsizeable       Reason = "no sizeable quantity"
	ReasonMarginCap        Reason = "margin cap exceeded"
	ReasonNoInstrument     Reason = "no tradable instrument form"
	ReasonDegraded         Reason = "collaborator data unavailable"
)

// Degraded distinguishes "the system could not decide" from "the signal was
// filtered by design".
func (r Reason) Degraded() bool { return r == ReasonDegraded }

// Outcome records the single evaluation verdict for a candidate.
type Outcome struct {
	CandidateID uuid.UUID `json:"candidate_id"`
	Symbol      string    `json:"symbol"`
	Strategy    string    `json:"strategy"`
	Accepted    bool      `json:"accepted"`
	Reason      Reason    `json:"reason"`
	Confidence  float64   `json:"confidence"` // multiplier-scaled, 0..10
	Threshold   float64   `json:"threshold"`  // adaptive threshold in force
	Alignment   int       `json:"alignment"`  // timeframe agreement, 0..3
	Notes       []string  `json:"notes,omitempty"`
	EvaluatedAt time.Time `json:"evaluated_at"`
}

// Accept builds an accepted outcome for the candidate.
func Accept(c Candidate, confidence, threshold float64, alignment int, notes []string) Outcome {
	return Outcome{
		CandidateID: c.ID,
		Symbol:      c.Symbol,
		Strategy:    c.Strategy,
		Accepted:    true,
		Reason:      ReasonAccepted,
		Confidence:  confidence,
		Threshold:   threshold,
		Alignment:   alignment,
		Notes:       notes,
		EvaluatedAt: time.Now(),
	}
}

// Reject builds a rejected outcome carrying the filter's reason.
func Reject(c Candidate, reason Reason, notes ...string) Outcome {
	return Outcome{
		CandidateID: c.ID,
		Symbol:      c.Symbol,
		Strategy:    c.Strategy,
		Accepted:    false,
		Reason:      reason,
		Notes:       notes,
		EvaluatedAt: time.Now(),
	}
}
