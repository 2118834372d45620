// Package trade implements the per-position lifecycle state machine (partial
// take-profit, trailing stop, time stop) and the consecutive-loss cooldown
// that gates new entries.
package trade

import "github.com/quantfold/scalpbot/internal/domain"

// Params are the state-machine thresholds, all fractions of entry price
// except the time stop.
type Params struct {
	TP1           float64 // favorable move fraction triggering the first partial close
	TrailAfterTP1 float64 // retrace fraction from the trailing anchor that closes the rest
	TimeStopSec   int64   // maximum holding time in seconds
	PartialPct    float64 // fraction of remaining qty closed at TP1
}

// DefaultParams returns the tuned production thresholds.
func DefaultParams() Params {
	return Params{
		TP1:           0.0012,
		TrailAfterTP1: 0.0008,
		TimeStopSec:   900,
		PartialPct:    0.5,
	}
}

// ActionType enumerates the close actions a state update can emit.
type ActionType string

const (
	ActionPartialClose  ActionType = "partial_close"
	ActionTimeStopClose ActionType = "time_stop_close"
)

// Action is one close instruction emitted by Update. The caller executes it
// against the gateway (reduce-only) or the fill simulator.
type Action struct {
	Type   ActionType
	Qty    float64
	Price  float64
	Reason string // tp1 | trail_stop | time_stop
}

// State is the lifecycle of one open position:
//
//	OPEN (pre-TP1) → PARTIAL (TP1 done, trailing active) → CLOSED
//
// with a time-stop transition from any non-closed state. Terminal when
// RealizedQty == Qty.
type State struct {
	Side       domain.Side
	EntryPrice float64
	Qty        float64
	EntryTs    int64 // epoch seconds (caller consistent with now in Update)
	Params     Params

	RealizedQty    float64
	TP1Done        bool
	TrailingActive bool
	TrailAnchor    float64
}

// NewState opens the state machine for a freshly entered position.
func NewState(side domain.Side, entryPrice, qty float64, entryTs int64, p Params) *State {
	return &State{Side: side, EntryPrice: entryPrice, Qty: qty, EntryTs: entryTs, Params: p}
}

// Closed reports whether the full quantity has been realized.
func (s *State) Closed() bool {
	return s.Remaining() <= 0
}

// Remaining returns the still-open quantity.
func (s *State) Remaining() float64 {
	return max(0, s.Qty-s.RealizedQty)
}

func (s *State) long() bool { return s.Side == domain.SideBuy }

// Revert undoes the realization of an action whose execution failed, reopening
// the quantity so a later Update can emit it again. Reverting a TP1 partial
// also disarms the trailing state it activated, since the venue position never
// shrank.
func (s *State) Revert(act Action) {
	s.RealizedQty = max(0, s.RealizedQty-act.Qty)
	if act.Reason == "tp1" {
		s.TP1Done = false
		s.TrailingActive = false
		s.TrailAnchor = 0
	}
}

// Update advances the state machine with the latest price observation and
// returns the close actions to execute. The time stop takes priority over TP
// and trailing checks within the same call and closes the full remainder.
func (s *State) Update(px float64, now int64) []Action {
	var actions []Action
	rem := s.Remaining()
	if rem <= 0 {
		return actions
	}

	if now-s.EntryTs >= s.Params.TimeStopSec {
		actions = append(actions, Action{Type: ActionTimeStopClose, Qty: rem, Price: px, Reason: "time_stop"})
		s.RealizedQty = s.Qty
		return actions
	}

	if !s.TP1Done {
		target := s.EntryPrice * (1 - s.Params.TP1)
		hit := px <= target
		if s.long() {
			target = s.EntryPrice * (1 + s.Params.TP1)
			hit = px >= target
		}
		if hit {
			closeQty := rem * s.Params.PartialPct
			if closeQty > 0 {
				actions = append(actions, Action{Type: ActionPartialClose, Qty: closeQty, Price: px, Reason: "tp1"})
				s.RealizedQty += closeQty
				s.TP1Done = true
				s.TrailingActive = true
				s.TrailAnchor = px
			}
		}
	}

	if s.TrailingActive && !s.Closed() {
		if s.long() {
			s.TrailAnchor = max(s.TrailAnchor, px)
			if stop := s.TrailAnchor * (1 - s.Params.TrailAfterTP1); px <= stop {
				actions = append(actions, Action{Type: ActionPartialClose, Qty: s.Remaining(), Price: px, Reason: "trail_stop"})
				s.RealizedQty = s.Qty
			}
		} else {
			s.TrailAnchor = min(s.TrailAnchor, px)
			if stop := s.TrailAnchor * (1 + s.Params.TrailAfterTP1); px >= stop {
				actions = append(actions, Action{Type: ActionPartialClose, Qty: s.Remaining(), Price: px, Reason: "trail_stop"})
				s.RealizedQty = s.Qty
			}
		}
	}

	return actions
}
