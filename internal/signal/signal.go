// Package signal contains the two interchangeable signal strategies: the
// order-book pattern matcher and the multi-indicator pack. Both produce the
// same output contract so the orchestrator can swap them at construction.
package signal

import (
	"fmt"

	"github.com/quantfold/scalpbot/internal/book"
	"github.com/quantfold/scalpbot/internal/domain"
)

// Signal is a scored directional trading signal. Score is in [0, 1].
type Signal struct {
	Name     string
	Side     domain.Side
	Score    float64
	Reason   string
	Features book.FeatureSnapshot
}

// Series carries the price/volume history and trade-flow flags the indicator
// pack consumes. The pattern matcher ignores it and works from the book alone.
type Series struct {
	Closes     []float64
	Volumes    []float64
	WickLong   bool
	TradeBurst bool
	OIDrop     bool
}

// Strategy evaluates one symbol's current market state and returns a signal,
// or nil when no rule fires.
type Strategy interface {
	Name() string
	Evaluate(b *book.L2Book, s Series) *Signal
}

// New constructs the strategy registered under name: "pattern" or "pack".
func New(name string, pattern PatternConfig, pack PackConfig) (Strategy, error) {
	switch name {
	case "pattern":
		return NewPatternMatcher(pattern), nil
	case "pack":
		return NewIndicatorPack(pack), nil
	default:
		return nil, fmt.Errorf("signal: unknown strategy %q", name)
	}
}

func clampScore(v float64) float64 {
	return max(0, min(1, v))
}
