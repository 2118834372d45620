package signal

import (
	"math"

	"github.com/quantfold/scalpbot/internal/book"
	"github.com/quantfold/scalpbot/internal/domain"
)

// PatternConfig holds the thresholds for the four order-book patterns.
type PatternConfig struct {
	// A: minimum top-of-book depth imbalance for the bounce pattern.
	DepthImbalanceMin float64
	// B: spread is "tight" when spread <= mid * SpreadTightMultMid.
	SpreadTightMultMid float64
	// C: minimum absolute imbalance for the absorption-reversal pattern.
	AbsorptionMin float64
	// D: spread is "wide" when spread >= mid * WideSpreadMultMid.
	WideSpreadMultMid float64
	// D: microprice deviation threshold, measured in spreads.
	MicroDevMultSpread float64
}

// DefaultPatternConfig returns the tuned production thresholds.
func DefaultPatternConfig() PatternConfig {
	return PatternConfig{
		DepthImbalanceMin:  0.18,
		SpreadTightMultMid: 0.0008,
		AbsorptionMin:      0.35,
		WideSpreadMultMid:  0.0015,
		MicroDevMultSpread: 0.40,
	}
}

// patternRule is one independent predicate/scorer. Rules are evaluated in
// declaration order; the first non-nil result wins.
type patternRule func(f book.FeatureSnapshot, cfg PatternConfig) *Signal

// PatternMatcher evaluates the four ordered order-book patterns A→D.
type PatternMatcher struct {
	cfg   PatternConfig
	rules []patternRule
}

// NewPatternMatcher builds the matcher with its fixed rule order.
func NewPatternMatcher(cfg PatternConfig) *PatternMatcher {
	return &PatternMatcher{
		cfg:   cfg,
		rules: []patternRule{ruleBounce, ruleBreakout, ruleAbsorption, ruleMeanRevert},
	}
}

// Name implements Strategy.
func (m *PatternMatcher) Name() string { return "pattern" }

// Evaluate runs the rules in order and returns the first match, or nil.
func (m *PatternMatcher) Evaluate(b *book.L2Book, _ Series) *Signal {
	f := book.Features(b)
	for _, rule := range m.rules {
		if sig := rule(f, m.cfg); sig != nil {
			return sig
		}
	}
	return nil
}

// ruleBounce (A): strong top-of-book imbalance aligned with the microprice
// tilt. Contrarian wall bounce: heavy bids with micro above mid means buyers
// defending, so go long; mirrored for asks.
func ruleBounce(f book.FeatureSnapshot, cfg PatternConfig) *Signal {
	if f.Imbalance >= cfg.DepthImbalanceMin && f.Micro > f.Mid {
		return &Signal{
			Name:     "A",
			Side:     domain.SideBuy,
			Score:    clampScore(math.Abs(f.Imbalance)),
			Reason:   "bid_imbalance_high_micro_above_mid",
			Features: f,
		}
	}
	if f.Imbalance <= -cfg.DepthImbalanceMin && f.Micro < f.Mid {
		return &Signal{
			Name:     "A",
			Side:     domain.SideSell,
			Score:    clampScore(math.Abs(f.Imbalance)),
			Reason:   "ask_imbalance_high_micro_below_mid",
			Features: f,
		}
	}
	return nil
}

// ruleBreakout (B): tight spread with a microprice tilt, continuation through
// the wall in the tilt direction.
func ruleBreakout(f book.FeatureSnapshot, cfg PatternConfig) *Signal {
	tight := f.Spread <= max(0, f.Mid*cfg.SpreadTightMultMid)
	if !tight {
		return nil
	}
	if f.Micro > f.Mid {
		return &Signal{Name: "B", Side: domain.SideBuy, Score: 0.5, Reason: "micro_above_mid_spread_tight", Features: f}
	}
	if f.Micro < f.Mid {
		return &Signal{Name: "B", Side: domain.SideSell, Score: 0.5, Reason: "micro_below_mid_spread_tight", Features: f}
	}
	return nil
}

// ruleAbsorption (C): strong imbalance pointing opposite to the microprice
// tilt, a proxy for one side absorbing flow before reversing.
func ruleAbsorption(f book.FeatureSnapshot, cfg PatternConfig) *Signal {
	if math.Abs(f.Imbalance) < cfg.AbsorptionMin {
		return nil
	}
	if f.Imbalance > 0 && f.Micro < f.Mid {
		return &Signal{Name: "C", Side: domain.SideSell, Score: clampScore(math.Abs(f.Imbalance)), Reason: "bid_absorption_reversal_down", Features: f}
	}
	if f.Imbalance < 0 && f.Micro > f.Mid {
		return &Signal{Name: "C", Side: domain.SideBuy, Score: clampScore(math.Abs(f.Imbalance)), Reason: "ask_absorption_reversal_up", Features: f}
	}
	return nil
}

// ruleMeanRevert (D): wide spread with the microprice far from mid (measured
// in spreads to stay tick-size neutral) fades the extreme.
func ruleMeanRevert(f book.FeatureSnapshot, cfg PatternConfig) *Signal {
	if f.Mid <= 0 || f.Spread < f.Mid*cfg.WideSpreadMultMid {
		return nil
	}
	den := f.Spread
	if den == 0 {
		den = 1
	}
	dev := math.Abs(f.Micro-f.Mid) / den
	if dev < cfg.MicroDevMultSpread {
		return nil
	}
	side := domain.SideBuy
	if f.Micro > f.Mid {
		side = domain.SideSell
	}
	return &Signal{Name: "D", Side: side, Score: clampScore(dev), Reason: "wide_spread_micro_extreme_mean_revert", Features: f}
}
