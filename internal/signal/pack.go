package signal

import (
	"math"

	"github.com/quantfold/scalpbot/internal/book"
	"github.com/quantfold/scalpbot/internal/domain"
)

// PackConfig holds the parameters for the three indicator-pack scorers.
type PackConfig struct {
	EMAFast        int
	EMASlow        int
	ImbalanceLong  float64 // MIS: minimum normalized bid share for longs
	ImbalanceShort float64 // MIS: maximum normalized bid share for shorts
	SpreadCeiling  float64 // MIS: absolute spread ceiling
	VWAPDevMin     float64 // VRS: minimum absolute VWAP deviation
	RSI2Low        float64 // VRS fallback: oversold threshold
}

// DefaultPackConfig returns the tuned production parameters.
func DefaultPackConfig() PackConfig {
	return PackConfig{
		EMAFast:        3,
		EMASlow:        9,
		ImbalanceLong:  0.60,
		ImbalanceShort: 0.40,
		SpreadCeiling:  1.0,
		VWAPDevMin:     0.0035,
		RSI2Low:        4,
	}
}

// scored is one scorer's candidate before selection.
type scored struct {
	name  string
	side  domain.Side
	score float64
	ok    bool
}

// IndicatorPack combines three independent scorers (MIS, VRS, LSR) by maximum
// score. Ties break in the fixed declaration order MIS > VRS > LSR.
type IndicatorPack struct {
	cfg PackConfig
}

// NewIndicatorPack builds the pack strategy.
func NewIndicatorPack(cfg PackConfig) *IndicatorPack {
	return &IndicatorPack{cfg: cfg}
}

// Name implements Strategy.
func (p *IndicatorPack) Name() string { return "pack" }

// Evaluate scores all three sub-strategies and returns the winner, or nil
// when none fires.
func (p *IndicatorPack) Evaluate(b *book.L2Book, s Series) *Signal {
	f := book.Features(b)
	// MIS consumes the bid share in [0,1]; DepthImbalance is in [-1,1].
	bidShare := (f.Imbalance + 1) / 2
	candidates := []scored{
		p.misScore(s.Closes, bidShare, f.Spread),
		p.vrsScore(s.Closes, s.Volumes),
		p.lsrScore(s.WickLong, s.TradeBurst, s.OIDrop),
	}
	best := scored{}
	for _, c := range candidates {
		if c.ok && (!best.ok || c.score > best.score) {
			best = c
		}
	}
	if !best.ok {
		return nil
	}
	return &Signal{
		Name:     best.name,
		Side:     best.side,
		Score:    clampScore(best.score),
		Reason:   best.name + "_max_score",
		Features: f,
	}
}

// misScore is the trend/imbalance scorer: EMA crossover gated by order-book
// imbalance and a spread ceiling.
func (p *IndicatorPack) misScore(closes []float64, bidShare, spread float64) scored {
	if len(closes) < 3 {
		return scored{}
	}
	fast := EMA(closes, p.cfg.EMAFast)
	slow := EMA(closes, p.cfg.EMASlow)
	switch {
	case fast > slow && bidShare >= p.cfg.ImbalanceLong && spread <= p.cfg.SpreadCeiling:
		score := min(1, (fast-slow)/max(1e-9, slow)+bidShare-(p.cfg.ImbalanceLong-0.01))
		return scored{name: "MIS", side: domain.SideBuy, score: score, ok: true}
	case fast < slow && bidShare <= p.cfg.ImbalanceShort && spread <= p.cfg.SpreadCeiling:
		score := min(1, (slow-fast)/max(1e-9, slow)+(p.cfg.ImbalanceShort+0.01)-bidShare)
		return scored{name: "MIS", side: domain.SideSell, score: score, ok: true}
	}
	return scored{}
}

// vrsScore is the deviation/extremes scorer: VWAP deviation first, falling
// back to short-horizon RSI extremes at half score.
func (p *IndicatorPack) vrsScore(closes, volumes []float64) scored {
	dev := VWAPDeviation(closes, volumes)
	if dev >= p.cfg.VWAPDevMin {
		return scored{name: "VRS", side: domain.SideBuy, score: min(1, dev/p.cfg.VWAPDevMin), ok: true}
	}
	if dev <= -p.cfg.VWAPDevMin {
		return scored{name: "VRS", side: domain.SideSell, score: min(1, math.Abs(dev)/p.cfg.VWAPDevMin), ok: true}
	}
	r := RSI2(closes)
	if r <= p.cfg.RSI2Low {
		return scored{name: "VRS", side: domain.SideBuy, score: 0.5, ok: true}
	}
	if r >= 100-p.cfg.RSI2Low {
		return scored{name: "VRS", side: domain.SideSell, score: 0.5, ok: true}
	}
	return scored{}
}

// lsrScore is the burst scorer: a trade burst plus an open-interest drop marks
// a liquidation sweep; a long wick on the move flags exhaustion to fade.
func (p *IndicatorPack) lsrScore(wickLong, tradeBurst, oiDrop bool) scored {
	if !tradeBurst || !oiDrop {
		return scored{}
	}
	if wickLong {
		return scored{name: "LSR", side: domain.SideSell, score: 1, ok: true}
	}
	return scored{name: "LSR", side: domain.SideBuy, score: 1, ok: true}
}

// SelectStrategy returns the (name, side) of the highest-scoring non-nil
// candidate, preserving the MIS > VRS > LSR tie order. It exists so the
// scorers remain individually testable.
func SelectStrategy(mis, vrs, lsr *Signal) (string, domain.Side, bool) {
	best := (*Signal)(nil)
	for _, c := range []*Signal{mis, vrs, lsr} {
		if c == nil {
			continue
		}
		if best == nil || c.Score > best.Score {
			best = c
		}
	}
	if best == nil {
		return "", "", false
	}
	return best.Name, best.Side, true
}
