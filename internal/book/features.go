package book

import "github.com/quantfold/scalpbot/internal/domain"

// MidSpread returns the mid price and bid-ask spread, or (0, 0) when either
// side of the book is empty.
func MidSpread(b *L2Book) (mid, spread float64) {
	bb, okB := b.BestBid()
	ba, okA := b.BestAsk()
	if !okB || !okA {
		return 0, 0
	}
	mid = (bb.Price + ba.Price) / 2
	spread = max(0, ba.Price-bb.Price)
	return mid, spread
}

// Microprice is the size-weighted fair price between best bid and ask, biased
// toward the side with the larger opposing size. It falls back to the simple
// mid when total top-of-book size is zero, and always lies within
// [min(bid,ask), max(bid,ask)].
func Microprice(b *L2Book) float64 {
	bb, okB := b.BestBid()
	ba, okA := b.BestAsk()
	if !okB || !okA {
		return 0
	}
	den := bb.Size + ba.Size
	if den <= 0 {
		return (bb.Price + ba.Price) / 2
	}
	return (ba.Price*bb.Size + bb.Price*ba.Size) / den
}

// DepthImbalance returns (bidSize-askSize)/(bidSize+askSize) in [-1, 1] at the
// top of book. The levels parameter is accepted for future multi-level
// aggregation but only the best level is used; single-level semantics are the
// documented choice here.
func DepthImbalance(b *L2Book, levels int) float64 {
	_ = levels
	bb, okB := b.BestBid()
	ba, okA := b.BestAsk()
	if !okB || !okA {
		return 0
	}
	vb := max(bb.Size, 0)
	va := max(ba.Size, 0)
	den := vb + va
	if den == 0 {
		den = 1
	}
	return (vb - va) / den
}

// OrderFlowImbalanceL1 compares two consecutive top-of-book observations.
// Price improvement on a side contributes the new size; price worsening
// subtracts the previous size. A zero-value level (Size and Price both 0)
// means that side was absent in the observation.
func OrderFlowImbalanceL1(prevBid, prevAsk, curBid, curAsk domain.PriceLevel) float64 {
	ofi := 0.0
	if prevBid.Price > 0 && curBid.Price > 0 {
		if curBid.Price > prevBid.Price {
			ofi += curBid.Size
		} else if curBid.Price < prevBid.Price {
			ofi -= prevBid.Size
		}
	}
	if prevAsk.Price > 0 && curAsk.Price > 0 {
		if curAsk.Price < prevAsk.Price {
			ofi += curAsk.Size
		} else if curAsk.Price > prevAsk.Price {
			ofi -= prevAsk.Size
		}
	}
	return ofi
}

// FeatureSnapshot bundles the basic features a signal strategy consumes.
type FeatureSnapshot struct {
	Mid       float64 `json:"mid"`
	Spread    float64 `json:"spread"`
	Micro     float64 `json:"micro"`
	Imbalance float64 `json:"imb_l1"`
}

// Features computes the basic feature snapshot for a book.
func Features(b *L2Book) FeatureSnapshot {
	mid, spread := MidSpread(b)
	return FeatureSnapshot{
		Mid:       mid,
		Spread:    spread,
		Micro:     Microprice(b),
		Imbalance: DepthImbalance(b, 1),
	}
}
