package book

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/quantfold/scalpbot/internal/domain"
)

func bookWith(t *testing.T, bids, asks []domain.PriceLevel) *L2Book {
	t.Helper()
	b := New("BTCUSDT")
	b.ApplySnapshot(1, 1000, bids, asks)
	return b
}

func TestMidSpread(t *testing.T) {
	b := bookWith(t, levels(100, 1), levels(102, 1))
	mid, spread := MidSpread(b)
	assert.Equal(t, 101.0, mid)
	assert.Equal(t, 2.0, spread)

	empty := New("BTCUSDT")
	mid, spread = MidSpread(empty)
	assert.Zero(t, mid)
	assert.Zero(t, spread)
}

func TestMicroprice(t *testing.T) {
	// Larger bid size pulls the microprice toward the ask.
	b := bookWith(t, levels(100, 3), levels(102, 1))
	micro := Microprice(b)
	assert.InDelta(t, 101.5, micro, 1e-9)
	assert.GreaterOrEqual(t, micro, 100.0)
	assert.LessOrEqual(t, micro, 102.0)

	// Zero total size falls back to mid.
	z := bookWith(t, levels(100, 0.0000001), levels(102, 0.0000001))
	z.Bids[100] = 0
	z.Asks[102] = 0
	assert.InDelta(t, 101.0, Microprice(z), 1e-9)
}

func TestDepthImbalanceBounds(t *testing.T) {
	b := bookWith(t, levels(100, 3), levels(101, 1))
	imb := DepthImbalance(b, 1)
	assert.InDelta(t, 0.5, imb, 1e-9)

	onlyBid := bookWith(t, levels(100, 3), levels(101, 0.0001))
	assert.LessOrEqual(t, math.Abs(DepthImbalance(onlyBid, 1)), 1.0)

	empty := New("BTCUSDT")
	assert.Zero(t, DepthImbalance(empty, 1))
}

func TestOrderFlowImbalanceL1(t *testing.T) {
	lvl := func(p, s float64) domain.PriceLevel { return domain.PriceLevel{Price: p, Size: s} }

	// Bid improves: contributes new bid size.
	ofi := OrderFlowImbalanceL1(lvl(100, 1), lvl(101, 1), lvl(100.5, 2), lvl(101, 1))
	assert.InDelta(t, 2.0, ofi, 1e-9)

	// Bid worsens: subtracts previous bid size.
	ofi = OrderFlowImbalanceL1(lvl(100, 1.5), lvl(101, 1), lvl(99.5, 2), lvl(101, 1))
	assert.InDelta(t, -1.5, ofi, 1e-9)

	// Ask improves (falls): contributes new ask size.
	ofi = OrderFlowImbalanceL1(lvl(100, 1), lvl(101, 1), lvl(100, 1), lvl(100.5, 3))
	assert.InDelta(t, 3.0, ofi, 1e-9)

	// Absent side contributes nothing.
	ofi = OrderFlowImbalanceL1(lvl(0, 0), lvl(101, 1), lvl(100, 2), lvl(101, 1))
	assert.Zero(t, ofi)
}

func TestFeaturesSnapshot(t *testing.T) {
	b := bookWith(t, levels(100, 2), levels(101, 2))
	f := Features(b)
	assert.Equal(t, 100.5, f.Mid)
	assert.Equal(t, 1.0, f.Spread)
	assert.InDelta(t, 100.5, f.Micro, 1e-9)
	assert.Zero(t, f.Imbalance)
}
