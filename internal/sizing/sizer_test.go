package sizing

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/quantfold/scalpbot/internal/domain"
)

var btcRule = domain.MarketRule{
	Symbol:      "BTCUSDT",
	TickSize:    0.1,
	LotStep:     0.001,
	MinQty:      0.001,
	MinNotional: 5,
}

func TestComputeOrderQtyFloorsToLotStep(t *testing.T) {
	// 1000 * 3 / 50000 = 0.06 exactly on step.
	so := ComputeOrderQty(50_000, 1000, 3, btcRule)
	assert.InDelta(t, 0.06, so.Qty, 1e-9)
	assert.InDelta(t, 3000, so.EstNotional, 1e-6)
	assert.InDelta(t, 1000, so.UsedBudget, 1e-6)

	// 100 * 1 / 30000 = 0.00333... floors to 0.003.
	so = ComputeOrderQty(30_000, 100, 1, btcRule)
	assert.InDelta(t, 0.003, so.Qty, 1e-9)
}

func TestComputeOrderQtyMinQtyCeiling(t *testing.T) {
	// Budget sizes below min qty: raised to it.
	rule := domain.MarketRule{LotStep: 0.01, MinQty: 0.05}
	so := ComputeOrderQty(100, 1, 1, rule) // raw 0.01 < 0.05
	assert.InDelta(t, 0.05, so.Qty, 1e-9)
}

func TestComputeOrderQtyMinNotionalCeiling(t *testing.T) {
	// 2 * 1 / 10 = 0.2 qty → 2 notional < 5 → raised to 0.5 qty.
	rule := domain.MarketRule{LotStep: 0.1, MinNotional: 5}
	so := ComputeOrderQty(10, 2, 1, rule)
	assert.InDelta(t, 0.5, so.Qty, 1e-9)
	assert.InDelta(t, 5.0, so.EstNotional, 1e-9)
}

func TestComputeOrderQtyMonotone(t *testing.T) {
	prev := 0.0
	for _, budget := range []float64{10, 50, 100, 500, 1000, 5000} {
		so := ComputeOrderQty(20_000, budget, 2, btcRule)
		assert.GreaterOrEqual(t, so.Qty, prev, "budget %v", budget)
		prev = so.Qty
	}
	prev = 0.0
	for _, lev := range []float64{1, 2, 3, 5, 10} {
		so := ComputeOrderQty(20_000, 500, lev, btcRule)
		assert.GreaterOrEqual(t, so.Qty, prev, "leverage %v", lev)
		prev = so.Qty
	}
}

func TestComputeOrderQtyZeroRule(t *testing.T) {
	// No published constraints: raw quantity passes through.
	so := ComputeOrderQty(100, 50, 2, domain.MarketRule{})
	assert.InDelta(t, 1.0, so.Qty, 1e-9)
}

func TestCheckBalance(t *testing.T) {
	g := DefaultGuardConfig()

	ok, reason := g.CheckBalance(250)
	assert.True(t, ok)
	assert.Equal(t, "ok", reason)

	ok, reason = g.CheckBalance(99.99)
	assert.False(t, ok)
	assert.NotEmpty(t, reason)
}

func TestCheckOrderSize(t *testing.T) {
	g := GuardConfig{MaxAllocPct: 0.05}

	ok, _ := g.CheckOrderSize(49, 1000) // cap 50
	assert.True(t, ok)

	ok, reason := g.CheckOrderSize(51, 1000)
	assert.False(t, ok)
	assert.Contains(t, reason, "exceeds cap")
}

func TestCheckSlippage(t *testing.T) {
	g := GuardConfig{SlippagePct: 0.003}

	ok, _ := g.CheckSlippage(100.2, 100)
	assert.True(t, ok)

	ok, _ = g.CheckSlippage(100.4, 100)
	assert.False(t, ok)

	// Works symmetrically below the reference.
	ok, _ = g.CheckSlippage(99.6, 100)
	assert.False(t, ok)

	ok, _ = g.CheckSlippage(100, 0)
	assert.False(t, ok)
}
