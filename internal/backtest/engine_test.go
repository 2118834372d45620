package backtest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfold/scalpbot/internal/domain"
)

func newTestEngine(balance float64) *Engine {
	return NewEngine(
		&domain.Account{Balance: balance},
		SimpleFeeModel{Maker: 0.0002, Taker: 0.001},
		SimpleSlippage{}, // no price adjustment, clean arithmetic
	)
}

func TestMarketOrderFillsAtTouch(t *testing.T) {
	e := newTestEngine(1000)
	e.Place(domain.Order{Side: domain.SideBuy, Qty: 1, Type: domain.OrderTypeMarket})

	e.OnTick(domain.Tick{Ts: 1000, Bid: 100, Ask: 100.5}, 2)

	require.Nil(t, e.OpenOrder())
	fills := e.Fills()
	require.Len(t, fills, 1)
	assert.Equal(t, domain.SideBuy, fills[0].Side)
	assert.Equal(t, 100.5, fills[0].Price)
	assert.False(t, fills[0].IsMaker)
	assert.InDelta(t, 0.1005, fills[0].Fee, 1e-9)

	assert.InDelta(t, 1, e.Account.Position.Qty, 1e-12)
	assert.Equal(t, 100.5, e.Account.Position.AvgPrice)
	assert.InDelta(t, 1000-0.1005, e.Account.Balance, 1e-9)
}

func TestLiquidityBoundsFill(t *testing.T) {
	e := newTestEngine(1000)
	e.Place(domain.Order{Side: domain.SideBuy, Qty: 1, Type: domain.OrderTypeMarket})

	e.OnTick(domain.Tick{Ts: 1000, Bid: 100, Ask: 100.5}, 0.4)

	require.NotNil(t, e.OpenOrder())
	assert.InDelta(t, 0.6, e.OpenOrder().Qty, 1e-12)
	assert.InDelta(t, 0.4, e.Account.Position.Qty, 1e-12)

	// The remainder fills on the next tick with enough size.
	e.OnTick(domain.Tick{Ts: 2000, Bid: 100, Ask: 100.6}, 1)
	assert.Nil(t, e.OpenOrder())
	assert.InDelta(t, 1, e.Account.Position.Qty, 1e-12)
	// VWAP of 0.4 @ 100.5 and 0.6 @ 100.6.
	assert.InDelta(t, 100.56, e.Account.Position.AvgPrice, 1e-9)
}

func TestIOCCancelsRemainderAfterFirstFill(t *testing.T) {
	e := newTestEngine(1000)
	e.Place(domain.Order{Side: domain.SideBuy, Qty: 1, Type: domain.OrderTypeMarket, IOC: true})

	e.OnTick(domain.Tick{Ts: 1000, Bid: 100, Ask: 100.5}, 0.4)

	assert.Nil(t, e.OpenOrder())
	assert.InDelta(t, 0.4, e.Account.Position.Qty, 1e-12)
}

func TestIOCRestsThroughZeroLiquidity(t *testing.T) {
	e := newTestEngine(1000)
	e.Place(domain.Order{Side: domain.SideBuy, Qty: 1, Type: domain.OrderTypeMarket, IOC: true})

	// Nothing on the other side: the order survives the tick untouched.
	e.OnTick(domain.Tick{Ts: 1000, Bid: 100, Ask: 100.5}, 0)
	require.NotNil(t, e.OpenOrder())
	assert.Empty(t, e.Fills())

	// The first actual fill cancels the remainder.
	e.OnTick(domain.Tick{Ts: 2000, Bid: 100, Ask: 100.5}, 0.3)
	assert.Nil(t, e.OpenOrder())
	assert.InDelta(t, 0.3, e.Account.Position.Qty, 1e-12)
}

func TestLimitOrderWaitsForCross(t *testing.T) {
	e := newTestEngine(1000)
	e.Place(domain.Order{Side: domain.SideBuy, Qty: 1, Type: domain.OrderTypeLimit, LimitPrice: 99})

	// Ask above the limit: resting, no fill.
	e.OnTick(domain.Tick{Ts: 1000, Bid: 98.5, Ask: 100.5}, 3)
	require.NotNil(t, e.OpenOrder())
	assert.Empty(t, e.Fills())

	// Ask trades through the limit: the order crosses and takes.
	e.OnTick(domain.Tick{Ts: 2000, Bid: 98.5, Ask: 98.9}, 3)
	assert.Nil(t, e.OpenOrder())
	require.Len(t, e.Fills(), 1)
	assert.Equal(t, 98.9, e.Fills()[0].Price)
}

func TestPlaceReplacesRestingOrder(t *testing.T) {
	e := newTestEngine(1000)
	e.Place(domain.Order{Side: domain.SideBuy, Qty: 1, Type: domain.OrderTypeLimit, LimitPrice: 90})
	e.Place(domain.Order{Side: domain.SideSell, Qty: 2, Type: domain.OrderTypeMarket})

	require.NotNil(t, e.OpenOrder())
	assert.Equal(t, domain.SideSell, e.OpenOrder().Side)
	assert.Equal(t, 2.0, e.OpenOrder().Qty)
}

func TestRoundTripRealizedPnL(t *testing.T) {
	e := newTestEngine(1000)
	e.Place(domain.Order{Side: domain.SideBuy, Qty: 1, Type: domain.OrderTypeMarket})
	e.OnTick(domain.Tick{Ts: 1000, Bid: 99.9, Ask: 100}, 5)

	e.Place(domain.Order{Side: domain.SideSell, Qty: 1, Type: domain.OrderTypeMarket})
	e.OnTick(domain.Tick{Ts: 2000, Bid: 110, Ask: 110.1}, 5)

	pos := e.Account.Position
	assert.True(t, pos.Flat())
	assert.InDelta(t, 10, pos.RealizedPnL, 1e-9)
	// Taker fee on both legs: 0.001 * (100 + 110).
	assert.InDelta(t, 0.21, pos.FeesPaid, 1e-9)
}

func TestSimpleSlippagePricing(t *testing.T) {
	s := SimpleSlippage{TakerBps: 1}
	tick := domain.Tick{Bid: 100, Ask: 100}

	qty, px, maker := s.Fill(domain.SideBuy, 1, tick, 5)
	assert.Equal(t, 1.0, qty)
	assert.False(t, maker)
	assert.InDelta(t, 100.01, px, 1e-9) // buys pay up

	qty, px, maker = s.Fill(domain.SideSell, 1, tick, 5)
	assert.Equal(t, 1.0, qty)
	assert.False(t, maker)
	assert.InDelta(t, 100/1.0001, px, 1e-9) // sells give up

	// Zero liquidity models a resting order: nothing fills.
	qty, _, maker = s.Fill(domain.SideBuy, 1, tick, 0)
	assert.Zero(t, qty)
	assert.True(t, maker)
}

func TestSimpleFeeModel(t *testing.T) {
	m := DefaultFeeModel()
	assert.InDelta(t, 0.55, m.Fee(1000, false), 1e-9)
	assert.InDelta(t, 0.2, m.Fee(1000, true), 1e-9)
	assert.InDelta(t, 0.55, m.Fee(-1000, false), 1e-9) // fee on absolute notional
	assert.Equal(t, 0.0002, m.MakerRate())
	assert.Equal(t, 0.00055, m.TakerRate())
}
