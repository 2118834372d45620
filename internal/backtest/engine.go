// Package backtest is a deterministic, tick-driven fill simulator with
// pluggable fee and slippage models. It is independent of the live components
// and exists to validate sizing and signal behavior offline.
package backtest

import "github.com/quantfold/scalpbot/internal/domain"

// Engine simulates execution for a single account with at most one open order
// (no multi-order book; placing replaces any unfilled prior order).
type Engine struct {
	Account  *domain.Account
	Fees     FeeModel
	Slippage SlippageModel

	openOrder *domain.Order
	fills     []domain.Fill
}

// NewEngine creates a simulator over the given account and models.
func NewEngine(acc *domain.Account, fees FeeModel, slip SlippageModel) *Engine {
	return &Engine{Account: acc, Fees: fees, Slippage: slip}
}

// Place sets the single currently open order, replacing any unfilled prior
// order. The engine owns the order from here on.
func (e *Engine) Place(order domain.Order) {
	o := order
	e.openOrder = &o
}

// OpenOrder returns the resting order, or nil when none is open.
func (e *Engine) OpenOrder() *domain.Order { return e.openOrder }

// Fills returns the append-only fill list, oldest first.
func (e *Engine) Fills() []domain.Fill { return e.fills }

// OnTick advances the simulation by one tick. A market order is always
// marketable; a limit order is marketable only when it crosses the opposing
// quote. Fill quantity/price/maker flag come from the slippage model bounded
// by availableLiquidity; the fee model prices the notional. Fills update the
// position and shrink the order, which closes at remaining ~0 or, for IOC,
// after its first fill.
func (e *Engine) OnTick(tick domain.Tick, availableLiquidity float64) {
	if e.openOrder == nil {
		return
	}
	order := e.openOrder

	marketable := order.Type == domain.OrderTypeMarket
	if order.Type == domain.OrderTypeLimit && order.LimitPrice > 0 {
		if order.Side == domain.SideBuy {
			marketable = order.LimitPrice >= tick.Ask
		} else {
			marketable = order.LimitPrice <= tick.Bid
		}
	}

	liquidity := availableLiquidity
	if !marketable {
		// Resting order: modeled as fillable only when picked off, which the
		// slippage model expresses via zero liquidity.
		liquidity = 0
	}
	filledQty, fillPrice, isMaker := e.Slippage.Fill(order.Side, order.Qty, tick, liquidity)

	if filledQty > 0 {
		fee := e.Fees.Fee(filledQty*fillPrice, isMaker)
		fill := domain.Fill{
			Ts:      tick.Ts,
			Side:    order.Side,
			Qty:     filledQty,
			Price:   fillPrice,
			Fee:     fee,
			IsMaker: isMaker,
		}
		e.fills = append(e.fills, fill)
		e.Account.Position.ApplyFill(fill)
		e.Account.Balance -= fee
		order.Qty -= filledQty

		// IOC cancels any remainder after its first fill; an IOC facing zero
		// liquidity keeps resting until something is there to take.
		if order.Qty <= 1e-12 || order.IOC {
			e.openOrder = nil
		}
	}
}

// Run drives the simulation over paired tick/liquidity series, stopping at
// the shorter of the two.
func (e *Engine) Run(ticks []domain.Tick, liquidity []float64) {
	n := min(len(ticks), len(liquidity))
	for i := 0; i < n; i++ {
		e.OnTick(ticks[i], liquidity[i])
	}
}
