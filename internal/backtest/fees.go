package backtest

import "github.com/quantfold/scalpbot/internal/domain"

// FeeModel prices the fee for a fill.
type FeeModel interface {
	MakerRate() float64
	TakerRate() float64
	Fee(notional float64, isMaker bool) float64
}

// SimpleFeeModel applies flat maker/taker rates on notional.
type SimpleFeeModel struct {
	Maker float64
	Taker float64
}

// DefaultFeeModel returns Bybit-like linear perp rates.
func DefaultFeeModel() SimpleFeeModel {
	return SimpleFeeModel{Maker: 0.0002, Taker: 0.00055}
}

func (m SimpleFeeModel) MakerRate() float64 { return m.Maker }
func (m SimpleFeeModel) TakerRate() float64 { return m.Taker }

// Fee returns the fee on the absolute notional at the applicable rate.
func (m SimpleFeeModel) Fee(notional float64, isMaker bool) float64 {
	rate := m.Taker
	if isMaker {
		rate = m.Maker
	}
	if notional < 0 {
		notional = -notional
	}
	return notional * rate
}

// SlippageModel computes the executed quantity, price, and maker flag for an
// order against a tick, bounded by the available liquidity.
type SlippageModel interface {
	Fill(side domain.Side, qty float64, tick domain.Tick, availableLiquidity float64) (filledQty, price float64, isMaker bool)
}

// SimpleSlippage adjusts the touched quote by a fixed number of basis points.
// A taker buy pays up from the ask; a maker rests at the near quote. Zero
// available liquidity models a resting order being picked off at the quote.
type SimpleSlippage struct {
	MakerBps float64 // negative means price improvement
	TakerBps float64
}

// DefaultSlippage returns one basis point of taker slippage.
func DefaultSlippage() SimpleSlippage {
	return SimpleSlippage{MakerBps: 0, TakerBps: 1}
}

func (s SimpleSlippage) applyBps(price, bps float64, side domain.Side) float64 {
	factor := 1 + bps/10000
	if side == domain.SideBuy {
		return price * factor
	}
	return price / factor
}

// Fill implements SlippageModel.
func (s SimpleSlippage) Fill(side domain.Side, qty float64, tick domain.Tick, availableLiquidity float64) (float64, float64, bool) {
	takerPrice := tick.Ask
	makerPrice := tick.Bid
	if side == domain.SideSell {
		takerPrice = tick.Bid
		makerPrice = tick.Ask
	}
	takerPrice = s.applyBps(takerPrice, s.TakerBps, side)
	makerPrice = s.applyBps(makerPrice, s.MakerBps, side)

	filled := min(qty, max(0, availableLiquidity))
	isMaker := availableLiquidity <= 0
	price := takerPrice
	if isMaker {
		price = makerPrice
	}
	return filled, price, isMaker
}
