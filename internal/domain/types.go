// Package domain defines the core data model shared by every layer of the
// bot: order sides, ticks, orders, fills, positions, and the interfaces the
// outer layers (gateway, stores, caches, blob storage) implement.
package domain

// Side is the direction of an order or position.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// OrderType distinguishes market and limit orders.
type OrderType string

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
)

// PriceLevel is a single price+size entry on one side of an L2 book.
type PriceLevel struct {
	Price float64
	Size  float64
}

// Tick is an immutable top-of-book sample consumed by the backtest engine.
type Tick struct {
	Ts      int64 // epoch ms
	Bid     float64
	Ask     float64
	Last    float64
	BidSize float64
	AskSize float64
}

// Order is a resting or in-flight order. Qty is mutated down as fills arrive;
// the order is owned exclusively by whichever engine placed it.
type Order struct {
	Side       Side
	Qty        float64
	Type       OrderType
	LimitPrice float64 // only meaningful for limit orders
	PostOnly   bool
	IOC        bool
	ReduceOnly bool
}

// Fill is an immutable execution record.
type Fill struct {
	Ts      int64
	Side    Side
	Qty     float64
	Price   float64
	Fee     float64
	IsMaker bool
}

// Position tracks one symbol's net exposure. Side is empty when flat; AvgPrice
// is meaningless at Qty == 0. The only mutation path is ApplyFill.
type Position struct {
	Side        Side
	Qty         float64
	AvgPrice    float64
	RealizedPnL float64
	FeesPaid    float64
}

// Flat reports whether the position holds no exposure.
func (p *Position) Flat() bool {
	return p.Side == "" || p.Qty == 0
}

// ApplyFill folds a fill into the position: opening, adding at volume-weighted
// average price, partially or fully closing, or flipping through flat when the
// fill quantity exceeds the open quantity.
func (p *Position) ApplyFill(f Fill) {
	switch {
	case p.Qty == 0:
		p.Side = f.Side
		p.Qty = f.Qty
		p.AvgPrice = f.Price
	case p.Side == f.Side:
		newQty := p.Qty + f.Qty
		p.AvgPrice = (p.AvgPrice*p.Qty + f.Price*f.Qty) / newQty
		p.Qty = newQty
	default:
		closeQty := min(p.Qty, f.Qty)
		pnlPerUnit := f.Price - p.AvgPrice
		if p.Side == SideSell {
			pnlPerUnit = p.AvgPrice - f.Price
		}
		p.RealizedPnL += pnlPerUnit * closeQty
		p.Qty -= closeQty
		if p.Qty == 0 {
			p.Side = ""
			p.AvgPrice = 0
			if remainder := f.Qty - closeQty; remainder > 0 {
				// Flip: remainder opens in the fill's direction.
				p.Side = f.Side
				p.Qty = remainder
				p.AvgPrice = f.Price
			}
		}
	}
	p.FeesPaid += f.Fee
}

// Account pairs a cash balance with a single net position.
type Account struct {
	Balance  float64
	Position Position
}

// SizedOrder is the output of the position sizer: an executable quantity with
// its estimated notional and the budget it consumes. Derived, never persisted.
type SizedOrder struct {
	Qty         float64
	EstNotional float64
	UsedBudget  float64
}
