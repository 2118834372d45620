package domain

import "context"

// MarketRule holds a symbol's exchange trading filters. Zero values mean the
// venue does not publish that constraint.
type MarketRule struct {
	Symbol      string
	TickSize    float64
	LotStep     float64
	MinQty      float64
	MinNotional float64
}

// TickerStat is the 24h activity summary used to rank the trading universe.
type TickerStat struct {
	Symbol      string
	Turnover24h float64
	Volume24h   float64
	Tradable    bool
}

// OrderRequest is the gateway-facing order intent built by the orchestrator.
type OrderRequest struct {
	Symbol     string
	Side       Side
	Qty        float64
	Price      float64 // 0 means market
	ReduceOnly bool
	LinkID     string
}

// Gateway is the venue capability contract the core consumes. Implementations
// wrap the venue's REST API (live) or an in-memory fill simulator (paper).
// Every call may fail transiently; the orchestrator retries with backoff.
type Gateway interface {
	GetMarkPrice(ctx context.Context, symbol string) (float64, error)
	GetMarketRules(ctx context.Context, symbol string) (MarketRule, error)
	GetTickers(ctx context.Context) ([]TickerStat, error)
	GetFreeBalance(ctx context.Context) (free, equity float64, err error)
	PlaceOrder(ctx context.Context, req OrderRequest) (orderID string, err error)
	ClosePosition(ctx context.Context, symbol string) error
	PositionSymbols(ctx context.Context) ([]string, error)
	OpenOrderSymbols(ctx context.Context) ([]string, error)
}
