package bybit

import "strconv"

// envelope is the common Bybit V5 response wrapper. RetCode 0 means success;
// everything else carries a venue error in RetMsg.
type envelope struct {
	RetCode int    `json:"retCode"`
	RetMsg  string `json:"retMsg"`
	Time    int64  `json:"time"`
}

// tickerItem is one entry of /v5/market/tickers.
type tickerItem struct {
	Symbol      string `json:"symbol"`
	LastPrice   string `json:"lastPrice"`
	MarkPrice   string `json:"markPrice"`
	Turnover24h string `json:"turnover24h"`
	Volume24h   string `json:"volume24h"`
}

type tickersResult struct {
	Category string       `json:"category"`
	List     []tickerItem `json:"list"`
}

// instrumentItem is one entry of /v5/market/instruments-info.
type instrumentItem struct {
	Symbol        string `json:"symbol"`
	Status        string `json:"status"`
	LotSizeFilter struct {
		QtyStep          string `json:"qtyStep"`
		MinOrderQty      string `json:"minOrderQty"`
		MinNotionalValue string `json:"minNotionalValue"`
	} `json:"lotSizeFilter"`
	PriceFilter struct {
		TickSize string `json:"tickSize"`
	} `json:"priceFilter"`
}

type instrumentsResult struct {
	List []instrumentItem `json:"list"`
}

// walletResult is the /v5/account/wallet-balance result for UNIFIED accounts.
type walletResult struct {
	List []struct {
		TotalEquity           string `json:"totalEquity"`
		TotalAvailableBalance string `json:"totalAvailableBalance"`
	} `json:"list"`
}

// positionItem is one entry of /v5/position/list.
type positionItem struct {
	Symbol string `json:"symbol"`
	Side   string `json:"side"`
	Size   string `json:"size"`
}

type positionsResult struct {
	List []positionItem `json:"list"`
}

// openOrderItem is one entry of /v5/order/realtime.
type openOrderItem struct {
	Symbol  string `json:"symbol"`
	OrderID string `json:"orderId"`
}

type openOrdersResult struct {
	List []openOrderItem `json:"list"`
}

// orderCreateResult is the /v5/order/create result.
type orderCreateResult struct {
	OrderID     string `json:"orderId"`
	OrderLinkID string `json:"orderLinkId"`
}

// orderCreateRequest is the /v5/order/create body. Bybit encodes all
// quantities and prices as strings.
type orderCreateRequest struct {
	Category    string `json:"category"`
	Symbol      string `json:"symbol"`
	Side        string `json:"side"` // Buy | Sell
	OrderType   string `json:"orderType"`
	Qty         string `json:"qty"`
	Price       string `json:"price,omitempty"`
	TimeInForce string `json:"timeInForce,omitempty"`
	ReduceOnly  bool   `json:"reduceOnly,omitempty"`
	OrderLinkID string `json:"orderLinkId,omitempty"`
}

// parseF parses Bybit's string-encoded numbers, returning 0 for empty or
// malformed fields rather than failing the whole response.
func parseF(s string) float64 {
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}
