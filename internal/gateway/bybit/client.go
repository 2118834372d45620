// Package bybit implements the venue gateway against the Bybit V5 REST API
// for USDT linear perpetuals.
package bybit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/quantfold/scalpbot/internal/crypto"
	"github.com/quantfold/scalpbot/internal/domain"
)

const category = "linear"

// Client is the REST client for the Bybit V5 API. It implements
// domain.Gateway.
type Client struct {
	baseURL    string
	auth       *crypto.HMACAuth
	httpClient *http.Client
	limiter    domain.RateLimiter // optional
	logger     *slog.Logger
}

// NewClient creates a Bybit REST client.
//
// baseURL is the API root, e.g. "https://api.bybit.com" or the testnet
// "https://api-testnet.bybit.com".
func NewClient(baseURL, apiKey, apiSecret string, logger *slog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		auth:    &crypto.HMACAuth{Key: apiKey, Secret: apiSecret},
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		logger: logger.With(slog.String("component", "bybit")),
	}
}

// SetRateLimiter installs an outbound request limiter. Every REST call waits
// on it before hitting the venue.
func (c *Client) SetRateLimiter(l domain.RateLimiter) { c.limiter = l }

// SetRecvWindow overrides the signed request validity window in milliseconds.
func (c *Client) SetRecvWindow(ms int64) {
	if ms > 0 {
		c.auth.RecvWindow = ms
	}
}

// GetMarkPrice returns the symbol's current mark price.
func (c *Client) GetMarkPrice(ctx context.Context, symbol string) (float64, error) {
	params := url.Values{}
	params.Set("category", category)
	params.Set("symbol", symbol)

	var result tickersResult
	if err := c.doGet(ctx, "/v5/market/tickers", params, false, &result); err != nil {
		return 0, fmt.Errorf("bybit: get mark price %s: %w", symbol, err)
	}
	if len(result.List) == 0 {
		return 0, fmt.Errorf("bybit: mark price %s: %w", symbol, domain.ErrNotFound)
	}
	px := parseF(result.List[0].MarkPrice)
	if px <= 0 {
		px = parseF(result.List[0].LastPrice)
	}
	if px <= 0 {
		return 0, fmt.Errorf("bybit: mark price %s: empty price in response", symbol)
	}
	return px, nil
}

// GetMarketRules returns the symbol's lot and notional trading filters.
func (c *Client) GetMarketRules(ctx context.Context, symbol string) (domain.MarketRule, error) {
	params := url.Values{}
	params.Set("category", category)
	params.Set("symbol", symbol)

	var result instrumentsResult
	if err := c.doGet(ctx, "/v5/market/instruments-info", params, false, &result); err != nil {
		return domain.MarketRule{}, fmt.Errorf("bybit: get instruments %s: %w", symbol, err)
	}
	if len(result.List) == 0 {
		return domain.MarketRule{}, fmt.Errorf("bybit: instruments %s: %w", symbol, domain.ErrNotFound)
	}
	item := result.List[0]
	return domain.MarketRule{
		Symbol:      item.Symbol,
		TickSize:    parseF(item.PriceFilter.TickSize),
		LotStep:     parseF(item.LotSizeFilter.QtyStep),
		MinQty:      parseF(item.LotSizeFilter.MinOrderQty),
		MinNotional: parseF(item.LotSizeFilter.MinNotionalValue),
	}, nil
}

// GetTickers returns the 24h activity stats for every linear symbol. Tradable
// is resolved per symbol from instruments-info status on demand by callers;
// here a listed ticker is reported tradable.
func (c *Client) GetTickers(ctx context.Context) ([]domain.TickerStat, error) {
	params := url.Values{}
	params.Set("category", category)

	var result tickersResult
	if err := c.doGet(ctx, "/v5/market/tickers", params, false, &result); err != nil {
		return nil, fmt.Errorf("bybit: get tickers: %w", err)
	}
	stats := make([]domain.TickerStat, 0, len(result.List))
	for _, t := range result.List {
		stats = append(stats, domain.TickerStat{
			Symbol:      t.Symbol,
			Turnover24h: parseF(t.Turnover24h),
			Volume24h:   parseF(t.Volume24h),
			Tradable:    true,
		})
	}
	return stats, nil
}

// GetFreeBalance returns the unified account's available balance and equity
// in USDT.
func (c *Client) GetFreeBalance(ctx context.Context) (float64, float64, error) {
	params := url.Values{}
	params.Set("accountType", "UNIFIED")

	var result walletResult
	if err := c.doGet(ctx, "/v5/account/wallet-balance", params, true, &result); err != nil {
		return 0, 0, fmt.Errorf("bybit: get wallet balance: %w", err)
	}
	if len(result.List) == 0 {
		return 0, 0, fmt.Errorf("bybit: wallet balance: empty account list")
	}
	acct := result.List[0]
	return parseF(acct.TotalAvailableBalance), parseF(acct.TotalEquity), nil
}

// PlaceOrder submits an order and returns the venue order ID. Price 0 places
// a market order; a nonzero price places a post-capable limit order with IOC
// semantics left to the caller's request.
func (c *Client) PlaceOrder(ctx context.Context, req domain.OrderRequest) (string, error) {
	body := orderCreateRequest{
		Category:    category,
		Symbol:      req.Symbol,
		Side:        venueSide(req.Side),
		OrderType:   "Market",
		Qty:         formatQty(req.Qty),
		ReduceOnly:  req.ReduceOnly,
		OrderLinkID: req.LinkID,
	}
	if req.Price > 0 {
		body.OrderType = "Limit"
		body.Price = strconv.FormatFloat(req.Price, 'f', -1, 64)
		body.TimeInForce = "IOC"
	}

	var result orderCreateResult
	if err := c.doPost(ctx, "/v5/order/create", body, &result); err != nil {
		return "", fmt.Errorf("bybit: place order %s: %w", req.Symbol, err)
	}
	c.logger.Info("order placed",
		slog.String("symbol", req.Symbol),
		slog.String("side", string(req.Side)),
		slog.Float64("qty", req.Qty),
		slog.String("order_id", result.OrderID),
	)
	return result.OrderID, nil
}

// ClosePosition flattens the symbol's open position with a reduce-only
// market order sized to the full position.
func (c *Client) ClosePosition(ctx context.Context, symbol string) error {
	pos, err := c.positions(ctx, symbol)
	if err != nil {
		return fmt.Errorf("bybit: close position %s: %w", symbol, err)
	}
	for _, p := range pos {
		size := parseF(p.Size)
		if size <= 0 {
			continue
		}
		side := domain.SideSell
		if p.Side == "Sell" {
			side = domain.SideBuy
		}
		if _, err := c.PlaceOrder(ctx, domain.OrderRequest{
			Symbol:     symbol,
			Side:       side,
			Qty:        size,
			ReduceOnly: true,
		}); err != nil {
			return err
		}
	}
	return nil
}

// PositionSymbols returns the symbols with a nonzero open position.
func (c *Client) PositionSymbols(ctx context.Context) ([]string, error) {
	pos, err := c.positions(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("bybit: list positions: %w", err)
	}
	var symbols []string
	for _, p := range pos {
		if parseF(p.Size) > 0 {
			symbols = append(symbols, p.Symbol)
		}
	}
	return symbols, nil
}

// OpenOrderSymbols returns the symbols with live resting orders.
func (c *Client) OpenOrderSymbols(ctx context.Context) ([]string, error) {
	params := url.Values{}
	params.Set("category", category)
	params.Set("settleCoin", "USDT")

	var result openOrdersResult
	if err := c.doGet(ctx, "/v5/order/realtime", params, true, &result); err != nil {
		return nil, fmt.Errorf("bybit: list open orders: %w", err)
	}
	seen := make(map[string]bool, len(result.List))
	var symbols []string
	for _, o := range result.List {
		if !seen[o.Symbol] {
			seen[o.Symbol] = true
			symbols = append(symbols, o.Symbol)
		}
	}
	return symbols, nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

func (c *Client) positions(ctx context.Context, symbol string) ([]positionItem, error) {
	params := url.Values{}
	params.Set("category", category)
	if symbol != "" {
		params.Set("symbol", symbol)
	} else {
		params.Set("settleCoin", "USDT")
	}
	var result positionsResult
	if err := c.doGet(ctx, "/v5/position/list", params, true, &result); err != nil {
		return nil, err
	}
	return result.List, nil
}

// doGet sends a GET request and decodes the envelope's result into out.
// signed adds the HMAC auth headers over the query string.
func (c *Client) doGet(ctx context.Context, path string, params url.Values, signed bool, out any) error {
	query := params.Encode()
	fullURL := c.baseURL + path
	if query != "" {
		fullURL += "?" + query
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if signed {
		for k, v := range c.auth.Headers(query) {
			req.Header.Set(k, v)
		}
	}
	return c.do(req, out)
}

// doPost sends a signed POST request with a JSON body and decodes the
// envelope's result into out.
func (c *Client) doPost(ctx context.Context, path string, reqBody, out any) error {
	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(jsonBody))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range c.auth.Headers(string(jsonBody)) {
		req.Header.Set(k, v)
	}
	return c.do(req, out)
}

// do executes the request, checks the HTTP status and the Bybit retCode, and
// unmarshals the result payload.
func (c *Client) do(req *http.Request, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(req.Context(), "bybit_rest"); err != nil {
			return fmt.Errorf("rate limit wait: %w", err)
		}
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, truncate(respBody, 200))
	}

	var env struct {
		envelope
		Result json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(respBody, &env); err != nil {
		return fmt.Errorf("decode envelope: %w", err)
	}
	if env.RetCode != 0 {
		return fmt.Errorf("retCode %d: %s", env.RetCode, env.RetMsg)
	}
	if out != nil && len(env.Result) > 0 {
		if err := json.Unmarshal(env.Result, out); err != nil {
			return fmt.Errorf("decode result: %w", err)
		}
	}
	return nil
}

func venueSide(s domain.Side) string {
	if s == domain.SideSell {
		return "Sell"
	}
	return "Buy"
}

// formatQty renders a quantity without exponent notation or trailing zeros.
func formatQty(q float64) string {
	return strconv.FormatFloat(q, 'f', -1, 64)
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
