package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfold/scalpbot/internal/domain"
)

// fakeGateway is an in-memory domain.Gateway for loop and planning tests.
type fakeGateway struct {
	mu sync.Mutex

	tickers    []domain.TickerStat
	tickersErr error

	free, equity float64
	balanceFails int // fail this many balance calls before succeeding

	markPrices map[string]float64
	rules      map[string]domain.MarketRule

	positions  []string
	openOrders []string

	placed   []domain.OrderRequest
	placeErr error
	closed   []string

	closeErr      error // fail ClosePosition and reduce-only orders
	closeAttempts int
}

var errFakeGateway = errors.New("gateway unavailable")

func (g *fakeGateway) GetMarkPrice(_ context.Context, symbol string) (float64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	px, ok := g.markPrices[symbol]
	if !ok {
		return 0, domain.ErrNotFound
	}
	return px, nil
}

func (g *fakeGateway) GetMarketRules(_ context.Context, symbol string) (domain.MarketRule, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if r, ok := g.rules[symbol]; ok {
		return r, nil
	}
	return domain.MarketRule{Symbol: symbol, LotStep: 0.001, MinQty: 0.001}, nil
}

func (g *fakeGateway) GetTickers(context.Context) ([]domain.TickerStat, error) {
	if g.tickersErr != nil {
		return nil, g.tickersErr
	}
	return g.tickers, nil
}

func (g *fakeGateway) GetFreeBalance(context.Context) (float64, float64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.balanceFails > 0 {
		g.balanceFails--
		return 0, 0, errFakeGateway
	}
	return g.free, g.equity, nil
}

func (g *fakeGateway) PlaceOrder(_ context.Context, req domain.OrderRequest) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.placeErr != nil {
		return "", g.placeErr
	}
	if req.ReduceOnly && g.closeErr != nil {
		g.closeAttempts++
		return "", g.closeErr
	}
	g.placed = append(g.placed, req)
	return "order-1", nil
}

func (g *fakeGateway) ClosePosition(_ context.Context, symbol string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closeErr != nil {
		g.closeAttempts++
		return g.closeErr
	}
	g.closed = append(g.closed, symbol)
	return nil
}

func (g *fakeGateway) PositionSymbols(context.Context) ([]string, error) {
	return g.positions, nil
}

func (g *fakeGateway) OpenOrderSymbols(context.Context) ([]string, error) {
	return g.openOrders, nil
}

func (g *fakeGateway) closeAttemptCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.closeAttempts
}

func (g *fakeGateway) placedOrders() []domain.OrderRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]domain.OrderRequest, len(g.placed))
	copy(out, g.placed)
	return out
}

func TestBuildUniverseStaticWins(t *testing.T) {
	gw := &fakeGateway{tickersErr: errFakeGateway}
	u := BuildUniverse(context.Background(), gw, []string{"BTCUSDT", "ETHUSDT"}, 5, "BTCUSDT")
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, u.Symbols)
	assert.False(t, u.Discovered)
}

func TestBuildUniverseDiscoveryRanking(t *testing.T) {
	gw := &fakeGateway{tickers: []domain.TickerStat{
		{Symbol: "ETHUSDT", Turnover24h: 500, Volume24h: 10, Tradable: true},
		{Symbol: "BTCUSDT", Turnover24h: 900, Volume24h: 5, Tradable: true},
		{Symbol: "DOGEUSDT", Turnover24h: 500, Volume24h: 50, Tradable: true},
		{Symbol: "BTCUSD", Turnover24h: 9999, Volume24h: 99, Tradable: true},  // not USDT-quoted
		{Symbol: "XRPUSDT", Turnover24h: 800, Volume24h: 1, Tradable: false}, // untradable
	}}

	u := BuildUniverse(context.Background(), gw, nil, 2, "BTCUSDT")
	require.True(t, u.Discovered)
	// Turnover ranks first; DOGE beats ETH on volume at equal turnover but
	// the cap of 2 keeps only the top pair.
	assert.Equal(t, []string{"BTCUSDT", "DOGEUSDT"}, u.Symbols)
}

func TestBuildUniverseFallback(t *testing.T) {
	gw := &fakeGateway{tickersErr: errFakeGateway}
	u := BuildUniverse(context.Background(), gw, nil, 5, "BTCUSDT")
	assert.Equal(t, []string{"BTCUSDT"}, u.Symbols)
	assert.False(t, u.Discovered)
}

func TestTopNExclusions(t *testing.T) {
	ranked := []string{"A", "B", "C", "D"}
	got := TopN(ranked, 2, map[string]bool{"B": true})
	assert.Equal(t, []string{"A", "C"}, got)

	got = TopN(ranked, 10, map[string]bool{})
	assert.Equal(t, ranked, got)

	assert.Empty(t, TopN(nil, 3, nil))
}

func TestPerSymbolBudget(t *testing.T) {
	assert.Equal(t, 50.0, PerSymbolBudget(100, 1, 1))
	assert.Equal(t, 25.0, PerSymbolBudget(100, 2, 2))
	assert.Equal(t, 100.0, PerSymbolBudget(100, 0, 0)) // degenerate: no division by zero
	assert.Zero(t, PerSymbolBudget(-5, 0, 1))
}

func TestPlanEntriesExcludesAndSplits(t *testing.T) {
	slots := NewSlotManager(3)
	_, err := slots.Acquire("BTCUSDT") // already managed
	require.NoError(t, err)

	in := PlanInput{
		Ranked:           []string{"BTCUSDT", "ETHUSDT", "SOLUSDT", "XRPUSDT"},
		OpenOrderSymbols: map[string]bool{"SOLUSDT": true},
		Prices:           map[string]float64{"ETHUSDT": 2000, "XRPUSDT": 0.5},
		Rules: map[string]domain.MarketRule{
			"ETHUSDT": {LotStep: 0.01},
			"XRPUSDT": {LotStep: 1},
		},
		Leverage:    2,
		TotalBudget: 300,
	}
	plans := PlanEntries(context.Background(), slots, in, nil)

	// Two free slots, BTC managed and SOL has an open order: ETH and XRP fill.
	require.Len(t, plans, 2)
	assert.Equal(t, "ETHUSDT", plans[0].Symbol)
	assert.Equal(t, "XRPUSDT", plans[1].Symbol)

	// Budget splits over active (1) + selected (2).
	assert.InDelta(t, 100.0, plans[0].Budget, 1e-9)
	// 100 * 2 / 2000 = 0.1 qty on a 0.01 step.
	assert.InDelta(t, 0.1, plans[0].Qty, 1e-9)

	// Slots were acquired for the planned symbols.
	assert.Equal(t, 3, slots.ActiveCount())
}
