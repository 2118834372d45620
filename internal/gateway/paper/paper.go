// Package paper implements an in-memory venue gateway for dry runs: orders
// fill instantly at the current book price with a configurable taker fee, and
// balance and positions live in process memory.
package paper

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/quantfold/scalpbot/internal/book"
	"github.com/quantfold/scalpbot/internal/domain"
)

// PriceSource provides the current book for fills and mark prices. The live
// feed keeper satisfies it.
type PriceSource interface {
	Book(symbol string) (*book.L2Book, bool)
}

// Gateway is the in-memory domain.Gateway implementation.
type Gateway struct {
	mu        sync.Mutex
	prices    PriceSource
	balance   float64
	takerFee  float64
	rules     map[string]domain.MarketRule
	positions map[string]*domain.Position
	logger    *slog.Logger
}

// New creates a paper gateway with the given starting balance.
func New(prices PriceSource, startBalance, takerFee float64, logger *slog.Logger) *Gateway {
	return &Gateway{
		prices:    prices,
		balance:   startBalance,
		takerFee:  takerFee,
		rules:     make(map[string]domain.MarketRule),
		positions: make(map[string]*domain.Position),
		logger:    logger.With(slog.String("component", "paper")),
	}
}

// SetRule registers the trading filters for a symbol. Unregistered symbols
// get permissive defaults.
func (g *Gateway) SetRule(rule domain.MarketRule) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rules[rule.Symbol] = rule
}

// GetMarkPrice returns the book mid for the symbol.
func (g *Gateway) GetMarkPrice(ctx context.Context, symbol string) (float64, error) {
	b, ok := g.prices.Book(symbol)
	if !ok {
		return 0, fmt.Errorf("paper: mark price %s: %w", symbol, domain.ErrNotFound)
	}
	mid, _ := book.MidSpread(b)
	if mid <= 0 {
		return 0, fmt.Errorf("paper: mark price %s: empty book", symbol)
	}
	return mid, nil
}

// GetMarketRules returns the registered filters, or permissive defaults.
func (g *Gateway) GetMarketRules(ctx context.Context, symbol string) (domain.MarketRule, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if rule, ok := g.rules[symbol]; ok {
		return rule, nil
	}
	return domain.MarketRule{Symbol: symbol, LotStep: 0.001, MinQty: 0.001}, nil
}

// GetTickers returns the registered symbols as equally ranked tickers.
func (g *Gateway) GetTickers(ctx context.Context) ([]domain.TickerStat, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	stats := make([]domain.TickerStat, 0, len(g.rules))
	for sym := range g.rules {
		stats = append(stats, domain.TickerStat{Symbol: sym, Tradable: true})
	}
	return stats, nil
}

// GetFreeBalance returns the simulated balance as both free and equity.
func (g *Gateway) GetFreeBalance(ctx context.Context) (float64, float64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.balance, g.balance, nil
}

// PlaceOrder fills the order immediately at the touch price plus taker fee.
func (g *Gateway) PlaceOrder(ctx context.Context, req domain.OrderRequest) (string, error) {
	px, err := g.fillPrice(req.Symbol, req.Side)
	if err != nil {
		return "", err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	pos, ok := g.positions[req.Symbol]
	if !ok {
		pos = &domain.Position{}
		g.positions[req.Symbol] = pos
	}
	before := pos.RealizedPnL
	fee := px * req.Qty * g.takerFee
	pos.ApplyFill(domain.Fill{Side: req.Side, Price: px, Qty: req.Qty, Fee: fee})
	realized := pos.RealizedPnL - before
	g.balance += realized - fee
	if pos.Flat() {
		delete(g.positions, req.Symbol)
	}

	orderID := uuid.New().String()
	g.logger.Info("paper fill",
		slog.String("symbol", req.Symbol),
		slog.String("side", string(req.Side)),
		slog.Float64("price", px),
		slog.Float64("qty", req.Qty),
		slog.Float64("realized", realized),
	)
	return orderID, nil
}

// ClosePosition flattens the symbol's simulated position at the touch.
func (g *Gateway) ClosePosition(ctx context.Context, symbol string) error {
	g.mu.Lock()
	pos, ok := g.positions[symbol]
	if !ok || pos.Flat() {
		g.mu.Unlock()
		return nil
	}
	side := domain.SideSell
	if pos.Side == domain.SideSell {
		side = domain.SideBuy
	}
	qty := pos.Qty
	g.mu.Unlock()

	_, err := g.PlaceOrder(ctx, domain.OrderRequest{Symbol: symbol, Side: side, Qty: qty, ReduceOnly: true})
	return err
}

// PositionSymbols returns the symbols with an open simulated position.
func (g *Gateway) PositionSymbols(ctx context.Context) ([]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var symbols []string
	for sym, pos := range g.positions {
		if pos.Qty > 0 {
			symbols = append(symbols, sym)
		}
	}
	return symbols, nil
}

// OpenOrderSymbols always returns nil: paper orders never rest.
func (g *Gateway) OpenOrderSymbols(ctx context.Context) ([]string, error) {
	return nil, nil
}

// fillPrice returns the marketable touch for the side: best ask for buys,
// best bid for sells.
func (g *Gateway) fillPrice(symbol string, side domain.Side) (float64, error) {
	b, ok := g.prices.Book(symbol)
	if !ok {
		return 0, fmt.Errorf("paper: fill %s: %w", symbol, domain.ErrNotFound)
	}
	if side == domain.SideBuy {
		if ask, ok := b.BestAsk(); ok {
			return ask.Price, nil
		}
	} else {
		if bid, ok := b.BestBid(); ok {
			return bid.Price, nil
		}
	}
	return 0, fmt.Errorf("paper: fill %s: empty book side", symbol)
}
