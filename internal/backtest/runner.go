package backtest

import (
	"log/slog"

	"github.com/quantfold/scalpbot/internal/book"
	"github.com/quantfold/scalpbot/internal/domain"
	"github.com/quantfold/scalpbot/internal/signal"
	"github.com/quantfold/scalpbot/internal/sizing"
	"github.com/quantfold/scalpbot/internal/trade"
)

// RunnerConfig parameterizes an offline replay of one symbol.
type RunnerConfig struct {
	Symbol      string
	Leverage    float64
	Budget      float64 // per-entry budget; 0 uses the full account balance
	Rule        domain.MarketRule
	TradeParams trade.Params
	HistoryLen  int
	ReportEvery int // ticks between progress lines; 0 disables
}

// Report summarizes one replay.
type Report struct {
	Ticks       int
	Trades      int
	Wins        int
	RealizedPnL float64
	FeesPaid    float64
	EndEquity   float64
}

// Runner replays a recorded tick series through the signal strategy, sizer,
// and trade state machine, executing against the fill simulator. One symbol,
// one position at a time.
type Runner struct {
	engine   *Engine
	strategy signal.Strategy
	cfg      RunnerConfig
	logger   *slog.Logger
}

// NewRunner wires a replay over the given engine and strategy.
func NewRunner(engine *Engine, strategy signal.Strategy, cfg RunnerConfig, logger *slog.Logger) *Runner {
	if cfg.HistoryLen < 3 {
		cfg.HistoryLen = 64
	}
	if cfg.Leverage <= 0 {
		cfg.Leverage = 1
	}
	return &Runner{
		engine:   engine,
		strategy: strategy,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "backtest")),
	}
}

// Run replays the tick series and returns the summary. The sequence per tick
// is: advance the simulator (fills any order placed on a prior tick), then
// manage the open position, then look for a new entry when flat.
func (r *Runner) Run(ticks []domain.Tick) Report {
	closes := signal.NewRolling(r.cfg.HistoryLen)
	volumes := signal.NewRolling(r.cfg.HistoryLen)

	b := book.New(r.cfg.Symbol)

	var (
		state      *trade.State
		entryPnL   float64
		report     Report
		entryOrder bool // an entry order is resting in the simulator
	)
	acc := r.engine.Account

	for i, tick := range ticks {
		report.Ticks++
		if r.cfg.ReportEvery > 0 && report.Ticks%r.cfg.ReportEvery == 0 {
			r.logger.Info("replay progress",
				slog.Int("tick", report.Ticks),
				slog.Int("trades", report.Trades),
				slog.Float64("realized_pnl", acc.Position.RealizedPnL),
			)
		}

		r.engine.OnTick(tick, r.liquidityFor(tick))

		b.ApplySnapshot(int64(i+1), tick.Ts,
			[]domain.PriceLevel{{Price: tick.Bid, Size: tick.BidSize}},
			[]domain.PriceLevel{{Price: tick.Ask, Size: tick.AskSize}},
		)
		closes.Add(tick.Last)
		volumes.Add(tick.BidSize + tick.AskSize)

		// An entry order just finished filling: open the state machine at the
		// realized average price.
		if entryOrder && r.engine.OpenOrder() == nil {
			entryOrder = false
			if acc.Position.Qty > 0 {
				state = trade.NewState(acc.Position.Side, acc.Position.AvgPrice, acc.Position.Qty, tick.Ts/1000, r.cfg.TradeParams)
				entryPnL = acc.Position.RealizedPnL
			}
		}

		if state != nil {
			r.manage(state, tick)
			if state.Closed() && acc.Position.Qty <= 1e-12 && r.engine.OpenOrder() == nil {
				report.Trades++
				if acc.Position.RealizedPnL-entryPnL >= 0 {
					report.Wins++
				}
				state = nil
			}
			continue
		}
		if entryOrder {
			continue
		}

		sig := r.strategy.Evaluate(b, signal.Series{Closes: closes.Values(), Volumes: volumes.Values()})
		if sig == nil {
			continue
		}
		px := tick.Ask
		if sig.Side == domain.SideSell {
			px = tick.Bid
		}
		budget := r.cfg.Budget
		if budget <= 0 {
			budget = acc.Balance
		}
		so := sizing.ComputeOrderQty(px, budget, r.cfg.Leverage, r.cfg.Rule)
		if so.Qty <= 0 {
			continue
		}
		r.engine.Place(domain.Order{Side: sig.Side, Qty: so.Qty, Type: domain.OrderTypeMarket})
		entryOrder = true
	}

	report.RealizedPnL = acc.Position.RealizedPnL
	report.FeesPaid = acc.Position.FeesPaid
	report.EndEquity = acc.Balance + acc.Position.RealizedPnL
	return report
}

// manage feeds the latest mid into the state machine and executes any close
// actions as IOC reduce-only market orders.
func (r *Runner) manage(state *trade.State, tick domain.Tick) {
	mid := (tick.Bid + tick.Ask) / 2
	if mid <= 0 {
		mid = tick.Last
	}
	for _, act := range state.Update(mid, tick.Ts/1000) {
		r.engine.Place(domain.Order{
			Side:       state.Side.Opposite(),
			Qty:        act.Qty,
			Type:       domain.OrderTypeMarket,
			IOC:        true,
			ReduceOnly: true,
		})
		r.engine.OnTick(tick, r.liquidityFor(tick))
	}
}

// liquidityFor returns the size available to the currently resting order.
func (r *Runner) liquidityFor(tick domain.Tick) float64 {
	o := r.engine.OpenOrder()
	if o == nil {
		return 0
	}
	if o.Side == domain.SideBuy {
		return tick.AskSize
	}
	return tick.BidSize
}
