package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/quantfold/scalpbot/internal/backtest"
	"github.com/quantfold/scalpbot/internal/domain"
	"github.com/quantfold/scalpbot/internal/eventlog"
	"github.com/quantfold/scalpbot/internal/feed"
	"github.com/quantfold/scalpbot/internal/gateway/bybit"
	"github.com/quantfold/scalpbot/internal/gateway/paper"
	"github.com/quantfold/scalpbot/internal/orchestrator"
	"github.com/quantfold/scalpbot/internal/regime"
	"github.com/quantfold/scalpbot/internal/signal"
	"github.com/quantfold/scalpbot/internal/sizing"
	"github.com/quantfold/scalpbot/internal/trade"
)

// runLockTTL bounds how long a crashed run keeps the live-trading lock.
const runLockTTL = 2 * time.Hour

// TradeMode trades live against the venue. A distributed lock (when Redis is
// wired) guarantees a single live run per account.
func (a *App) TradeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting trade mode")

	if deps.LockManager != nil {
		release, err := deps.LockManager.Acquire(ctx, "run", runLockTTL)
		if err != nil {
			return fmt.Errorf("trade mode: acquire run lock: %w", err)
		}
		defer release()
	}

	return a.runLive(ctx, deps, func(_ *feed.Keeper) domain.Gateway {
		gw := bybit.NewClient(a.cfg.Bybit.BaseURL, a.cfg.Bybit.ApiKey, a.cfg.Bybit.ApiSecret, a.logger)
		gw.SetRecvWindow(a.cfg.Bybit.RecvWindow)
		if deps.RateLimiter != nil {
			gw.SetRateLimiter(deps.RateLimiter)
		}
		return gw
	})
}

// PaperMode runs the full loop against live market data with simulated fills.
func (a *App) PaperMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting paper mode",
		slog.Float64("start_cash", a.cfg.Backtest.StartCash),
	)

	return a.runLive(ctx, deps, func(books *feed.Keeper) domain.Gateway {
		return paper.New(books, a.cfg.Backtest.StartCash, a.cfg.Backtest.TakerFee, a.logger)
	})
}

// runLive wires the depth feed, event log, and orchestrator, then runs the
// feed and loop goroutines until the context is cancelled. mkGateway receives
// the book keeper so the paper gateway can price fills off the live books.
func (a *App) runLive(ctx context.Context, deps *Dependencies, mkGateway func(*feed.Keeper) domain.Gateway) error {
	ws := feed.NewWSClient(a.cfg.Bybit.WsURL)
	keeper := feed.NewKeeper(ws, a.logger)
	gw := mkGateway(keeper)

	runID := uuid.New().String()
	evlog, err := eventlog.New(a.cfg.EventLog.Dir, runID, deps.EventStore, a.logger)
	if err != nil {
		return fmt.Errorf("run live: event log: %w", err)
	}

	strategy, err := signal.New(a.cfg.Trading.Strategy, signal.DefaultPatternConfig(), signal.DefaultPackConfig())
	if err != nil {
		_ = evlog.Close()
		return fmt.Errorf("run live: %w", err)
	}

	orch := a.buildOrchestrator(gw, keeper, strategy, evlog)
	orch.SetPersistence(deps.TradeStore, deps.CooldownStore, deps.PriceCache, deps.RulesCache)
	if deps.Notifier != nil {
		orch.SetNotifier(deps.Notifier)
	}

	// The feed needs concrete symbols up front. Static config wins; otherwise
	// discover the ranked universe once from the venue tickers.
	universe := orchestrator.BuildUniverse(ctx, gw, a.cfg.Trading.Symbols, a.cfg.Trading.TopN, a.cfg.Trading.FallbackSymbol)
	a.logger.InfoContext(ctx, "trading universe resolved",
		slog.Any("symbols", universe.Symbols),
		slog.Bool("discovered", universe.Discovered),
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return feed.Run(ctx, ws, keeper, universe.Symbols)
	})
	g.Go(func() error {
		return orch.Run(ctx)
	})

	runErr := g.Wait()

	if err := evlog.Close(); err != nil {
		a.logger.Warn("event log close failed", slog.String("error", err.Error()))
	}
	a.archiveRun(deps, evlog)

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}

// BacktestMode replays a recorded tick series through the strategy and fill
// simulator, then reports the summary.
func (a *App) BacktestMode(ctx context.Context, deps *Dependencies) error {
	bt := a.cfg.Backtest
	a.logger.InfoContext(ctx, "starting backtest mode",
		slog.String("ticks_path", bt.TicksPath),
		slog.String("symbol", bt.Symbol),
	)

	ticks, err := a.loadTicks(ctx, deps)
	if err != nil {
		return fmt.Errorf("backtest mode: %w", err)
	}
	if len(ticks) == 0 {
		return fmt.Errorf("backtest mode: no ticks in %s", bt.TicksPath)
	}

	strategy, err := signal.New(a.cfg.Trading.Strategy, signal.DefaultPatternConfig(), signal.DefaultPackConfig())
	if err != nil {
		return fmt.Errorf("backtest mode: %w", err)
	}

	acc := &domain.Account{Balance: bt.StartCash}
	engine := backtest.NewEngine(acc,
		backtest.SimpleFeeModel{Maker: bt.MakerFee, Taker: bt.TakerFee},
		backtest.SimpleSlippage{MakerBps: bt.MakerBps, TakerBps: bt.TakerBps},
	)
	runner := backtest.NewRunner(engine, strategy, backtest.RunnerConfig{
		Symbol:   bt.Symbol,
		Leverage: a.cfg.Trading.Leverage,
		Budget:   a.cfg.Trading.TotalBudget,
		Rule: domain.MarketRule{
			Symbol:   bt.Symbol,
			TickSize: 0.01, LotStep: 0.001, MinQty: 0.001,
		},
		TradeParams: a.tradeParams(),
		HistoryLen:  a.cfg.Trading.HistoryLen,
		ReportEvery: bt.ReportEvery,
	}, a.logger)

	report := runner.Run(ticks)
	a.logger.InfoContext(ctx, "backtest finished",
		slog.Int("ticks", report.Ticks),
		slog.Int("trades", report.Trades),
		slog.Int("wins", report.Wins),
		slog.Float64("realized_pnl", report.RealizedPnL),
		slog.Float64("fees_paid", report.FeesPaid),
		slog.Float64("end_equity", report.EndEquity),
	)
	return nil
}

// loadTicks reads the configured tick series from local disk or, for s3://
// keys, from blob storage.
func (a *App) loadTicks(ctx context.Context, deps *Dependencies) ([]domain.Tick, error) {
	path := a.cfg.Backtest.TicksPath
	if key, ok := cutS3Key(path); ok {
		if deps.BlobReader == nil {
			return nil, fmt.Errorf("ticks path %s needs s3.enabled = true", path)
		}
		return backtest.LoadTicksBlob(ctx, deps.BlobReader, key)
	}
	return backtest.LoadTicks(path)
}

// cutS3Key strips an s3:// prefix, reporting whether it was present.
func cutS3Key(path string) (string, bool) {
	const prefix = "s3://"
	if len(path) > len(prefix) && path[:len(prefix)] == prefix {
		return path[len(prefix):], true
	}
	return "", false
}

// buildOrchestrator assembles the loop from config.
func (a *App) buildOrchestrator(gw domain.Gateway, books orchestrator.BookSource, strategy signal.Strategy, evlog *eventlog.Logger) *orchestrator.Orchestrator {
	t := a.cfg.Trading
	cfg := orchestrator.Config{
		Leverage:        t.Leverage,
		MaxSlots:        t.MaxSlots,
		TotalBudget:     t.TotalBudget,
		UseBalanceRatio: t.UseBalanceRatio,
		TopN:            t.TopN,
		StaticSymbols:   t.Symbols,
		FallbackSymbol:  t.FallbackSymbol,
		TickInterval:    t.TickInterval.Duration,
		MaxAttempts:     t.MaxAttempts,
		BackoffBase:     t.BackoffBase.Duration,
		BackoffMax:      t.BackoffMax.Duration,
		Strictness:      t.Strictness,
		MaxSpreadOfMid:  t.MaxSpreadOfMid,
		MinTopDepth:     t.MinTopDepth,
		HistoryLen:      t.HistoryLen,
	}

	guards := sizing.GuardConfig{
		MinFreeBalance: a.cfg.Guards.MinFreeBalance,
		MaxAllocPct:    a.cfg.Guards.MaxAllocPct,
		SlippagePct:    a.cfg.Guards.SlippagePct,
	}
	cooldown := trade.NewCooldown(a.cfg.Trade.MaxConsecutiveLosses, a.cfg.Trade.CooldownSec)

	var detector *regime.Detector
	if a.cfg.Regime.Enabled {
		detector = regime.NewDetector(regime.Params{
			CrashZ:             a.cfg.Regime.CrashZ,
			SpreadMultPause:    a.cfg.Regime.SpreadMultPause,
			DepthDropPause:     a.cfg.Regime.DepthDropPause,
			OIDropPct:          a.cfg.Regime.OIDropPct,
			ResumeRVZ:          a.cfg.Regime.ResumeRVZ,
			ResumeSpreadMult:   a.cfg.Regime.ResumeSpreadMult,
			ResumeDepthRecover: a.cfg.Regime.ResumeDepthRecover,
		})
	}

	return orchestrator.New(cfg, gw, books, strategy, guards, a.tradeParams(), cooldown, detector, evlog, a.logger)
}

func (a *App) tradeParams() trade.Params {
	return trade.Params{
		TP1:           a.cfg.Trade.TP1,
		TrailAfterTP1: a.cfg.Trade.TrailAfterTP1,
		TimeStopSec:   a.cfg.Trade.TimeStopSec,
		PartialPct:    a.cfg.Trade.PartialPct,
	}
}

// archiveRun uploads the finished run's artifacts when blob storage is wired.
func (a *App) archiveRun(deps *Dependencies, evlog *eventlog.Logger) {
	if deps.Archiver == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	n, err := deps.Archiver.ArchiveRun(ctx, evlog.RunID(), evlog.RunDir())
	if err != nil {
		a.logger.Warn("run archive failed", slog.String("error", err.Error()))
		return
	}
	a.logger.Info("run archived",
		slog.String("run_id", evlog.RunID()),
		slog.Int("objects", n),
	)
}
