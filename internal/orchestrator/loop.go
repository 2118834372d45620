package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/quantfold/scalpbot/internal/book"
	"github.com/quantfold/scalpbot/internal/domain"
	"github.com/quantfold/scalpbot/internal/eventlog"
	"github.com/quantfold/scalpbot/internal/regime"
	"github.com/quantfold/scalpbot/internal/signal"
	"github.com/quantfold/scalpbot/internal/sizing"
	"github.com/quantfold/scalpbot/internal/trade"
)

// BookSource provides the current L2 book for a symbol. Implemented by the
// live depth feed and by the paper gateway.
type BookSource interface {
	Book(symbol string) (*book.L2Book, bool)
}

// Notifier pushes human-facing notifications for notable events. Optional.
type Notifier interface {
	Notify(ctx context.Context, event, message string)
}

// Config is the orchestrator's immutable runtime configuration, constructed
// once from the application config and passed in whole.
type Config struct {
	Leverage        float64
	MaxSlots        int
	TotalBudget     float64 // 0 means derive from free balance
	UseBalanceRatio float64
	TopN            int
	StaticSymbols   []string
	FallbackSymbol  string
	TickInterval    time.Duration
	MaxAttempts     int // bounded retry attempts per gateway call
	BackoffBase     time.Duration
	BackoffMax      time.Duration
	Strictness      float64 // scales the regime thresholds; 1 = default
	MaxSpreadOfMid  float64 // pause symbol when spread > mid * this * strictness
	MinTopDepth     float64 // pause symbol when top-of-book size < this / strictness
	HistoryLen      int     // rolling close/volume window for the indicator pack
}

// managedTrade pairs a trade state machine with its running PnL accounting.
type managedTrade struct {
	state    *trade.State
	pnl      float64
	openedAt time.Time
}

// symbolHistory keeps the per-symbol rolling series the indicator pack reads
// plus slow EW baselines for the regime gate.
type symbolHistory struct {
	closes  *signal.Rolling
	volumes *signal.Rolling

	baseSpread float64 // EW baseline spread
	baseDepth  float64 // EW baseline top-of-book size
}

// baselineAlpha is the EW smoothing factor for the regime baselines; slow
// enough that a sudden blowout stands out against it.
const baselineAlpha = 0.02

func (h *symbolHistory) observe(spread, depth float64) {
	if h.baseSpread == 0 {
		h.baseSpread = spread
	} else {
		h.baseSpread += baselineAlpha * (spread - h.baseSpread)
	}
	if h.baseDepth == 0 {
		h.baseDepth = depth
	} else {
		h.baseDepth += baselineAlpha * (depth - h.baseDepth)
	}
}

// Orchestrator drives the full per-symbol pipeline once per loop tick. All
// local computation is synchronous; the only suspension points are gateway
// calls, which are retried with bounded exponential backoff.
type Orchestrator struct {
	cfg      Config
	gw       domain.Gateway
	books    BookSource
	strategy signal.Strategy
	guards   sizing.GuardConfig
	params   trade.Params
	cooldown *trade.Cooldown
	detector *regime.Detector
	slots    *SlotManager
	evlog    *eventlog.Logger
	logger   *slog.Logger

	// Optional collaborators; nil disables the feature.
	cooldownStore domain.CooldownStore
	trades        domain.TradeStore
	prices        domain.PriceCache
	rulesCache    domain.RulesCache
	notifier      Notifier

	open    map[string]*managedTrade
	history map[string]*symbolHistory
}

// New wires an orchestrator from its required collaborators.
func New(
	cfg Config,
	gw domain.Gateway,
	books BookSource,
	strategy signal.Strategy,
	guards sizing.GuardConfig,
	params trade.Params,
	cooldown *trade.Cooldown,
	detector *regime.Detector,
	evlog *eventlog.Logger,
	logger *slog.Logger,
) *Orchestrator {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 3
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 200 * time.Millisecond
	}
	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = 5 * time.Second
	}
	if cfg.Strictness <= 0 {
		cfg.Strictness = 1
	}
	if cfg.HistoryLen < 3 {
		cfg.HistoryLen = 64
	}
	return &Orchestrator{
		cfg:      cfg,
		gw:       gw,
		books:    books,
		strategy: strategy,
		guards:   guards,
		params:   params,
		cooldown: cooldown,
		detector: detector,
		slots:    NewSlotManager(cfg.MaxSlots),
		evlog:    evlog,
		logger:   logger.With(slog.String("component", "orchestrator")),
		open:     make(map[string]*managedTrade),
		history:  make(map[string]*symbolHistory),
	}
}

// SetPersistence attaches the optional stores and caches.
func (o *Orchestrator) SetPersistence(trades domain.TradeStore, cooldowns domain.CooldownStore, prices domain.PriceCache, rules domain.RulesCache) {
	o.trades = trades
	o.cooldownStore = cooldowns
	o.prices = prices
	o.rulesCache = rules
}

// SetNotifier attaches the optional notifier.
func (o *Orchestrator) SetNotifier(n Notifier) { o.notifier = n }

// Slots exposes the slot manager (status reporting, tests).
func (o *Orchestrator) Slots() *SlotManager { return o.slots }

// Run executes loop ticks until the context is cancelled. Cancellation is
// cooperative: it is polled once per iteration, and in-flight gateway calls
// finish because each is synchronous and bounded.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.logger.Info("orchestrator started",
		slog.Int("max_slots", o.cfg.MaxSlots),
		slog.Float64("leverage", o.cfg.Leverage),
		slog.String("strategy", o.strategy.Name()),
	)
	defer o.logger.Info("orchestrator stopped")

	if o.cooldownStore != nil {
		if losses, resume, err := o.cooldownStore.Load(ctx); err == nil {
			o.cooldown.Restore(losses, resume)
		}
	}

	ticker := time.NewTicker(o.cfg.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		if err := o.Tick(ctx); err != nil {
			o.logger.Warn("tick aborted", slog.String("error", err.Error()))
		}
	}
}

// Tick runs one full pass: manage open trades, then plan and place new
// entries. A balance-guard failure aborts the whole pass; per-symbol guard
// failures skip only that symbol.
func (o *Orchestrator) Tick(ctx context.Context) error {
	now := time.Now().Unix()

	o.manageOpenTrades(ctx, now)

	var free, equity float64
	err := o.withRetry(ctx, "", "balance", func() error {
		var e error
		free, equity, e = o.gw.GetFreeBalance(ctx)
		return e
	})
	if err != nil {
		return fmt.Errorf("orchestrator: fetch balance: %w", err)
	}
	if ok, reason := o.guards.CheckBalance(free); !ok {
		o.evlog.Risk(ctx, "", false, reason, nil)
		return nil
	}

	if !o.cooldown.CanTrade(now) {
		o.evlog.WhyNoTrade(ctx, "", []string{"cooldown_active"})
		return nil
	}

	if o.slots.FreeCount() == 0 {
		return nil
	}

	universe := BuildUniverse(ctx, o.gw, o.cfg.StaticSymbols, o.cfg.TopN, o.cfg.FallbackSymbol)
	exclude := o.slots.CurrentSymbols()
	if syms, err := o.gw.PositionSymbols(ctx); err == nil {
		for _, s := range syms {
			exclude[s] = true
		}
	}
	if syms, err := o.gw.OpenOrderSymbols(ctx); err == nil {
		for _, s := range syms {
			exclude[s] = true
		}
	}

	target := TopN(universe.Symbols, o.slots.FreeCount(), exclude)
	totalBudget := o.cfg.TotalBudget
	if totalBudget <= 0 {
		ratio := o.cfg.UseBalanceRatio
		if ratio <= 0 || ratio > 1 {
			ratio = 1
		}
		totalBudget = free * ratio
	}
	perBudget := PerSymbolBudget(totalBudget, o.slots.ActiveCount(), len(target))

	for _, sym := range target {
		o.trySymbolEntry(ctx, sym, perBudget, equity, now)
	}
	return nil
}

// trySymbolEntry runs the per-symbol pipeline: book → regime gate → signal →
// guards → sizing → slot → order.
func (o *Orchestrator) trySymbolEntry(ctx context.Context, sym string, budget, equity float64, now int64) {
	b, ok := o.books.Book(sym)
	if !ok {
		o.evlog.WhyNoTrade(ctx, sym, []string{"no_book"})
		return
	}
	f := book.Features(b)

	hist := o.historyFor(sym)
	hist.closes.Add(f.Mid)
	bb, _ := b.BestBid()
	ba, _ := b.BestAsk()
	topDepth := bb.Size + ba.Size
	hist.volumes.Add(topDepth)

	if reasons := o.regimeGate(hist, f, topDepth); len(reasons) > 0 {
		o.evlog.WhyNoTrade(ctx, sym, reasons)
		return
	}

	sig := o.strategy.Evaluate(b, signal.Series{
		Closes:  hist.closes.Values(),
		Volumes: hist.volumes.Values(),
	})
	if sig == nil {
		o.evlog.Signal(ctx, sym, map[string]any{"strategy": o.strategy.Name()}, "")
		return
	}
	o.evlog.Signal(ctx, sym, map[string]any{
		"strategy": o.strategy.Name(),
		"name":     sig.Name,
		"score":    sig.Score,
		"reason":   sig.Reason,
	}, string(sig.Side))

	mark, err := o.markPrice(ctx, sym)
	if err != nil {
		o.evlog.WhyNoTrade(ctx, sym, []string{"mark_price_unavailable"})
		return
	}
	rule, err := o.marketRule(ctx, sym)
	if err != nil {
		o.evlog.WhyNoTrade(ctx, sym, []string{"market_rules_unavailable"})
		return
	}
	sized := sizing.ComputeOrderQty(mark, budget, o.cfg.Leverage, rule)
	if sized.Qty <= 0 {
		o.evlog.WhyNoTrade(ctx, sym, []string{"sized_to_zero"})
		return
	}

	// Guards in order; size and slippage failures skip only this symbol.
	if ok, reason := o.guards.CheckOrderSize(sized.EstNotional, equity); !ok {
		o.evlog.Risk(ctx, sym, false, reason, nil)
		return
	}
	if ok, reason := o.guards.CheckSlippage(f.Mid, mark); !ok {
		o.evlog.Risk(ctx, sym, false, reason, nil)
		return
	}

	slot, err := o.slots.Acquire(sym)
	if err != nil {
		return
	}
	slot.Budget = budget

	req := domain.OrderRequest{
		Symbol: sym,
		Side:   sig.Side,
		Qty:    sized.Qty,
		LinkID: fmt.Sprintf("sb-%d-%s", now, uuid.New().String()[:8]),
	}
	var orderID string
	err = o.withRetry(ctx, sym, "place_order", func() error {
		var e error
		orderID, e = o.gw.PlaceOrder(ctx, req)
		return e
	})
	if err != nil {
		o.slots.Release(sym)
		o.evlog.Order(ctx, sym, map[string]any{"qty": sized.Qty, "side": sig.Side}, map[string]any{"error": err.Error()})
		// The link ID may have reached the venue on a transient failure;
		// record it as abandoned so reporting's fill-rate stays honest.
		o.evlog.Cancel(ctx, sym, req.LinkID, "place_failed")
		return
	}

	slot.State = SlotManaged
	o.open[sym] = &managedTrade{
		state:    trade.NewState(sig.Side, mark, sized.Qty, now, o.params),
		openedAt: time.Now().UTC(),
	}
	o.evlog.Order(ctx, sym, map[string]any{
		"event":        "entry",
		"side":         sig.Side,
		"qty":          sized.Qty,
		"price":        mark,
		"budget_usdt":  budget,
		"est_notional": sized.EstNotional,
		"signal":       sig.Name,
	}, map[string]any{"order_id": orderID, "link_id": req.LinkID})
	o.evlog.Fill(ctx, sym, sig.Side, mark, sized.Qty, orderID)
	o.logger.Info("entered position",
		slog.String("symbol", sym),
		slog.String("side", string(sig.Side)),
		slog.Float64("qty", sized.Qty),
		slog.Float64("price", mark),
	)
}

// manageOpenTrades advances every managed position's state machine and
// executes the emitted close actions. Gateway failures on a close are retried
// and, when exhausted, the action is reverted so the quantity stays open and
// the next tick re-attempts it. The trade finalizes only once the venue has
// confirmed every close, so the slot is held until the position is flat.
func (o *Orchestrator) manageOpenTrades(ctx context.Context, now int64) {
	for sym, mt := range o.open {
		px, err := o.markPrice(ctx, sym)
		if err != nil {
			o.logger.Warn("manage: mark price unavailable", slog.String("symbol", sym))
			continue
		}
		for _, act := range mt.state.Update(px, now) {
			orderID, err := o.executeClose(ctx, sym, mt, act)
			if err != nil {
				mt.state.Revert(act)
				o.logger.Warn("close action failed",
					slog.String("symbol", sym),
					slog.String("reason", act.Reason),
					slog.String("error", err.Error()),
				)
				continue
			}
			o.evlog.Fill(ctx, sym, mt.state.Side.Opposite(), act.Price, act.Qty, orderID)
			mt.pnl += closedPnL(mt.state.Side, mt.state.EntryPrice, act.Price, act.Qty)
		}
		if mt.state.Closed() {
			o.finishTrade(ctx, sym, mt, px, now)
		}
	}
}

// executeClose places one reduce-only close action at the venue. The final
// remainder goes through ClosePosition so the venue flattens everything.
func (o *Orchestrator) executeClose(ctx context.Context, sym string, mt *managedTrade, act trade.Action) (string, error) {
	full := act.Reason == "time_stop" || act.Reason == "trail_stop"
	var orderID string
	err := o.withRetry(ctx, sym, "close", func() error {
		if full {
			return o.gw.ClosePosition(ctx, sym)
		}
		var e error
		orderID, e = o.gw.PlaceOrder(ctx, domain.OrderRequest{
			Symbol:     sym,
			Side:       mt.state.Side.Opposite(),
			Qty:        act.Qty,
			ReduceOnly: true,
		})
		return e
	})
	return orderID, err
}

// finishTrade records the completed trade: cooldown, persistence, events.
func (o *Orchestrator) finishTrade(ctx context.Context, sym string, mt *managedTrade, exitPx float64, now int64) {
	o.cooldown.OnTradeClose(mt.pnl, now)
	if o.cooldownStore != nil {
		if err := o.cooldownStore.Save(ctx, o.cooldown.Losses, o.cooldown.ResumeTs); err != nil {
			o.logger.Warn("cooldown persist failed", slog.String("error", err.Error()))
		}
	}
	o.evlog.PnL(ctx, sym, mt.pnl, 0)
	if o.trades != nil {
		rec := domain.TradeRecord{
			ID:          uuid.New().String(),
			RunID:       o.evlog.RunID(),
			Symbol:      sym,
			Side:        mt.state.Side,
			EntryPrice:  mt.state.EntryPrice,
			ExitPrice:   exitPx,
			Qty:         mt.state.Qty,
			RealizedPnL: mt.pnl,
			Reason:      "closed",
			OpenedAt:    mt.openedAt,
			ClosedAt:    time.Now().UTC(),
		}
		if err := o.trades.Create(ctx, rec); err != nil {
			o.logger.Warn("trade persist failed", slog.String("error", err.Error()))
		}
	}
	if o.notifier != nil {
		o.notifier.Notify(ctx, "position_closed",
			fmt.Sprintf("%s closed, pnl %.4f", sym, mt.pnl))
	}
	delete(o.open, sym)
	o.slots.Release(sym)
	o.logger.Info("position closed", slog.String("symbol", sym), slog.Float64("pnl", mt.pnl))
}

// regimeGate applies the strictness-scaled spread/depth checks and feeds the
// sticky regime detector against the symbol's EW baselines. Baselines update
// after the check so the current observation cannot mask its own anomaly.
func (o *Orchestrator) regimeGate(hist *symbolHistory, f book.FeatureSnapshot, topDepth float64) []string {
	var reasons []string
	if f.Mid <= 0 {
		return []string{"empty_book"}
	}
	if o.cfg.MaxSpreadOfMid > 0 && f.Spread > f.Mid*o.cfg.MaxSpreadOfMid*o.cfg.Strictness {
		reasons = append(reasons, "spread_too_wide")
	}
	if o.cfg.MinTopDepth > 0 && topDepth < o.cfg.MinTopDepth/o.cfg.Strictness {
		reasons = append(reasons, "depth_too_thin")
	}

	if o.detector != nil && hist.baseSpread > 0 && hist.baseDepth > 0 {
		spreadMult := f.Spread / hist.baseSpread
		depthDrop := max(0, 1-topDepth/hist.baseDepth)
		z1s := returnZ(hist.closes.Values())
		if o.detector.Paused() {
			depthRecover := topDepth / hist.baseDepth
			if !o.detector.CheckResume(z1s, spreadMult, depthRecover) {
				reasons = append(reasons, "regime_pause")
			}
		} else if o.detector.CheckPause(z1s, spreadMult, depthDrop, 0, 0) {
			reasons = append(reasons, "regime_pause")
		}
	}
	hist.observe(f.Spread, topDepth)
	return reasons
}

// returnZ is the z-score of the latest tick-to-tick return against the
// window's return distribution. Zero until enough history accumulates.
func returnZ(closes []float64) float64 {
	if len(closes) < 10 {
		return 0
	}
	rets := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		if closes[i-1] > 0 {
			rets = append(rets, closes[i]/closes[i-1]-1)
		}
	}
	if len(rets) < 2 {
		return 0
	}
	var mean float64
	for _, r := range rets {
		mean += r
	}
	mean /= float64(len(rets))
	var variance float64
	for _, r := range rets {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(rets) - 1)
	if variance <= 0 {
		return 0
	}
	return math.Abs(rets[len(rets)-1]-mean) / math.Sqrt(variance)
}

// historyFor returns (allocating on first use) the symbol's rolling series.
func (o *Orchestrator) historyFor(sym string) *symbolHistory {
	h, ok := o.history[sym]
	if !ok {
		h = &symbolHistory{
			closes:  signal.NewRolling(o.cfg.HistoryLen),
			volumes: signal.NewRolling(o.cfg.HistoryLen),
		}
		o.history[sym] = h
	}
	return h
}

// markPrice fetches the symbol's mark price through the optional cache, with
// bounded retries against the gateway on a miss.
func (o *Orchestrator) markPrice(ctx context.Context, sym string) (float64, error) {
	if o.prices != nil {
		if px, _, err := o.prices.GetPrice(ctx, sym); err == nil && px > 0 {
			return px, nil
		}
	}
	var px float64
	err := o.withRetry(ctx, sym, "mark_price", func() error {
		var e error
		px, e = o.gw.GetMarkPrice(ctx, sym)
		return e
	})
	if err != nil {
		return 0, err
	}
	if o.prices != nil {
		_ = o.prices.SetPrice(ctx, sym, px)
	}
	return px, nil
}

// marketRule fetches the symbol's trading filters through the optional cache.
func (o *Orchestrator) marketRule(ctx context.Context, sym string) (domain.MarketRule, error) {
	if o.rulesCache != nil {
		if rule, err := o.rulesCache.GetRule(ctx, sym); err == nil && rule.Symbol != "" {
			return rule, nil
		}
	}
	var rule domain.MarketRule
	err := o.withRetry(ctx, sym, "market_rules", func() error {
		var e error
		rule, e = o.gw.GetMarketRules(ctx, sym)
		return e
	})
	if err != nil {
		return domain.MarketRule{}, err
	}
	if o.rulesCache != nil {
		_ = o.rulesCache.SetRule(ctx, rule)
	}
	return rule, nil
}

// withRetry runs fn up to MaxAttempts times with exponential backoff between
// attempts. Exhausting retries is non-fatal to the loop: the error is
// event-logged and returned so the caller skips the current symbol/tick.
func (o *Orchestrator) withRetry(ctx context.Context, sym, op string, fn func() error) error {
	var err error
	wait := o.cfg.BackoffBase
	for attempt := 1; attempt <= o.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
			wait *= 2
			if wait > o.cfg.BackoffMax {
				wait = o.cfg.BackoffMax
			}
		}
		if err = fn(); err == nil {
			return nil
		}
	}
	o.evlog.Info(ctx, sym, map[string]any{
		"event":    "gateway_error",
		"op":       op,
		"attempts": o.cfg.MaxAttempts,
		"error":    err.Error(),
	})
	return err
}

// closedPnL computes realized PnL for a close action against the entry.
func closedPnL(side domain.Side, entry, exit, qty float64) float64 {
	if side == domain.SideBuy {
		return (exit - entry) * qty
	}
	return (entry - exit) * qty
}
