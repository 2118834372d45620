package orchestrator

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfold/scalpbot/internal/book"
	"github.com/quantfold/scalpbot/internal/domain"
	"github.com/quantfold/scalpbot/internal/eventlog"
	"github.com/quantfold/scalpbot/internal/signal"
	"github.com/quantfold/scalpbot/internal/sizing"
	"github.com/quantfold/scalpbot/internal/trade"
)

type fakeBooks map[string]*book.L2Book

func (f fakeBooks) Book(symbol string) (*book.L2Book, bool) {
	b, ok := f[symbol]
	return b, ok
}

// bidHeavyBook produces a book whose imbalance fires the bounce rule long.
func bidHeavyBook(t *testing.T) *book.L2Book {
	t.Helper()
	b := book.New("BTCUSDT")
	b.ApplySnapshot(1, 1000,
		[]domain.PriceLevel{{Price: 100, Size: 3}},
		[]domain.PriceLevel{{Price: 100.5, Size: 1}},
	)
	return b
}

func newTestOrchestrator(t *testing.T, gw domain.Gateway, books BookSource) (*Orchestrator, *trade.Cooldown, string) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	evlog, err := eventlog.New(t.TempDir(), "test-run", nil, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = evlog.Close() })
	eventsPath := filepath.Join(evlog.RunDir(), "events.jsonl")

	strategy, err := signal.New("pattern", signal.DefaultPatternConfig(), signal.DefaultPackConfig())
	require.NoError(t, err)

	cooldown := trade.NewCooldown(3, 600)
	cfg := Config{
		Leverage:       1,
		MaxSlots:       2,
		TotalBudget:    100,
		TopN:           5,
		StaticSymbols:  []string{"BTCUSDT"},
		FallbackSymbol: "BTCUSDT",
		TickInterval:   time.Second,
		MaxAttempts:    2,
		BackoffBase:    time.Millisecond,
		BackoffMax:     2 * time.Millisecond,
	}
	guards := sizing.GuardConfig{MinFreeBalance: 100, MaxAllocPct: 0.05, SlippagePct: 0.003}
	params := trade.Params{TP1: 0.01, TrailAfterTP1: 0.005, TimeStopSec: 900, PartialPct: 0.5}

	return New(cfg, gw, books, strategy, guards, params, cooldown, nil, evlog, logger), cooldown, eventsPath
}

// eventSteps reads the run's events file and returns the step of each record.
func eventSteps(t *testing.T, path string) []string {
	t.Helper()
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var steps []string
	for _, line := range strings.Split(strings.TrimSpace(string(raw)), "\n") {
		if line == "" {
			continue
		}
		var ev domain.EventRecord
		require.NoError(t, json.Unmarshal([]byte(line), &ev))
		steps = append(steps, ev.Step)
	}
	return steps
}

func entryGateway() *fakeGateway {
	return &fakeGateway{
		free:       1000,
		equity:     10000,
		markPrices: map[string]float64{"BTCUSDT": 100.25},
	}
}

func TestTickEntersPosition(t *testing.T) {
	gw := entryGateway()
	o, _, _ := newTestOrchestrator(t, gw, fakeBooks{"BTCUSDT": bidHeavyBook(t)})

	require.NoError(t, o.Tick(context.Background()))

	placed := gw.placedOrders()
	require.Len(t, placed, 1)
	assert.Equal(t, "BTCUSDT", placed[0].Symbol)
	assert.Equal(t, domain.SideBuy, placed[0].Side)
	// 100 budget at 1x over mark 100.25 floors to the 0.001 lot step.
	assert.InDelta(t, 0.997, placed[0].Qty, 1e-9)
	assert.False(t, placed[0].ReduceOnly)
	assert.True(t, strings.HasPrefix(placed[0].LinkID, "sb-"))
	assert.Equal(t, 1, o.Slots().ActiveCount())
}

func TestTickBalanceGuardAbortsPass(t *testing.T) {
	gw := entryGateway()
	gw.free = 50 // below the 100 floor
	o, _, _ := newTestOrchestrator(t, gw, fakeBooks{"BTCUSDT": bidHeavyBook(t)})

	require.NoError(t, o.Tick(context.Background()))
	assert.Empty(t, gw.placedOrders())
	assert.Zero(t, o.Slots().ActiveCount())
}

func TestTickCooldownBlocksEntries(t *testing.T) {
	gw := entryGateway()
	o, cooldown, _ := newTestOrchestrator(t, gw, fakeBooks{"BTCUSDT": bidHeavyBook(t)})
	cooldown.Restore(3, time.Now().Unix()+600)

	require.NoError(t, o.Tick(context.Background()))
	assert.Empty(t, gw.placedOrders())
}

func TestTickSlippageGuardSkipsSymbol(t *testing.T) {
	gw := entryGateway()
	gw.markPrices["BTCUSDT"] = 101 // 0.74% off the book mid of 100.25
	o, _, _ := newTestOrchestrator(t, gw, fakeBooks{"BTCUSDT": bidHeavyBook(t)})

	require.NoError(t, o.Tick(context.Background()))
	assert.Empty(t, gw.placedOrders())
	assert.Zero(t, o.Slots().ActiveCount())
}

func TestTickNoBookSkipsSymbol(t *testing.T) {
	gw := entryGateway()
	o, _, _ := newTestOrchestrator(t, gw, fakeBooks{})

	require.NoError(t, o.Tick(context.Background()))
	assert.Empty(t, gw.placedOrders())
}

func TestTickRetriesTransientBalanceFailure(t *testing.T) {
	gw := entryGateway()
	gw.balanceFails = 1 // first attempt fails, retry succeeds
	o, _, _ := newTestOrchestrator(t, gw, fakeBooks{"BTCUSDT": bidHeavyBook(t)})

	require.NoError(t, o.Tick(context.Background()))
	assert.Len(t, gw.placedOrders(), 1)
}

func TestTickAbortsWhenRetriesExhausted(t *testing.T) {
	gw := entryGateway()
	gw.balanceFails = 2 // both attempts fail
	o, _, _ := newTestOrchestrator(t, gw, fakeBooks{"BTCUSDT": bidHeavyBook(t)})

	err := o.Tick(context.Background())
	require.ErrorIs(t, err, errFakeGateway)
	assert.Empty(t, gw.placedOrders())
}

func TestTradeLifecycleTP1ThenTrailClose(t *testing.T) {
	gw := entryGateway()
	o, cooldown, _ := newTestOrchestrator(t, gw, fakeBooks{"BTCUSDT": bidHeavyBook(t)})
	ctx := context.Background()

	// Tick 1: enter long at the 100.25 mark.
	require.NoError(t, o.Tick(ctx))
	require.Len(t, gw.placedOrders(), 1)
	entryQty := gw.placedOrders()[0].Qty

	// Tick 2: price gapped past TP1 (100.25 * 1.01); half the position is
	// closed with a reduce-only order and the trail anchors at 101.5.
	gw.mu.Lock()
	gw.markPrices["BTCUSDT"] = 101.5
	gw.mu.Unlock()
	require.NoError(t, o.Tick(ctx))

	placed := gw.placedOrders()
	require.Len(t, placed, 2)
	partial := placed[1]
	assert.Equal(t, domain.SideSell, partial.Side)
	assert.True(t, partial.ReduceOnly)
	assert.InDelta(t, entryQty*0.5, partial.Qty, 1e-9)
	assert.Equal(t, 1, o.Slots().ActiveCount())

	// Tick 3: retrace beyond 0.5% of the anchor fires the trail stop; the
	// remainder is flattened via ClosePosition and the slot is released.
	gw.mu.Lock()
	gw.markPrices["BTCUSDT"] = 100.9
	gw.mu.Unlock()
	require.NoError(t, o.Tick(ctx))

	assert.Equal(t, []string{"BTCUSDT"}, gw.closed)
	assert.Zero(t, o.Slots().ActiveCount())
	// The trade finished green, so the loss streak stays clear.
	assert.Zero(t, cooldown.Losses)
}

func TestCloseFailureKeepsTradeOpen(t *testing.T) {
	gw := entryGateway()
	o, cooldown, _ := newTestOrchestrator(t, gw, fakeBooks{"BTCUSDT": bidHeavyBook(t)})
	ctx := context.Background()

	require.NoError(t, o.Tick(ctx))
	require.Len(t, gw.placedOrders(), 1)

	// The venue rejects every close. TP1 fires but the partial reverts, the
	// trade stays managed, and the held slot blocks re-entry on the symbol.
	gw.mu.Lock()
	gw.markPrices["BTCUSDT"] = 101.5
	gw.closeErr = errFakeGateway
	gw.mu.Unlock()
	require.NoError(t, o.Tick(ctx))

	assert.Len(t, gw.placedOrders(), 1)
	assert.Empty(t, gw.closed)
	assert.Equal(t, 1, o.Slots().ActiveCount())
	assert.Zero(t, cooldown.Losses)

	// The partial is re-attempted every tick while the venue keeps failing.
	attemptsBefore := gw.closeAttemptCount()
	require.NoError(t, o.Tick(ctx))
	assert.Greater(t, gw.closeAttemptCount(), attemptsBefore)

	// Venue recovers: the partial executes and the trade is still open.
	gw.mu.Lock()
	gw.closeErr = nil
	gw.mu.Unlock()
	require.NoError(t, o.Tick(ctx))

	placed := gw.placedOrders()
	require.Len(t, placed, 2)
	assert.True(t, placed[1].ReduceOnly)
	assert.InDelta(t, placed[0].Qty*0.5, placed[1].Qty, 1e-9)
	assert.Equal(t, 1, o.Slots().ActiveCount())

	// Retrace trails out the remainder; only now does the trade finalize.
	gw.mu.Lock()
	gw.markPrices["BTCUSDT"] = 100.9
	gw.mu.Unlock()
	require.NoError(t, o.Tick(ctx))

	assert.Equal(t, []string{"BTCUSDT"}, gw.closed)
	assert.Zero(t, o.Slots().ActiveCount())
	assert.Zero(t, cooldown.Losses)
}

func TestTickJournalsFillAndCancelEvents(t *testing.T) {
	gw := entryGateway()
	o, _, eventsPath := newTestOrchestrator(t, gw, fakeBooks{"BTCUSDT": bidHeavyBook(t)})
	ctx := context.Background()

	// Entry executes at the mark and journals a fill after the order record.
	require.NoError(t, o.Tick(ctx))
	steps := eventSteps(t, eventsPath)
	assert.Contains(t, steps, "fill")
	assert.NotContains(t, steps, "cancel")

	// The TP1 partial journals a second fill.
	gw.mu.Lock()
	gw.markPrices["BTCUSDT"] = 101.5
	gw.mu.Unlock()
	require.NoError(t, o.Tick(ctx))
	fills := 0
	for _, s := range eventSteps(t, eventsPath) {
		if s == "fill" {
			fills++
		}
	}
	assert.Equal(t, 2, fills)
}

func TestTickJournalsCancelOnPlaceFailure(t *testing.T) {
	gw := entryGateway()
	gw.placeErr = errFakeGateway
	o, _, eventsPath := newTestOrchestrator(t, gw, fakeBooks{"BTCUSDT": bidHeavyBook(t)})

	require.NoError(t, o.Tick(context.Background()))
	assert.Zero(t, o.Slots().ActiveCount())

	steps := eventSteps(t, eventsPath)
	assert.Contains(t, steps, "cancel")
	assert.NotContains(t, steps, "fill")
}
