package orchestrator

import (
	"context"
	"errors"

	"github.com/quantfold/scalpbot/internal/domain"
	"github.com/quantfold/scalpbot/internal/eventlog"
	"github.com/quantfold/scalpbot/internal/sizing"
)

// EntryPlan is one planned entry: symbol, allocated budget, and sized order.
type EntryPlan struct {
	Symbol      string
	Budget      float64
	Price       float64
	Qty         float64
	EstNotional float64
	UsedBudget  float64
}

// PerSymbolBudget splits the total budget evenly across the slots that will
// be occupied after the new entries fill (currently active + newly selected).
func PerSymbolBudget(total float64, active, toFill int) float64 {
	denom := active + toFill
	if denom < 1 {
		denom = 1
	}
	return max(0, total/float64(denom))
}

// PlanInput carries everything PlanEntries needs for one planning pass.
type PlanInput struct {
	Ranked           []string
	OpenOrderSymbols map[string]bool
	PositionSymbols  map[string]bool
	Prices           map[string]float64
	Rules            map[string]domain.MarketRule
	Leverage         float64
	TotalBudget      float64
}

// PlanEntries selects symbols for the free slots in ranking order, splits the
// budget evenly, sizes each entry, and acquires a slot per accepted symbol.
// Symbols already managed, with open orders, or with positions are excluded.
// One structured entry-plan event is logged per accepted symbol.
func PlanEntries(ctx context.Context, slots *SlotManager, in PlanInput, evlog *eventlog.Logger) []EntryPlan {
	exclude := slots.CurrentSymbols()
	for s := range in.OpenOrderSymbols {
		exclude[s] = true
	}
	for s := range in.PositionSymbols {
		exclude[s] = true
	}

	target := TopN(in.Ranked, slots.FreeCount(), exclude)
	perBudget := PerSymbolBudget(in.TotalBudget, slots.ActiveCount(), len(target))

	plans := make([]EntryPlan, 0, len(target))
	for _, sym := range target {
		px := in.Prices[sym]
		sized := sizing.ComputeOrderQty(px, perBudget, in.Leverage, in.Rules[sym])
		slot, err := slots.Acquire(sym)
		if err != nil {
			// Capacity raced away or a duplicate slipped through the exclude
			// set; either way this symbol just misses the round.
			if errors.Is(err, domain.ErrNoFreeSlot) {
				break
			}
			continue
		}
		slot.Budget = perBudget
		plan := EntryPlan{
			Symbol:      sym,
			Budget:      perBudget,
			Price:       px,
			Qty:         sized.Qty,
			EstNotional: sized.EstNotional,
			UsedBudget:  sized.UsedBudget,
		}
		if evlog != nil {
			evlog.Order(ctx, sym, map[string]any{
				"event":        "entry_plan",
				"budget_usdt":  perBudget,
				"price":        px,
				"qty":          sized.Qty,
				"est_notional": sized.EstNotional,
				"used_budget":  sized.UsedBudget,
			}, nil)
		}
		plans = append(plans, plan)
	}
	return plans
}
