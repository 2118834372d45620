// Package sizing converts budgets into executable order quantities under
// exchange lot/tick constraints, and provides the pre-trade risk guards.
package sizing

import "github.com/quantfold/scalpbot/internal/domain"

func floorStep(value, step float64) float64 {
	if step <= 0 {
		return value
	}
	return float64(int64(value/step)) * step
}

func ceilStep(value, step float64) float64 {
	if step <= 0 {
		return value
	}
	q := int64(value / step)
	if diff := float64(q)*step - value; diff < 1e-12 && diff > -1e-12 {
		return value
	}
	return float64(q+1) * step
}

// ComputeOrderQty sizes an order from a per-symbol budget and leverage for a
// linear USDT perp: raw = budget*leverage/price, floored to the lot step, then
// raised (ceiling to step) to satisfy min qty and min notional. The result is
// monotone non-decreasing in both budget and leverage. Zero-valued rule
// fields mean the venue does not publish that constraint.
func ComputeOrderQty(price, budget, leverage float64, rule domain.MarketRule) domain.SizedOrder {
	px := max(price, 1e-9)
	raw := max(0, budget*leverage/px)
	qty := floorStep(raw, rule.LotStep)
	if rule.MinQty > 0 && qty < rule.MinQty {
		qty = ceilStep(rule.MinQty, rule.LotStep)
	}
	if rule.MinNotional > 0 && qty*px < rule.MinNotional {
		qty = ceilStep(rule.MinNotional/px, rule.LotStep)
	}
	notional := qty * px
	return domain.SizedOrder{
		Qty:         qty,
		EstNotional: notional,
		UsedBudget:  notional / max(leverage, 1e-9),
	}
}
