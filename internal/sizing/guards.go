package sizing

import "fmt"

// GuardConfig holds the pre-trade guard limits.
type GuardConfig struct {
	MinFreeBalance float64 // entries blocked below this free balance
	MaxAllocPct    float64 // order notional cap as a fraction of equity
	SlippagePct    float64 // |intended-reference|/reference limit
}

// DefaultGuardConfig returns conservative limits suitable for testnet.
func DefaultGuardConfig() GuardConfig {
	return GuardConfig{
		MinFreeBalance: 100,
		MaxAllocPct:    0.05,
		SlippagePct:    0.003,
	}
}

// CheckBalance blocks entries when free balance is below the configured
// minimum. Failure here aborts the whole loop tick, not just one symbol.
func (g GuardConfig) CheckBalance(free float64) (bool, string) {
	if free < g.MinFreeBalance {
		return false, fmt.Sprintf("free balance %.2f < minimum %.2f", free, g.MinFreeBalance)
	}
	return true, "ok"
}

// MaxAllocNotional returns the order notional cap for the given equity.
func (g GuardConfig) MaxAllocNotional(equity float64) float64 {
	return equity * g.MaxAllocPct
}

// CheckOrderSize caps the order notional to the allocation fraction of equity.
func (g GuardConfig) CheckOrderSize(notional, equity float64) (bool, string) {
	limit := g.MaxAllocNotional(equity)
	if notional > limit {
		return false, fmt.Sprintf("order notional %.2f exceeds cap %.2f", notional, limit)
	}
	return true, "ok"
}

// CheckSlippage compares the intended price against a reference (usually mid)
// and blocks when the relative distance exceeds the limit.
func (g GuardConfig) CheckSlippage(intended, reference float64) (bool, string) {
	if reference <= 0 {
		return false, "reference price invalid"
	}
	slip := intended - reference
	if slip < 0 {
		slip = -slip
	}
	slip /= reference
	if slip > g.SlippagePct {
		return false, fmt.Sprintf("slippage %.4f > limit %.4f", slip, g.SlippagePct)
	}
	return true, "ok"
}
