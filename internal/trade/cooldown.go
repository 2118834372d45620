package trade

// Cooldown suppresses new entries after a run of consecutive losing trades.
// It is scoped system-wide: one instance gates all symbols, since a loss
// streak usually reflects the regime, not one market.
type Cooldown struct {
	MaxConsecutiveLosses int
	CooldownSec          int64

	Losses   int
	ResumeTs int64
}

// NewCooldown creates a cooldown gate with the given thresholds.
func NewCooldown(maxLosses int, cooldownSec int64) *Cooldown {
	return &Cooldown{MaxConsecutiveLosses: maxLosses, CooldownSec: cooldownSec}
}

// OnTradeClose records a trade result. A negative realized PnL extends the
// loss streak and, once the threshold is reached, pushes the resume timestamp
// out; any non-negative close resets the streak.
func (c *Cooldown) OnTradeClose(pnl float64, now int64) {
	if pnl < 0 {
		c.Losses++
		if c.Losses >= c.MaxConsecutiveLosses {
			c.ResumeTs = max(c.ResumeTs, now+c.CooldownSec)
		}
		return
	}
	c.Losses = 0
}

// CanTrade reports whether new entries are currently allowed.
func (c *Cooldown) CanTrade(now int64) bool {
	return c.ResumeTs == 0 || now >= c.ResumeTs
}

// Restore rehydrates persisted state (used by the Redis-backed store on
// startup).
func (c *Cooldown) Restore(losses int, resumeTs int64) {
	c.Losses = losses
	c.ResumeTs = resumeTs
}
