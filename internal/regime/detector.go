// Package regime detects unfavorable market conditions (crash moves, blown
// spreads, vanished depth) and pauses trading until they ease.
package regime

// Params are the pause/resume thresholds.
type Params struct {
	CrashZ             float64 // 1s return z-score that counts as a crash
	SpreadMultPause    float64 // spread multiple of baseline that counts
	DepthDropPause     float64 // fraction of depth lost that counts
	OIDropPct          float64 // open-interest drop percent that counts
	ResumeRVZ          float64 // realized-vol z-score ceiling to resume
	ResumeSpreadMult   float64 // spread multiple ceiling to resume
	ResumeDepthRecover float64 // depth recovery floor to resume
}

// DefaultParams returns the tuned production thresholds.
func DefaultParams() Params {
	return Params{
		CrashZ:             4.0,
		SpreadMultPause:    3.0,
		DepthDropPause:     0.80,
		OIDropPct:          2.0,
		ResumeRVZ:          1.5,
		ResumeSpreadMult:   1.3,
		ResumeDepthRecover: 0.80,
	}
}

// Detector is a sticky pause latch: two or more simultaneous triggers pause
// trading, and only CheckResume clears the latch.
type Detector struct {
	p      Params
	paused bool
}

// NewDetector creates a detector starting in the running state.
func NewDetector(p Params) *Detector {
	return &Detector{p: p}
}

// Paused reports the current latch state.
func (d *Detector) Paused() bool { return d.paused }

// CheckPause counts the triggered conditions and latches the pause when two
// or more fire at once. Returns the (possibly already latched) pause state.
func (d *Detector) CheckPause(z1s, spreadMult, depthDrop, oiDropPct, wsDropRate float64) bool {
	triggers := 0
	if z1s >= d.p.CrashZ {
		triggers++
	}
	if spreadMult >= d.p.SpreadMultPause {
		triggers++
	}
	if depthDrop >= d.p.DepthDropPause {
		triggers++
	}
	if oiDropPct >= d.p.OIDropPct && wsDropRate > 0 {
		triggers++
	}
	if triggers >= 2 {
		d.paused = true
	}
	return d.paused
}

// CheckResume clears the pause when volatility, spread, and depth have all
// recovered. Returns true when trading may proceed.
func (d *Detector) CheckResume(rvZ, spreadMult, depthRecover float64) bool {
	if d.paused &&
		rvZ <= d.p.ResumeRVZ &&
		spreadMult <= d.p.ResumeSpreadMult &&
		depthRecover >= d.p.ResumeDepthRecover {
		d.paused = false
	}
	return !d.paused
}
