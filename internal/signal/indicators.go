package signal

// Micro-horizon indicator helpers. These are deliberately bespoke rather than
// standard windowed definitions: EMA is recursive and seeded at the first
// sample, RSI2 looks at the last three closes only, and VWAP deviation is
// computed over whatever window the caller keeps.

// EMA computes a recursive exponential moving average over values, seeded at
// the first sample with k = 2/(period+1). Returns 0 for an empty slice.
func EMA(values []float64, period int) float64 {
	if len(values) == 0 {
		return 0
	}
	k := 2.0 / float64(period+1)
	e := values[0]
	for _, v := range values[1:] {
		e = v*k + e*(1-k)
	}
	return e
}

// RSI2 is a short-horizon RSI over the last three closes. It returns the
// neutral 50 when there is not enough history or no movement.
func RSI2(closes []float64) float64 {
	if len(closes) < 3 {
		return 50
	}
	vals := closes[len(closes)-3:]
	gains, losses := 0.0, 0.0
	for i := 1; i < len(vals); i++ {
		d := vals[i] - vals[i-1]
		if d > 0 {
			gains += d
		} else {
			losses -= d
		}
	}
	if gains+losses == 0 {
		return 50
	}
	rs := gains / max(1e-12, losses)
	return 100 - (100 / (1 + rs))
}

// VWAPDeviation returns (last - vwap) / vwap over the given price/volume
// window, or 0 when the inputs are empty, mismatched, or volume-free.
func VWAPDeviation(prices, volumes []float64) float64 {
	if len(prices) == 0 || len(prices) != len(volumes) {
		return 0
	}
	pv, v := 0.0, 0.0
	for i := range prices {
		pv += prices[i] * volumes[i]
		v += volumes[i]
	}
	if v == 0 {
		return 0
	}
	vwap := pv / v
	return (prices[len(prices)-1] - vwap) / vwap
}

// Rolling is a bounded FIFO window of float64 samples.
type Rolling struct {
	maxLen int
	values []float64
}

// NewRolling creates a window holding at most maxLen samples.
func NewRolling(maxLen int) *Rolling {
	return &Rolling{maxLen: maxLen}
}

// Add appends a sample, evicting the oldest when the window is full.
func (r *Rolling) Add(v float64) {
	r.values = append(r.values, v)
	if len(r.values) > r.maxLen {
		r.values = r.values[len(r.values)-r.maxLen:]
	}
}

// Values returns the window contents, oldest first. The slice is shared;
// callers must not mutate it.
func (r *Rolling) Values() []float64 { return r.values }

// Len returns the current sample count.
func (r *Rolling) Len() int { return len(r.values) }
