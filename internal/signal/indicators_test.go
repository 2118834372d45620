package signal

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEMA(t *testing.T) {
	assert.Zero(t, EMA(nil, 3))
	assert.Equal(t, 10.0, EMA([]float64{10}, 3))

	// Seeded at the first sample, k = 2/(3+1) = 0.5.
	got := EMA([]float64{10, 20}, 3)
	assert.InDelta(t, 15.0, got, 1e-9)
	got = EMA([]float64{10, 20, 20}, 3)
	assert.InDelta(t, 17.5, got, 1e-9)
}

func TestRSI2(t *testing.T) {
	assert.Equal(t, 50.0, RSI2([]float64{1, 2}))
	assert.Equal(t, 50.0, RSI2([]float64{5, 5, 5}))

	// Two straight gains: all-gain RS pins the value at ~100.
	assert.InDelta(t, 100.0, RSI2([]float64{1, 2, 3}), 1e-6)
	// Two straight losses: ~0.
	assert.InDelta(t, 0.0, RSI2([]float64{3, 2, 1}), 1e-6)
	// Equal gain and loss: 50.
	assert.InDelta(t, 50.0, RSI2([]float64{1, 2, 1}), 1e-9)
}

func TestVWAPDeviation(t *testing.T) {
	assert.Zero(t, VWAPDeviation(nil, nil))
	assert.Zero(t, VWAPDeviation([]float64{1, 2}, []float64{1}))
	assert.Zero(t, VWAPDeviation([]float64{1, 2}, []float64{0, 0}))

	// vwap = (100*1 + 110*1)/2 = 105; last = 110 → dev = 5/105.
	dev := VWAPDeviation([]float64{100, 110}, []float64{1, 1})
	assert.InDelta(t, 5.0/105.0, dev, 1e-9)

	// Below vwap is negative.
	dev = VWAPDeviation([]float64{110, 100}, []float64{1, 1})
	assert.Negative(t, dev)
}

func TestRollingWindow(t *testing.T) {
	r := NewRolling(3)
	assert.Zero(t, r.Len())

	for i := 1; i <= 5; i++ {
		r.Add(float64(i))
	}
	assert.Equal(t, 3, r.Len())
	assert.Equal(t, []float64{3, 4, 5}, r.Values())
}
