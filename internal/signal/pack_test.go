package signal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfold/scalpbot/internal/domain"
)

func TestPackMISLong(t *testing.T) {
	p := NewIndicatorPack(DefaultPackConfig())

	// Fast EMA above slow, bid-heavy book, tight spread. Closes dip at the end
	// to keep RSI2 and VWAP deviation out of VRS territory.
	b := bookOf(100, 3, 100.5, 1)
	sig := p.Evaluate(b, Series{
		Closes:  []float64{100, 100.4, 100.2},
		Volumes: []float64{1, 1, 1},
	})
	require.NotNil(t, sig)
	assert.Equal(t, "MIS", sig.Name)
	assert.Equal(t, domain.SideBuy, sig.Side)
	assert.Greater(t, sig.Score, 0.0)
	assert.LessOrEqual(t, sig.Score, 1.0)
}

func TestPackMISShort(t *testing.T) {
	p := NewIndicatorPack(DefaultPackConfig())

	b := bookOf(100, 1, 100.5, 3)
	sig := p.Evaluate(b, Series{
		Closes:  []float64{100, 99.6, 99.8},
		Volumes: []float64{1, 1, 1},
	})
	require.NotNil(t, sig)
	assert.Equal(t, "MIS", sig.Name)
	assert.Equal(t, domain.SideSell, sig.Side)
}

func TestPackVRSRSIFallback(t *testing.T) {
	p := NewIndicatorPack(DefaultPackConfig())

	// Balanced book keeps MIS quiet; two straight gains pin RSI2 at the top.
	b := bookOf(100, 1, 100.5, 1)
	sig := p.Evaluate(b, Series{
		Closes:  []float64{100, 100.01, 100.02},
		Volumes: []float64{1, 1, 1},
	})
	require.NotNil(t, sig)
	assert.Equal(t, "VRS", sig.Name)
	assert.Equal(t, domain.SideSell, sig.Side)
	assert.Equal(t, 0.5, sig.Score)
}

func TestPackLSRBurst(t *testing.T) {
	p := NewIndicatorPack(DefaultPackConfig())

	b := bookOf(100, 1, 100.5, 1)
	flat := Series{
		Closes:     []float64{100, 100, 100},
		Volumes:    []float64{1, 1, 1},
		TradeBurst: true,
		OIDrop:     true,
		WickLong:   true,
	}
	sig := p.Evaluate(b, flat)
	require.NotNil(t, sig)
	assert.Equal(t, "LSR", sig.Name)
	assert.Equal(t, domain.SideSell, sig.Side)
	assert.Equal(t, 1.0, sig.Score)

	// Without the wick the sweep is faded the other way.
	flat.WickLong = false
	sig = p.Evaluate(b, flat)
	require.NotNil(t, sig)
	assert.Equal(t, domain.SideBuy, sig.Side)

	// Burst without the OI drop is not a liquidation sweep.
	flat.OIDrop = false
	flat.Closes = []float64{100, 100, 100}
	assert.Nil(t, p.Evaluate(b, flat))
}

func TestPackNoSignal(t *testing.T) {
	p := NewIndicatorPack(DefaultPackConfig())

	b := bookOf(100, 1, 100.5, 1)
	sig := p.Evaluate(b, Series{
		Closes:  []float64{100, 100, 100},
		Volumes: []float64{1, 1, 1},
	})
	assert.Nil(t, sig)
}

func TestSelectStrategyTieOrder(t *testing.T) {
	mis := &Signal{Name: "MIS", Side: domain.SideBuy, Score: 0.7}
	vrs := &Signal{Name: "VRS", Side: domain.SideSell, Score: 0.7}
	lsr := &Signal{Name: "LSR", Side: domain.SideSell, Score: 0.7}

	name, side, ok := SelectStrategy(mis, vrs, lsr)
	require.True(t, ok)
	assert.Equal(t, "MIS", name)
	assert.Equal(t, domain.SideBuy, side)

	// VRS beats LSR on a tie without MIS.
	name, _, ok = SelectStrategy(nil, vrs, lsr)
	require.True(t, ok)
	assert.Equal(t, "VRS", name)

	// Higher score wins regardless of order.
	name, _, ok = SelectStrategy(mis, &Signal{Name: "VRS", Score: 0.9}, nil)
	require.True(t, ok)
	assert.Equal(t, "VRS", name)

	_, _, ok = SelectStrategy(nil, nil, nil)
	assert.False(t, ok)
}
