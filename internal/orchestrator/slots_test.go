package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfold/scalpbot/internal/domain"
)

func TestSlotAcquireRelease(t *testing.T) {
	m := NewSlotManager(2)

	slot, err := m.Acquire("BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, "BTCUSDT", slot.Symbol)
	assert.Equal(t, SlotEntry, slot.State)
	assert.Equal(t, 1, m.ActiveCount())
	assert.Equal(t, 1, m.FreeCount())

	m.Release("BTCUSDT")
	assert.Zero(t, m.ActiveCount())
	assert.Equal(t, 2, m.FreeCount())
}

func TestSlotUniquenessPerSymbol(t *testing.T) {
	m := NewSlotManager(3)

	_, err := m.Acquire("BTCUSDT")
	require.NoError(t, err)

	_, err = m.Acquire("BTCUSDT")
	assert.ErrorIs(t, err, domain.ErrDuplicateSlot)
	assert.Equal(t, 1, m.ActiveCount())
}

func TestSlotCapacity(t *testing.T) {
	m := NewSlotManager(2)

	_, err := m.Acquire("BTCUSDT")
	require.NoError(t, err)
	_, err = m.Acquire("ETHUSDT")
	require.NoError(t, err)

	_, err = m.Acquire("SOLUSDT")
	assert.ErrorIs(t, err, domain.ErrNoFreeSlot)

	// Releasing makes room again.
	m.Release("ETHUSDT")
	_, err = m.Acquire("SOLUSDT")
	assert.NoError(t, err)
}

func TestSlotGetAndCurrentSymbols(t *testing.T) {
	m := NewSlotManager(2)
	_, _ = m.Acquire("BTCUSDT")

	slot, err := m.Get("BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, "BTCUSDT", slot.Symbol)

	_, err = m.Get("ETHUSDT")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	syms := m.CurrentSymbols()
	assert.True(t, syms["BTCUSDT"])
	assert.Len(t, syms, 1)
}

func TestReleaseUnknownIsNoop(t *testing.T) {
	m := NewSlotManager(1)
	m.Release("BTCUSDT")
	assert.Equal(t, 1, m.FreeCount())
}
