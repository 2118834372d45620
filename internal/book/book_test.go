package book

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfold/scalpbot/internal/domain"
)

func levels(pairs ...float64) []domain.PriceLevel {
	out := make([]domain.PriceLevel, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, domain.PriceLevel{Price: pairs[i], Size: pairs[i+1]})
	}
	return out
}

func TestApplySnapshotReplacesState(t *testing.T) {
	b := New("BTCUSDT")
	b.ApplySnapshot(5, 1000, levels(100, 1, 99, 2), levels(101, 3))

	require.Equal(t, int64(5), b.Seq)
	bb, ok := b.BestBid()
	require.True(t, ok)
	assert.Equal(t, 100.0, bb.Price)
	assert.Equal(t, 1.0, bb.Size)

	// A later snapshot wholesale-replaces, even moving Seq backwards.
	b.ApplySnapshot(2, 2000, levels(50, 1), levels(51, 1))
	assert.Equal(t, int64(2), b.Seq)
	bb, _ = b.BestBid()
	assert.Equal(t, 50.0, bb.Price)
	assert.Len(t, b.Bids, 1)
}

func TestApplyDeltaSequenceVerification(t *testing.T) {
	b := New("BTCUSDT")
	b.ApplySnapshot(10, 1000, levels(100, 1), levels(101, 1))

	require.True(t, b.ApplyDelta(11, 1001, levels(100, 2), nil))
	assert.Equal(t, int64(11), b.Seq)
	bb, _ := b.BestBid()
	assert.Equal(t, 2.0, bb.Size)

	// Gap: 13 skips 12. Rejected, book untouched.
	require.False(t, b.ApplyDelta(13, 1002, levels(100, 9), nil))
	assert.Equal(t, int64(11), b.Seq)
	bb, _ = b.BestBid()
	assert.Equal(t, 2.0, bb.Size)

	// Stale/backward delta is also a gap.
	require.False(t, b.ApplyDelta(11, 1003, levels(100, 9), nil))
	assert.Equal(t, int64(11), b.Seq)
}

func TestApplyDeltaBootstrapException(t *testing.T) {
	b := New("BTCUSDT")
	// Never sequenced: the first delta is accepted regardless of its seq.
	require.True(t, b.ApplyDelta(42, 1000, levels(100, 1), levels(101, 1)))
	assert.Equal(t, int64(42), b.Seq)

	// From here on the strict rule applies.
	require.False(t, b.ApplyDelta(50, 1001, nil, nil))
	require.True(t, b.ApplyDelta(43, 1002, nil, nil))
}

func TestApplyDeltaZeroSizeRemovesLevel(t *testing.T) {
	b := New("ETHUSDT")
	b.ApplySnapshot(1, 1000, levels(100, 1, 99, 2), levels(101, 1))

	require.True(t, b.ApplyDelta(2, 1001, levels(100, 0), nil))
	bb, ok := b.BestBid()
	require.True(t, ok)
	assert.Equal(t, 99.0, bb.Price)

	require.True(t, b.ApplyDelta(3, 1002, levels(99, 0), nil))
	_, ok = b.BestBid()
	assert.False(t, ok)
}

func TestBestBidBestAskEmpty(t *testing.T) {
	b := New("BTCUSDT")
	_, ok := b.BestBid()
	assert.False(t, ok)
	_, ok = b.BestAsk()
	assert.False(t, ok)
}

func TestProcessStreamCountsGaps(t *testing.T) {
	b := New("BTCUSDT")
	gaps := b.ProcessStream([]Event{
		{Type: EventSnapshot, Seq: 1, Ts: 1, Bids: levels(100, 1), Asks: levels(101, 1)},
		{Type: EventDelta, Seq: 2, Ts: 2, Bids: levels(100, 2)},
		{Type: EventDelta, Seq: 4, Ts: 3, Bids: levels(100, 9)}, // gap
		{Type: EventDelta, Seq: 5, Ts: 4, Bids: levels(100, 9)}, // still gapped
		{Type: EventSnapshot, Seq: 10, Ts: 5, Bids: levels(100, 3), Asks: levels(101, 1)},
		{Type: EventDelta, Seq: 11, Ts: 6, Asks: levels(101, 4)},
	})
	assert.Equal(t, 2, gaps)
	assert.Equal(t, int64(11), b.Seq)
	bb, _ := b.BestBid()
	assert.Equal(t, 3.0, bb.Size)
	ba, _ := b.BestAsk()
	assert.Equal(t, 4.0, ba.Size)
}
