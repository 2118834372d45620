package eventlog

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfold/scalpbot/internal/domain"
)

type memEventStore struct {
	mu     sync.Mutex
	events []domain.EventRecord
	err    error
}

func (s *memEventStore) Append(_ context.Context, ev domain.EventRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, ev)
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func readEvents(t *testing.T, runDir string) []domain.EventRecord {
	t.Helper()
	f, err := os.Open(filepath.Join(runDir, "events.jsonl"))
	require.NoError(t, err)
	defer f.Close()

	var out []domain.EventRecord
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var ev domain.EventRecord
		require.NoError(t, json.Unmarshal(sc.Bytes(), &ev))
		out = append(out, ev)
	}
	require.NoError(t, sc.Err())
	return out
}

func TestLoggerWritesJSONLines(t *testing.T) {
	base := t.TempDir()
	l, err := New(base, "run-1", nil, discardLogger())
	require.NoError(t, err)
	assert.Equal(t, "run-1", l.RunID())
	assert.Equal(t, filepath.Join(base, "run-1"), l.RunDir())

	ctx := context.Background()
	l.Signal(ctx, "BTCUSDT", map[string]any{"name": "A", "score": 0.5}, "BUY")
	l.Risk(ctx, "BTCUSDT", false, "slippage_exceeded", nil)
	l.WhyNoTrade(ctx, "ETHUSDT", []string{"no_book"})
	require.NoError(t, l.Close())

	events := readEvents(t, l.RunDir())
	require.Len(t, events, 3)

	assert.Equal(t, StepSignal, events[0].Step)
	assert.Equal(t, "BTCUSDT", events[0].Symbol)
	assert.Equal(t, "run-1", events[0].RunID)
	assert.Equal(t, "BUY", events[0].Meta["decision"])
	assert.Positive(t, events[0].Ts)

	assert.Equal(t, StepRisk, events[1].Step)
	assert.Equal(t, false, events[1].Meta["ok"])
	assert.Equal(t, "slippage_exceeded", events[1].Meta["reason"])

	assert.Equal(t, StepWhyNoTrade, events[2].Step)
}

func TestLoggerMirrorsToStore(t *testing.T) {
	store := &memEventStore{}
	l, err := New(t.TempDir(), "run-2", store, discardLogger())
	require.NoError(t, err)
	defer l.Close()

	l.PnL(context.Background(), "BTCUSDT", 1.25, 0)

	require.Len(t, store.events, 1)
	assert.Equal(t, StepPnL, store.events[0].Step)
	assert.Equal(t, 1.25, store.events[0].Meta["realized"])
}

func TestLoggerSwallowsStoreFailures(t *testing.T) {
	store := &memEventStore{err: errors.New("db down")}
	l, err := New(t.TempDir(), "run-3", store, discardLogger())
	require.NoError(t, err)
	defer l.Close()

	// Must not panic or propagate; the file still gets the event.
	l.Info(context.Background(), "", map[string]any{"event": "heartbeat"})
	events := readEvents(t, l.RunDir())
	require.Len(t, events, 1)
	assert.Equal(t, StepInfo, events[0].Step)
}

func TestLoggerWriteAfterCloseIsSafe(t *testing.T) {
	l, err := New(t.TempDir(), "run-4", nil, discardLogger())
	require.NoError(t, err)
	require.NoError(t, l.Close())
	require.NoError(t, l.Close()) // idempotent

	l.Cancel(context.Background(), "BTCUSDT", "link-1", "timeout")
}
