package backtest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfold/scalpbot/internal/domain"
)

func writeTicksFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadTicksJSONL(t *testing.T) {
	path := writeTicksFile(t, "ticks.jsonl", `
{"ts":1000,"bid":100,"ask":100.5,"last":100.2,"bid_size":3,"ask_size":1}

{"ts":2000,"bid":100.1,"ask":100.6,"last":100.3,"bid_size":2,"ask_size":2}
`)
	ticks, err := LoadTicks(path)
	require.NoError(t, err)
	require.Len(t, ticks, 2) // blank lines are skipped
	assert.Equal(t, domain.Tick{Ts: 1000, Bid: 100, Ask: 100.5, Last: 100.2, BidSize: 3, AskSize: 1}, ticks[0])
	assert.Equal(t, int64(2000), ticks[1].Ts)
}

func TestLoadTicksJSONLBadLine(t *testing.T) {
	path := writeTicksFile(t, "ticks.jsonl", `{"ts":1000,"bid":100,"ask":100.5}
not json`)
	_, err := LoadTicks(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
}

func TestLoadTicksCSV(t *testing.T) {
	path := writeTicksFile(t, "ticks.csv", `Ts,Bid,Ask,Last,bid_size,ask_size,extra
1000,100,100.5,100.2,3,1,ignored
2000,100.1,100.6,,2,2,ignored
`)
	ticks, err := LoadTicks(path)
	require.NoError(t, err)
	require.Len(t, ticks, 2)
	assert.Equal(t, domain.Tick{Ts: 1000, Bid: 100, Ask: 100.5, Last: 100.2, BidSize: 3, AskSize: 1}, ticks[0])
	// Missing last falls back to the mid.
	assert.InDelta(t, 100.35, ticks[1].Last, 1e-9)
}

func TestLoadTicksCSVMissingColumn(t *testing.T) {
	path := writeTicksFile(t, "ticks.csv", "ts,ask\n1000,100.5\n")
	_, err := LoadTicks(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"bid"`)
}

func TestLoadTicksMissingFile(t *testing.T) {
	_, err := LoadTicks(filepath.Join(t.TempDir(), "missing.jsonl"))
	require.Error(t, err)
}
