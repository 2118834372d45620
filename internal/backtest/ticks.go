package backtest

import (
	"bufio"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/quantfold/scalpbot/internal/domain"
)

// tickRecord is the JSONL tick encoding, one object per line.
type tickRecord struct {
	Ts      int64   `json:"ts"`
	Bid     float64 `json:"bid"`
	Ask     float64 `json:"ask"`
	Last    float64 `json:"last"`
	BidSize float64 `json:"bid_size"`
	AskSize float64 `json:"ask_size"`
}

// LoadTicks reads a tick series from a local file. The format is chosen by
// extension: .csv expects a header row ts,bid,ask,last,bid_size,ask_size;
// anything else is parsed as JSONL.
func LoadTicks(path string) ([]domain.Tick, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("backtest: open ticks: %w", err)
	}
	defer f.Close()

	if strings.HasSuffix(strings.ToLower(path), ".csv") {
		return readCSVTicks(f)
	}
	return readJSONLTicks(f)
}

// LoadTicksBlob reads a tick series from object storage. The key's extension
// selects the format the same way LoadTicks does.
func LoadTicksBlob(ctx context.Context, reader domain.BlobReader, key string) ([]domain.Tick, error) {
	rc, err := reader.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("backtest: fetch ticks %s: %w", key, err)
	}
	defer rc.Close()

	if strings.HasSuffix(strings.ToLower(key), ".csv") {
		return readCSVTicks(rc)
	}
	return readJSONLTicks(rc)
}

func readJSONLTicks(r io.Reader) ([]domain.Tick, error) {
	var ticks []domain.Tick
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for sc.Scan() {
		line++
		raw := strings.TrimSpace(sc.Text())
		if raw == "" {
			continue
		}
		var rec tickRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, fmt.Errorf("backtest: ticks line %d: %w", line, err)
		}
		ticks = append(ticks, domain.Tick{
			Ts: rec.Ts, Bid: rec.Bid, Ask: rec.Ask, Last: rec.Last,
			BidSize: rec.BidSize, AskSize: rec.AskSize,
		})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("backtest: read ticks: %w", err)
	}
	return ticks, nil
}

func readCSVTicks(r io.Reader) ([]domain.Tick, error) {
	cr := csv.NewReader(r)
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("backtest: read csv header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{"ts", "bid", "ask"} {
		if _, ok := col[required]; !ok {
			return nil, fmt.Errorf("backtest: csv ticks missing column %q", required)
		}
	}

	field := func(row []string, name string) float64 {
		i, ok := col[name]
		if !ok || i >= len(row) {
			return 0
		}
		v, _ := strconv.ParseFloat(strings.TrimSpace(row[i]), 64)
		return v
	}

	var ticks []domain.Tick
	line := 1
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("backtest: csv ticks line %d: %w", line, err)
		}
		ts, err := strconv.ParseInt(strings.TrimSpace(row[col["ts"]]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("backtest: csv ticks line %d: bad ts: %w", line, err)
		}
		t := domain.Tick{
			Ts:      ts,
			Bid:     field(row, "bid"),
			Ask:     field(row, "ask"),
			Last:    field(row, "last"),
			BidSize: field(row, "bid_size"),
			AskSize: field(row, "ask_size"),
		}
		if t.Last == 0 {
			t.Last = (t.Bid + t.Ask) / 2
		}
		ticks = append(ticks, t)
	}
	return ticks, nil
}
