package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/quantfold/scalpbot/internal/domain"
)

// RunTradeLister provides read access to a run's trades for archival. The
// Postgres TradeStore satisfies it.
type RunTradeLister interface {
	ListByRun(ctx context.Context, runID string) ([]domain.TradeRecord, error)
}

// RunArchiver uploads a finished run's artifacts to blob storage: the JSONL
// event log from the local run directory and a trade dump queried from the
// store. Keys are partitioned by run ID:
//
//	runs/{runID}/events.jsonl
//	runs/{runID}/trades.jsonl
type RunArchiver struct {
	writer domain.BlobWriter
	trades RunTradeLister
}

// NewRunArchiver creates a RunArchiver. trades may be nil when trade
// persistence is disabled; only the event log is uploaded then.
func NewRunArchiver(writer domain.BlobWriter, trades RunTradeLister) *RunArchiver {
	return &RunArchiver{writer: writer, trades: trades}
}

// ArchiveRun uploads the run's artifacts. It returns the number of objects
// written. A missing local event file is not an error: the run may have
// produced no events.
func (a *RunArchiver) ArchiveRun(ctx context.Context, runID, runDir string) (int, error) {
	uploaded := 0

	eventsPath := filepath.Join(runDir, "events.jsonl")
	if data, err := os.ReadFile(eventsPath); err == nil && len(data) > 0 {
		key := fmt.Sprintf("runs/%s/events.jsonl", runID)
		if err := a.writer.Write(ctx, key, data, "application/x-ndjson"); err != nil {
			return uploaded, fmt.Errorf("s3blob: archive run events: %w", err)
		}
		uploaded++
	}

	if a.trades != nil {
		trades, err := a.trades.ListByRun(ctx, runID)
		if err != nil {
			return uploaded, fmt.Errorf("s3blob: archive run trades query: %w", err)
		}
		if len(trades) > 0 {
			buf, err := marshalJSONL(trades)
			if err != nil {
				return uploaded, fmt.Errorf("s3blob: archive run trades marshal: %w", err)
			}
			key := fmt.Sprintf("runs/%s/trades.jsonl", runID)
			if err := a.writer.Write(ctx, key, buf, "application/x-ndjson"); err != nil {
				return uploaded, fmt.Errorf("s3blob: archive run trades upload: %w", err)
			}
			uploaded++
		}
	}

	return uploaded, nil
}

// marshalJSONL serialises a slice of values as newline-delimited JSON. Each
// element is one compact JSON line.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
