// Package eventlog emits the structured JSONL event stream for a run: one
// record per line with {ts, run_id, step, symbol, meta}. Operational logging
// stays on slog; this stream is the machine-readable trade journal consumed
// by reporting and archived after the run.
package eventlog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/quantfold/scalpbot/internal/domain"
)

// Step values for EventRecord.Step.
const (
	StepSignal     = "signal"
	StepOrder      = "order"
	StepFill       = "fill"
	StepCancel     = "cancel"
	StepRisk       = "risk"
	StepPnL        = "pnl"
	StepInfo       = "info"
	StepWhyNoTrade = "why_no_trade"
)

// Logger appends events to <runDir>/events.jsonl and mirrors them to an
// optional EventStore. Write failures are logged and swallowed: the event
// stream must never take down the trading loop.
type Logger struct {
	runID  string
	runDir string
	store  domain.EventStore // optional
	logger *slog.Logger

	mu   sync.Mutex
	file *os.File
}

// New creates the run directory and opens the events file for appending.
func New(baseDir, runID string, store domain.EventStore, logger *slog.Logger) (*Logger, error) {
	runDir := filepath.Join(baseDir, runID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return nil, fmt.Errorf("eventlog: create run dir: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(runDir, "events.jsonl"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("eventlog: open events file: %w", err)
	}
	return &Logger{
		runID:  runID,
		runDir: runDir,
		store:  store,
		logger: logger.With(slog.String("component", "eventlog")),
		file:   f,
	}, nil
}

// RunID returns the run identifier all events carry.
func (l *Logger) RunID() string { return l.runID }

// RunDir returns the directory holding this run's events file.
func (l *Logger) RunDir() string { return l.runDir }

// Close flushes and closes the events file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

func (l *Logger) write(ctx context.Context, step, symbol string, meta map[string]any) {
	ev := domain.EventRecord{
		Ts:     time.Now().UnixMilli(),
		RunID:  l.runID,
		Step:   step,
		Symbol: symbol,
		Meta:   meta,
	}
	line, err := json.Marshal(ev)
	if err != nil {
		l.logger.Warn("event marshal failed", slog.String("step", step), slog.String("error", err.Error()))
		return
	}
	l.mu.Lock()
	if l.file != nil {
		if _, err := l.file.Write(append(line, '\n')); err != nil {
			l.logger.Warn("event write failed", slog.String("error", err.Error()))
		}
	}
	l.mu.Unlock()
	if l.store != nil {
		if err := l.store.Append(ctx, ev); err != nil {
			l.logger.Warn("event store append failed", slog.String("error", err.Error()))
		}
	}
}

// Signal records a scoring decision (or the absence of one).
func (l *Logger) Signal(ctx context.Context, symbol string, scores map[string]any, decision string) {
	l.write(ctx, StepSignal, symbol, map[string]any{"scores": scores, "decision": decision})
}

// Order records an order plan and its placement result.
func (l *Logger) Order(ctx context.Context, symbol string, plan, result map[string]any) {
	l.write(ctx, StepOrder, symbol, map[string]any{"plan": plan, "result": result})
}

// Fill records an execution.
func (l *Logger) Fill(ctx context.Context, symbol string, side domain.Side, price, qty float64, orderID string) {
	l.write(ctx, StepFill, symbol, map[string]any{"side": side, "price": price, "qty": qty, "order_id": orderID})
}

// Cancel records an order cancellation.
func (l *Logger) Cancel(ctx context.Context, symbol, linkID, reason string) {
	l.write(ctx, StepCancel, symbol, map[string]any{"order_link_id": linkID, "reason": reason})
}

// Risk records a guard outcome.
func (l *Logger) Risk(ctx context.Context, symbol string, ok bool, reason string, extra map[string]any) {
	meta := map[string]any{"ok": ok, "reason": reason}
	if extra != nil {
		meta["context"] = extra
	}
	l.write(ctx, StepRisk, symbol, meta)
}

// PnL records a realized/unrealized PnL snapshot.
func (l *Logger) PnL(ctx context.Context, symbol string, realized, unrealized float64) {
	l.write(ctx, StepPnL, symbol, map[string]any{"realized": realized, "unrealized": unrealized})
}

// Info records a free-form informational event.
func (l *Logger) Info(ctx context.Context, symbol string, payload map[string]any) {
	l.write(ctx, StepInfo, symbol, payload)
}

// WhyNoTrade records the reasons a symbol/tick produced no order.
func (l *Logger) WhyNoTrade(ctx context.Context, symbol string, reasons []string) {
	l.write(ctx, StepWhyNoTrade, symbol, map[string]any{"reasons": reasons})
}
