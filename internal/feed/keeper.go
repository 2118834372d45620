package feed

import (
	"context"
	"log/slog"
	"sync"

	"github.com/quantfold/scalpbot/internal/book"
)

// Resyncer requests a fresh snapshot for a symbol after a sequence gap.
// Implemented by WSClient.Resubscribe.
type Resyncer interface {
	Resubscribe(symbol string) error
}

// Keeper owns the live per-symbol books. It applies stream events under a
// lock, counts sequence gaps, and triggers a venue resync when a delta is
// rejected. It serves the orchestrator as its book source.
type Keeper struct {
	mu     sync.RWMutex
	books  map[string]*book.L2Book
	stale  map[string]bool // gapped since last snapshot; hidden from readers
	gaps   int64
	resync Resyncer
	logger *slog.Logger
}

// NewKeeper creates an empty keeper. resync may be nil (backtests, tests).
func NewKeeper(resync Resyncer, logger *slog.Logger) *Keeper {
	return &Keeper{
		books:  make(map[string]*book.L2Book),
		stale:  make(map[string]bool),
		resync: resync,
		logger: logger.With(slog.String("component", "feed")),
	}
}

// Apply processes one stream event for a symbol. Snapshots always repair the
// book and clear staleness; a rejected delta marks the book stale and asks the
// venue for a fresh snapshot.
func (k *Keeper) Apply(symbol string, ev book.Event) {
	k.mu.Lock()
	defer k.mu.Unlock()

	b, ok := k.books[symbol]
	if !ok {
		b = book.New(symbol)
		k.books[symbol] = b
	}

	switch ev.Type {
	case book.EventSnapshot:
		b.ApplySnapshot(ev.Seq, ev.Ts, ev.Bids, ev.Asks)
		k.stale[symbol] = false
	case book.EventDelta:
		if !b.ApplyDelta(ev.Seq, ev.Ts, ev.Bids, ev.Asks) {
			k.gaps++
			k.stale[symbol] = true
			k.logger.Warn("sequence gap, resyncing",
				slog.String("symbol", symbol),
				slog.Int64("book_seq", b.Seq),
				slog.Int64("event_seq", ev.Seq),
			)
			if k.resync != nil {
				if err := k.resync.Resubscribe(symbol); err != nil {
					k.logger.Warn("resync failed", slog.String("symbol", symbol), slog.String("error", err.Error()))
				}
			}
		}
	}
}

// Book returns a read-only copy of the symbol's current book. Stale (gapped)
// books are withheld until the next snapshot repairs them.
func (k *Keeper) Book(symbol string) (*book.L2Book, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	b, ok := k.books[symbol]
	if !ok || k.stale[symbol] || (len(b.Bids) == 0 && len(b.Asks) == 0) {
		return nil, false
	}
	cp := book.New(symbol)
	cp.Seq = b.Seq
	cp.Ts = b.Ts
	for p, s := range b.Bids {
		cp.Bids[p] = s
	}
	for p, s := range b.Asks {
		cp.Asks[p] = s
	}
	return cp, true
}

// GapCount returns the total number of rejected deltas since start.
func (k *Keeper) GapCount() int64 {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.gaps
}

// Run connects the given client, subscribes the symbols, and blocks until the
// context is cancelled.
func Run(ctx context.Context, ws *WSClient, k *Keeper, symbols []string) error {
	ws.OnBookEvent(k.Apply)
	if err := ws.Connect(ctx); err != nil {
		return err
	}
	defer ws.Close()
	if err := ws.Subscribe(symbols); err != nil {
		return err
	}
	k.logger.Info("depth feed subscribed", slog.Int("symbols", len(symbols)))
	<-ctx.Done()
	return ctx.Err()
}
