// Package book maintains per-symbol L2 order books from snapshot/delta market
// data events with venue sequence verification. It is offline-testable: no
// network access, just pure state transitions plus the feature computations
// derived from a book.
package book

import "github.com/quantfold/scalpbot/internal/domain"

// L2Book is a price-level aggregated order book for one symbol. Level maps are
// keyed by price; a size of zero removes the level. Seq tracks the venue
// sequence of the last successfully applied event.
type L2Book struct {
	Symbol string
	Seq    int64
	Ts     int64
	Bids   map[float64]float64
	Asks   map[float64]float64
}

// New creates an empty book for symbol.
func New(symbol string) *L2Book {
	return &L2Book{
		Symbol: symbol,
		Bids:   make(map[float64]float64),
		Asks:   make(map[float64]float64),
	}
}

// BestBid returns the highest bid level, or ok=false when the side is empty.
func (b *L2Book) BestBid() (domain.PriceLevel, bool) {
	if len(b.Bids) == 0 {
		return domain.PriceLevel{}, false
	}
	best := domain.PriceLevel{}
	first := true
	for p, s := range b.Bids {
		if first || p > best.Price {
			best = domain.PriceLevel{Price: p, Size: s}
			first = false
		}
	}
	return best, true
}

// BestAsk returns the lowest ask level, or ok=false when the side is empty.
func (b *L2Book) BestAsk() (domain.PriceLevel, bool) {
	if len(b.Asks) == 0 {
		return domain.PriceLevel{}, false
	}
	best := domain.PriceLevel{}
	first := true
	for p, s := range b.Asks {
		if first || p < best.Price {
			best = domain.PriceLevel{Price: p, Size: s}
			first = false
		}
	}
	return best, true
}

func applySide(levels map[float64]float64, updates []domain.PriceLevel) {
	for _, u := range updates {
		if u.Size == 0 {
			delete(levels, u.Price)
		} else {
			levels[u.Price] = u.Size
		}
	}
}

// ApplySnapshot wholesale-replaces the book state. It always succeeds and sets
// Seq/Ts unconditionally, which is how a caller recovers from a gap.
func (b *L2Book) ApplySnapshot(seq, ts int64, bids, asks []domain.PriceLevel) {
	b.Seq = seq
	b.Ts = ts
	clear(b.Bids)
	clear(b.Asks)
	applySide(b.Bids, bids)
	applySide(b.Asks, asks)
}

// ApplyDelta merges incremental updates with sequence verification. It returns
// false and leaves the book unmodified when a gap is detected (seq is not
// exactly Seq+1); the caller must resynchronize with a fresh snapshot.
//
// Bootstrap exception: a book that has never seen a sequence (Seq == 0)
// accepts its first delta regardless of the event's sequence value. This is
// intentional, preserved behavior, not a missing check.
func (b *L2Book) ApplyDelta(seq, ts int64, bids, asks []domain.PriceLevel) bool {
	if b.Seq != 0 && seq != b.Seq+1 {
		return false
	}
	applySide(b.Bids, bids)
	applySide(b.Asks, asks)
	b.Seq = seq
	b.Ts = ts
	return true
}

// EventType discriminates market-data events.
type EventType string

const (
	EventSnapshot EventType = "snapshot"
	EventDelta    EventType = "delta"
)

// Event is one market-data message in the venue's simplified schema.
type Event struct {
	Type EventType
	Seq  int64
	Ts   int64
	Bids []domain.PriceLevel
	Asks []domain.PriceLevel
}

// ProcessStream applies an ordered mix of snapshot/delta events and returns
// the number of rejected (gap) deltas. It does not fetch a remedial snapshot
// itself; the feed layer does that when the count advances.
func (b *L2Book) ProcessStream(events []Event) int {
	gaps := 0
	for _, ev := range events {
		switch ev.Type {
		case EventSnapshot:
			b.ApplySnapshot(ev.Seq, ev.Ts, ev.Bids, ev.Asks)
		case EventDelta:
			if !b.ApplyDelta(ev.Seq, ev.Ts, ev.Bids, ev.Asks) {
				gaps++
			}
		}
	}
	return gaps
}
