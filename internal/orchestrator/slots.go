// Package orchestrator is the top-level trading loop: it ranks the symbol
// universe, allocates bounded position slots and budget, drives the signal →
// risk → sizing → execution pipeline per symbol, and manages open trades
// through their lifecycle.
package orchestrator

import (
	"sync"
	"time"

	"github.com/quantfold/scalpbot/internal/domain"
)

// SlotState is the lifecycle phase of a managed slot.
type SlotState string

const (
	SlotEntry   SlotState = "entry"
	SlotManaged SlotState = "managed"
	SlotClosing SlotState = "closing"
)

// Slot is one bounded concurrent-position management unit.
type Slot struct {
	Symbol    string
	State     SlotState
	Budget    float64
	EntryTime time.Time
}

// SlotManager owns the fixed-capacity slot set. Invariants: at most one slot
// per symbol, and never more than maxSlots active. The mutex keeps
// acquire/release atomic should the loop ever be parallelized.
type SlotManager struct {
	mu       sync.Mutex
	maxSlots int
	slots    []*Slot
}

// NewSlotManager creates a manager with the given capacity.
func NewSlotManager(maxSlots int) *SlotManager {
	if maxSlots < 1 {
		maxSlots = 1
	}
	return &SlotManager{maxSlots: maxSlots, slots: make([]*Slot, maxSlots)}
}

// Acquire claims a free slot for symbol. It returns ErrDuplicateSlot when the
// symbol is already managed and ErrNoFreeSlot at capacity; both are
// recoverable for the caller.
func (m *SlotManager) Acquire(symbol string) (*Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.slots {
		if s != nil && s.Symbol == symbol {
			return nil, domain.ErrDuplicateSlot
		}
	}
	for i, s := range m.slots {
		if s == nil {
			slot := &Slot{Symbol: symbol, State: SlotEntry, EntryTime: time.Now()}
			m.slots[i] = slot
			return slot, nil
		}
	}
	return nil, domain.ErrNoFreeSlot
}

// Release frees the symbol's slot. Releasing an unmanaged symbol is a no-op.
func (m *SlotManager) Release(symbol string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, s := range m.slots {
		if s != nil && s.Symbol == symbol {
			m.slots[i] = nil
			return
		}
	}
}

// Get returns the slot managing symbol.
func (m *SlotManager) Get(symbol string) (*Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.slots {
		if s != nil && s.Symbol == symbol {
			return s, nil
		}
	}
	return nil, domain.ErrNotFound
}

// CurrentSymbols returns the set of managed symbols.
func (m *SlotManager) CurrentSymbols() map[string]bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]bool)
	for _, s := range m.slots {
		if s != nil {
			out[s.Symbol] = true
		}
	}
	return out
}

// ActiveSlots returns a snapshot of the occupied slots.
func (m *SlotManager) ActiveSlots() []*Slot {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Slot, 0, len(m.slots))
	for _, s := range m.slots {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

// ActiveCount returns the number of occupied slots.
func (m *SlotManager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.slots {
		if s != nil {
			n++
		}
	}
	return n
}

// FreeCount returns the number of unoccupied slots.
func (m *SlotManager) FreeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.slots {
		if s == nil {
			n++
		}
	}
	return n
}
