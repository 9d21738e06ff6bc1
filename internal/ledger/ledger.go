// Package ledger tracks which owners confirmed the pending action of one
// domain.
//
// A Ledger is an arena of fixed owner slots (indexes assigned by the
// registry at construction) backed by a bitset, plus a running count. It is
// reset in place on every submit, so memory never grows with the number of
// rounds.
package ledger

import "github.com/bits-and-blooms/bitset"

// Ledger is a fixed-size confirmation set.
//
// INVARIANT: count == slots.Count() at all times.
//
// Thread-safety: none. The owning state machine serializes access.
type Ledger struct {
	slots *bitset.BitSet
	size  uint
	count int
}

// New creates a ledger with size owner slots, all unconfirmed.
func New(size int) *Ledger {
	return &Ledger{
		slots: bitset.New(uint(size)),
		size:  uint(size),
	}
}

// Size returns the number of owner slots.
func (l *Ledger) Size() int { return int(l.size) }

// Count returns the number of confirmed slots in O(1).
func (l *Ledger) Count() int { return l.count }

// IsConfirmed reports whether slot is confirmed. Out-of-range slots are
// never confirmed.
func (l *Ledger) IsConfirmed(slot int) bool {
	if !l.inRange(slot) {
		return false
	}
	return l.slots.Test(uint(slot))
}

// Confirm marks slot confirmed. It returns false, changing nothing, if the
// slot was already confirmed or is out of range.
func (l *Ledger) Confirm(slot int) bool {
	if !l.inRange(slot) || l.slots.Test(uint(slot)) {
		return false
	}
	l.slots.Set(uint(slot))
	l.count++
	return true
}

// Revoke clears slot. It returns false, changing nothing, if the slot was
// not confirmed or is out of range.
func (l *Ledger) Revoke(slot int) bool {
	if !l.inRange(slot) || !l.slots.Test(uint(slot)) {
		return false
	}
	l.slots.Clear(uint(slot))
	l.count--
	return true
}

// Reset clears every slot.
func (l *Ledger) Reset() {
	l.slots.ClearAll()
	l.count = 0
}

// Slots returns the confirmed slot indexes in ascending order.
func (l *Ledger) Slots() []int {
	out := make([]int, 0, l.count)
	for i, ok := l.slots.NextSet(0); ok; i, ok = l.slots.NextSet(i + 1) {
		out = append(out, int(i))
	}
	return out
}

func (l *Ledger) inRange(slot int) bool {
	return slot >= 0 && uint(slot) < l.size
}
