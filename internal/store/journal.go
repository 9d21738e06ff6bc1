package store

import (
	"context"
	"fmt"

	"github.com/roach88/quorum/internal/ir"
)

// Journal is the event sink of one named gate.
// It satisfies engine.EventSink.
type Journal struct {
	store *Store
	gate  string
}

// Journal returns the journal of gate.
func (s *Store) Journal(gate string) *Journal {
	return &Journal{store: s, gate: gate}
}

// Gate returns the gate name the journal writes under.
func (j *Journal) Gate() string { return j.gate }

// Record appends ev.
func (j *Journal) Record(ctx context.Context, ev ir.Event) error {
	return j.store.WriteEvent(ctx, j.gate, ev)
}

// Events returns the journaled events in seq order.
func (j *Journal) Events(ctx context.Context) ([]ir.Event, error) {
	return j.store.ReadEvents(ctx, j.gate)
}

// Restorer rebuilds in-memory state from a journal.
// Implemented by engine.Operator and engine.Custodian.
type Restorer interface {
	Restore(events []ir.Event) error
}

// Restore replays the journal into r. It returns the number of events
// replayed.
func (j *Journal) Restore(ctx context.Context, r Restorer) (int, error) {
	events, err := j.Events(ctx)
	if err != nil {
		return 0, fmt.Errorf("restore %s: %w", j.gate, err)
	}
	if err := r.Restore(events); err != nil {
		return 0, fmt.Errorf("restore %s: %w", j.gate, err)
	}
	return len(events), nil
}
