package store

import (
	"context"
	"fmt"

	"github.com/roach88/quorum/internal/ir"
)

// WriteEvent appends one gate event to the journal.
// Uses ON CONFLICT(id) DO NOTHING for idempotency - redelivered events are
// silently ignored. A different event reusing (gate, seq) violates
// UNIQUE(gate, seq) and returns an error.
func (s *Store) WriteEvent(ctx context.Context, gate string, ev ir.Event) error {
	if !ev.Domain.Valid() || !ev.Kind.Valid() {
		return fmt.Errorf("write event %s: invalid domain/kind %q/%q", ev.ID, ev.Domain, ev.Kind)
	}
	rebalance, err := marshalRebalance(ev.Rebalance)
	if err != nil {
		return fmt.Errorf("write event %s: %w", ev.ID, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO events
		(id, gate, seq, domain, kind, round, digest, actor, candidate, rebalance, amount, event_version, engine_version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		ev.ID,
		gate,
		ev.Seq,
		string(ev.Domain),
		string(ev.Kind),
		ev.Round,
		ev.Digest,
		string(ev.Actor),
		string(ev.Candidate),
		rebalance,
		marshalAmount(ev.Amount),
		ir.EventVersion,
		ir.EngineVersion,
	)
	if err != nil {
		return fmt.Errorf("write event %s: %w", ev.ID, err)
	}
	return nil
}
