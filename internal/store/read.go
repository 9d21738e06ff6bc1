package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/quorum/internal/ir"
)

const selectEvents = `
	SELECT id, seq, domain, kind, round, digest, actor, candidate, rebalance, amount
	FROM events
`

// ReadEvents returns the journal of one gate in seq order.
// Results are ordered deterministically: ORDER BY seq ASC, id ASC COLLATE BINARY.
//
// Returns an empty slice (not nil) if the gate has no events.
func (s *Store) ReadEvents(ctx context.Context, gate string) ([]ir.Event, error) {
	rows, err := s.db.QueryContext(ctx, selectEvents+`
		WHERE gate = ?
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`, gate)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	return scanEvents(rows)
}

// ReadDomainEvents returns the events of one domain of one gate in seq order.
func (s *Store) ReadDomainEvents(ctx context.Context, gate string, d ir.Domain) ([]ir.Event, error) {
	rows, err := s.db.QueryContext(ctx, selectEvents+`
		WHERE gate = ? AND domain = ?
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`, gate, string(d))
	if err != nil {
		return nil, fmt.Errorf("query %s events: %w", d, err)
	}
	return scanEvents(rows)
}

// Gates returns the names of every gate with at least one event, sorted.
func (s *Store) Gates(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT gate FROM events ORDER BY gate COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query gates: %w", err)
	}
	defer rows.Close()

	gates := []string{}
	for rows.Next() {
		var g string
		if err := rows.Scan(&g); err != nil {
			return nil, fmt.Errorf("scan gate: %w", err)
		}
		gates = append(gates, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate gates: %w", err)
	}
	return gates, nil
}

func scanEvents(rows *sql.Rows) ([]ir.Event, error) {
	defer rows.Close()

	events := []ir.Event{}
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

func scanEvent(rows *sql.Rows) (ir.Event, error) {
	var (
		ev                          ir.Event
		domain, kind                string
		actor, candidate            string
		rebalanceJSON, amountString sql.NullString
	)
	err := rows.Scan(
		&ev.ID,
		&ev.Seq,
		&domain,
		&kind,
		&ev.Round,
		&ev.Digest,
		&actor,
		&candidate,
		&rebalanceJSON,
		&amountString,
	)
	if err != nil {
		return ir.Event{}, fmt.Errorf("scan event: %w", err)
	}
	ev.Domain = ir.Domain(domain)
	ev.Kind = ir.Kind(kind)
	ev.Actor = ir.Identity(actor)
	ev.Candidate = ir.Identity(candidate)

	if ev.Rebalance, err = unmarshalRebalance(rebalanceJSON); err != nil {
		return ir.Event{}, fmt.Errorf("scan event %s: %w", ev.ID, err)
	}
	if ev.Amount, err = unmarshalAmount(amountString); err != nil {
		return ir.Event{}, fmt.Errorf("scan event %s: %w", ev.ID, err)
	}
	return ev, nil
}
