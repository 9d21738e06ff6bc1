package engine

import (
	"context"
	"fmt"

	"github.com/roach88/quorum/internal/ir"
	"github.com/roach88/quorum/internal/ledger"
	"github.com/roach88/quorum/internal/registry"
)

// messages are the per-domain rejection reasons.
type messages struct {
	alreadyConfirmed string
	notConfirmed     string
	alreadyExecuted  string
	cannotExecute    string
	noPending        string
}

var domainMessages = map[ir.Domain]messages{
	ir.DomainRebalance: {
		alreadyConfirmed: "rebalance already confirmed",
		notConfirmed:     "rebalance not confirmed",
		alreadyExecuted:  "rebalance already executed",
		cannotExecute:    "cannot execute rebalance",
		noPending:        "no pending rebalance",
	},
	ir.DomainOperator: {
		alreadyConfirmed: "operator already confirmed",
		notConfirmed:     "operator not confirmed",
		alreadyExecuted:  "operator already executed",
		cannotExecute:    "cannot execute new operator",
		noPending:        "no pending operator",
	},
	ir.DomainMethodologist: {
		alreadyConfirmed: "methodologist already confirmed",
		notConfirmed:     "methodologist not confirmed",
		alreadyExecuted:  "methodologist already executed",
		cannotExecute:    "cannot execute new methodologist",
		noPending:        "no pending methodologist",
	},
}

// machine is the approval state machine template shared by every domain.
// P is the pending payload: ir.RebalanceParams or a candidate ir.Identity.
//
// States: Empty (round == 0), Pending, Executed. submit moves any state to
// Pending with a fresh round.
//
// INVARIANT: every method validates before it mutates. A returned error
// means the machine is unchanged.
//
// Thread-safety: none. The owning gate holds its mutex around every call.
type machine[P any] struct {
	domain    ir.Domain
	threshold int
	owners    *registry.Registry
	msgs      messages

	digest func(round int64, payload P) (string, error)
	clone  func(P) P
	effect func(ctx context.Context, payload P) error

	round     int64
	executed  bool
	payload   P
	digestHex string
	submitter ir.Identity
	confirms  *ledger.Ledger
}

func newMachine[P any](
	domain ir.Domain,
	threshold int,
	owners *registry.Registry,
	digest func(int64, P) (string, error),
	clone func(P) P,
) *machine[P] {
	return &machine[P]{
		domain:    domain,
		threshold: threshold,
		owners:    owners,
		msgs:      domainMessages[domain],
		digest:    digest,
		clone:     clone,
		confirms:  ledger.New(owners.Len()),
	}
}

// pending reports whether a submit has ever happened.
func (m *machine[P]) pending() bool {
	return m.round > 0
}

// submit supersedes whatever the slot holds. The caller's role was checked
// by the gate.
func (m *machine[P]) submit(caller ir.Identity, payload P) error {
	round := m.round + 1
	digest, err := m.digest(round, payload)
	if err != nil {
		return fmt.Errorf("submit %s: %w", m.domain, err)
	}
	m.install(round, caller, m.clone(payload), digest)
	return nil
}

func (m *machine[P]) install(round int64, submitter ir.Identity, payload P, digest string) {
	m.round = round
	m.executed = false
	m.payload = payload
	m.digestHex = digest
	m.submitter = submitter
	m.confirms.Reset()
}

// open checks owner, pending and not-executed, in that order, and returns
// the caller's ledger slot.
func (m *machine[P]) open(caller ir.Identity) (int, error) {
	slot, ok := m.owners.Slot(caller)
	if !ok {
		return 0, notOwner(m.domain, caller)
	}
	if !m.pending() {
		return 0, conflict(m.domain, caller, m.msgs.noPending)
	}
	if m.executed {
		return 0, conflict(m.domain, caller, m.msgs.alreadyExecuted)
	}
	return slot, nil
}

func (m *machine[P]) confirm(caller ir.Identity) error {
	slot, err := m.open(caller)
	if err != nil {
		return err
	}
	if !m.confirms.Confirm(slot) {
		return conflict(m.domain, caller, m.msgs.alreadyConfirmed)
	}
	return nil
}

func (m *machine[P]) revoke(caller ir.Identity) error {
	slot, err := m.open(caller)
	if err != nil {
		return err
	}
	if !m.confirms.Revoke(slot) {
		return conflict(m.domain, caller, m.msgs.notConfirmed)
	}
	return nil
}

// ready checks that caller may execute now. Any owner may execute once
// quorum is met; the caller need not be a confirmer.
func (m *machine[P]) ready(caller ir.Identity) error {
	if _, err := m.open(caller); err != nil {
		return err
	}
	if m.confirms.Count() < m.threshold {
		return belowQuorum(m.domain, caller, m.msgs.cannotExecute)
	}
	return nil
}

// execute journals ev, then runs the effect once. The caller has checked
// ready. If the effect fails an abort event is journaled and the slot stays
// pending with its confirmations intact.
func (m *machine[P]) execute(ctx context.Context, events *emitter, ev ir.Event) error {
	if err := events.emit(ctx, ev); err != nil {
		return err
	}
	if err := m.effect(ctx, m.clone(m.payload)); err != nil {
		failed := effectFailed(m.domain, ev.Actor, err)
		abort := ev
		abort.Kind = ir.KindAbort
		abort.Amount = nil
		if jerr := events.emit(ctx, abort); jerr != nil {
			events.log.Error("execute aborted without journal record",
				"domain", m.domain,
				"round", m.round,
				"error", failed)
			return jerr
		}
		return failed
	}
	m.executed = true
	return nil
}

// event builds the unstamped event for a transition of the current action.
func (m *machine[P]) event(kind ir.Kind, actor ir.Identity) ir.Event {
	return ir.Event{
		Domain: m.domain,
		Kind:   kind,
		Round:  m.round,
		Digest: m.digestHex,
		Actor:  actor,
	}
}

// isConfirmed reports whether owner confirmed the current action.
func (m *machine[P]) isConfirmed(owner ir.Identity) bool {
	slot, ok := m.owners.Slot(owner)
	return ok && m.confirms.IsConfirmed(slot)
}

func (m *machine[P]) view() PendingView {
	v := PendingView{
		Domain:    m.domain,
		Threshold: m.threshold,
	}
	if !m.pending() {
		return v
	}
	v.Pending = true
	v.Round = m.round
	v.Digest = m.digestHex
	v.Submitter = m.submitter
	v.Executed = m.executed
	v.Count = m.confirms.Count()
	v.Confirmed = make([]ir.Identity, 0, v.Count)
	for _, slot := range m.confirms.Slots() {
		v.Confirmed = append(v.Confirmed, m.owners.Owner(slot))
	}
	return v
}

// replay re-applies a journaled transition without invoking the effect.
// payload is only read for submit events.
func (m *machine[P]) replay(ev ir.Event, payload P) error {
	if ev.Domain != m.domain {
		return fmt.Errorf("event domain %q, want %q", ev.Domain, m.domain)
	}
	if ev.Kind == ir.KindSubmit {
		if ev.Round <= m.round {
			return fmt.Errorf("submit round %d does not follow round %d", ev.Round, m.round)
		}
		m.install(ev.Round, ev.Actor, m.clone(payload), ev.Digest)
		return nil
	}
	if ev.Round != m.round {
		return fmt.Errorf("%s round %d, pending round %d", ev.Kind, ev.Round, m.round)
	}
	switch ev.Kind {
	case ir.KindConfirm:
		return m.confirm(ev.Actor)
	case ir.KindRevoke:
		return m.revoke(ev.Actor)
	case ir.KindExecute:
		if err := m.ready(ev.Actor); err != nil {
			return err
		}
		m.executed = true
		return nil
	case ir.KindAbort:
		if !m.executed {
			return fmt.Errorf("abort of round %d without execute", ev.Round)
		}
		m.executed = false
		return nil
	default:
		return fmt.Errorf("unknown event kind %q", ev.Kind)
	}
}
