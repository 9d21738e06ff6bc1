package ir

import (
	"fmt"
	"math/big"
	"strings"
)

// Event records one state transition of one domain. Exactly one event is
// emitted per successful transition; rejected operations emit nothing.
type Event struct {
	// ID is a unique, time-sortable identifier (UUIDv7 in production).
	ID string `json:"id"`

	// Seq is the emitting gate's logical clock value.
	Seq int64 `json:"seq"`

	Domain Domain `json:"domain"`
	Kind   Kind   `json:"kind"`

	// Round identifies the pending action: it increments on every submit.
	Round int64 `json:"round"`

	// Digest is the content address of the pending action (see ActionDigest).
	Digest string `json:"digest"`

	// Actor is the caller that performed the transition.
	Actor Identity `json:"actor"`

	// Candidate is the proposed role holder (role domains only).
	Candidate Identity `json:"candidate,omitempty"`

	// Rebalance carries the submitted instruction (rebalance submit only).
	Rebalance *RebalanceParams `json:"rebalance,omitempty"`

	// Amount is the balance swept to the new methodologist (methodologist
	// execute only).
	Amount *big.Int `json:"amount,omitempty"`
}

var eventNames = map[Domain]map[Kind]string{
	DomainRebalance: {
		KindSubmit:  "SubmitRebalance",
		KindConfirm: "ConfirmRebalance",
		KindRevoke:  "RevokeConfirmation",
		KindExecute: "ExecuteRebalance",
		KindAbort:   "AbortRebalance",
	},
	DomainOperator: {
		KindSubmit:  "SubmitNewOperator",
		KindConfirm: "ConfirmNewOperator",
		KindRevoke:  "RevokeNewOperator",
		KindExecute: "NewOperator",
		KindAbort:   "AbortNewOperator",
	},
	DomainMethodologist: {
		KindSubmit:  "SubmitNewMethodologist",
		KindConfirm: "ConfirmNewMethodologist",
		KindRevoke:  "RevokeConfirmationMethodologist",
		KindExecute: "ExecuteNewMethodologist",
		KindAbort:   "AbortNewMethodologist",
	},
}

// EventName returns the notification name for a (domain, kind) pair, or
// "" for an unknown pair.
func EventName(d Domain, k Kind) string {
	return eventNames[d][k]
}

// Name returns the notification name of e, e.g. "ConfirmRebalance".
func (e Event) Name() string {
	return EventName(e.Domain, e.Kind)
}

// String renders e as a single trace line.
//
// Format: "<seq> <Name> actor=<actor> round=<round>[ candidate=<c>][ amount=<n>]"
func (e Event) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d %s actor=%s round=%d", e.Seq, e.Name(), e.Actor, e.Round)
	if !e.Candidate.IsZero() {
		fmt.Fprintf(&b, " candidate=%s", e.Candidate)
	}
	if e.Amount != nil {
		fmt.Fprintf(&b, " amount=%s", e.Amount)
	}
	return b.String()
}
