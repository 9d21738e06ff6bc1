package engine

import "github.com/roach88/quorum/internal/ir"

// PendingView is a read-only snapshot of one domain's pending slot.
type PendingView struct {
	Domain    ir.Domain     `json:"domain"`
	Threshold int           `json:"threshold"`
	Pending   bool          `json:"pending"`
	Round     int64         `json:"round,omitempty"`
	Digest    string        `json:"digest,omitempty"`
	Submitter ir.Identity   `json:"submitter,omitempty"`
	Executed  bool          `json:"executed"`
	Count     int           `json:"count"`
	Confirmed []ir.Identity `json:"confirmed,omitempty"`

	// Candidate is set for role domains.
	Candidate ir.Identity `json:"candidate,omitempty"`

	// Rebalance is set for the rebalance domain.
	Rebalance *ir.RebalanceParams `json:"rebalance,omitempty"`
}

// OperatorState is a snapshot of an Operator gate.
type OperatorState struct {
	Gate      string        `json:"gate"`
	Operator  ir.Identity   `json:"operator"`
	Owners    []ir.Identity `json:"owners"`
	Rebalance PendingView   `json:"rebalance"`
	Rotation  PendingView   `json:"operator_rotation"`
}

// CustodianState is a snapshot of a Custodian gate.
type CustodianState struct {
	Gate          string        `json:"gate"`
	Custodian     ir.Identity   `json:"custodian"`
	Methodologist ir.Identity   `json:"methodologist"`
	Owners        []ir.Identity `json:"owners"`
	Rotation      PendingView   `json:"methodologist_rotation"`
}
