package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/quorum/internal/ir"
)

// GateError represents a rejected gate operation.
//
// Every GateError except JOURNAL aborts its operation with zero state
// mutation. A JOURNAL error means the transition applied in memory but was
// not recorded; the gate halts and must be restored from its journal.
// Error()
// returns the bare reason (e.g. "not owner") so callers can match on it;
// Code classifies it.
type GateError struct {
	// Code identifies the error category.
	Code ErrorCode

	// Domain identifies the approval domain the operation targeted.
	Domain ir.Domain

	// Caller is the identity that invoked the operation.
	Caller ir.Identity

	// Reason is the human-readable rejection reason.
	Reason string

	// Alias is a second reason the rejection also answers to, or empty.
	// Methodologist rejections that older clients know by the rebalance
	// wording carry it (see HasReason).
	Alias string

	// Err is the underlying cause (configuration and effect errors).
	Err error
}

// ErrorCode categorizes gate errors.
type ErrorCode string

const (
	// ErrCodeAuthorization indicates the caller lacks the required role.
	ErrCodeAuthorization ErrorCode = "AUTHORIZATION"

	// ErrCodeStateConflict indicates the operation is invalid for the
	// current action state (already confirmed, not confirmed, already
	// executed, nothing pending).
	ErrCodeStateConflict ErrorCode = "STATE_CONFLICT"

	// ErrCodeQuorum indicates execute was attempted below threshold.
	ErrCodeQuorum ErrorCode = "QUORUM"

	// ErrCodeConfiguration indicates an invalid construction parameter.
	ErrCodeConfiguration ErrorCode = "CONFIGURATION"

	// ErrCodeInvalidArgument indicates a malformed operation argument.
	ErrCodeInvalidArgument ErrorCode = "INVALID_ARGUMENT"

	// ErrCodeEffect indicates the external effect of execute failed.
	ErrCodeEffect ErrorCode = "EFFECT"

	// ErrCodeJournal indicates a fail-stop gate could not record an event
	// and no longer accepts operations.
	ErrCodeJournal ErrorCode = "JOURNAL"
)

// Rejection reasons shared by every domain.
const (
	ReasonNotOwner    = "not owner"
	ReasonNotOperator = "not operator"
)

// Error implements the error interface.
func (e *GateError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	return e.Reason
}

// Unwrap returns the underlying cause.
func (e *GateError) Unwrap() error {
	return e.Err
}

func hasCode(err error, code ErrorCode) bool {
	var ge *GateError
	if errors.As(err, &ge) {
		return ge.Code == code
	}
	return false
}

// IsAuthorizationError returns true if err is an authorization rejection.
// Uses errors.As to handle wrapped errors.
func IsAuthorizationError(err error) bool { return hasCode(err, ErrCodeAuthorization) }

// IsStateConflictError returns true if err is a state conflict rejection.
func IsStateConflictError(err error) bool { return hasCode(err, ErrCodeStateConflict) }

// IsQuorumError returns true if err is a quorum rejection.
func IsQuorumError(err error) bool { return hasCode(err, ErrCodeQuorum) }

// IsConfigurationError returns true if err is a construction failure.
func IsConfigurationError(err error) bool { return hasCode(err, ErrCodeConfiguration) }

// IsInvalidArgumentError returns true if err is a malformed argument.
func IsInvalidArgumentError(err error) bool { return hasCode(err, ErrCodeInvalidArgument) }

// IsEffectError returns true if err is a failed execute effect.
func IsEffectError(err error) bool { return hasCode(err, ErrCodeEffect) }

// IsJournalError returns true if err is a journal failure or a refusal by
// a halted gate.
func IsJournalError(err error) bool { return hasCode(err, ErrCodeJournal) }

// reasonAliases maps a methodologist reason to the rebalance wording that
// deployed clients match for the same rejection.
var reasonAliases = map[string]string{
	"cannot execute new methodologist": "cannot execute rebalance",
	"methodologist not confirmed":      "rebalance not confirmed",
}

// HasReason reports whether err is a GateError whose reason or alias is
// reason. Other errors match on err.Error().
func HasReason(err error, reason string) bool {
	if err == nil {
		return false
	}
	var ge *GateError
	if errors.As(err, &ge) {
		return ge.Reason == reason || (ge.Alias != "" && ge.Alias == reason)
	}
	return err.Error() == reason
}

// Reason returns the rejection reason of a GateError, or err.Error() for
// any other error.
func Reason(err error) string {
	var ge *GateError
	if errors.As(err, &ge) {
		return ge.Reason
	}
	return err.Error()
}

func notOwner(d ir.Domain, caller ir.Identity) *GateError {
	return &GateError{Code: ErrCodeAuthorization, Domain: d, Caller: caller, Reason: ReasonNotOwner}
}

func notOperator(caller ir.Identity) *GateError {
	return &GateError{Code: ErrCodeAuthorization, Domain: ir.DomainRebalance, Caller: caller, Reason: ReasonNotOperator}
}

func conflict(d ir.Domain, caller ir.Identity, reason string) *GateError {
	return &GateError{Code: ErrCodeStateConflict, Domain: d, Caller: caller, Reason: reason, Alias: reasonAliases[reason]}
}

func belowQuorum(d ir.Domain, caller ir.Identity, reason string) *GateError {
	return &GateError{Code: ErrCodeQuorum, Domain: d, Caller: caller, Reason: reason, Alias: reasonAliases[reason]}
}

func invalidArgument(d ir.Domain, caller ir.Identity, reason string) *GateError {
	return &GateError{Code: ErrCodeInvalidArgument, Domain: d, Caller: caller, Reason: reason}
}

func effectFailed(d ir.Domain, caller ir.Identity, err error) *GateError {
	return &GateError{
		Code:   ErrCodeEffect,
		Domain: d,
		Caller: caller,
		Reason: fmt.Sprintf("execute %s failed", d),
		Err:    err,
	}
}

func configuration(err error) *GateError {
	return &GateError{Code: ErrCodeConfiguration, Reason: "invalid configuration", Err: err}
}

func journalFailed(d ir.Domain, caller ir.Identity, err error) *GateError {
	return &GateError{Code: ErrCodeJournal, Domain: d, Caller: caller, Reason: "journal write failed", Err: err}
}

func halted(d ir.Domain, caller ir.Identity, cause error) *GateError {
	return &GateError{Code: ErrCodeJournal, Domain: d, Caller: caller, Reason: "gate halted", Err: cause}
}
