// Package engine implements the quorum approval state machines.
//
// Two gates are built from one generic template (machine[P]):
//
//   - Operator gates rebalance instructions (submitted by the operator) and
//     rotation of the operator role (submitted by owners).
//   - Custodian gates rotation of the methodologist role. It also holds the
//     fee balance of the managed asset and sweeps it to the new
//     methodologist on execute.
//
// Every domain owns a single pending-action slot that moves
// Empty -> Pending -> Executed. Submit is re-entrant: it always replaces
// the slot and clears its confirmations.
//
// ARCHITECTURE:
//
// Serialized operations:
// Each gate serializes its operations with one mutex, standing in for the
// hosting environment's transaction serialization. Correctness under
// arbitrary interleaving of independent owners comes from the idempotency
// guards (already confirmed, not confirmed, already executed), not from
// lock ordering.
//
// All-or-nothing:
// An operation validates first and mutates last. Execute records its event
// before invoking the external effect and flips the executed flag only
// after the effect succeeded. If the effect fails an abort event follows
// and the action stays pending with its confirmations.
//
// Events:
// Each successful transition emits exactly one event, stamped with the
// gate's logical clock (never wall-clock time) and delivered to every
// EventSink. By default sink failures are logged and do not undo the
// transition. With WithFailStop the first failure halts the gate, so an
// effect never runs without its execute record.
//
// Restore:
// A gate can be rebuilt from its event journal with Restore. Replay
// re-applies transitions without invoking the portfolio manager. A
// journaled execute is never run again, which makes effects at most once
// across restarts.
package engine
