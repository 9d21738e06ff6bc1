// Package harness runs YAML committee scenarios against real gates.
//
// A scenario declares a committee configuration, a list of steps (one gate
// operation each, performed as a named caller) and assertions over the
// resulting event trace and final state. Run builds both gates from the
// committee with the in-memory portfolio manager and token, journals every
// event to an in-memory SQLite store and, once the steps are done, restores
// fresh gates from the journal and checks they agree with the live ones.
//
// Runs are deterministic: both gates share one logical clock and event ids
// come from sequential generators, so the rendered trace of a scenario is
// stable and can be compared against a golden file (see RunWithGolden).
//
// Example scenario:
//
//	name: rebalance_quorum
//	description: three confirmations release a rebalance
//	committee:
//	  owners: [O1, O2, O3, O4, O5, O6]
//	  operator: operator
//	  custodian: custodian
//	  rebalance_threshold: 3
//	  operator_threshold: 5
//	  methodologist_threshold: 5
//	steps:
//	  - {as: operator, do: submit_rebalance, rebalance: {execution_bound: "10"}}
//	  - {as: O1, do: confirm_rebalance}
//	assertions:
//	  - {type: trace_count, event: ConfirmRebalance, count: 1}
package harness
