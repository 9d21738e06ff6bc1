package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/quorum/internal/config"
	"github.com/roach88/quorum/internal/ir"
)

// Scenario defines a committee scenario: a deployment, the operations
// performed against it and the assertions over the outcome.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Committee is the deployment configuration. Process settings
	// (database, listen, manager_url) are ignored.
	Committee config.Config `yaml:"committee"`

	// Steps are performed in order.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final trace and state.
	// Supported types: trace_contains, trace_order, trace_count, final_state
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one gate operation performed by one caller.
type Step struct {
	// As is the caller identity.
	As string `yaml:"as"`

	// Do names the operation, e.g. "confirm_rebalance".
	Do string `yaml:"do"`

	// Rebalance is the instruction of a submit_rebalance step.
	Rebalance *RebalanceStep `yaml:"rebalance,omitempty"`

	// Candidate is the proposed role holder of a role submit step.
	Candidate string `yaml:"candidate,omitempty"`

	// ExpectError is the rejection reason the step must fail with, e.g.
	// "not owner". A reason alias also matches. Empty means the step must
	// succeed.
	ExpectError string `yaml:"expect_error,omitempty"`

	// FailManager makes the next portfolio manager call fail with this
	// message.
	FailManager string `yaml:"fail_manager,omitempty"`

	// FailToken makes the next token transfer fail with this message.
	FailToken string `yaml:"fail_token,omitempty"`
}

// RebalanceStep is a rebalance instruction with decimal string amounts.
type RebalanceStep struct {
	Constituents   []string `yaml:"constituents,omitempty"`
	Removed        []string `yaml:"removed,omitempty"`
	Weights        []string `yaml:"weights,omitempty"`
	ExecutionBound string   `yaml:"execution_bound"`
}

// Params parses r into rebalance parameters.
func (r RebalanceStep) Params() (ir.RebalanceParams, error) {
	constituents, err := ir.ParseIdentities(r.Constituents)
	if err != nil {
		return ir.RebalanceParams{}, fmt.Errorf("constituents%w", err)
	}
	removed, err := ir.ParseIdentities(r.Removed)
	if err != nil {
		return ir.RebalanceParams{}, fmt.Errorf("removed%w", err)
	}
	weights, err := ir.ParseAmounts(r.Weights)
	if err != nil {
		return ir.RebalanceParams{}, fmt.Errorf("weights%w", err)
	}
	bound, err := ir.ParseAmount(r.ExecutionBound)
	if err != nil {
		return ir.RebalanceParams{}, fmt.Errorf("execution_bound: %w", err)
	}
	return ir.RebalanceParams{
		Constituents:   constituents,
		Removed:        removed,
		Weights:        weights,
		ExecutionBound: bound,
	}, nil
}

// Step operations.
const (
	OpSubmitRebalance      = "submit_rebalance"
	OpConfirmRebalance     = "confirm_rebalance"
	OpRevokeRebalance      = "revoke_rebalance"
	OpExecuteRebalance     = "execute_rebalance"
	OpSubmitOperator       = "submit_operator"
	OpConfirmOperator      = "confirm_operator"
	OpRevokeOperator       = "revoke_operator"
	OpExecuteOperator      = "execute_operator"
	OpSubmitMethodologist  = "submit_methodologist"
	OpConfirmMethodologist = "confirm_methodologist"
	OpRevokeMethodologist  = "revoke_methodologist"
	OpExecuteMethodologist = "execute_methodologist"
)

var knownOps = map[string]bool{
	OpSubmitRebalance: true, OpConfirmRebalance: true, OpRevokeRebalance: true, OpExecuteRebalance: true,
	OpSubmitOperator: true, OpConfirmOperator: true, OpRevokeOperator: true, OpExecuteOperator: true,
	OpSubmitMethodologist: true, OpConfirmMethodologist: true, OpRevokeMethodologist: true, OpExecuteMethodologist: true,
}

// Assertion validates trace or final state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "trace_contains": an event with the given name and fields exists
	// - "trace_order": events appear in order (first occurrences)
	// - "trace_count": an event appears exactly Count times
	// - "final_state": state keys hold the expected values
	Type string `yaml:"type"`

	// Event is the event name, e.g. "ExecuteRebalance" (trace_contains,
	// trace_count).
	Event string `yaml:"event,omitempty"`

	// Fields are expected event fields: actor, candidate, round, amount
	// (trace_contains). Subset match.
	Fields map[string]string `yaml:"fields,omitempty"`

	// Events is the expected order (trace_order).
	Events []string `yaml:"events,omitempty"`

	// Count is the expected number of occurrences (trace_count).
	Count int `yaml:"count,omitempty"`

	// Expect maps state keys to expected values (final_state). Subset
	// match. Keys of the form "balance:<holder>" read the token balance of
	// holder.
	Expect map[string]any `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if err := s.Committee.Validate(); err != nil {
		return fmt.Errorf("committee: %w", err)
	}
	if _, err := s.Committee.Balance(); err != nil {
		return fmt.Errorf("committee: %w", err)
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if step.As == "" {
			return fmt.Errorf("steps[%d]: as is required", i)
		}
		if !knownOps[step.Do] {
			return fmt.Errorf("steps[%d]: unknown operation %q", i, step.Do)
		}
		if step.Do == OpSubmitRebalance {
			if step.Rebalance == nil {
				return fmt.Errorf("steps[%d]: rebalance is required for %s", i, step.Do)
			}
			if _, err := step.Rebalance.Params(); err != nil {
				return fmt.Errorf("steps[%d].rebalance: %w", i, err)
			}
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains:
		if a.Event == "" {
			return fmt.Errorf("assertions[%d]: event is required for trace_contains", index)
		}
		for k := range a.Fields {
			if !eventFields[k] {
				return fmt.Errorf("assertions[%d]: unknown event field %q", index, k)
			}
		}
	case AssertTraceOrder:
		if len(a.Events) == 0 {
			return fmt.Errorf("assertions[%d]: events list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Event == "" {
			return fmt.Errorf("assertions[%d]: event is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertFinalState:
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
