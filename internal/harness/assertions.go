package harness

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/quorum/internal/ir"
	"github.com/roach88/quorum/internal/portfolio"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string   // Assertion type for categorization
	Expected string   // Human-readable expected outcome
	Actual   string   // Human-readable actual outcome
	Trace    []string // Rendered trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nFull trace:\n")
	for i, line := range e.Trace {
		fmt.Fprintf(&buf, "  [%d] %s\n", i+1, line)
	}
	return buf.String()
}

// eventFields are the event fields trace_contains can match on.
var eventFields = map[string]bool{
	"actor":     true,
	"candidate": true,
	"round":     true,
	"amount":    true,
}

func eventField(ev ir.Event, name string) string {
	switch name {
	case "actor":
		return ev.Actor.String()
	case "candidate":
		return ev.Candidate.String()
	case "round":
		return strconv.FormatInt(ev.Round, 10)
	case "amount":
		if ev.Amount == nil {
			return ""
		}
		return ev.Amount.String()
	}
	return ""
}

// assertTraceContains checks that an event with the given name and fields
// (subset match) was journaled.
func assertTraceContains(result *Result, assertion Assertion) error {
	for _, ev := range result.Events {
		if ev.Name() != assertion.Event {
			continue
		}
		if matchFields(ev, assertion.Fields) {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: fmt.Sprintf("event %s with fields %v", assertion.Event, assertion.Fields),
		Actual:   "not found in trace",
		Trace:    result.Trace,
	}
}

func matchFields(ev ir.Event, fields map[string]string) bool {
	for k, want := range fields {
		if eventField(ev, k) != want {
			return false
		}
	}
	return true
}

// assertTraceOrder checks that events first appear in the specified order.
// Events don't need to be consecutive.
func assertTraceOrder(result *Result, assertion Assertion) error {
	positions := make(map[string]int)
	for i, ev := range result.Events {
		name := ev.Name()
		if positions[name] == 0 {
			positions[name] = i + 1 // 1-indexed so zero means absent
		}
	}

	for _, name := range assertion.Events {
		if positions[name] == 0 {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("all events present: %v", assertion.Events),
				Actual:   fmt.Sprintf("missing event: %s", name),
				Trace:    result.Trace,
			}
		}
	}

	for i := 1; i < len(assertion.Events); i++ {
		prev := assertion.Events[i-1]
		curr := assertion.Events[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("events in order: %v", assertion.Events),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: result.Trace,
			}
		}
	}
	return nil
}

// assertTraceCount checks that the event appears exactly Count times.
func assertTraceCount(result *Result, assertion Assertion) error {
	count := 0
	for _, ev := range result.Events {
		if ev.Name() == assertion.Event {
			count++
		}
	}
	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d occurrences of %s", assertion.Count, assertion.Event),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    result.Trace,
		}
	}
	return nil
}

// balancePrefix selects a token balance in final_state assertions.
const balancePrefix = "balance:"

// assertFinalState checks the expected state values (subset match).
// Values are compared in their string form, so YAML numbers and booleans
// match the flattened state.
func assertFinalState(actx *AssertionContext, result *Result, assertion Assertion) error {
	var mismatches []string
	for key, want := range assertion.Expect {
		got, err := actx.lookup(result, key)
		if err != nil {
			return err
		}
		if got != fmt.Sprint(want) {
			mismatches = append(mismatches, fmt.Sprintf("%s=%q (want %q)", key, got, fmt.Sprint(want)))
		}
	}
	if len(mismatches) == 0 {
		return nil
	}
	return &AssertionError{
		Type:     AssertFinalState,
		Expected: fmt.Sprintf("%v", assertion.Expect),
		Actual:   strings.Join(mismatches, ", "),
		Trace:    result.Trace,
	}
}

// AssertionContext provides the live collaborators final_state
// assertions read from.
type AssertionContext struct {
	Ctx   context.Context
	Token portfolio.Token
}

func (a *AssertionContext) lookup(result *Result, key string) (string, error) {
	if holder, ok := strings.CutPrefix(key, balancePrefix); ok {
		if a == nil || a.Token == nil {
			return "", fmt.Errorf("final_state: %s requires a token", key)
		}
		v, err := a.Token.BalanceOf(a.Ctx, identity(holder))
		if err != nil {
			return "", fmt.Errorf("final_state: read %s: %w", key, err)
		}
		return v.String(), nil
	}
	v, ok := result.State[key]
	if !ok {
		return "", fmt.Errorf("final_state: unknown state key %q", key)
	}
	return v, nil
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertTraceContains:
			err = assertTraceContains(result, assertion)
		case AssertTraceOrder:
			err = assertTraceOrder(result, assertion)
		case AssertTraceCount:
			err = assertTraceCount(result, assertion)
		case AssertFinalState:
			err = assertFinalState(actx, result, assertion)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}
	return errors
}
