package harness

import (
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/quorum/internal/ir"
)

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall success: every step behaved as expected, every
	// assertion held and the journal restored to the live state.
	Pass bool `json:"pass"`

	// Events are the journaled events of both gates in seq order.
	Events []ir.Event `json:"events"`

	// Trace is the rendered step log: one line per event and one line per
	// rejected step.
	Trace []string `json:"trace"`

	// Errors contains failure messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// State is the final state, flattened to string values.
	State map[string]string `json:"state"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Events: []ir.Event{},
		Trace:  []string{},
		Errors: []string{},
		State:  make(map[string]string),
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// addEvent appends ev to the trace.
func (r *Result) addEvent(ev ir.Event) {
	r.Trace = append(r.Trace, ev.String())
}

// addRejection appends a rejected step to the trace.
func (r *Result) addRejection(step Step, reason string) {
	r.Trace = append(r.Trace, fmt.Sprintf("- %s as=%s rejected: %s", step.Do, step.As, reason))
}

// Render returns the trace followed by the final state, one "key: value"
// line per state entry in key order. The output is stable for a given
// scenario and is what golden files hold.
func (r *Result) Render(name string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n", name)
	for _, line := range r.Trace {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	b.WriteString("# state\n")
	keys := make([]string, 0, len(r.State))
	for k := range r.State {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "%s: %s\n", k, r.State[k])
	}
	return []byte(b.String())
}
