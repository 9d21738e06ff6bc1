package ir

import (
	"fmt"
	"math/big"
)

// RebalanceParams are the target-composition parameters of a rebalance
// instruction. They are opaque to the engine and forwarded verbatim to the
// portfolio manager at execute time.
type RebalanceParams struct {
	// Constituents are new components added to the portfolio.
	Constituents []Identity `json:"constituents"`

	// Removed are components dropped from the portfolio.
	Removed []Identity `json:"removed"`

	// Weights are per-constituent unit targets.
	Weights []*big.Int `json:"weights"`

	// ExecutionBound caps the size of a single trade.
	ExecutionBound *big.Int `json:"execution_bound"`
}

// Validate checks that every amount is present and non-negative.
// Lengths are not cross-checked; weights may address existing components.
func (p RebalanceParams) Validate() error {
	for i, c := range p.Constituents {
		if c.IsZero() {
			return fmt.Errorf("constituents[%d]: identity is empty", i)
		}
	}
	for i, r := range p.Removed {
		if r.IsZero() {
			return fmt.Errorf("removed[%d]: identity is empty", i)
		}
	}
	for i, w := range p.Weights {
		if w == nil {
			return fmt.Errorf("weights[%d]: missing", i)
		}
		if w.Sign() < 0 {
			return fmt.Errorf("weights[%d]: negative", i)
		}
	}
	if p.ExecutionBound == nil {
		return fmt.Errorf("execution_bound: missing")
	}
	if p.ExecutionBound.Sign() < 0 {
		return fmt.Errorf("execution_bound: negative")
	}
	return nil
}

// Clone returns a deep copy so the engine's stored instruction cannot be
// mutated through a caller's slices or big.Int pointers.
func (p RebalanceParams) Clone() RebalanceParams {
	out := RebalanceParams{
		Constituents: append([]Identity{}, p.Constituents...),
		Removed:      append([]Identity{}, p.Removed...),
		Weights:      make([]*big.Int, len(p.Weights)),
	}
	for i, w := range p.Weights {
		if w != nil {
			out.Weights[i] = new(big.Int).Set(w)
		}
	}
	if p.ExecutionBound != nil {
		out.ExecutionBound = new(big.Int).Set(p.ExecutionBound)
	}
	return out
}

// canonicalFields renders p for canonical JSON. Amounts become decimal
// strings; a nil amount renders as "0".
func (p RebalanceParams) canonicalFields() map[string]any {
	constituents := make([]any, len(p.Constituents))
	for i, c := range p.Constituents {
		constituents[i] = string(c)
	}
	removed := make([]any, len(p.Removed))
	for i, r := range p.Removed {
		removed[i] = string(r)
	}
	weights := make([]any, len(p.Weights))
	for i, w := range p.Weights {
		weights[i] = amountString(w)
	}
	return map[string]any{
		"constituents":    constituents,
		"removed":         removed,
		"weights":         weights,
		"execution_bound": amountString(p.ExecutionBound),
	}
}

// ParseAmount parses a non-negative base-10 integer.
func ParseAmount(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	if v.Sign() < 0 {
		return nil, fmt.Errorf("negative amount %q", s)
	}
	return v, nil
}

// ParseAmounts parses every element of ss with ParseAmount.
func ParseAmounts(ss []string) ([]*big.Int, error) {
	out := make([]*big.Int, len(ss))
	for i, s := range ss {
		v, err := ParseAmount(s)
		if err != nil {
			return nil, fmt.Errorf("[%d]: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
