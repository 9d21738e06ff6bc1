// Package registry holds the fixed committee of owners that approve
// privileged actions.
//
// Membership is resolved once at construction into an array plus an index
// map. There is no add/remove: every slot index handed out by a Registry is
// valid for the Registry's whole lifetime, which is what lets the
// confirmation ledger use fixed-size slot arenas.
package registry

import (
	"fmt"

	"github.com/roach88/quorum/internal/ir"
)

// ConfigError reports an invalid committee configuration. It is returned
// only at construction time and is fatal: no Registry is created.
type ConfigError struct {
	// Field names the offending configuration field (e.g. "owners").
	Field string

	// Message is a human-readable description.
	Message string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Registry is an immutable owner set.
//
// Thread-safety: a Registry is never mutated after New returns and is safe
// for concurrent reads.
type Registry struct {
	owners []ir.Identity
	index  map[ir.Identity]int
}

// New validates owners and builds a Registry.
//
// The owner list must be non-empty, free of empty identities and free of
// duplicates. The order of owners fixes their slot indexes.
func New(owners []ir.Identity) (*Registry, error) {
	if len(owners) == 0 {
		return nil, &ConfigError{Field: "owners", Message: "owner set is empty"}
	}

	r := &Registry{
		owners: make([]ir.Identity, len(owners)),
		index:  make(map[ir.Identity]int, len(owners)),
	}
	for i, o := range owners {
		if o.IsZero() {
			return nil, &ConfigError{Field: fmt.Sprintf("owners[%d]", i), Message: "owner identity is empty"}
		}
		if prev, dup := r.index[o]; dup {
			return nil, &ConfigError{
				Field:   fmt.Sprintf("owners[%d]", i),
				Message: fmt.Sprintf("duplicate owner %q (also owners[%d])", o, prev),
			}
		}
		r.owners[i] = o
		r.index[o] = i
	}
	return r, nil
}

// CheckThreshold validates a quorum threshold against the owner count.
// field names the threshold in the returned ConfigError.
func (r *Registry) CheckThreshold(field string, threshold int) error {
	if threshold < 1 || threshold > len(r.owners) {
		return &ConfigError{
			Field:   field,
			Message: fmt.Sprintf("threshold %d outside [1, %d]", threshold, len(r.owners)),
		}
	}
	return nil
}

// Len returns the number of owners.
func (r *Registry) Len() int { return len(r.owners) }

// IsOwner reports whether id is a committee member.
func (r *Registry) IsOwner(id ir.Identity) bool {
	_, ok := r.index[id]
	return ok
}

// Slot returns the fixed slot index of an owner.
func (r *Registry) Slot(id ir.Identity) (int, bool) {
	i, ok := r.index[id]
	return i, ok
}

// Owner returns the owner at slot i. It panics if i is out of range.
func (r *Registry) Owner(i int) ir.Identity { return r.owners[i] }

// Owners returns a copy of the owner list in slot order.
func (r *Registry) Owners() []ir.Identity {
	return append([]ir.Identity(nil), r.owners...)
}
