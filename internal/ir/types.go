package ir

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Identity is a pre-authenticated principal handle (an address or account
// name). The hosting environment authenticates callers; the engine only
// compares identities.
type Identity string

// ParseIdentity trims and NFC-normalises s so that visually identical
// handles compare equal. Empty handles and handles containing whitespace
// are rejected.
func ParseIdentity(s string) (Identity, error) {
	n := norm.NFC.String(strings.TrimSpace(s))
	if n == "" {
		return "", fmt.Errorf("identity is empty")
	}
	if strings.IndexFunc(n, unicode.IsSpace) >= 0 {
		return "", fmt.Errorf("identity %q contains whitespace", n)
	}
	return Identity(n), nil
}

// ParseIdentities parses every handle in ss, reporting the first failure
// with its index.
func ParseIdentities(ss []string) ([]Identity, error) {
	out := make([]Identity, len(ss))
	for i, s := range ss {
		id, err := ParseIdentity(s)
		if err != nil {
			return nil, fmt.Errorf("[%d]: %w", i, err)
		}
		out[i] = id
	}
	return out, nil
}

// String returns the handle.
func (i Identity) String() string { return string(i) }

// IsZero reports whether i is the empty identity.
func (i Identity) IsZero() bool { return i == "" }

// Domain names one approval domain. Each domain owns exactly one pending
// action slot.
type Domain string

const (
	// DomainRebalance gates rebalance instructions.
	DomainRebalance Domain = "rebalance"

	// DomainOperator gates rotation of the operator role.
	DomainOperator Domain = "operator"

	// DomainMethodologist gates rotation of the methodologist role.
	DomainMethodologist Domain = "methodologist"
)

// Domains lists every domain in a stable order.
var Domains = []Domain{DomainRebalance, DomainOperator, DomainMethodologist}

// Valid reports whether d is a known domain.
func (d Domain) Valid() bool {
	switch d {
	case DomainRebalance, DomainOperator, DomainMethodologist:
		return true
	}
	return false
}

// ParseDomain converts s into a Domain.
func ParseDomain(s string) (Domain, error) {
	d := Domain(s)
	if !d.Valid() {
		return "", fmt.Errorf("unknown domain %q", s)
	}
	return d, nil
}

// Kind is the state transition an event records.
type Kind string

const (
	KindSubmit  Kind = "submit"
	KindConfirm Kind = "confirm"
	KindRevoke  Kind = "revoke"
	KindExecute Kind = "execute"

	// KindAbort follows an execute whose effect failed and reopens the
	// action. The execute is journaled before the effect runs.
	KindAbort Kind = "abort"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindSubmit, KindConfirm, KindRevoke, KindExecute, KindAbort:
		return true
	}
	return false
}
