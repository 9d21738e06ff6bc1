package testutil

import (
	"fmt"

	"github.com/roach88/quorum/internal/ir"
)

// Owners returns n owner identities "O1".."On".
func Owners(n int) []ir.Identity {
	out := make([]ir.Identity, n)
	for i := range out {
		out[i] = ir.Identity(fmt.Sprintf("O%d", i+1))
	}
	return out
}

// Common fixture identities.
const (
	OperatorID      ir.Identity = "operator"
	CandidateID     ir.Identity = "candidate"
	CustodianID     ir.Identity = "custodian"
	MethodologistID ir.Identity = "methodologist"
	OutsiderID      ir.Identity = "outsider"
)
