// Package portfolio defines the external collaborators the approval engine
// calls at execute time, plus in-memory and HTTP implementations.
//
// The engine holds a Manager handle; the manager's acceptance of the engine
// as its authorized operator or methodologist is a deployment wiring step
// outside this package.
package portfolio

import (
	"context"
	"errors"
	"math/big"

	"github.com/roach88/quorum/internal/ir"
)

// Manager performs the effects that an approved action authorizes. Each
// method is invoked at most once per successful execute; a returned error
// aborts the execute with no engine state change.
type Manager interface {
	ApplyRebalance(ctx context.Context, params ir.RebalanceParams) error
	SetOperator(ctx context.Context, operator ir.Identity) error
	SetMethodologist(ctx context.Context, methodologist ir.Identity) error
}

// Token is the managed asset the custodial engine holds fee balances in.
type Token interface {
	BalanceOf(ctx context.Context, holder ir.Identity) (*big.Int, error)
	Transfer(ctx context.Context, from, to ir.Identity, amount *big.Int) error
}

// ErrInsufficientBalance is returned by Transfer when from holds less than
// amount.
var ErrInsufficientBalance = errors.New("insufficient balance")
