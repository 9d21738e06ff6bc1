package portfolio

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/roach88/quorum/internal/ir"
)

// Memory is an in-process Manager that records every applied effect.
// It backs the CLI when no external manager is configured, and tests.
//
// Thread-safety: safe for concurrent use.
type Memory struct {
	mu            sync.Mutex
	operator      ir.Identity
	methodologist ir.Identity
	rebalances    []ir.RebalanceParams
	failNext      error
}

// NewMemory creates a Memory manager with the given initial role holders.
func NewMemory(operator, methodologist ir.Identity) *Memory {
	return &Memory{operator: operator, methodologist: methodologist}
}

// FailNext makes the next effect call return err instead of applying.
func (m *Memory) FailNext(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext = err
}

// takeFailure returns and clears a pending injected failure.
// Caller must hold m.mu.
func (m *Memory) takeFailure() error {
	err := m.failNext
	m.failNext = nil
	return err
}

// ApplyRebalance records params.
func (m *Memory) ApplyRebalance(_ context.Context, params ir.RebalanceParams) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return err
	}
	m.rebalances = append(m.rebalances, params.Clone())
	return nil
}

// SetOperator replaces the operator.
func (m *Memory) SetOperator(_ context.Context, operator ir.Identity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return err
	}
	m.operator = operator
	return nil
}

// SetMethodologist replaces the methodologist.
func (m *Memory) SetMethodologist(_ context.Context, methodologist ir.Identity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return err
	}
	m.methodologist = methodologist
	return nil
}

// Operator returns the current operator.
func (m *Memory) Operator() ir.Identity {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.operator
}

// Methodologist returns the current methodologist.
func (m *Memory) Methodologist() ir.Identity {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.methodologist
}

// Rebalances returns copies of every applied rebalance, oldest first.
func (m *Memory) Rebalances() []ir.RebalanceParams {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ir.RebalanceParams, len(m.rebalances))
	for i, p := range m.rebalances {
		out[i] = p.Clone()
	}
	return out
}

// Balances is an in-process Token ledger.
//
// Thread-safety: safe for concurrent use.
type Balances struct {
	mu       sync.Mutex
	accounts map[ir.Identity]*big.Int
	failNext error
}

// NewBalances creates an empty ledger.
func NewBalances() *Balances {
	return &Balances{accounts: make(map[ir.Identity]*big.Int)}
}

// Mint credits amount to holder.
func (b *Balances) Mint(holder ir.Identity, amount *big.Int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.balance(holder).Add(b.balance(holder), amount)
}

// FailNext makes the next Transfer return err.
func (b *Balances) FailNext(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failNext = err
}

// BalanceOf returns a copy of holder's balance.
func (b *Balances) BalanceOf(_ context.Context, holder ir.Identity) (*big.Int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return new(big.Int).Set(b.balance(holder)), nil
}

// Transfer moves amount from one holder to another.
func (b *Balances) Transfer(_ context.Context, from, to ir.Identity, amount *big.Int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.failNext; err != nil {
		b.failNext = nil
		return err
	}
	if amount.Sign() < 0 {
		return fmt.Errorf("transfer: negative amount %s", amount)
	}
	src := b.balance(from)
	if src.Cmp(amount) < 0 {
		return fmt.Errorf("transfer %s from %s: %w", amount, from, ErrInsufficientBalance)
	}
	src.Sub(src, amount)
	dst := b.balance(to)
	dst.Add(dst, amount)
	return nil
}

// balance returns the live balance pointer for holder, creating it.
// Caller must hold b.mu.
func (b *Balances) balance(holder ir.Identity) *big.Int {
	v, ok := b.accounts[holder]
	if !ok {
		v = new(big.Int)
		b.accounts[holder] = v
	}
	return v
}
