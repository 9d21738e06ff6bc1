package engine

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/roach88/quorum/internal/ir"
	"github.com/roach88/quorum/internal/portfolio"
	"github.com/roach88/quorum/internal/registry"
)

// CustodianConfig holds the construction parameters of a Custodian gate.
type CustodianConfig struct {
	// Owners is the fixed approver committee. Non-empty, duplicate-free.
	Owners []ir.Identity

	// Threshold is the methodologist-rotation quorum, in [1, len(Owners)].
	Threshold int

	// Self is the custodial identity the fee balance accrues to.
	Self ir.Identity

	// Methodologist is the initial methodologist. Defaults to Self.
	Methodologist ir.Identity

	// Manager receives methodologist changes.
	Manager portfolio.Manager

	// Token holds the custodial balance.
	Token portfolio.Token
}

// RevertFunc undoes an effect step that already applied.
type RevertFunc func(ctx context.Context) error

// Custodian gates methodologist rotation and holds the fee balance that is
// swept to each newly installed methodologist.
//
// Thread-safety: safe for concurrent use. Operations are serialized.
type Custodian struct {
	mu sync.Mutex

	owners        *registry.Registry
	manager       portfolio.Manager
	token         portfolio.Token
	self          ir.Identity
	methodologist ir.Identity

	rotation *machine[ir.Identity]

	// sweepAmount is the balance journaled by the execute in progress.
	sweepAmount *big.Int

	// replaced is the methodologist before the last replayed execute.
	replaced ir.Identity

	events *emitter
}

// NewCustodian validates cfg and constructs the gate.
func NewCustodian(cfg CustodianConfig, opts ...Option) (*Custodian, error) {
	o := newOptions("methodologist", opts)

	owners, err := registry.New(cfg.Owners)
	if err != nil {
		return nil, configuration(err)
	}
	if err := owners.CheckThreshold("methodologist_threshold", cfg.Threshold); err != nil {
		return nil, configuration(err)
	}
	if cfg.Self.IsZero() {
		return nil, configuration(&registry.ConfigError{Field: "custodian", Message: "custodian identity is empty"})
	}
	if cfg.Manager == nil {
		return nil, configuration(&registry.ConfigError{Field: "manager", Message: "portfolio manager is required"})
	}
	if cfg.Token == nil {
		return nil, configuration(&registry.ConfigError{Field: "token", Message: "token is required"})
	}
	methodologist := cfg.Methodologist
	if methodologist.IsZero() {
		methodologist = cfg.Self
	}

	c := &Custodian{
		owners:        owners,
		manager:       cfg.Manager,
		token:         cfg.Token,
		self:          cfg.Self,
		methodologist: methodologist,
		events:        newEmitter(o),
	}
	c.rotation = newMachine(ir.DomainMethodologist, cfg.Threshold, owners,
		candidateDigest(ir.DomainMethodologist), sameIdentity)
	c.rotation.effect = c.rotate

	c.events.log.Info("gate created",
		"owners", owners.Len(),
		"methodologist_threshold", cfg.Threshold,
		"custodian", cfg.Self,
		"methodologist", methodologist)
	return c, nil
}

// Name returns the gate name.
func (c *Custodian) Name() string { return c.events.gate }

// SubmitNewMethodologist proposes candidate as the next methodologist.
func (c *Custodian) SubmitNewMethodologist(ctx context.Context, caller, candidate ir.Identity) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.events.check(ir.DomainMethodologist, caller); err != nil {
		return c.events.rejected("submit_methodologist", caller, err)
	}
	if !c.owners.IsOwner(caller) {
		return c.events.rejected("submit_methodologist", caller, notOwner(ir.DomainMethodologist, caller))
	}
	if candidate.IsZero() {
		return c.events.rejected("submit_methodologist", caller,
			invalidArgument(ir.DomainMethodologist, caller, "candidate is empty"))
	}
	if err := c.rotation.submit(caller, candidate); err != nil {
		return c.events.rejected("submit_methodologist", caller, err)
	}
	return c.events.emit(ctx, c.rotationEvent(ir.KindSubmit, caller))
}

// ConfirmNewMethodologist records caller's confirmation of the pending
// candidate.
func (c *Custodian) ConfirmNewMethodologist(ctx context.Context, caller ir.Identity) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.events.check(ir.DomainMethodologist, caller); err != nil {
		return c.events.rejected("confirm_methodologist", caller, err)
	}
	if err := c.rotation.confirm(caller); err != nil {
		return c.events.rejected("confirm_methodologist", caller, err)
	}
	return c.events.emit(ctx, c.rotationEvent(ir.KindConfirm, caller))
}

// RevokeNewMethodologist withdraws caller's confirmation. The event names
// both the revoking owner and the candidate.
func (c *Custodian) RevokeNewMethodologist(ctx context.Context, caller ir.Identity) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.events.check(ir.DomainMethodologist, caller); err != nil {
		return c.events.rejected("revoke_methodologist", caller, err)
	}
	if err := c.rotation.revoke(caller); err != nil {
		return c.events.rejected("revoke_methodologist", caller, err)
	}
	return c.events.emit(ctx, c.rotationEvent(ir.KindRevoke, caller))
}

// ExecuteNewMethodologist installs the pending candidate and sweeps the
// whole custodial balance to it. Both effects apply or neither does.
func (c *Custodian) ExecuteNewMethodologist(ctx context.Context, caller ir.Identity) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.events.check(ir.DomainMethodologist, caller); err != nil {
		return c.events.rejected("execute_methodologist", caller, err)
	}
	if err := c.rotation.ready(caller); err != nil {
		return c.events.rejected("execute_methodologist", caller, err)
	}
	balance, err := c.token.BalanceOf(ctx, c.self)
	if err != nil {
		return c.events.rejected("execute_methodologist", caller,
			effectFailed(ir.DomainMethodologist, caller, fmt.Errorf("read custodial balance: %w", err)))
	}

	c.sweepAmount = balance
	ev := c.rotationEvent(ir.KindExecute, caller)
	ev.Amount = new(big.Int).Set(balance)
	if err := c.rotation.execute(ctx, c.events, ev); err != nil {
		return c.events.rejected("execute_methodologist", caller, err)
	}
	return nil
}

func (c *Custodian) rotationEvent(kind ir.Kind, actor ir.Identity) ir.Event {
	ev := c.rotation.event(kind, actor)
	ev.Candidate = c.rotation.payload
	return ev
}

// rotate is the methodologist rotation effect: pointer update, then a sweep
// of the balance journaled with the execute event. A failed sweep reverts
// the pointer update.
func (c *Custodian) rotate(ctx context.Context, candidate ir.Identity) error {
	balance := c.sweepAmount

	revert, err := c.setMethodologist(ctx, candidate)
	if err != nil {
		return err
	}
	if err := c.sweep(ctx, candidate, balance); err != nil {
		if rerr := revert(ctx); rerr != nil {
			c.events.log.Error("methodologist revert failed",
				"candidate", candidate,
				"previous", c.methodologist,
				"error", rerr)
			return errors.Join(err, rerr)
		}
		return err
	}

	c.events.log.Info("methodologist rotated",
		"from", c.methodologist,
		"to", candidate,
		"swept", balance)
	c.methodologist = candidate
	return nil
}

func (c *Custodian) setMethodologist(ctx context.Context, candidate ir.Identity) (RevertFunc, error) {
	previous := c.methodologist
	if err := c.manager.SetMethodologist(ctx, candidate); err != nil {
		return nil, fmt.Errorf("set methodologist: %w", err)
	}
	return func(ctx context.Context) error {
		if err := c.manager.SetMethodologist(ctx, previous); err != nil {
			return fmt.Errorf("revert methodologist to %s: %w", previous, err)
		}
		return nil
	}, nil
}

func (c *Custodian) sweep(ctx context.Context, to ir.Identity, amount *big.Int) error {
	if amount.Sign() == 0 {
		return nil
	}
	if err := c.token.Transfer(ctx, c.self, to, amount); err != nil {
		return fmt.Errorf("sweep %s to %s: %w", amount, to, err)
	}
	return nil
}

// Methodologist returns the current methodologist identity.
func (c *Custodian) Methodologist() ir.Identity {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.methodologist
}

// Self returns the custodial identity.
func (c *Custodian) Self() ir.Identity { return c.self }

// IsOwner reports whether id is in the owner set.
func (c *Custodian) IsOwner(id ir.Identity) bool {
	return c.owners.IsOwner(id)
}

// Owners returns a copy of the owner set in registry order.
func (c *Custodian) Owners() []ir.Identity {
	return c.owners.Owners()
}

// IsConfirmed reports whether owner confirmed the pending candidate.
func (c *Custodian) IsConfirmed(owner ir.Identity) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rotation.isConfirmed(owner)
}

// Balance returns the custodial balance currently held.
func (c *Custodian) Balance(ctx context.Context) (*big.Int, error) {
	return c.token.BalanceOf(ctx, c.self)
}

// Snapshot returns a copy of the gate state.
func (c *Custodian) Snapshot() CustodianState {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := CustodianState{
		Gate:          c.events.gate,
		Custodian:     c.self,
		Methodologist: c.methodologist,
		Owners:        c.owners.Owners(),
		Rotation:      c.rotation.view(),
	}
	if st.Rotation.Pending {
		st.Rotation.Candidate = c.rotation.payload
	}
	return st
}

// Restore rebuilds gate state from journaled events without calling the
// manager or moving balances. See Operator.Restore.
func (c *Custodian) Restore(events []ir.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.rotation.pending() || c.events.clock.Current() != 0 {
		return errors.New("restore: gate is not fresh")
	}
	for _, ev := range events {
		if err := c.rotation.replay(ev, ev.Candidate); err != nil {
			return fmt.Errorf("restore seq %d (%s): %w", ev.Seq, ev.Name(), err)
		}
		switch ev.Kind {
		case ir.KindExecute:
			c.replaced = c.methodologist
			c.methodologist = c.rotation.payload
		case ir.KindAbort:
			c.methodologist = c.replaced
		}
		c.events.clock.Advance(ev.Seq)
	}
	c.events.log.Info("gate restored",
		"events", len(events),
		"seq", c.events.clock.Current(),
		"methodologist", c.methodologist)
	return nil
}
