package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/roach88/quorum/internal/ir"
	"github.com/roach88/quorum/internal/portfolio"
	"github.com/roach88/quorum/internal/registry"
)

// OperatorConfig holds the construction parameters of an Operator gate.
type OperatorConfig struct {
	// Owners is the fixed approver committee. Non-empty, duplicate-free.
	Owners []ir.Identity

	// RebalanceThreshold is the rebalance quorum, in [1, len(Owners)].
	RebalanceThreshold int

	// RotationThreshold is the operator-rotation quorum, in [1, len(Owners)].
	RotationThreshold int

	// Operator is the initial operator identity.
	Operator ir.Identity

	// Manager receives authorized rebalances and operator changes.
	Manager portfolio.Manager
}

// Operator gates rebalance instructions and operator rotation behind owner
// quorums.
//
// Thread-safety: safe for concurrent use. Operations are serialized.
type Operator struct {
	mu sync.Mutex

	owners            *registry.Registry
	manager           portfolio.Manager
	operator          ir.Identity
	submitterConfirms bool

	// replaced is the operator before the last replayed rotation execute.
	replaced ir.Identity

	rebalance *machine[ir.RebalanceParams]
	rotation  *machine[ir.Identity]

	events *emitter
}

// NewOperator validates cfg and constructs the gate. Every validation
// failure is a CONFIGURATION GateError wrapping a *registry.ConfigError.
func NewOperator(cfg OperatorConfig, opts ...Option) (*Operator, error) {
	o := newOptions("operator", opts)

	owners, err := registry.New(cfg.Owners)
	if err != nil {
		return nil, configuration(err)
	}
	if err := owners.CheckThreshold("rebalance_threshold", cfg.RebalanceThreshold); err != nil {
		return nil, configuration(err)
	}
	if err := owners.CheckThreshold("operator_threshold", cfg.RotationThreshold); err != nil {
		return nil, configuration(err)
	}
	if cfg.Operator.IsZero() {
		return nil, configuration(&registry.ConfigError{Field: "operator", Message: "operator identity is empty"})
	}
	if cfg.Manager == nil {
		return nil, configuration(&registry.ConfigError{Field: "manager", Message: "portfolio manager is required"})
	}

	g := &Operator{
		owners:            owners,
		manager:           cfg.Manager,
		operator:          cfg.Operator,
		submitterConfirms: o.submitterConfirms,
		events:            newEmitter(o),
	}
	g.rebalance = newMachine(ir.DomainRebalance, cfg.RebalanceThreshold, owners,
		ir.RebalanceDigest, ir.RebalanceParams.Clone)
	g.rebalance.effect = cfg.Manager.ApplyRebalance
	g.rotation = newMachine(ir.DomainOperator, cfg.RotationThreshold, owners,
		candidateDigest(ir.DomainOperator), sameIdentity)
	g.rotation.effect = g.installOperator

	g.events.log.Info("gate created",
		"owners", owners.Len(),
		"rebalance_threshold", cfg.RebalanceThreshold,
		"operator_threshold", cfg.RotationThreshold,
		"operator", cfg.Operator)
	return g, nil
}

func candidateDigest(d ir.Domain) func(int64, ir.Identity) (string, error) {
	return func(round int64, candidate ir.Identity) (string, error) {
		return ir.CandidateDigest(d, round, candidate)
	}
}

func sameIdentity(id ir.Identity) ir.Identity { return id }

// Name returns the gate name.
func (g *Operator) Name() string { return g.events.gate }

// SubmitRebalance replaces the pending rebalance with params and clears all
// confirmations. Only the current operator may submit.
func (g *Operator) SubmitRebalance(ctx context.Context, caller ir.Identity, params ir.RebalanceParams) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.events.check(ir.DomainRebalance, caller); err != nil {
		return g.events.rejected("submit_rebalance", caller, err)
	}
	if caller != g.operator {
		return g.events.rejected("submit_rebalance", caller, notOperator(caller))
	}
	if err := g.rebalance.submit(caller, params); err != nil {
		return g.events.rejected("submit_rebalance", caller, err)
	}
	ev := g.rebalance.event(ir.KindSubmit, caller)
	stored := g.rebalance.payload.Clone()
	ev.Rebalance = &stored
	return g.events.emit(ctx, ev)
}

// ConfirmRebalance records caller's confirmation of the pending rebalance.
func (g *Operator) ConfirmRebalance(ctx context.Context, caller ir.Identity) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.events.check(ir.DomainRebalance, caller); err != nil {
		return g.events.rejected("confirm_rebalance", caller, err)
	}
	if err := g.rebalance.confirm(caller); err != nil {
		return g.events.rejected("confirm_rebalance", caller, err)
	}
	return g.events.emit(ctx, g.rebalance.event(ir.KindConfirm, caller))
}

// RevokeRebalance withdraws caller's confirmation of the pending rebalance.
func (g *Operator) RevokeRebalance(ctx context.Context, caller ir.Identity) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.events.check(ir.DomainRebalance, caller); err != nil {
		return g.events.rejected("revoke_rebalance", caller, err)
	}
	if err := g.rebalance.revoke(caller); err != nil {
		return g.events.rejected("revoke_rebalance", caller, err)
	}
	return g.events.emit(ctx, g.rebalance.event(ir.KindRevoke, caller))
}

// ExecuteRebalance hands the pending rebalance to the portfolio manager once
// quorum is met. Any owner may execute.
func (g *Operator) ExecuteRebalance(ctx context.Context, caller ir.Identity) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.events.check(ir.DomainRebalance, caller); err != nil {
		return g.events.rejected("execute_rebalance", caller, err)
	}
	if err := g.rebalance.ready(caller); err != nil {
		return g.events.rejected("execute_rebalance", caller, err)
	}
	if err := g.rebalance.execute(ctx, g.events, g.rebalance.event(ir.KindExecute, caller)); err != nil {
		return g.events.rejected("execute_rebalance", caller, err)
	}
	return nil
}

// SubmitNewOperator proposes candidate as the next operator.
func (g *Operator) SubmitNewOperator(ctx context.Context, caller, candidate ir.Identity) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.events.check(ir.DomainOperator, caller); err != nil {
		return g.events.rejected("submit_operator", caller, err)
	}
	if !g.owners.IsOwner(caller) {
		return g.events.rejected("submit_operator", caller, notOwner(ir.DomainOperator, caller))
	}
	if candidate.IsZero() {
		return g.events.rejected("submit_operator", caller,
			invalidArgument(ir.DomainOperator, caller, "candidate is empty"))
	}
	if err := g.rotation.submit(caller, candidate); err != nil {
		return g.events.rejected("submit_operator", caller, err)
	}
	if err := g.events.emit(ctx, g.rotationEvent(ir.KindSubmit, caller)); err != nil {
		return err
	}

	if g.submitterConfirms {
		// Fresh round: the submitter cannot have confirmed yet.
		if err := g.rotation.confirm(caller); err == nil {
			return g.events.emit(ctx, g.rotationEvent(ir.KindConfirm, caller))
		}
	}
	return nil
}

// ConfirmNewOperator records caller's confirmation of the pending candidate.
func (g *Operator) ConfirmNewOperator(ctx context.Context, caller ir.Identity) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.events.check(ir.DomainOperator, caller); err != nil {
		return g.events.rejected("confirm_operator", caller, err)
	}
	if err := g.rotation.confirm(caller); err != nil {
		return g.events.rejected("confirm_operator", caller, err)
	}
	return g.events.emit(ctx, g.rotationEvent(ir.KindConfirm, caller))
}

// RevokeNewOperator withdraws caller's confirmation of the pending candidate.
func (g *Operator) RevokeNewOperator(ctx context.Context, caller ir.Identity) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.events.check(ir.DomainOperator, caller); err != nil {
		return g.events.rejected("revoke_operator", caller, err)
	}
	if err := g.rotation.revoke(caller); err != nil {
		return g.events.rejected("revoke_operator", caller, err)
	}
	return g.events.emit(ctx, g.rotationEvent(ir.KindRevoke, caller))
}

// ExecuteNewOperator installs the pending candidate as operator once quorum
// is met.
func (g *Operator) ExecuteNewOperator(ctx context.Context, caller ir.Identity) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.events.check(ir.DomainOperator, caller); err != nil {
		return g.events.rejected("execute_operator", caller, err)
	}
	if err := g.rotation.ready(caller); err != nil {
		return g.events.rejected("execute_operator", caller, err)
	}
	if err := g.rotation.execute(ctx, g.events, g.rotationEvent(ir.KindExecute, caller)); err != nil {
		return g.events.rejected("execute_operator", caller, err)
	}
	return nil
}

func (g *Operator) rotationEvent(kind ir.Kind, actor ir.Identity) ir.Event {
	ev := g.rotation.event(kind, actor)
	ev.Candidate = g.rotation.payload
	return ev
}

// installOperator is the operator rotation effect. The pointer moves only
// after the manager accepted the change.
func (g *Operator) installOperator(ctx context.Context, candidate ir.Identity) error {
	if err := g.manager.SetOperator(ctx, candidate); err != nil {
		return err
	}
	previous := g.operator
	g.operator = candidate
	g.events.log.Info("operator rotated", "from", previous, "to", candidate)
	return nil
}

// Operator returns the current operator identity.
func (g *Operator) Operator() ir.Identity {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.operator
}

// IsOperator reports whether id is the current operator.
func (g *Operator) IsOperator(id ir.Identity) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return id == g.operator
}

// IsOwner reports whether id is in the owner set.
func (g *Operator) IsOwner(id ir.Identity) bool {
	return g.owners.IsOwner(id)
}

// Owners returns a copy of the owner set in registry order.
func (g *Operator) Owners() []ir.Identity {
	return g.owners.Owners()
}

// IsConfirmed reports whether owner confirmed the pending action of d.
func (g *Operator) IsConfirmed(d ir.Domain, owner ir.Identity) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	switch d {
	case ir.DomainRebalance:
		return g.rebalance.isConfirmed(owner)
	case ir.DomainOperator:
		return g.rotation.isConfirmed(owner)
	default:
		return false
	}
}

// Snapshot returns a copy of the gate state.
func (g *Operator) Snapshot() OperatorState {
	g.mu.Lock()
	defer g.mu.Unlock()

	st := OperatorState{
		Gate:      g.events.gate,
		Operator:  g.operator,
		Owners:    g.owners.Owners(),
		Rebalance: g.rebalance.view(),
		Rotation:  g.rotation.view(),
	}
	if st.Rebalance.Pending {
		p := g.rebalance.payload.Clone()
		st.Rebalance.Rebalance = &p
	}
	if st.Rotation.Pending {
		st.Rotation.Candidate = g.rotation.payload
	}
	return st
}

// Restore rebuilds gate state from journaled events, in seq order, without
// calling the portfolio manager. The clock resumes after the last seq.
//
// Restore requires a fresh gate. On error the gate is left partially
// restored and must be discarded.
func (g *Operator) Restore(events []ir.Event) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.rebalance.pending() || g.rotation.pending() || g.events.clock.Current() != 0 {
		return errors.New("restore: gate is not fresh")
	}
	for _, ev := range events {
		if err := g.replay(ev); err != nil {
			return fmt.Errorf("restore seq %d (%s): %w", ev.Seq, ev.Name(), err)
		}
		g.events.clock.Advance(ev.Seq)
	}
	g.events.log.Info("gate restored",
		"events", len(events),
		"seq", g.events.clock.Current(),
		"operator", g.operator)
	return nil
}

func (g *Operator) replay(ev ir.Event) error {
	switch ev.Domain {
	case ir.DomainRebalance:
		var params ir.RebalanceParams
		if ev.Kind == ir.KindSubmit {
			if ev.Rebalance == nil {
				return errors.New("submit event carries no rebalance")
			}
			params = *ev.Rebalance
		}
		return g.rebalance.replay(ev, params)
	case ir.DomainOperator:
		if err := g.rotation.replay(ev, ev.Candidate); err != nil {
			return err
		}
		switch ev.Kind {
		case ir.KindExecute:
			g.replaced = g.operator
			g.operator = g.rotation.payload
		case ir.KindAbort:
			g.operator = g.replaced
		}
		return nil
	default:
		return fmt.Errorf("domain %q is not served by this gate", ev.Domain)
	}
}
