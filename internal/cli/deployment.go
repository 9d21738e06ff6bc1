package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/quorum/internal/config"
	"github.com/roach88/quorum/internal/engine"
	"github.com/roach88/quorum/internal/ir"
	"github.com/roach88/quorum/internal/portfolio"
	"github.com/roach88/quorum/internal/store"
)

// Deployment is a configuration with its open journal and restored gates.
type Deployment struct {
	Config *config.Config
	Store  *store.Store
	Gates  *config.Gates

	// Token is the in-process custodial ledger.
	Token *portfolio.Balances

	// Restored counts the journaled events replayed per gate.
	Restored map[string]int
}

// Close closes the journal.
func (d *Deployment) Close() error {
	return d.Store.Close()
}

// LoadDeployment loads the configuration at path, opens its journal
// (database overrides the configured path when set), builds both gates and
// restores them from the journal.
//
// The portfolio manager is the HTTP client when manager_url is configured
// and an in-memory manager otherwise. The custodial token is always
// in-memory: it is minted with custodial_balance and journaled sweeps are
// re-applied so balances match the restored state.
func LoadDeployment(ctx context.Context, path, database string, logger *slog.Logger) (*Deployment, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if database != "" {
		cfg.Database = database
	}
	if cfg.Database == "" {
		return nil, NewExitError(ExitCommandError, "no database configured (set database, QUORUM_DB or --db)")
	}

	st, err := store.Open(cfg.Database)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}

	d, err := buildDeployment(ctx, cfg, st, logger, true)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	return d, nil
}

// buildDeployment builds and restores gates over st. When journal is true
// the gates also append new events to st.
func buildDeployment(ctx context.Context, cfg *config.Config, st *store.Store, logger *slog.Logger, journal bool) (*Deployment, error) {
	balance, err := cfg.Balance()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid config", err)
	}

	manager := newManager(cfg)
	token := portfolio.NewBalances()
	custodian, err := ir.ParseIdentity(cfg.Custodian)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid config", err)
	}
	token.Mint(custodian, balance)

	wiring := config.Wiring{Manager: manager, Token: token, Logger: logger}
	if journal {
		wiring.Sink = func(gate string) engine.EventSink { return st.Journal(gate) }
	}
	gates, err := cfg.Build(wiring)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to build gates", err)
	}

	d := &Deployment{Config: cfg, Store: st, Gates: gates, Token: token, Restored: make(map[string]int)}
	if err := d.restore(ctx, manager); err != nil {
		return nil, err
	}
	return d, nil
}

func newManager(cfg *config.Config) portfolio.Manager {
	if cfg.ManagerURL != "" {
		return portfolio.NewHTTPManager(cfg.ManagerURL, portfolio.WithTimeout(cfg.ManagerTimeout))
	}
	methodologist := cfg.Methodologist
	if methodologist == "" {
		methodologist = cfg.Custodian
	}
	return portfolio.NewMemory(ir.Identity(cfg.Operator), ir.Identity(methodologist))
}

// restore replays both journals into the gates, re-applies journaled sweeps
// that were not aborted to the in-memory token and, for the in-memory
// manager, re-installs the restored role holders.
func (d *Deployment) restore(ctx context.Context, manager portfolio.Manager) error {
	n, err := d.Store.Journal(config.OperatorGate).Restore(ctx, d.Gates.Operator)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to restore operator gate", err)
	}
	d.Restored[config.OperatorGate] = n

	n, err = d.Store.Journal(config.CustodianGate).Restore(ctx, d.Gates.Custodian)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to restore methodologist gate", err)
	}
	d.Restored[config.CustodianGate] = n

	sweeps, err := d.Store.ReadDomainEvents(ctx, config.CustodianGate, ir.DomainMethodologist)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read journal", err)
	}
	aborted := make(map[int64]bool)
	for _, ev := range sweeps {
		if ev.Kind == ir.KindAbort {
			aborted[ev.Round] = true
		}
	}
	self := d.Gates.Custodian.Self()
	for _, ev := range sweeps {
		if ev.Kind != ir.KindExecute || aborted[ev.Round] || ev.Amount == nil || ev.Amount.Sign() == 0 {
			continue
		}
		if err := d.Token.Transfer(ctx, self, ev.Candidate, ev.Amount); err != nil {
			return WrapExitError(ExitFailure, fmt.Sprintf("failed to re-apply sweep at seq %d", ev.Seq), err)
		}
	}

	if mem, ok := manager.(*portfolio.Memory); ok {
		if err := mem.SetOperator(ctx, d.Gates.Operator.Operator()); err != nil {
			return err
		}
		if err := mem.SetMethodologist(ctx, d.Gates.Custodian.Methodologist()); err != nil {
			return err
		}
	}
	return nil
}
