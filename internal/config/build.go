package config

import (
	"fmt"
	"log/slog"

	"github.com/roach88/quorum/internal/engine"
	"github.com/roach88/quorum/internal/ir"
	"github.com/roach88/quorum/internal/portfolio"
)

// Gate names. Journal rows are keyed by these.
const (
	OperatorGate  = "operator"
	CustodianGate = "methodologist"
)

// Wiring supplies the collaborators the gates need at construction.
type Wiring struct {
	Manager portfolio.Manager
	Token   portfolio.Token
	Logger  *slog.Logger

	// Sink returns the event sink of a gate. Optional. A gate with a sink
	// halts on the first event it cannot record.
	Sink func(gate string) engine.EventSink

	// IDs returns the event id generator of a gate. Optional.
	IDs func(gate string) engine.IDGenerator

	// Clock, when set, is shared by both gates so their events form a
	// single sequence.
	Clock *engine.Clock
}

// Gates is a constructed deployment.
type Gates struct {
	Operator  *engine.Operator
	Custodian *engine.Custodian
}

// Build constructs both gates from c.
func (c *Config) Build(w Wiring) (*Gates, error) {
	owners, err := c.OwnerIdentities()
	if err != nil {
		return nil, err
	}

	op, err := engine.NewOperator(engine.OperatorConfig{
		Owners:             owners,
		RebalanceThreshold: c.RebalanceThreshold,
		RotationThreshold:  c.OperatorThreshold,
		Operator:           identity(c.Operator),
		Manager:            w.Manager,
	}, c.options(OperatorGate, w)...)
	if err != nil {
		return nil, fmt.Errorf("build %s gate: %w", OperatorGate, err)
	}

	cust, err := engine.NewCustodian(engine.CustodianConfig{
		Owners:        owners,
		Threshold:     c.MethodologistThreshold,
		Self:          identity(c.Custodian),
		Methodologist: identity(c.Methodologist),
		Manager:       w.Manager,
		Token:         w.Token,
	}, c.options(CustodianGate, w)...)
	if err != nil {
		return nil, fmt.Errorf("build %s gate: %w", CustodianGate, err)
	}

	return &Gates{Operator: op, Custodian: cust}, nil
}

// identity NFC-normalizes s. Invalid input is passed through for the gate
// constructor to reject.
func identity(s string) ir.Identity {
	id, err := ir.ParseIdentity(s)
	if err != nil {
		return ir.Identity(s)
	}
	return id
}

func (c *Config) options(gate string, w Wiring) []engine.Option {
	opts := []engine.Option{engine.WithName(gate)}
	if w.Logger != nil {
		opts = append(opts, engine.WithLogger(w.Logger))
	}
	if w.Sink != nil {
		opts = append(opts, engine.WithSink(w.Sink(gate)), engine.WithFailStop())
	}
	if w.IDs != nil {
		opts = append(opts, engine.WithIDGenerator(w.IDs(gate)))
	}
	if w.Clock != nil {
		opts = append(opts, engine.WithClock(w.Clock))
	}
	if c.SubmitterConfirms && gate == OperatorGate {
		opts = append(opts, engine.WithSubmitterConfirmation())
	}
	return opts
}

// Sample returns a minimal valid configuration for owners.
func Sample(owners []string) *Config {
	n := len(owners)
	return &Config{
		Owners:                 owners,
		Operator:               "operator",
		Custodian:              "custodian",
		RebalanceThreshold:     n/2 + 1,
		OperatorThreshold:      n - n/4,
		MethodologistThreshold: n - n/4,
		CustodialBalance:       "0",
		Database:               "quorum.db",
		Listen:                 "127.0.0.1:8080",
		LogLevel:               "info",
	}
}
