package harness

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strconv"

	"github.com/roach88/quorum/internal/config"
	"github.com/roach88/quorum/internal/engine"
	"github.com/roach88/quorum/internal/ir"
	"github.com/roach88/quorum/internal/portfolio"
	"github.com/roach88/quorum/internal/store"
	"github.com/roach88/quorum/internal/testutil"
)

// Harness is the scenario execution engine.
// It runs steps against real gates with a shared deterministic clock.
type Harness struct {
	store    *store.Store
	gates    *config.Gates
	manager  *portfolio.Memory
	token    *portfolio.Balances
	recorder *testutil.Recorder
	logger   *slog.Logger
}

// Option configures Run.
type Option func(*runOptions)

type runOptions struct {
	logger *slog.Logger
}

// WithLogger routes gate logs to l. Logs are discarded by default.
func WithLogger(l *slog.Logger) Option {
	return func(o *runOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
//
// Execution flow:
// 1. Create fresh in-memory database
// 2. Build both gates from the committee
// 3. Perform the steps, checking expected rejections
// 4. Read the journal back and restore fresh gates from it
// 5. Evaluate assertions
//
// The returned error reports harness failures only. Scenario failures are
// reported through Result.Pass and Result.Errors.
func Run(scenario *Scenario, opts ...Option) (*Result, error) {
	o := runOptions{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(&o)
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	h, err := newHarness(scenario, st, o.logger)
	if err != nil {
		return nil, err
	}

	ctx := context.Background()
	result := NewResult()

	for i, step := range scenario.Steps {
		h.perform(ctx, i, step, result)
	}

	if err := h.collectEvents(ctx, result); err != nil {
		return nil, err
	}
	if err := h.collectState(ctx, result); err != nil {
		return nil, err
	}
	h.checkRestore(ctx, scenario, result)

	actx := &AssertionContext{Ctx: ctx, Token: h.token}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}
	return result, nil
}

func newHarness(scenario *Scenario, st *store.Store, logger *slog.Logger) (*Harness, error) {
	c := &scenario.Committee

	balance, err := c.Balance()
	if err != nil {
		return nil, err
	}
	manager, token := newPortfolio(c)
	token.Mint(identity(c.Custodian), balance)

	rec := &testutil.Recorder{}
	clock := engine.NewClock()
	gates, err := c.Build(config.Wiring{
		Manager: manager,
		Token:   token,
		Logger:  logger,
		Clock:   clock,
		Sink: func(gate string) engine.EventSink {
			journal := st.Journal(gate)
			return engine.SinkFunc(func(ctx context.Context, ev ir.Event) error {
				if err := journal.Record(ctx, ev); err != nil {
					return err
				}
				return rec.Record(ctx, ev)
			})
		},
		IDs: func(gate string) engine.IDGenerator {
			return testutil.NewSequentialIDs(gate)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build gates: %w", err)
	}

	return &Harness{
		store:    st,
		gates:    gates,
		manager:  manager,
		token:    token,
		recorder: rec,
		logger:   logger,
	}, nil
}

// newPortfolio creates the in-memory manager and token for c. The manager
// starts with the configured role holders.
func newPortfolio(c *config.Config) (*portfolio.Memory, *portfolio.Balances) {
	methodologist := c.Methodologist
	if methodologist == "" {
		methodologist = c.Custodian
	}
	return portfolio.NewMemory(identity(c.Operator), identity(methodologist)), portfolio.NewBalances()
}

// perform runs one step and records its events or its rejection.
func (h *Harness) perform(ctx context.Context, i int, step Step, result *Result) {
	if step.FailManager != "" {
		h.manager.FailNext(errors.New(step.FailManager))
	}
	if step.FailToken != "" {
		h.token.FailNext(errors.New(step.FailToken))
	}

	before := len(h.recorder.Events())
	err := h.dispatch(ctx, step)
	for _, ev := range h.recorder.Events()[before:] {
		result.addEvent(ev)
	}

	if err == nil {
		if step.ExpectError != "" {
			result.AddError(fmt.Sprintf("steps[%d] %s as=%s: expected %q, got success",
				i, step.Do, step.As, step.ExpectError))
		}
		return
	}

	reason := engine.Reason(err)
	result.addRejection(step, reason)
	h.logger.Debug("step rejected", "step", i, "op", step.Do, "as", step.As, "error", err)

	switch {
	case step.ExpectError == "":
		result.AddError(fmt.Sprintf("steps[%d] %s as=%s: unexpected error: %v", i, step.Do, step.As, err))
	case !engine.HasReason(err, step.ExpectError):
		result.AddError(fmt.Sprintf("steps[%d] %s as=%s: expected %q, got %q",
			i, step.Do, step.As, step.ExpectError, reason))
	}
}

// dispatch performs the gate operation named by step.Do.
func (h *Harness) dispatch(ctx context.Context, step Step) error {
	caller := identity(step.As)
	op := h.gates.Operator
	cust := h.gates.Custodian

	switch step.Do {
	case OpSubmitRebalance:
		params, err := step.Rebalance.Params()
		if err != nil {
			return err
		}
		return op.SubmitRebalance(ctx, caller, params)
	case OpConfirmRebalance:
		return op.ConfirmRebalance(ctx, caller)
	case OpRevokeRebalance:
		return op.RevokeRebalance(ctx, caller)
	case OpExecuteRebalance:
		return op.ExecuteRebalance(ctx, caller)
	case OpSubmitOperator:
		return op.SubmitNewOperator(ctx, caller, identity(step.Candidate))
	case OpConfirmOperator:
		return op.ConfirmNewOperator(ctx, caller)
	case OpRevokeOperator:
		return op.RevokeNewOperator(ctx, caller)
	case OpExecuteOperator:
		return op.ExecuteNewOperator(ctx, caller)
	case OpSubmitMethodologist:
		return cust.SubmitNewMethodologist(ctx, caller, identity(step.Candidate))
	case OpConfirmMethodologist:
		return cust.ConfirmNewMethodologist(ctx, caller)
	case OpRevokeMethodologist:
		return cust.RevokeNewMethodologist(ctx, caller)
	case OpExecuteMethodologist:
		return cust.ExecuteNewMethodologist(ctx, caller)
	default:
		return fmt.Errorf("unknown operation %q", step.Do)
	}
}

// identity normalizes s, passing invalid handles through unchanged so the
// gate sees exactly what the scenario wrote.
func identity(s string) ir.Identity {
	id, err := ir.ParseIdentity(s)
	if err != nil {
		return ir.Identity(s)
	}
	return id
}

// collectEvents reads both journals back in global seq order.
func (h *Harness) collectEvents(ctx context.Context, result *Result) error {
	var events []ir.Event
	for _, gate := range []string{config.OperatorGate, config.CustodianGate} {
		evs, err := h.store.ReadEvents(ctx, gate)
		if err != nil {
			return fmt.Errorf("failed to read journal: %w", err)
		}
		events = append(events, evs...)
	}
	sort.SliceStable(events, func(i, j int) bool { return events[i].Seq < events[j].Seq })
	result.Events = events

	if emitted := len(h.recorder.Events()); emitted != len(events) {
		result.AddError(fmt.Sprintf("journal holds %d events, %d emitted", len(events), emitted))
	}
	return nil
}

// collectState flattens the final gate, manager and token state.
func (h *Harness) collectState(ctx context.Context, result *Result) error {
	op := h.gates.Operator.Snapshot()
	cust := h.gates.Custodian.Snapshot()

	balance, err := h.token.BalanceOf(ctx, cust.Custodian)
	if err != nil {
		return fmt.Errorf("failed to read custodial balance: %w", err)
	}

	s := result.State
	s["operator"] = op.Operator.String()
	s["methodologist"] = cust.Methodologist.String()
	s["custodial_balance"] = balance.String()
	s["manager.operator"] = h.manager.Operator().String()
	s["manager.methodologist"] = h.manager.Methodologist().String()
	s["rebalances_applied"] = strconv.Itoa(len(h.manager.Rebalances()))
	for _, v := range []engine.PendingView{op.Rebalance, op.Rotation, cust.Rotation} {
		d := string(v.Domain)
		s[d+".round"] = strconv.FormatInt(v.Round, 10)
		s[d+".count"] = strconv.Itoa(v.Count)
		s[d+".executed"] = strconv.FormatBool(v.Executed)
	}
	return nil
}

// checkRestore rebuilds both gates from the journal and compares their
// snapshots with the live gates.
func (h *Harness) checkRestore(ctx context.Context, scenario *Scenario, result *Result) {
	manager, token := newPortfolio(&scenario.Committee)
	fresh, err := scenario.Committee.Build(config.Wiring{
		Manager: manager,
		Token:   token,
		Logger:  h.logger,
	})
	if err != nil {
		result.AddError(fmt.Sprintf("restore: %v", err))
		return
	}

	if _, err := h.store.Journal(config.OperatorGate).Restore(ctx, fresh.Operator); err != nil {
		result.AddError(err.Error())
		return
	}
	if _, err := h.store.Journal(config.CustodianGate).Restore(ctx, fresh.Custodian); err != nil {
		result.AddError(err.Error())
		return
	}

	compareSnapshots(result, config.OperatorGate, h.gates.Operator.Snapshot(), fresh.Operator.Snapshot())
	compareSnapshots(result, config.CustodianGate, h.gates.Custodian.Snapshot(), fresh.Custodian.Snapshot())
}

func compareSnapshots(result *Result, gate string, live, restored any) {
	a, err := json.Marshal(live)
	if err != nil {
		result.AddError(fmt.Sprintf("restore %s: %v", gate, err))
		return
	}
	b, err := json.Marshal(restored)
	if err != nil {
		result.AddError(fmt.Sprintf("restore %s: %v", gate, err))
		return
	}
	if string(a) != string(b) {
		result.AddError(fmt.Sprintf("restore %s: restored state differs\n  live:     %s\n  restored: %s", gate, a, b))
	}
}
