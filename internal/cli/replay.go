package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/big"

	"github.com/spf13/cobra"

	"github.com/roach88/quorum/internal/config"
	"github.com/roach88/quorum/internal/engine"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Config   string
	Database string
}

// ReplayResult holds the restored state.
type ReplayResult struct {
	Operator      engine.OperatorState  `json:"operator"`
	Custodian     engine.CustodianState `json:"custodian"`
	Balance       *big.Int              `json:"custodial_balance"`
	Events        map[string]int        `json:"events"`
	Deterministic bool                  `json:"deterministic"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Restore gates from the journal and verify determinism",
		Long: `Restore both gates from the event journal without calling the portfolio
manager, print the restored state and verify that a second restore
produces identical state.

Exit codes:
  0 - Journal restored deterministically
  1 - Restore failed or two restores differ
  2 - Command error (config or database not found, etc.)

Examples:
  quorum replay --config quorum.yaml
  quorum replay --config quorum.yaml --db ./quorum.db --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Config, "config", "c", "", "path to configuration file (required)")
	_ = cmd.MarkFlagRequired("config")
	cmd.Flags().StringVar(&opts.Database, "db", "", "override the journal database path")

	return cmd
}

func runReplay(opts *ReplayOptions, cmd *cobra.Command) error {
	ctx := context.Background()
	var logOut io.Writer = io.Discard
	if opts.Verbose {
		logOut = cmd.ErrOrStderr()
	}
	logger := newLogger(opts.RootOptions, logOut, slog.LevelInfo)

	first, err := LoadDeployment(ctx, opts.Config, opts.Database, logger)
	if err != nil {
		return err
	}
	defer first.Close()

	// The second restore shares the store but must not journal: it only
	// reads.
	second, err := buildDeployment(ctx, first.Config, first.Store, logger, false)
	if err != nil {
		return err
	}

	a, err := snapshot(ctx, first)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to snapshot", err)
	}
	b, err := snapshot(ctx, second)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to snapshot", err)
	}

	ja, err := json.Marshal(a)
	if err != nil {
		return err
	}
	jb, err := json.Marshal(b)
	if err != nil {
		return err
	}
	a.Deterministic = string(ja) == string(jb)

	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout())
	if !a.Deterministic {
		msg := "two restores of the journal differ"
		if err := formatter.Error(CodeRestoreMismatch, msg, map[string]json.RawMessage{"first": ja, "second": jb}, nil); err != nil {
			return err
		}
		return NewExitError(ExitFailure, msg)
	}
	return formatter.Success(a, renderReplay(a))
}

func snapshot(ctx context.Context, d *Deployment) (ReplayResult, error) {
	balance, err := d.Gates.Custodian.Balance(ctx)
	if err != nil {
		return ReplayResult{}, err
	}
	return ReplayResult{
		Operator:  d.Gates.Operator.Snapshot(),
		Custodian: d.Gates.Custodian.Snapshot(),
		Balance:   balance,
		Events:    d.Restored,
	}, nil
}

func renderReplay(r ReplayResult) string {
	line := func(v engine.PendingView) string {
		if !v.Pending {
			return fmt.Sprintf("  %-13s none", v.Domain)
		}
		return fmt.Sprintf("  %-13s round=%d confirmations=%d/%d executed=%t",
			v.Domain, v.Round, v.Count, v.Threshold, v.Executed)
	}
	return fmt.Sprintf(`✓ journal restored deterministically (%d operator, %d methodologist events)
operator:          %s
methodologist:     %s
custodial balance: %s
pending:
%s
%s
%s`,
		r.Events[config.OperatorGate], r.Events[config.CustodianGate],
		r.Operator.Operator, r.Custodian.Methodologist, r.Balance,
		line(r.Operator.Rebalance), line(r.Operator.Rotation), line(r.Custodian.Rotation))
}
