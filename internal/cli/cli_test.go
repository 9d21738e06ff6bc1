package cli

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"github.com/neilotoole/slogt"
	"github.com/stretchr/testify/require"

	"github.com/roach88/quorum/internal/ir"
)

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	return executeContext(t, context.Background(), args...)
}

func executeContext(t *testing.T, ctx context.Context, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(buf)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	return buf.String(), err
}

// writeConfig writes a valid six-owner configuration into a temp dir and
// returns its path. The journal lives next to it.
func writeConfig(t *testing.T, extra string) string {
	t.Helper()
	dir := t.TempDir()
	body := fmt.Sprintf(`owners: [O1, O2, O3, O4, O5, O6]
operator: operator
custodian: custodian
methodologist: founder
rebalance_threshold: 3
operator_threshold: 5
methodologist_threshold: 5
custodial_balance: "1000"
database: %s
listen: 127.0.0.1:0
%s`, filepath.Join(dir, "quorum.db"), extra)
	path := filepath.Join(dir, "quorum.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

// populate loads the deployment at path, drives both gates through a
// rebalance, an operator rotation and a methodologist rotation, then
// closes the journal.
func populate(t *testing.T, path string) {
	t.Helper()
	ctx := context.Background()

	dep, err := LoadDeployment(ctx, path, "", slogt.New(t))
	require.NoError(t, err)
	defer dep.Close()

	op := dep.Gates.Operator
	cust := dep.Gates.Custodian
	owners := []ir.Identity{"O1", "O2", "O3", "O4", "O5"}

	require.NoError(t, op.SubmitRebalance(ctx, "operator", ir.RebalanceParams{
		Constituents:   []ir.Identity{"AAA"},
		Weights:        []*big.Int{big.NewInt(1)},
		ExecutionBound: big.NewInt(10),
	}))
	for _, o := range owners[:3] {
		require.NoError(t, op.ConfirmRebalance(ctx, o))
	}
	require.NoError(t, op.ExecuteRebalance(ctx, "O6"))

	require.NoError(t, op.SubmitNewOperator(ctx, "O1", "candidate"))
	for _, o := range owners {
		require.NoError(t, op.ConfirmNewOperator(ctx, o))
	}
	require.NoError(t, op.ExecuteNewOperator(ctx, "O6"))

	require.NoError(t, cust.SubmitNewMethodologist(ctx, "O1", "newmeth"))
	for _, o := range owners {
		require.NoError(t, cust.ConfirmNewMethodologist(ctx, o))
	}
	require.NoError(t, cust.ExecuteNewMethodologist(ctx, "O6"))

	// Left pending so restore has an open action to rebuild.
	require.NoError(t, op.SubmitRebalance(ctx, "candidate", ir.RebalanceParams{ExecutionBound: big.NewInt(3)}))
	require.NoError(t, op.ConfirmRebalance(ctx, "O2"))
}
