package engine

import (
	"math/big"
	"testing"

	"github.com/neilotoole/slogt"
	"github.com/stretchr/testify/require"

	"github.com/roach88/quorum/internal/ir"
	"github.com/roach88/quorum/internal/portfolio"
	"github.com/roach88/quorum/internal/testutil"
)

type operatorFixture struct {
	gate    *Operator
	manager *portfolio.Memory
	events  *testutil.Recorder
	owners  []ir.Identity
}

// newOperatorFixture builds an Operator gate over n owners "O1".."On" with
// operator testutil.OperatorID.
func newOperatorFixture(t *testing.T, n, rebalanceThreshold, rotationThreshold int, opts ...Option) *operatorFixture {
	t.Helper()
	f := &operatorFixture{
		manager: portfolio.NewMemory(testutil.OperatorID, testutil.MethodologistID),
		events:  &testutil.Recorder{},
		owners:  testutil.Owners(n),
	}
	base := []Option{
		WithLogger(slogt.New(t)),
		WithSink(f.events),
		WithIDGenerator(testutil.NewSequentialIDs("op")),
	}
	gate, err := NewOperator(OperatorConfig{
		Owners:             f.owners,
		RebalanceThreshold: rebalanceThreshold,
		RotationThreshold:  rotationThreshold,
		Operator:           testutil.OperatorID,
		Manager:            f.manager,
	}, append(base, opts...)...)
	require.NoError(t, err)
	f.gate = gate
	return f
}

type custodianFixture struct {
	gate     *Custodian
	manager  *portfolio.Memory
	balances *portfolio.Balances
	events   *testutil.Recorder
	owners   []ir.Identity
}

func newCustodianFixture(t *testing.T, n, threshold int, opts ...Option) *custodianFixture {
	t.Helper()
	f := &custodianFixture{
		manager:  portfolio.NewMemory(testutil.OperatorID, testutil.CustodianID),
		balances: portfolio.NewBalances(),
		events:   &testutil.Recorder{},
		owners:   testutil.Owners(n),
	}
	base := []Option{
		WithLogger(slogt.New(t)),
		WithSink(f.events),
		WithIDGenerator(testutil.NewSequentialIDs("meth")),
	}
	gate, err := NewCustodian(CustodianConfig{
		Owners:    f.owners,
		Threshold: threshold,
		Self:      testutil.CustodianID,
		Manager:   f.manager,
		Token:     f.balances,
	}, append(base, opts...)...)
	require.NoError(t, err)
	f.gate = gate
	return f
}

func sampleRebalance() ir.RebalanceParams {
	return ir.RebalanceParams{
		Constituents:   []ir.Identity{"AAA", "BBB"},
		Removed:        []ir.Identity{"ZZZ"},
		Weights:        []*big.Int{big.NewInt(100), big.NewInt(200)},
		ExecutionBound: big.NewInt(1000),
	}
}
