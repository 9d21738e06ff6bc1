package portfolio

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/quorum/internal/ir"
)

func TestMemory_RecordsEffects(t *testing.T) {
	ctx := context.Background()
	m := NewMemory("op", "vault")

	params := ir.RebalanceParams{Weights: []*big.Int{big.NewInt(5)}, ExecutionBound: big.NewInt(1)}
	require.NoError(t, m.ApplyRebalance(ctx, params))
	params.Weights[0].SetInt64(99)

	require.NoError(t, m.SetOperator(ctx, "carol"))
	require.NoError(t, m.SetMethodologist(ctx, "dave"))

	got := m.Rebalances()
	require.Len(t, got, 1)
	assert.Equal(t, int64(5), got[0].Weights[0].Int64(), "stored params are isolated from the caller")
	assert.Equal(t, ir.Identity("carol"), m.Operator())
	assert.Equal(t, ir.Identity("dave"), m.Methodologist())
}

func TestMemory_FailNext(t *testing.T) {
	ctx := context.Background()
	m := NewMemory("op", "vault")
	boom := errors.New("boom")

	m.FailNext(boom)
	assert.ErrorIs(t, m.SetOperator(ctx, "carol"), boom)
	assert.Equal(t, ir.Identity("op"), m.Operator())

	require.NoError(t, m.SetOperator(ctx, "carol"), "failure is consumed by one call")
	assert.Equal(t, ir.Identity("carol"), m.Operator())
}

func TestBalances_Transfer(t *testing.T) {
	ctx := context.Background()
	b := NewBalances()
	b.Mint("vault", big.NewInt(1000))

	require.NoError(t, b.Transfer(ctx, "vault", "m", big.NewInt(400)))

	vault, err := b.BalanceOf(ctx, "vault")
	require.NoError(t, err)
	m, err := b.BalanceOf(ctx, "m")
	require.NoError(t, err)
	assert.Equal(t, "600", vault.String())
	assert.Equal(t, "400", m.String())

	err = b.Transfer(ctx, "vault", "m", big.NewInt(601))
	assert.ErrorIs(t, err, ErrInsufficientBalance)

	err = b.Transfer(ctx, "vault", "m", big.NewInt(-1))
	assert.ErrorContains(t, err, "negative amount")
}

func TestBalances_BalanceOfReturnsCopy(t *testing.T) {
	ctx := context.Background()
	b := NewBalances()
	b.Mint("vault", big.NewInt(10))

	v, err := b.BalanceOf(ctx, "vault")
	require.NoError(t, err)
	v.SetInt64(0)

	again, err := b.BalanceOf(ctx, "vault")
	require.NoError(t, err)
	assert.Equal(t, int64(10), again.Int64())
}

func TestBalances_FailNext(t *testing.T) {
	ctx := context.Background()
	b := NewBalances()
	b.Mint("vault", big.NewInt(10))
	boom := errors.New("paused")

	b.FailNext(boom)
	assert.ErrorIs(t, b.Transfer(ctx, "vault", "m", big.NewInt(10)), boom)

	v, err := b.BalanceOf(ctx, "vault")
	require.NoError(t, err)
	assert.Equal(t, int64(10), v.Int64())
}
