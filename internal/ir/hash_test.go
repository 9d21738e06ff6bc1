package ir

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRebalanceDigest_Deterministic(t *testing.T) {
	d1, err := RebalanceDigest(1, sampleParams())
	require.NoError(t, err)
	d2, err := RebalanceDigest(1, sampleParams().Clone())
	require.NoError(t, err)

	assert.Equal(t, d1, d2)
	assert.Len(t, d1, 64, "SHA-256 hex is 64 characters")
}

func TestRebalanceDigest_ChangesWithInput(t *testing.T) {
	base, err := RebalanceDigest(1, sampleParams())
	require.NoError(t, err)

	nextRound, err := RebalanceDigest(2, sampleParams())
	require.NoError(t, err)
	assert.NotEqual(t, base, nextRound, "round is part of the digest")

	p := sampleParams()
	p.Weights[0] = big.NewInt(11)
	changed, err := RebalanceDigest(1, p)
	require.NoError(t, err)
	assert.NotEqual(t, base, changed)
}

func TestCandidateDigest_SeparatesDomains(t *testing.T) {
	op, err := CandidateDigest(DomainOperator, 1, "carol")
	require.NoError(t, err)
	meth, err := CandidateDigest(DomainMethodologist, 1, "carol")
	require.NoError(t, err)

	assert.NotEqual(t, op, meth)
}
