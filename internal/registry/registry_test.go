package registry

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/quorum/internal/ir"
)

func owners(names ...string) []ir.Identity {
	out := make([]ir.Identity, len(names))
	for i, n := range names {
		out[i] = ir.Identity(n)
	}
	return out
}

func TestNew_Valid(t *testing.T) {
	r, err := New(owners("o1", "o2", "o3"))
	require.NoError(t, err)

	assert.Equal(t, 3, r.Len())
	assert.True(t, r.IsOwner("o2"))
	assert.False(t, r.IsOwner("mallory"))

	slot, ok := r.Slot("o3")
	assert.True(t, ok)
	assert.Equal(t, 2, slot)
	assert.Equal(t, ir.Identity("o3"), r.Owner(slot))
}

func TestNew_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		owners  []ir.Identity
		wantErr string
	}{
		{name: "nil", owners: nil, wantErr: "owners: owner set is empty"},
		{name: "empty", owners: []ir.Identity{}, wantErr: "owners: owner set is empty"},
		{name: "blank owner", owners: owners("o1", ""), wantErr: "owners[1]: owner identity is empty"},
		{name: "duplicate", owners: owners("o1", "o2", "o1"), wantErr: `owners[2]: duplicate owner "o1" (also owners[0])`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := New(tt.owners)
			assert.Nil(t, r)
			assert.EqualError(t, err, tt.wantErr)

			var ce *ConfigError
			assert.True(t, errors.As(err, &ce))
		})
	}
}

func TestCheckThreshold(t *testing.T) {
	r, err := New(owners("o1", "o2", "o3", "o4", "o5", "o6"))
	require.NoError(t, err)

	for threshold := 1; threshold <= 6; threshold++ {
		assert.NoError(t, r.CheckThreshold("rebalance_threshold", threshold))
	}
	assert.EqualError(t, r.CheckThreshold("rebalance_threshold", 0), "rebalance_threshold: threshold 0 outside [1, 6]")
	assert.EqualError(t, r.CheckThreshold("operator_threshold", 7), "operator_threshold: threshold 7 outside [1, 6]")
}

func TestOwners_ReturnsCopy(t *testing.T) {
	in := owners("o1", "o2")
	r, err := New(in)
	require.NoError(t, err)

	in[0] = "mallory"
	out := r.Owners()
	out[1] = "eve"

	assert.Equal(t, owners("o1", "o2"), r.Owners())
	assert.False(t, r.IsOwner("mallory"))
}
