package testutil

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/quorum/internal/ir"
)

func TestSequentialIDs(t *testing.T) {
	g := NewSequentialIDs("")
	assert.Equal(t, "ev-0001", g.Generate())
	assert.Equal(t, "ev-0002", g.Generate())

	g = NewSequentialIDs("op")
	assert.Equal(t, "op-0001", g.Generate())
}

func TestSequentialIDs_ThreadSafe(t *testing.T) {
	g := NewSequentialIDs("x")
	const n = 50

	var wg sync.WaitGroup
	ids := make(chan string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ids <- g.Generate()
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[string]bool)
	for id := range ids {
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
	assert.Len(t, seen, n)
}

func TestRecorder(t *testing.T) {
	ctx := context.Background()
	r := &Recorder{}

	_, ok := r.Last()
	assert.False(t, ok)

	require.NoError(t, r.Record(ctx, ir.Event{Seq: 1, Domain: ir.DomainRebalance, Kind: ir.KindSubmit}))
	require.NoError(t, r.Record(ctx, ir.Event{Seq: 2, Domain: ir.DomainRebalance, Kind: ir.KindConfirm}))
	assert.Equal(t, []string{"SubmitRebalance", "ConfirmRebalance"}, r.Names())

	last, ok := r.Last()
	require.True(t, ok)
	assert.Equal(t, int64(2), last.Seq)

	boom := errors.New("boom")
	r.Fail(boom)
	assert.ErrorIs(t, r.Record(ctx, ir.Event{Seq: 3}), boom)
	assert.Len(t, r.Events(), 2)
}

func TestOwners(t *testing.T) {
	assert.Equal(t, []ir.Identity{"O1", "O2", "O3"}, Owners(3))
	assert.Empty(t, Owners(0))
}
