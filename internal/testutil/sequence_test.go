package testutil

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/deferring/internal/relation"
)

func TestSequence_StartsAtNoID(t *testing.T) {
	var seq Sequence
	assert.Equal(t, relation.NoID, seq.Current())
}

func TestSequence_NextIncrementsMonotonically(t *testing.T) {
	var seq Sequence

	assert.Equal(t, relation.ID(1), seq.Next())
	assert.Equal(t, relation.ID(2), seq.Next())
	assert.Equal(t, relation.ID(3), seq.Next())
	assert.Equal(t, relation.ID(3), seq.Current())
}

func TestSequence_Reset(t *testing.T) {
	var seq Sequence
	seq.Next()
	seq.Next()

	seq.Reset()
	assert.Equal(t, relation.NoID, seq.Current())
	assert.Equal(t, relation.ID(1), seq.Next())
}

func TestSequence_ThreadSafe(t *testing.T) {
	var seq Sequence
	const workers = 50
	const perWorker = 100

	var wg sync.WaitGroup
	results := make([][]relation.ID, workers)
	for i := 0; i < workers; i++ {
		results[i] = make([]relation.ID, perWorker)
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				results[idx][j] = seq.Next()
			}
		}(i)
	}
	wg.Wait()

	seen := make(map[relation.ID]bool)
	for _, ids := range results {
		for _, id := range ids {
			require.False(t, seen[id], "duplicate id %d", id)
			seen[id] = true
		}
	}
	assert.Len(t, seen, workers*perWorker)
}
