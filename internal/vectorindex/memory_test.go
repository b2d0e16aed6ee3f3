package vectorindex

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloo-solutions/policyqa/internal/domain"
)

func TestMemory_QueryOrdersByCosine(t *testing.T) {
	idx := NewMemory(2)
	ctx := context.Background()

	require.NoError(t, idx.Upsert(ctx, "", []domain.Vector{
		{ID: "1", Content: "A", Values: []float32{1, 0}},
		{ID: "2", Content: "B", Values: []float32{0, 1}},
		{ID: "3", Content: "C", Values: []float32{1, 1}},
	}))

	clauses, err := idx.Query(ctx, "", []float32{0.9, 0.1}, 2)

	require.NoError(t, err)
	require.Len(t, clauses, 2)
	assert.Equal(t, "A", clauses[0].Content)
	assert.Equal(t, "C", clauses[1].Content)
	assert.InDelta(t, 0.9939, clauses[0].Score, 0.001)
}

func TestMemory_NamespacesAreIsolated(t *testing.T) {
	idx := NewMemory(2)
	ctx := context.Background()

	require.NoError(t, idx.Upsert(ctx, "a", []domain.Vector{{ID: "1", Content: "A", Values: []float32{1, 0}}}))
	require.NoError(t, idx.Upsert(ctx, "b", []domain.Vector{{ID: "2", Content: "B", Values: []float32{1, 0}}}))

	clauses, err := idx.Query(ctx, "a", []float32{1, 0}, 5)
	require.NoError(t, err)
	require.Len(t, clauses, 1)
	assert.Equal(t, "A", clauses[0].Content)

	n, err := idx.Count(ctx, "missing")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestMemory_UpsertReplacesSameID(t *testing.T) {
	idx := NewMemory(2)
	ctx := context.Background()

	require.NoError(t, idx.Upsert(ctx, "", []domain.Vector{{ID: "1", Content: "old", Values: []float32{1, 0}}}))
	require.NoError(t, idx.Upsert(ctx, "", []domain.Vector{{ID: "1", Content: "new", Values: []float32{1, 0}}}))

	n, err := idx.Count(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	clauses, err := idx.Query(ctx, "", []float32{1, 0}, 1)
	require.NoError(t, err)
	assert.Equal(t, "new", clauses[0].Content)
}

func TestMemory_RejectsWrongDimensions(t *testing.T) {
	idx := NewMemory(3)

	err := idx.Upsert(context.Background(), "", []domain.Vector{{ID: "1", Values: []float32{1, 0}}})

	assert.Error(t, err)
}
