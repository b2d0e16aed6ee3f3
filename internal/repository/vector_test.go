//go:build integration

package repository

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloo-solutions/policyqa/internal/domain"
	"github.com/cloo-solutions/policyqa/internal/testutil"
)

func basis(dim, hot int) []float32 {
	v := make([]float32, dim)
	v[hot] = 1
	return v
}

func TestVectorRepository_UpsertAndQuery(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	repo := NewVectorRepository(pool, "hackathon-index", 768)
	require.NoError(t, repo.EnsureIndex(ctx))

	vectors := []domain.Vector{
		{ID: uuid.NewString(), Content: "Waiting period of 24 months.", Values: basis(768, 0)},
		{ID: uuid.NewString(), Content: "Grace period of 30 days.", Values: basis(768, 1)},
	}
	require.NoError(t, repo.Upsert(ctx, "", vectors))

	clauses, err := repo.Query(ctx, "", basis(768, 0), 5)
	require.NoError(t, err)
	require.Len(t, clauses, 2)
	assert.Equal(t, "Waiting period of 24 months.", clauses[0].Content)
	assert.InDelta(t, 1.0, clauses[0].Score, 0.0001)
	assert.InDelta(t, 0.0, clauses[1].Score, 0.0001)
}

func TestVectorRepository_RepeatedUpsertGrowsCount(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	repo := NewVectorRepository(pool, "hackathon-index", 768)

	for i := 0; i < 2; i++ {
		require.NoError(t, repo.Upsert(ctx, "", []domain.Vector{
			{ID: uuid.NewString(), Content: "same clause", Values: basis(768, 2)},
		}))
	}

	n, err := repo.Count(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	other, err := repo.Count(ctx, "doc-x")
	require.NoError(t, err)
	assert.Zero(t, other)
}

func TestVectorRepository_RejectsWrongDimensions(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	repo := NewVectorRepository(pool, "hackathon-index", 768)
	err := repo.Upsert(ctx, "", []domain.Vector{{ID: "bad", Values: []float32{1, 2, 3}}})

	assert.Error(t, err)
}
