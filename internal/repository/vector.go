package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/cloo-solutions/policyqa/internal/domain"
)

// VectorRepository is a pgvector-backed similarity index. Rows are scoped
// by index name and namespace so several logical indexes share one table.
type VectorRepository struct {
	db         dbtx
	pool       *pgxpool.Pool
	indexName  string
	dimensions int
}

func NewVectorRepository(pool *pgxpool.Pool, indexName string, dimensions int) *VectorRepository {
	return &VectorRepository{db: pool, pool: pool, indexName: indexName, dimensions: dimensions}
}

// EnsureIndex verifies the schema is in place; migrations create it.
func (r *VectorRepository) EnsureIndex(ctx context.Context) error {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT to_regclass('public.index_vectors') IS NOT NULL`).Scan(&exists)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("index_vectors table missing, run migrations")
	}
	return nil
}

// Upsert writes vectors in a single transaction, replacing rows with the same id.
func (r *VectorRepository) Upsert(ctx context.Context, namespace string, vectors []domain.Vector) error {
	for _, v := range vectors {
		if r.dimensions > 0 && len(v.Values) != r.dimensions {
			return fmt.Errorf("vector %s has %d dimensions, index expects %d", v.ID, len(v.Values), r.dimensions)
		}
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	batch := &pgx.Batch{}
	for _, v := range vectors {
		batch.Queue(
			`INSERT INTO index_vectors (id, index_name, namespace, content, embedding)
			 VALUES ($1, $2, $3, $4, $5)
			 ON CONFLICT (id) DO UPDATE
			 SET content = EXCLUDED.content, embedding = EXCLUDED.embedding, namespace = EXCLUDED.namespace`,
			v.ID,
			r.indexName,
			namespace,
			v.Content,
			pgvector.NewVector(v.Values),
		)
	}

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Query returns the k rows nearest by cosine distance, scored as 1 - distance.
func (r *VectorRepository) Query(ctx context.Context, namespace string, vector []float32, k int) ([]domain.Clause, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, content, 1 - (embedding <=> $1) AS score
		 FROM index_vectors
		 WHERE index_name = $2 AND namespace = $3
		 ORDER BY embedding <=> $1
		 LIMIT $4`,
		pgvector.NewVector(vector),
		r.indexName,
		namespace,
		k,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var clauses []domain.Clause
	for rows.Next() {
		var c domain.Clause
		var score float64
		if err := rows.Scan(&c.ID, &c.Content, &score); err != nil {
			return nil, err
		}
		c.Score = float32(score)
		clauses = append(clauses, c)
	}
	return clauses, rows.Err()
}

func (r *VectorRepository) Count(ctx context.Context, namespace string) (int, error) {
	var n int
	err := r.db.QueryRow(ctx,
		`SELECT count(*) FROM index_vectors WHERE index_name = $1 AND namespace = $2`,
		r.indexName,
		namespace,
	).Scan(&n)
	return n, err
}
