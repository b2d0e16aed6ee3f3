package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cloo-solutions/policyqa/internal/service"
)

// RunLogRepository stores pipeline runs for later review.
type RunLogRepository struct {
	db dbtx
}

func NewRunLogRepository(pool *pgxpool.Pool) *RunLogRepository {
	return &RunLogRepository{db: pool}
}

func (r *RunLogRepository) CreateRunLog(ctx context.Context, entry service.RunLogEntry) (string, error) {
	questionsJSON, _ := json.Marshal(entry.Questions)
	answersJSON, _ := json.Marshal(entry.Answers)

	var id string
	err := r.db.QueryRow(ctx,
		`INSERT INTO run_logs (document_url, namespace, questions, answers, question_count, chunk_count, duration_ms)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id`,
		entry.DocumentURL,
		nullableString(entry.Namespace),
		questionsJSON,
		answersJSON,
		len(entry.Questions),
		entry.ChunkCount,
		entry.DurationMs,
	).Scan(&id)
	if err != nil {
		return "", err
	}
	return id, nil
}

// DeleteOlderThan removes runs created before cutoff and reports how many were deleted.
func (r *RunLogRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM run_logs WHERE created_at < $1`, cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
