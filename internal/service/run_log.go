package service

import (
	"context"
	"time"
)

// RunLogEntry captures one pipeline run and its answers.
type RunLogEntry struct {
	DocumentURL string
	Namespace   string
	Questions   []string
	Answers     []string
	ChunkCount  int
	DurationMs  int
}

// RunLogRepository persists pipeline runs.
type RunLogRepository interface {
	CreateRunLog(ctx context.Context, entry RunLogEntry) (string, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
