package jobs

import (
	"context"
	"fmt"
	"log"
	"time"
)

// RunLogStore deletes stored pipeline runs.
type RunLogStore interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// RunLogPruner removes run logs older than the retention window
type RunLogPruner struct {
	store     RunLogStore
	retention time.Duration
	now       func() time.Time
}

func NewRunLogPruner(store RunLogStore, retention time.Duration) *RunLogPruner {
	return &RunLogPruner{
		store:     store,
		retention: retention,
		now:       time.Now,
	}
}

// PruneInterval picks how often to prune for a retention window.
func PruneInterval(retention time.Duration) time.Duration {
	interval := retention / 4
	if interval < time.Minute {
		return time.Minute
	}
	if interval > time.Hour {
		return time.Hour
	}
	return interval
}

// ProcessJobs implements the JobProcessor interface
func (p *RunLogPruner) ProcessJobs(ctx context.Context) error {
	if p.retention <= 0 {
		return nil
	}

	cutoff := p.now().Add(-p.retention)
	deleted, err := p.store.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("failed to prune run logs: %w", err)
	}

	if deleted > 0 {
		log.Printf("pruned %d run logs older than %s", deleted, cutoff.Format(time.RFC3339))
	}
	return nil
}
