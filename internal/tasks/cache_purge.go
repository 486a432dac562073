package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Purger deletes expired cache entries
type Purger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// CachePurgeTask keeps the SQLite cache table from growing without bound
type CachePurgeTask struct {
	purger   Purger
	interval time.Duration
}

// NewCachePurgeTask creates the task. interval <= 0 means every 6h.
func NewCachePurgeTask(purger Purger, interval time.Duration) *CachePurgeTask {
	if interval <= 0 {
		interval = 6 * time.Hour
	}
	return &CachePurgeTask{purger: purger, interval: interval}
}

// Name identifies the task in scheduler logs
func (t *CachePurgeTask) Name() string { return "cache_purge" }
// Interval is the time between purges
func (t *CachePurgeTask) Interval() time.Duration { return t.interval }

// Run deletes expired entries once
func (t *CachePurgeTask) Run(ctx context.Context) error {
	n, err := t.purger.PurgeExpired(ctx)
	if err != nil {
		return fmt.Errorf("failed to purge cache: %w", err)
	}
	if n > 0 {
		slog.Info("Purged expired cache entries", "count", n)
	}
	return nil
}
