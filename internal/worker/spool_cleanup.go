package worker

import (
	"context"
	"log/slog"
	"time"
)

// SpoolPurger removes partial sync uploads older than a TTL.
type SpoolPurger interface {
	PurgeExpired(ttl time.Duration) (int, error)
}

// SpoolCleanupWorker periodically drops abandoned multi-page uploads.
type SpoolCleanupWorker struct {
	spool    SpoolPurger
	interval time.Duration
	ttl      time.Duration
}

// NewSpoolCleanupWorker creates a worker that purges requests older than ttl
// every interval.
func NewSpoolCleanupWorker(spool SpoolPurger, interval, ttl time.Duration) *SpoolCleanupWorker {
	return &SpoolCleanupWorker{
		spool:    spool,
		interval: interval,
		ttl:      ttl,
	}
}

// Run starts the worker loop. Blocks until ctx is cancelled.
// Does not run on start: nothing can have expired yet.
func (w *SpoolCleanupWorker) Run(ctx context.Context) {
	slog.Info("worker started",
		"component", "worker",
		"worker", "spool-cleanup",
		"interval", w.interval.String(),
		"ttl", w.ttl.String(),
	)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("worker stopped",
				"component", "worker",
				"worker", "spool-cleanup",
				"reason", "context_cancelled",
			)
			return
		case <-ticker.C:
			w.purge()
		}
	}
}

func (w *SpoolCleanupWorker) purge() {
	purged, err := w.spool.PurgeExpired(w.ttl)
	if err != nil {
		slog.Error("spool cleanup failed",
			"component", "worker",
			"action", "spool_cleanup_failed",
			"error", err,
		)
		return
	}

	if purged > 0 {
		slog.Info("expired partial requests removed",
			"component", "worker",
			"action", "spool_cleanup",
			"purged", purged,
		)
	}
}
