package worker

import (
	"context"
	"log/slog"
	"time"
)

// SnapshotStore defines the store operations needed by the snapshot worker.
type SnapshotStore interface {
	InstanceID() string
	GenerateSnapshot(ctx context.Context) error
	GetSnapshotPath(ctx context.Context) (string, error)
}

// SnapshotUploader publishes a generated snapshot file.
type SnapshotUploader interface {
	Upload(ctx context.Context, instanceID string, filePath string) error
}

// SnapshotGenerationWorker generates periodic replica snapshots and uploads
// each one after it is written.
type SnapshotGenerationWorker struct {
	store    SnapshotStore
	uploader SnapshotUploader
	interval time.Duration
}

// NewSnapshotGenerationWorker creates a worker with the given store, uploader
// and interval. A nil uploader skips the upload step.
func NewSnapshotGenerationWorker(store SnapshotStore, uploader SnapshotUploader, interval time.Duration) *SnapshotGenerationWorker {
	return &SnapshotGenerationWorker{
		store:    store,
		uploader: uploader,
		interval: interval,
	}
}

// Run starts the worker loop. Generates a snapshot immediately on start,
// then on each interval. Respects context cancellation for graceful shutdown.
func (w *SnapshotGenerationWorker) Run(ctx context.Context) {
	slog.Info("worker started",
		"component", "worker",
		"worker", "snapshot-generation",
		"interval", w.interval.String(),
	)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.generateSnapshot(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("worker stopped",
				"component", "worker",
				"worker", "snapshot-generation",
				"reason", "context_cancelled",
			)
			return
		case <-ticker.C:
			w.generateSnapshot(ctx)
		}
	}
}

func (w *SnapshotGenerationWorker) generateSnapshot(ctx context.Context) {
	start := time.Now()
	slog.Info("snapshot generation started",
		"component", "worker",
		"action", "snapshot_start",
	)

	if err := w.store.GenerateSnapshot(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		slog.Warn("snapshot generation failed",
			"component", "worker",
			"action", "snapshot_failed",
			"error", err,
		)
		return
	}

	if w.uploader == nil {
		return
	}

	path, err := w.store.GetSnapshotPath(ctx)
	if err != nil {
		slog.Warn("snapshot path unavailable",
			"component", "worker",
			"action", "snapshot_upload_failed",
			"error", err,
		)
		return
	}

	instanceID := w.store.InstanceID()
	if err := w.uploader.Upload(ctx, instanceID, path); err != nil {
		if ctx.Err() != nil {
			return
		}
		slog.Warn("snapshot upload failed",
			"component", "worker",
			"action", "snapshot_upload_failed",
			"instance_id", instanceID,
			"error", err,
		)
		return
	}

	slog.Info("snapshot published",
		"component", "worker",
		"action", "snapshot_complete",
		"instance_id", instanceID,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}
