package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/hyperengineering/notesync/internal/snapshot"
	"github.com/hyperengineering/notesync/internal/store"
	notesync "github.com/hyperengineering/notesync/internal/sync"
)

// DefaultPullBatchSize caps the records returned by one pull.
const DefaultPullBatchSize = 1000

// Reconciler applies a pushed batch to the local replica.
type Reconciler interface {
	ReconcileBatch(ctx context.Context, records []notesync.EntityChangeRecord, instanceID string) (*notesync.Summary, error)
}

// Spooler assembles multi-page uploads.
type Spooler interface {
	Append(requestID string, pageIndex, pageCount int, body []byte) (payload []byte, complete bool, err error)
}

// Handler implements the API handlers
type Handler struct {
	store         store.Store
	engine        Reconciler
	spool         Spooler
	progress      *ProgressTracker
	uploader      snapshot.Uploader
	apiKey        string
	version       string
	pullBatchSize int
}

// HandlerOption configures optional Handler dependencies.
type HandlerOption func(*Handler)

// WithProgressTracker reports pull progress through health.
func WithProgressTracker(p *ProgressTracker) HandlerOption {
	return func(h *Handler) { h.progress = p }
}

// WithUploader serves snapshot downloads through pre-signed URLs.
func WithUploader(u snapshot.Uploader) HandlerOption {
	return func(h *Handler) { h.uploader = u }
}

// WithPullBatchSize overrides DefaultPullBatchSize.
func WithPullBatchSize(n int) HandlerOption {
	return func(h *Handler) {
		if n > 0 {
			h.pullBatchSize = n
		}
	}
}

// NewHandler creates a Handler serving s, applying pushes through engine and
// buffering paged uploads in sp.
func NewHandler(s store.Store, engine Reconciler, sp Spooler, apiKey, version string, opts ...HandlerOption) *Handler {
	h := &Handler{
		store:         s,
		engine:        engine,
		spool:         sp,
		progress:      NewProgressTracker(),
		uploader:      snapshot.NoopUploader{},
		apiKey:        apiKey,
		version:       version,
		pullBatchSize: DefaultPullBatchSize,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// HealthResponse is the body of GET /api/v1/health.
type HealthResponse struct {
	Status            string `json:"status"`
	Version           string `json:"version"`
	InstanceID        string `json:"instanceId"`
	EntityChanges     int64  `json:"entityChanges"`
	MaxEntityChangeID int64  `json:"maxEntityChangeId"`
	LastSyncPull      string `json:"lastSyncPull,omitempty"`
	SyncPulls         int64  `json:"syncPulls"`
}

// Health returns the health status
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.GetStats(r.Context())
	if err != nil {
		slog.Error("health stats failed", "component", "api", "action", "health", "error", err)
		WriteProblem(w, r, http.StatusServiceUnavailable, "Store unavailable")
		return
	}

	resp := HealthResponse{
		Status:            "healthy",
		Version:           h.version,
		InstanceID:        stats.InstanceID,
		EntityChanges:     stats.EntityChanges,
		MaxEntityChangeID: stats.MaxEntityChangeID,
	}
	if last, pulls, ok := h.progress.LastPull(); ok {
		resp.LastSyncPull = notesync.FormatUTC(last)
		resp.SyncPulls = pulls
	}

	writeJSON(w, http.StatusOK, resp)
}

// Stats handles GET /api/v1/sync/stats
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.GetStats(r.Context())
	if err != nil {
		MapStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// Snapshot handles GET /api/v1/snapshot. It redirects to a pre-signed URL
// when snapshot storage is configured and serves the local file otherwise.
func (h *Handler) Snapshot(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	instanceID := h.store.InstanceID()

	url, expiry, err := h.uploader.PresignedURL(ctx, instanceID)
	switch {
	case err == nil:
		slog.Info("snapshot redirect",
			"component", "api",
			"action", "snapshot_redirect",
			"instance_id", instanceID,
			"expires_at", expiry.Format(time.RFC3339),
		)
		http.Redirect(w, r, url, http.StatusTemporaryRedirect)
		return
	case !errors.Is(err, snapshot.ErrNotConfigured):
		slog.Error("snapshot presign failed",
			"component", "api",
			"action", "snapshot_failed",
			"instance_id", instanceID,
			"error", err,
		)
		WriteProblem(w, r, http.StatusServiceUnavailable, "Snapshot storage unavailable")
		return
	}

	path, err := h.store.GetSnapshotPath(ctx)
	if err != nil {
		MapStoreError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.sqlite3")
	w.Header().Set("Content-Disposition", `attachment; filename="`+instanceID+`.db"`)
	http.ServeFile(w, r, path)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "component", "api", "error", err)
	}
}
