package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	notesync "github.com/hyperengineering/notesync/internal/sync"
	"github.com/hyperengineering/notesync/internal/validation"
)

// MaxPageBytes bounds a single PUT /sync/update body.
const MaxPageBytes = 64 << 20

// Paging headers of PUT /sync/update.
const (
	HeaderPageCount = "pageCount"
	HeaderPageIndex = "pageIndex"
	HeaderRequestID = "requestId"
)

// SyncChanged handles GET /api/v1/sync/changed
func (h *Handler) SyncChanged(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()

	instanceID := r.URL.Query().Get("instanceId")
	if instanceID == "" {
		WriteProblem(w, r, http.StatusBadRequest, "missing required query parameter: instanceId")
		return
	}

	var last int64
	if v := r.URL.Query().Get("lastEntityChangeId"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 0 {
			WriteProblem(w, r, http.StatusBadRequest, "invalid lastEntityChangeId parameter: must be a non-negative integer")
			return
		}
		last = n
	}

	resp, err := h.store.GetChanged(ctx, instanceID, last, h.pullBatchSize)
	if err != nil {
		slog.Error("sync changed query failed",
			"component", "api",
			"action", "sync_changed_failed",
			"instance_id", instanceID,
			"last_entity_change_id", last,
			"error", err,
		)
		MapStoreError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)

	slog.Info("sync changed served",
		"component", "api",
		"action", "sync_changed",
		"instance_id", instanceID,
		"last_entity_change_id", last,
		"entries_returned", len(resp.EntityChanges),
		"next_entity_change_id", resp.LastEntityChangeID,
		"outstanding_pull_count", resp.OutstandingPullCount,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

// paging is the parsed page envelope of an update request.
type paging struct {
	requestID string
	index     int
	count     int
}

func parsePaging(r *http.Request) (paging, error) {
	p := paging{requestID: r.Header.Get(HeaderRequestID), count: 1}

	if v := r.Header.Get(HeaderPageCount); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return p, fmt.Errorf("invalid %s header: must be a positive integer", HeaderPageCount)
		}
		p.count = n
	}
	if v := r.Header.Get(HeaderPageIndex); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return p, fmt.Errorf("invalid %s header: must be a non-negative integer", HeaderPageIndex)
		}
		p.index = n
	}
	return p, nil
}

// SyncUpdate handles PUT /api/v1/sync/update
func (h *Handler) SyncUpdate(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()

	// 1. Parse page envelope
	page, err := parsePaging(r)
	if err != nil {
		WriteProblem(w, r, http.StatusBadRequest, err.Error())
		return
	}

	// 2. Read this page
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxPageBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			WriteProblem(w, r, http.StatusRequestEntityTooLarge, fmt.Sprintf("page exceeds %d bytes", MaxPageBytes))
			return
		}
		WriteProblem(w, r, http.StatusBadRequest, "failed to read request body")
		return
	}

	// 3. Spool until the last page arrives
	payload, complete, err := h.spool.Append(page.requestID, page.index, page.count, body)
	if err != nil {
		slog.Warn("sync page rejected",
			"component", "api",
			"action", "sync_update_page_rejected",
			"request_id", page.requestID,
			"page_index", page.index,
			"page_count", page.count,
			"error", err,
		)
		MapSyncError(w, r, err)
		return
	}
	if !complete {
		w.WriteHeader(http.StatusAccepted)
		slog.Debug("sync page spooled",
			"component", "api",
			"action", "sync_update_page",
			"request_id", page.requestID,
			"page_index", page.index,
			"page_count", page.count,
		)
		return
	}

	// 4. Decode the assembled batch
	var req notesync.UpdateRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		WriteProblem(w, r, http.StatusBadRequest, fmt.Sprintf("Invalid JSON: %s", err))
		return
	}

	// 5. Validate; the batch is atomic so any error rejects all of it
	if errs := validation.ValidateUpdateRequest(req); len(errs) > 0 {
		WriteProblemWithErrors(w, r, "Request contains invalid entity changes", errs)
		return
	}

	// 6. Reconcile
	summary, err := h.engine.ReconcileBatch(ctx, req.Entities, req.InstanceID)
	if err != nil {
		MapSyncError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, summary)

	slog.Info("sync update applied",
		"component", "api",
		"action", "sync_update",
		"instance_id", req.InstanceID,
		"request_id", page.requestID,
		"page_count", page.count,
		"entries", len(req.Entities),
		"updated", summary.UpdatedCount(),
		"already_updated", summary.AlreadyUpdated,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

// SyncCheck handles GET /api/v1/sync/check
func (h *Handler) SyncCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	hashes, err := h.store.EntityHashes(ctx)
	if err != nil {
		slog.Error("entity hashes failed", "component", "api", "action", "sync_check_failed", "error", err)
		MapStoreError(w, r, err)
		return
	}
	maxID, err := h.store.MaxSyncedEntityChangeID(ctx)
	if err != nil {
		slog.Error("max entity change id failed", "component", "api", "action", "sync_check_failed", "error", err)
		MapStoreError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, notesync.CheckResponse{
		EntityHashes:      hashes,
		MaxEntityChangeID: maxID,
	})
}
