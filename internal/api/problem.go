package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hyperengineering/notesync/internal/reconcile"
	"github.com/hyperengineering/notesync/internal/spool"
	"github.com/hyperengineering/notesync/internal/store"
	"github.com/hyperengineering/notesync/internal/validation"
)

const problemBase = "https://notesync.dev/errors/"

// Problem is an RFC 7807 problem document. Failures of a single batch entry
// carry the entity's identity; rejected batches carry the field errors.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail"`
	Instance string `json:"instance,omitempty"`

	EntityName string                       `json:"entityName,omitempty"`
	EntityID   string                       `json:"entityId,omitempty"`
	Errors     []validation.ValidationError `json:"errors,omitempty"`
}

// problemSlugs names the type URI of each status the API produces.
var problemSlugs = map[int]string{
	http.StatusBadRequest:            "bad-request",
	http.StatusUnauthorized:          "unauthorized",
	http.StatusNotFound:              "not-found",
	http.StatusConflict:              "page-conflict",
	http.StatusRequestEntityTooLarge: "page-too-large",
	http.StatusUnprocessableEntity:   "invalid-batch",
	http.StatusInternalServerError:   "internal-error",
	http.StatusServiceUnavailable:    "unavailable",
}

func newProblem(r *http.Request, status int, detail string) Problem {
	slug, ok := problemSlugs[status]
	if !ok {
		slug = "unknown"
	}
	return Problem{
		Type:     problemBase + slug,
		Title:    http.StatusText(status),
		Status:   status,
		Detail:   detail,
		Instance: r.URL.Path,
	}
}

func (p Problem) write(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(p.Status)
	if err := json.NewEncoder(w).Encode(p); err != nil {
		slog.Error("failed to encode problem response", "component", "api", "error", err)
	}
}

// WriteProblem writes a problem document with the given status.
func WriteProblem(w http.ResponseWriter, r *http.Request, status int, detail string) {
	newProblem(r, status, detail).write(w)
}

// WriteProblemWithErrors rejects a batch with 422 and its field errors.
func WriteProblemWithErrors(w http.ResponseWriter, r *http.Request, detail string, errs []validation.ValidationError) {
	p := newProblem(r, http.StatusUnprocessableEntity, detail)
	p.Errors = errs
	p.write(w)
}

// MapStoreError converts store errors to problem documents. Unrecognized
// errors become a bare 500.
func MapStoreError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		WriteProblem(w, r, http.StatusNotFound, "Resource not found")
	case errors.Is(err, store.ErrSnapshotNotAvailable):
		WriteProblem(w, r, http.StatusServiceUnavailable, "Snapshot not yet generated")
	default:
		WriteProblem(w, r, http.StatusInternalServerError, "Internal Server Error")
	}
}

// syncStatus classifies errors the client caused while uploading a batch.
func syncStatus(err error) (int, bool) {
	var malformed *reconcile.MalformedEntryError
	switch {
	case errors.Is(err, spool.ErrUnknownRequest):
		return http.StatusNotFound, true
	case errors.Is(err, spool.ErrPageOutOfOrder):
		return http.StatusConflict, true
	case errors.Is(err, spool.ErrInvalidPage), errors.Is(err, spool.ErrMissingRequestID):
		return http.StatusBadRequest, true
	case errors.As(err, &malformed), errors.Is(err, store.ErrUnsupportedTable):
		return http.StatusUnprocessableEntity, true
	}
	return 0, false
}

// MapSyncError converts spool and reconciliation errors to problem
// documents, naming the offending entity when one is known. Anything else is
// handed to MapStoreError.
func MapSyncError(w http.ResponseWriter, r *http.Request, err error) {
	status, ok := syncStatus(err)
	if !ok {
		MapStoreError(w, r, err)
		return
	}

	p := newProblem(r, status, err.Error())
	if status == http.StatusNotFound {
		p.Detail = "Partial request not found; restart the upload from page 0"
	}

	var entry *reconcile.EntryError
	var malformed *reconcile.MalformedEntryError
	switch {
	case errors.As(err, &entry):
		p.EntityName, p.EntityID = entry.EntityName, entry.EntityID
	case errors.As(err, &malformed):
		p.EntityName, p.EntityID = malformed.EntityName, malformed.EntityID
	}
	p.write(w)
}
