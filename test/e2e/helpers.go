package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/hyperengineering/notesync/internal/api"
	"github.com/hyperengineering/notesync/internal/reconcile"
	"github.com/hyperengineering/notesync/internal/spool"
	"github.com/hyperengineering/notesync/internal/store"
	notesync "github.com/hyperengineering/notesync/internal/sync"
)

const testAPIKey = "e2e-test-api-key"

// --- Hub Server ---

// hub is an in-process sync server backed by the real store, spool and
// engine.
type hub struct {
	store *store.SQLiteStore
	srv   *httptest.Server
}

func startHub(t *testing.T, instanceID string, opts ...api.HandlerOption) *hub {
	t.Helper()
	dir := t.TempDir()

	s, err := store.NewSQLiteStore(filepath.Join(dir, "hub.db"), instanceID)
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })

	sp, err := spool.Open(filepath.Join(dir, "partial.db"))
	if err != nil {
		t.Fatalf("spool.Open() error = %v", err)
	}
	t.Cleanup(func() { sp.Close() })

	engine := reconcile.New(reconcile.StoreTransactor(s))
	handler := api.NewHandler(s, engine, sp, testAPIKey, "e2e", opts...)
	srv := httptest.NewServer(api.NewRouter(handler))
	t.Cleanup(srv.Close)

	return &hub{store: s, srv: srv}
}

// --- Client Replica ---

// replica is a client with its own database that syncs against a server
// through the HTTP API.
type replica struct {
	id      string
	store   *store.SQLiteStore
	engine  *reconcile.Engine
	baseURL string
	apiKey  string

	// serverID attributes pulled changes to the server.
	serverID string
	// pushPages is the number of pages each push body is split into.
	pushPages int

	lastPulled int64
	lastPushed int64
}

func newReplica(t *testing.T, id, baseURL, apiKey, serverID string) *replica {
	t.Helper()

	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), id+".db"), id)
	if err != nil {
		t.Fatalf("NewSQLiteStore(%s) error = %v", id, err)
	}
	t.Cleanup(func() { s.Close() })

	return &replica{
		id:        id,
		store:     s,
		engine:    reconcile.New(reconcile.StoreTransactor(s)),
		baseURL:   baseURL,
		apiKey:    apiKey,
		serverID:  serverID,
		pushPages: 1,
	}
}

// editNote writes a note and its change as a local edit stamped at changed.
func (r *replica) editNote(t *testing.T, noteID, title, changed string) {
	t.Helper()
	ctx := context.Background()
	row := &notesync.NoteRow{
		NoteID: noteID, Title: title, Type: "text", Mime: "text/html",
		DateCreated: changed, DateModified: changed, UTCDateCreated: changed, UTCDateModified: changed,
	}
	err := r.store.InTx(ctx, func(tx *store.Tx) error {
		if err := tx.ReplaceRow(ctx, row); err != nil {
			return err
		}
		_, err := tx.PutEntityChange(ctx, notesync.EntityChange{
			EntityName:     "notes",
			EntityID:       noteID,
			Hash:           "h-" + title,
			IsSynced:       true,
			UTCDateChanged: changed,
		})
		return err
	})
	if err != nil {
		t.Fatalf("%s: edit note %s: %v", r.id, noteID, err)
	}
}

// eraseNote erases a note locally.
func (r *replica) eraseNote(t *testing.T, noteID, changed string) {
	t.Helper()
	ctx := context.Background()
	err := r.store.InTx(ctx, func(tx *store.Tx) error {
		if err := tx.DeleteRow(ctx, notesync.KindNotes, noteID); err != nil {
			return err
		}
		_, err := tx.PutEntityChange(ctx, notesync.EntityChange{
			EntityName:     "notes",
			EntityID:       noteID,
			Hash:           "erased",
			IsErased:       true,
			IsSynced:       true,
			UTCDateChanged: changed,
		})
		return err
	})
	if err != nil {
		t.Fatalf("%s: erase note %s: %v", r.id, noteID, err)
	}
}

// noteTitle returns the local title of noteID and whether the row exists.
func (r *replica) noteTitle(t *testing.T, noteID string) (string, bool) {
	t.Helper()
	row, err := r.store.GetEntityRow(context.Background(), notesync.KindNotes, noteID)
	if errors.Is(err, store.ErrNotFound) {
		return "", false
	}
	if err != nil {
		t.Fatalf("%s: get note %s: %v", r.id, noteID, err)
	}
	return row.(*notesync.NoteRow).Title, true
}

// sync pushes local changes and then pulls until the server has nothing
// outstanding, like one client sync cycle.
func (r *replica) sync(t *testing.T) {
	t.Helper()
	r.push(t)
	r.pull(t)
}

func (r *replica) push(t *testing.T) {
	t.Helper()
	ctx := context.Background()

	for {
		changes, err := r.store.GetEntityChangesAfter(ctx, r.lastPushed, 100)
		if err != nil {
			t.Fatalf("%s: list changes: %v", r.id, err)
		}
		if len(changes) == 0 {
			return
		}
		r.lastPushed = changes[len(changes)-1].ID

		// Changes pulled from the server are not sent back.
		var outgoing []notesync.EntityChange
		for _, ec := range changes {
			if ec.InstanceID != r.serverID {
				outgoing = append(outgoing, ec)
			}
		}
		if len(outgoing) == 0 {
			continue
		}

		records, err := r.store.GetEntityChangeRecords(ctx, outgoing)
		if err != nil {
			t.Fatalf("%s: load records: %v", r.id, err)
		}
		body, err := json.Marshal(notesync.UpdateRequest{InstanceID: r.id, Entities: records})
		if err != nil {
			t.Fatalf("%s: marshal push: %v", r.id, err)
		}
		r.putPaged(t, body)
	}
}

// putPaged sends body split into r.pushPages pages under one request id.
func (r *replica) putPaged(t *testing.T, body []byte) {
	t.Helper()
	pages := r.pushPages
	if pages > len(body) {
		pages = len(body)
	}
	size := (len(body) + pages - 1) / pages
	requestID := notesync.NewChangeID()

	for i := 0; i < pages; i++ {
		end := min((i+1)*size, len(body))
		req, err := http.NewRequest(http.MethodPut, r.baseURL+"/api/v1/sync/update", bytes.NewReader(body[i*size:end]))
		if err != nil {
			t.Fatal(err)
		}
		req.Header.Set("Authorization", "Bearer "+r.apiKey)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(api.HeaderRequestID, requestID)
		req.Header.Set(api.HeaderPageCount, strconv.Itoa(pages))
		req.Header.Set(api.HeaderPageIndex, strconv.Itoa(i))

		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("%s: push page %d: %v", r.id, i, err)
		}
		data, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		want := http.StatusAccepted
		if i == pages-1 {
			want = http.StatusOK
		}
		if resp.StatusCode != want {
			t.Fatalf("%s: push page %d: status %d, want %d: %s", r.id, i, resp.StatusCode, want, data)
		}
	}
}

func (r *replica) pull(t *testing.T) {
	t.Helper()
	ctx := context.Background()

	for {
		var resp notesync.ChangedResponse
		getJSON(t, r.apiKey, fmt.Sprintf("%s/api/v1/sync/changed?instanceId=%s&lastEntityChangeId=%d",
			r.baseURL, r.id, r.lastPulled), &resp)

		if len(resp.EntityChanges) > 0 {
			if _, err := r.engine.ReconcileBatch(ctx, resp.EntityChanges, r.serverID); err != nil {
				t.Fatalf("%s: apply pulled changes: %v", r.id, err)
			}
		}
		r.lastPulled = resp.LastEntityChangeID
		if resp.OutstandingPullCount == 0 {
			return
		}
	}
}

// hashes returns the local per-sector hashes.
func (r *replica) hashes(t *testing.T) map[string]map[string]string {
	t.Helper()
	h, err := r.store.EntityHashes(context.Background())
	if err != nil {
		t.Fatalf("%s: entity hashes: %v", r.id, err)
	}
	return h
}

// --- HTTP Helpers ---

func getJSON(t *testing.T, apiKey, url string, v any) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET %s: status %d: %s", url, resp.StatusCode, data)
	}
	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("GET %s: decode: %v", url, err)
	}
}

// serverHashes fetches the sector hashes of the server at baseURL.
func serverHashes(t *testing.T, baseURL, apiKey string) notesync.CheckResponse {
	t.Helper()
	var resp notesync.CheckResponse
	getJSON(t, apiKey, baseURL+"/api/v1/sync/check", &resp)
	return resp
}

// --- Assertions ---

func assertHashesEqual(t *testing.T, want, got map[string]map[string]string, label string) {
	t.Helper()
	if len(want) != len(got) {
		t.Fatalf("%s: entity names differ: want %v, got %v", label, want, got)
	}
	for name, sectors := range want {
		for sector, hash := range sectors {
			if got[name][sector] != hash {
				t.Errorf("%s: %s sector %s: want %s, got %s", label, name, sector, hash, got[name][sector])
			}
		}
		if len(sectors) != len(got[name]) {
			t.Errorf("%s: %s sector count: want %d, got %d", label, name, len(sectors), len(got[name]))
		}
	}
}

func assertTitle(t *testing.T, r *replica, noteID, want string) {
	t.Helper()
	got, ok := r.noteTitle(t, noteID)
	if !ok {
		t.Fatalf("%s: note %s missing, want title %q", r.id, noteID, want)
	}
	if got != want {
		t.Errorf("%s: note %s title = %q, want %q", r.id, noteID, got, want)
	}
}

func assertAbsent(t *testing.T, r *replica, noteID string) {
	t.Helper()
	if title, ok := r.noteTitle(t, noteID); ok {
		t.Errorf("%s: note %s present with title %q, want erased", r.id, noteID, title)
	}
}
