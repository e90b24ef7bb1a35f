//go:build e2e

package e2e

import (
	"net/http"
	"testing"
)

func TestBinary_ReplicasConvergeThroughServer(t *testing.T) {
	srv := startNotesync(t, hubID)

	a := newReplica(t, "replica-a", srv.baseURL(), srv.apiKey, hubID)
	b := newReplica(t, "replica-b", srv.baseURL(), srv.apiKey, hubID)
	a.pushPages = 2

	a.editNote(t, "note1", "From A", ts(1))
	b.editNote(t, "note2", "From B", ts(2))
	a.sync(t)
	b.sync(t)
	a.sync(t)

	assertTitle(t, a, "note2", "From B")
	assertTitle(t, b, "note1", "From A")

	want := serverHashes(t, srv.baseURL(), srv.apiKey).EntityHashes
	assertHashesEqual(t, want, a.hashes(t), a.id)
	assertHashesEqual(t, want, b.hashes(t), b.id)
}

func TestBinary_RejectsWrongToken(t *testing.T) {
	srv := startNotesync(t, hubID)

	req, err := http.NewRequest(http.MethodGet, srv.baseURL()+"/api/v1/sync/check", nil)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Authorization", "Bearer wrong-key")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
}
