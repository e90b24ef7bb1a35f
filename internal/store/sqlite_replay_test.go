package store

import (
	"bytes"
	"context"
	"errors"
	"testing"

	notesync "github.com/hyperengineering/notesync/internal/sync"
)

func replace(t *testing.T, s *SQLiteStore, row notesync.Row) {
	t.Helper()
	err := s.InTx(context.Background(), func(tx *Tx) error {
		return tx.ReplaceRow(context.Background(), row)
	})
	if err != nil {
		t.Fatalf("ReplaceRow(%s %s): %v", row.Kind(), row.EntityID(), err)
	}
}

func TestReplaceRow_InsertAndOverwrite(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	prefix := "pre"

	// Given: A branch written once
	replace(t, s, &notesync.BranchRow{
		BranchID: "b1", NoteID: "n1", ParentNoteID: "root", NotePosition: 10,
		Prefix: &prefix, UTCDateModified: "2024-01-01T00:00:00.000Z",
	})

	// When: It is replaced by a row without a prefix
	replace(t, s, &notesync.BranchRow{
		BranchID: "b1", NoteID: "n1", ParentNoteID: "root", NotePosition: 20,
		IsExpanded: true, UTCDateModified: "2024-01-02T00:00:00.000Z",
	})

	// Then: Every column reflects the second write
	row, err := s.GetEntityRow(ctx, notesync.KindBranches, "b1")
	if err != nil {
		t.Fatal(err)
	}
	branch := row.(*notesync.BranchRow)
	if branch.NotePosition != 20 {
		t.Errorf("NotePosition = %d, want 20", branch.NotePosition)
	}
	if branch.Prefix != nil {
		t.Errorf("Prefix = %q, want NULL", *branch.Prefix)
	}
	if !branch.IsExpanded {
		t.Error("IsExpanded should be true")
	}
}

func TestReplaceRow_BlobContent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		content notesync.Content
		check   func(t *testing.T, c notesync.Content)
	}{
		{
			name:    "binary",
			content: notesync.BinaryContent([]byte{0x00, 0xff, 0x10}),
			check: func(t *testing.T, c notesync.Content) {
				if !bytes.Equal(c.Bytes(), []byte{0x00, 0xff, 0x10}) {
					t.Errorf("content = %v", c.Bytes())
				}
			},
		},
		{
			name:    "empty text is not null",
			content: notesync.TextContent(""),
			check: func(t *testing.T, c notesync.Content) {
				if !c.Valid() {
					t.Error("empty content must not be stored as NULL")
				}
			},
		},
		{
			name:    "null",
			content: notesync.Content{},
			check: func(t *testing.T, c notesync.Content) {
				if c.Valid() {
					t.Error("expected NULL content")
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			replace(t, s, &notesync.BlobRow{
				BlobID: "blob-" + tt.name, Content: tt.content,
				DateModified: "2024-01-01", UTCDateModified: "2024-01-01T00:00:00.000Z",
			})
			row, err := s.GetEntityRow(ctx, notesync.KindBlobs, "blob-"+tt.name)
			if err != nil {
				t.Fatal(err)
			}
			tt.check(t, row.(*notesync.BlobRow).Content)
		})
	}
}

func TestReplaceRow_Unsupported(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rows := []notesync.Row{
		notesync.NoteReordering{"b1": 1},
		&notesync.UnknownRow{Name: "search_indexes", Fields: map[string]any{"id": "x"}},
	}
	for _, row := range rows {
		err := s.InTx(ctx, func(tx *Tx) error {
			return tx.ReplaceRow(ctx, row)
		})
		if !errors.Is(err, ErrUnsupportedTable) {
			t.Errorf("ReplaceRow(%T) error = %v, want ErrUnsupportedTable", row, err)
		}
	}
}

func TestDeleteRow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	replace(t, s, &notesync.OptionRow{Name: "theme", Value: "dark", IsSynced: true, UTCDateModified: "x"})

	err := s.InTx(ctx, func(tx *Tx) error {
		if err := tx.DeleteRow(ctx, notesync.KindOptions, "theme"); err != nil {
			return err
		}
		// Deleting again is a no-op.
		return tx.DeleteRow(ctx, notesync.KindOptions, "theme")
	})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := s.GetEntityRow(ctx, notesync.KindOptions, "theme"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestSetNotePositions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for id, pos := range map[string]int{"b1": 10, "b2": 20} {
		replace(t, s, &notesync.BranchRow{
			BranchID: id, NoteID: "n-" + id, ParentNoteID: "root", NotePosition: pos, UTCDateModified: "x",
		})
	}

	// When: Positions are swapped and an unknown branch is listed
	err := s.InTx(ctx, func(tx *Tx) error {
		return tx.SetNotePositions(ctx, notesync.NoteReordering{"b1": 20, "b2": 10, "missing": 5})
	})
	if err != nil {
		t.Fatal(err)
	}

	// Then: Known branches move, the unknown one is ignored
	row, err := s.GetEntityRow(ctx, notesync.KindNoteReordering, "root")
	if err != nil {
		t.Fatal(err)
	}
	positions := row.(notesync.NoteReordering)
	if len(positions) != 2 || positions["b1"] != 20 || positions["b2"] != 10 {
		t.Errorf("positions = %v", positions)
	}
}

func TestGetEntityRow_ReorderingSkipsDeletedBranches(t *testing.T) {
	s := newTestStore(t)

	replace(t, s, &notesync.BranchRow{BranchID: "b1", NoteID: "n1", ParentNoteID: "p", NotePosition: 1, UTCDateModified: "x"})
	replace(t, s, &notesync.BranchRow{BranchID: "b2", NoteID: "n2", ParentNoteID: "p", NotePosition: 2, IsDeleted: true, UTCDateModified: "x"})

	row, err := s.GetEntityRow(context.Background(), notesync.KindNoteReordering, "p")
	if err != nil {
		t.Fatal(err)
	}
	positions := row.(notesync.NoteReordering)
	if _, ok := positions["b2"]; ok || positions["b1"] != 1 {
		t.Errorf("positions = %v, want only b1", positions)
	}
}

func TestGetEmbeddingModified(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, ok, err := s.GetEmbeddingModified(ctx, "e1"); err != nil || ok {
		t.Fatalf("expected missing embedding, ok=%v err=%v", ok, err)
	}

	replace(t, s, &notesync.NoteEmbeddingRow{
		EmbedID: "e1", NoteID: "n1", ProviderID: "p", ModelID: "m", Dimension: 2,
		Embedding: notesync.BinaryContent([]byte{1, 2, 3, 4}), Version: 1,
		DateCreated: "d", UTCDateCreated: "d", DateModified: "d",
		UTCDateModified: "2024-03-01T00:00:00.000Z",
	})

	modified, ok, err := s.GetEmbeddingModified(ctx, "e1")
	if err != nil {
		t.Fatal(err)
	}
	if !ok || modified != "2024-03-01T00:00:00.000Z" {
		t.Errorf("got (%q, %v), want 2024-03-01T00:00:00.000Z", modified, ok)
	}
}

func TestGetEntityRow_NoteRoundTrip(t *testing.T) {
	s := newTestStore(t)
	blobID := "blob1"

	want := &notesync.NoteRow{
		NoteID: "n1", Title: "Title", IsProtected: true, Type: "code", Mime: "text/plain",
		BlobID: &blobID, DateCreated: "a", DateModified: "b", UTCDateCreated: "c", UTCDateModified: "d",
	}
	replace(t, s, want)

	row, err := s.GetEntityRow(context.Background(), notesync.KindNotes, "n1")
	if err != nil {
		t.Fatal(err)
	}
	got := row.(*notesync.NoteRow)
	if got.Title != want.Title || got.Type != want.Type || !bool(got.IsProtected) {
		t.Errorf("got %+v, want %+v", got, want)
	}
	if got.BlobID == nil || *got.BlobID != blobID {
		t.Errorf("BlobID = %v, want %q", got.BlobID, blobID)
	}
	if got.DeleteID != nil {
		t.Errorf("DeleteID = %v, want nil", got.DeleteID)
	}
}
