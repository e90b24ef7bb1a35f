package validation

import (
	"strings"
	"testing"

	notesync "github.com/hyperengineering/notesync/internal/sync"
)

// --- ValidateNoNullBytes Tests ---

func TestValidateNoNullBytes(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		wantErr bool
	}{
		{"normal", "hello world", false},
		{"empty", "", false},
		{"unicode", "Hello, 世界", false},
		{"null in middle", "ab\x00cd", true},
		{"null only", "\x00", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateNoNullBytes("field", tt.value)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateNoNullBytes(%q) = %v, wantErr %v", tt.value, err, tt.wantErr)
			}
		})
	}
}

// --- ValidateMaxLength Tests ---

func TestValidateMaxLength_CountsRunes(t *testing.T) {
	// 4 runes, 12 bytes
	if err := ValidateMaxLength("title", "世界世界", 4); err != nil {
		t.Errorf("ValidateMaxLength(4 runes, max 4) = %v, want nil", err)
	}

	err := ValidateMaxLength("title", "世界世界!", 4)
	if err == nil {
		t.Fatal("ValidateMaxLength(5 runes, max 4) = nil, want error")
	}
	if err.Field != "title" {
		t.Errorf("error.Field = %q, want %q", err.Field, "title")
	}
	if !strings.Contains(err.Message, "4") {
		t.Errorf("error.Message = %q, want mention of limit", err.Message)
	}
}

// --- ValidateRequired Tests ---

func TestValidateRequired(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		wantErr bool
	}{
		{"present", "n1", false},
		{"empty", "", true},
		{"whitespace", "  \t", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRequired("entityId", tt.value)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateRequired(%q) = %v, wantErr %v", tt.value, err, tt.wantErr)
			}
		})
	}
}

// --- ValidateIdentifier Tests ---

func TestValidateIdentifier_ReportsFirstFailure(t *testing.T) {
	if err := ValidateIdentifier("id", "", 10); err == nil || err.Message != "is required" {
		t.Errorf("empty: got %v, want required error", err)
	}
	if err := ValidateIdentifier("id", strings.Repeat("x", 11), 10); err == nil || !strings.Contains(err.Message, "maximum length") {
		t.Errorf("long: got %v, want length error", err)
	}
	if err := ValidateIdentifier("id", "a\x00b", 10); err == nil || !strings.Contains(err.Message, "null bytes") {
		t.Errorf("null: got %v, want null byte error", err)
	}
	if err := ValidateIdentifier("id", "abc", 10); err != nil {
		t.Errorf("valid: got %v, want nil", err)
	}
}

// --- Collector Tests ---

func TestCollector_IgnoresNil(t *testing.T) {
	var c Collector
	c.Add(nil)
	if c.HasErrors() {
		t.Error("HasErrors() = true after adding nil")
	}

	c.Add(&ValidationError{Field: "f", Message: "m"})
	if !c.HasErrors() || len(c.Errors()) != 1 {
		t.Errorf("Errors() = %v, want one error", c.Errors())
	}
}

// --- ValidateRecord Tests ---

func validNoteRecord(id string) notesync.EntityChangeRecord {
	return notesync.EntityChangeRecord{
		EntityChange: notesync.EntityChange{
			EntityName: "notes",
			EntityID:   id,
			ChangeID:   "change-" + id,
			Hash:       "h",
			IsSynced:   true,
		},
		Entity: &notesync.NoteRow{NoteID: id, Title: "t"},
	}
}

func TestValidateRecord_Valid(t *testing.T) {
	if errs := ValidateRecord(0, validNoteRecord("n1")); len(errs) != 0 {
		t.Errorf("ValidateRecord() = %v, want no errors", errs)
	}
}

func TestValidateRecord_MissingFields(t *testing.T) {
	rec := notesync.EntityChangeRecord{}

	errs := ValidateRecord(3, rec)

	want := map[string]bool{
		"entities[3].entityChange.entityName": true,
		"entities[3].entityChange.entityId":   true,
		"entities[3].entityChange.changeId":   true,
	}
	if len(errs) != len(want) {
		t.Fatalf("ValidateRecord() = %v, want %d errors", errs, len(want))
	}
	for _, e := range errs {
		if !want[e.Field] {
			t.Errorf("unexpected error field %q", e.Field)
		}
	}
}

func TestValidateRecord_RowIDMismatch(t *testing.T) {
	rec := validNoteRecord("n1")
	rec.Entity = &notesync.NoteRow{NoteID: "n2"}

	errs := ValidateRecord(1, rec)

	if len(errs) != 1 {
		t.Fatalf("ValidateRecord() = %v, want 1 error", errs)
	}
	if errs[0].Field != "entities[1].entity" {
		t.Errorf("Field = %q, want %q", errs[0].Field, "entities[1].entity")
	}
}

func TestValidateRecord_ErasureWithoutRow(t *testing.T) {
	rec := validNoteRecord("n1")
	rec.Entity = nil
	rec.EntityChange.IsErased = true

	if errs := ValidateRecord(0, rec); len(errs) != 0 {
		t.Errorf("ValidateRecord() = %v, want no errors", errs)
	}
}

func TestValidateRecord_ReorderingSkipsRowIDCheck(t *testing.T) {
	// note_reordering names the parent note; its payload is a position map.
	rec := notesync.EntityChangeRecord{
		EntityChange: notesync.EntityChange{
			EntityName: "note_reordering",
			EntityID:   "parent",
			ChangeID:   "c1",
		},
		Entity: notesync.NoteReordering{"b1": 10},
	}

	if errs := ValidateRecord(0, rec); len(errs) != 0 {
		t.Errorf("ValidateRecord() = %v, want no errors", errs)
	}
}

func TestValidateRecord_OptionKeyedByName(t *testing.T) {
	rec := notesync.EntityChangeRecord{
		EntityChange: notesync.EntityChange{EntityName: "options", EntityID: "theme", ChangeID: "c1"},
		Entity:       &notesync.OptionRow{Name: "theme", Value: "dark"},
	}

	if errs := ValidateRecord(0, rec); len(errs) != 0 {
		t.Errorf("ValidateRecord() = %v, want no errors", errs)
	}
}

// --- ValidateUpdateRequest Tests ---

func TestValidateUpdateRequest_Valid(t *testing.T) {
	req := notesync.UpdateRequest{
		InstanceID: "replica-b",
		Entities:   []notesync.EntityChangeRecord{validNoteRecord("n1"), validNoteRecord("n2")},
	}

	if errs := ValidateUpdateRequest(req); len(errs) != 0 {
		t.Errorf("ValidateUpdateRequest() = %v, want no errors", errs)
	}
}

func TestValidateUpdateRequest_EmptyBatchIsValid(t *testing.T) {
	req := notesync.UpdateRequest{InstanceID: "replica-b"}

	if errs := ValidateUpdateRequest(req); len(errs) != 0 {
		t.Errorf("ValidateUpdateRequest() = %v, want no errors", errs)
	}
}

func TestValidateUpdateRequest_CollectsAllErrors(t *testing.T) {
	bad := validNoteRecord("n2")
	bad.EntityChange.ChangeID = ""
	req := notesync.UpdateRequest{
		InstanceID: "",
		Entities:   []notesync.EntityChangeRecord{validNoteRecord("n1"), bad},
	}

	errs := ValidateUpdateRequest(req)

	if len(errs) != 2 {
		t.Fatalf("ValidateUpdateRequest() = %v, want 2 errors", errs)
	}
	if errs[0].Field != "instanceId" {
		t.Errorf("errs[0].Field = %q, want %q", errs[0].Field, "instanceId")
	}
	if errs[1].Field != "entities[1].entityChange.changeId" {
		t.Errorf("errs[1].Field = %q, want %q", errs[1].Field, "entities[1].entityChange.changeId")
	}
}

func TestValidateUpdateRequest_InstanceIDTooLong(t *testing.T) {
	req := notesync.UpdateRequest{InstanceID: strings.Repeat("i", MaxInstanceIDLength+1)}

	errs := ValidateUpdateRequest(req)

	if len(errs) != 1 || errs[0].Field != "instanceId" {
		t.Errorf("ValidateUpdateRequest() = %v, want instanceId length error", errs)
	}
}
