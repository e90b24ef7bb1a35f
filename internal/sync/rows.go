package sync

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Row is the typed payload of an entity change.
type Row interface {
	Kind() EntityKind
	EntityID() string
}

// TableRow is a Row stored as a single table row.
type TableRow interface {
	Row

	// Values returns column values in TableSchema.Columns order.
	Values() []any

	// Fields returns scan destinations in TableSchema.Columns order.
	Fields() []any
}

// Deleted reports whether row is soft-deleted (isDeleted = 1).
func Deleted(row Row) bool {
	d, ok := row.(interface{ deleted() bool })
	return ok && d.deleted()
}

// Flag is a boolean stored as 0/1. It accepts numbers or JSON booleans.
type Flag bool

// UnmarshalJSON accepts 0, 1, true, false and null.
func (f *Flag) UnmarshalJSON(b []byte) error {
	switch string(b) {
	case "1", "true":
		*f = true
	case "0", "false", "null":
		*f = false
	default:
		return fmt.Errorf("invalid flag value %s", b)
	}
	return nil
}

// MarshalJSON encodes the flag as 0 or 1.
func (f Flag) MarshalJSON() ([]byte, error) {
	if f {
		return []byte("1"), nil
	}
	return []byte("0"), nil
}

// Value implements driver.Valuer.
func (f Flag) Value() (driver.Value, error) {
	if f {
		return int64(1), nil
	}
	return int64(0), nil
}

// Scan implements sql.Scanner.
func (f *Flag) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*f = false
	case int64:
		*f = v != 0
	case bool:
		*f = Flag(v)
	case []byte:
		*f = string(v) == "1" || string(v) == "true"
	case string:
		*f = v == "1" || v == "true"
	default:
		return fmt.Errorf("scan flag: unsupported type %T", src)
	}
	return nil
}

// NoteRow is a row of the notes table.
type NoteRow struct {
	NoteID          string  `json:"noteId"`
	Title           string  `json:"title"`
	IsProtected     Flag    `json:"isProtected"`
	Type            string  `json:"type"`
	Mime            string  `json:"mime"`
	BlobID          *string `json:"blobId"`
	IsDeleted       Flag    `json:"isDeleted"`
	DeleteID        *string `json:"deleteId"`
	DateCreated     string  `json:"dateCreated"`
	DateModified    string  `json:"dateModified"`
	UTCDateCreated  string  `json:"utcDateCreated"`
	UTCDateModified string  `json:"utcDateModified"`
}

// Kind reports KindNotes.
func (r *NoteRow) Kind() EntityKind { return KindNotes }
// EntityID returns NoteID.
func (r *NoteRow) EntityID() string { return r.NoteID }
func (r *NoteRow) deleted() bool    { return bool(r.IsDeleted) }

// Values implements TableRow.
func (r *NoteRow) Values() []any {
	return []any{r.NoteID, r.Title, r.IsProtected, r.Type, r.Mime, r.BlobID,
		r.IsDeleted, r.DeleteID, r.DateCreated, r.DateModified, r.UTCDateCreated, r.UTCDateModified}
}

// Fields implements TableRow.
func (r *NoteRow) Fields() []any {
	return []any{&r.NoteID, &r.Title, &r.IsProtected, &r.Type, &r.Mime, &r.BlobID,
		&r.IsDeleted, &r.DeleteID, &r.DateCreated, &r.DateModified, &r.UTCDateCreated, &r.UTCDateModified}
}

// BranchRow places a note under a parent note.
type BranchRow struct {
	BranchID        string  `json:"branchId"`
	NoteID          string  `json:"noteId"`
	ParentNoteID    string  `json:"parentNoteId"`
	NotePosition    int     `json:"notePosition"`
	Prefix          *string `json:"prefix"`
	IsExpanded      Flag    `json:"isExpanded"`
	IsDeleted       Flag    `json:"isDeleted"`
	DeleteID        *string `json:"deleteId"`
	UTCDateModified string  `json:"utcDateModified"`
}

// Kind reports KindBranches.
func (r *BranchRow) Kind() EntityKind { return KindBranches }
// EntityID returns BranchID.
func (r *BranchRow) EntityID() string { return r.BranchID }
func (r *BranchRow) deleted() bool    { return bool(r.IsDeleted) }

// Values implements TableRow.
func (r *BranchRow) Values() []any {
	return []any{r.BranchID, r.NoteID, r.ParentNoteID, r.NotePosition, r.Prefix,
		r.IsExpanded, r.IsDeleted, r.DeleteID, r.UTCDateModified}
}

// Fields implements TableRow.
func (r *BranchRow) Fields() []any {
	return []any{&r.BranchID, &r.NoteID, &r.ParentNoteID, &r.NotePosition, &r.Prefix,
		&r.IsExpanded, &r.IsDeleted, &r.DeleteID, &r.UTCDateModified}
}

// AttributeRow is a label or relation owned by a note.
type AttributeRow struct {
	AttributeID     string  `json:"attributeId"`
	NoteID          string  `json:"noteId"`
	Type            string  `json:"type"`
	Name            string  `json:"name"`
	Value           string  `json:"value"`
	Position        int     `json:"position"`
	UTCDateModified string  `json:"utcDateModified"`
	IsDeleted       Flag    `json:"isDeleted"`
	DeleteID        *string `json:"deleteId"`
	IsInheritable   Flag    `json:"isInheritable"`
}

// Kind reports KindAttributes.
func (r *AttributeRow) Kind() EntityKind { return KindAttributes }
// EntityID returns AttributeID.
func (r *AttributeRow) EntityID() string { return r.AttributeID }
func (r *AttributeRow) deleted() bool    { return bool(r.IsDeleted) }

// Values implements TableRow.
func (r *AttributeRow) Values() []any {
	return []any{r.AttributeID, r.NoteID, r.Type, r.Name, r.Value, r.Position,
		r.UTCDateModified, r.IsDeleted, r.DeleteID, r.IsInheritable}
}

// Fields implements TableRow.
func (r *AttributeRow) Fields() []any {
	return []any{&r.AttributeID, &r.NoteID, &r.Type, &r.Name, &r.Value, &r.Position,
		&r.UTCDateModified, &r.IsDeleted, &r.DeleteID, &r.IsInheritable}
}

// RevisionRow is a saved historical version of a note.
type RevisionRow struct {
	RevisionID        string  `json:"revisionId"`
	NoteID            string  `json:"noteId"`
	Type              string  `json:"type"`
	Mime              string  `json:"mime"`
	Title             string  `json:"title"`
	IsProtected       Flag    `json:"isProtected"`
	BlobID            *string `json:"blobId"`
	UTCDateLastEdited string  `json:"utcDateLastEdited"`
	UTCDateCreated    string  `json:"utcDateCreated"`
	UTCDateModified   string  `json:"utcDateModified"`
	DateLastEdited    string  `json:"dateLastEdited"`
	DateCreated       string  `json:"dateCreated"`
}

// Kind reports KindRevisions.
func (r *RevisionRow) Kind() EntityKind { return KindRevisions }
// EntityID returns RevisionID.
func (r *RevisionRow) EntityID() string { return r.RevisionID }

// Values implements TableRow.
func (r *RevisionRow) Values() []any {
	return []any{r.RevisionID, r.NoteID, r.Type, r.Mime, r.Title, r.IsProtected, r.BlobID,
		r.UTCDateLastEdited, r.UTCDateCreated, r.UTCDateModified, r.DateLastEdited, r.DateCreated}
}

// Fields implements TableRow.
func (r *RevisionRow) Fields() []any {
	return []any{&r.RevisionID, &r.NoteID, &r.Type, &r.Mime, &r.Title, &r.IsProtected, &r.BlobID,
		&r.UTCDateLastEdited, &r.UTCDateCreated, &r.UTCDateModified, &r.DateLastEdited, &r.DateCreated}
}

// AttachmentRow is a file or image owned by a note or revision.
type AttachmentRow struct {
	AttachmentID                    string  `json:"attachmentId"`
	OwnerID                         string  `json:"ownerId"`
	Role                            string  `json:"role"`
	Mime                            string  `json:"mime"`
	Title                           string  `json:"title"`
	IsProtected                     Flag    `json:"isProtected"`
	Position                        int     `json:"position"`
	BlobID                          *string `json:"blobId"`
	DateModified                    string  `json:"dateModified"`
	UTCDateModified                 string  `json:"utcDateModified"`
	UTCDateScheduledForErasureSince *string `json:"utcDateScheduledForErasureSince"`
	IsDeleted                       Flag    `json:"isDeleted"`
	DeleteID                        *string `json:"deleteId"`
}

// Kind reports KindAttachments.
func (r *AttachmentRow) Kind() EntityKind { return KindAttachments }
// EntityID returns AttachmentID.
func (r *AttachmentRow) EntityID() string { return r.AttachmentID }
func (r *AttachmentRow) deleted() bool    { return bool(r.IsDeleted) }

// Values implements TableRow.
func (r *AttachmentRow) Values() []any {
	return []any{r.AttachmentID, r.OwnerID, r.Role, r.Mime, r.Title, r.IsProtected, r.Position,
		r.BlobID, r.DateModified, r.UTCDateModified, r.UTCDateScheduledForErasureSince, r.IsDeleted, r.DeleteID}
}

// Fields implements TableRow.
func (r *AttachmentRow) Fields() []any {
	return []any{&r.AttachmentID, &r.OwnerID, &r.Role, &r.Mime, &r.Title, &r.IsProtected, &r.Position,
		&r.BlobID, &r.DateModified, &r.UTCDateModified, &r.UTCDateScheduledForErasureSince, &r.IsDeleted, &r.DeleteID}
}

// BlobRow holds note, revision or attachment content.
type BlobRow struct {
	BlobID          string  `json:"blobId"`
	Content         Content `json:"content"`
	DateModified    string  `json:"dateModified"`
	UTCDateModified string  `json:"utcDateModified"`
}

// Kind reports KindBlobs.
func (r *BlobRow) Kind() EntityKind { return KindBlobs }
// EntityID returns BlobID.
func (r *BlobRow) EntityID() string { return r.BlobID }

// Values implements TableRow.
func (r *BlobRow) Values() []any {
	return []any{r.BlobID, r.Content, r.DateModified, r.UTCDateModified}
}

// Fields implements TableRow.
func (r *BlobRow) Fields() []any {
	return []any{&r.BlobID, &r.Content, &r.DateModified, &r.UTCDateModified}
}

// NoteEmbeddingRow is a precomputed embedding vector for a note.
type NoteEmbeddingRow struct {
	EmbedID         string  `json:"embedId"`
	NoteID          string  `json:"noteId"`
	ProviderID      string  `json:"providerId"`
	ModelID         string  `json:"modelId"`
	Dimension       int     `json:"dimension"`
	Embedding       Content `json:"embedding"`
	Version         int     `json:"version"`
	DateCreated     string  `json:"dateCreated"`
	UTCDateCreated  string  `json:"utcDateCreated"`
	DateModified    string  `json:"dateModified"`
	UTCDateModified string  `json:"utcDateModified"`
}

// Kind reports KindNoteEmbeddings.
func (r *NoteEmbeddingRow) Kind() EntityKind { return KindNoteEmbeddings }
// EntityID returns EmbedID.
func (r *NoteEmbeddingRow) EntityID() string { return r.EmbedID }

// Values implements TableRow.
func (r *NoteEmbeddingRow) Values() []any {
	return []any{r.EmbedID, r.NoteID, r.ProviderID, r.ModelID, r.Dimension, r.Embedding,
		r.Version, r.DateCreated, r.UTCDateCreated, r.DateModified, r.UTCDateModified}
}

// Fields implements TableRow.
func (r *NoteEmbeddingRow) Fields() []any {
	return []any{&r.EmbedID, &r.NoteID, &r.ProviderID, &r.ModelID, &r.Dimension, &r.Embedding,
		&r.Version, &r.DateCreated, &r.UTCDateCreated, &r.DateModified, &r.UTCDateModified}
}

// OptionRow is a named setting. Only options with IsSynced travel between replicas.
type OptionRow struct {
	Name            string `json:"name"`
	Value           string `json:"value"`
	IsSynced        Flag   `json:"isSynced"`
	UTCDateModified string `json:"utcDateModified"`
}

// Kind reports KindOptions.
func (r *OptionRow) Kind() EntityKind { return KindOptions }
// EntityID returns Name.
func (r *OptionRow) EntityID() string { return r.Name }

// Values implements TableRow.
func (r *OptionRow) Values() []any {
	return []any{r.Name, r.Value, r.IsSynced, r.UTCDateModified}
}

// Fields implements TableRow.
func (r *OptionRow) Fields() []any {
	return []any{&r.Name, &r.Value, &r.IsSynced, &r.UTCDateModified}
}

// NoteReordering maps branchId to its new notePosition.
type NoteReordering map[string]int

// Kind reports KindNoteReordering.
func (r NoteReordering) Kind() EntityKind { return KindNoteReordering }

// EntityID is empty: the change's entityId names the parent note, not a row.
func (r NoteReordering) EntityID() string { return "" }

// UnknownRow keeps the payload of an entity name this build does not know.
type UnknownRow struct {
	Name   string
	Fields map[string]any
}

// Kind reports KindUnknown.
func (r *UnknownRow) Kind() EntityKind { return KindUnknown }

// EntityID returns the payload's "id" field when it is a string.
func (r *UnknownRow) EntityID() string {
	if id, ok := r.Fields["id"].(string); ok {
		return id
	}
	return ""
}

// MarshalJSON encodes the raw fields.
func (r *UnknownRow) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Fields)
}

// NewTableRow returns an empty row for kind, ready to be scanned into.
func NewTableRow(kind EntityKind) (TableRow, bool) {
	switch kind {
	case KindNotes:
		return &NoteRow{}, true
	case KindBranches:
		return &BranchRow{}, true
	case KindAttributes:
		return &AttributeRow{}, true
	case KindRevisions:
		return &RevisionRow{}, true
	case KindAttachments:
		return &AttachmentRow{}, true
	case KindBlobs:
		return &BlobRow{}, true
	case KindNoteEmbeddings:
		return &NoteEmbeddingRow{}, true
	case KindOptions:
		return &OptionRow{}, true
	default:
		return nil, false
	}
}

// DecodeRow decodes a wire payload into the typed row for entityName.
// An absent or null payload decodes to a nil Row.
func DecodeRow(entityName string, raw json.RawMessage) (Row, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}

	kind := ParseKind(entityName)
	switch kind {
	case KindNoteReordering:
		var m NoteReordering
		if err := json.Unmarshal(trimmed, &m); err != nil {
			return nil, err
		}
		return m, nil
	case KindUnknown:
		var fields map[string]any
		if err := json.Unmarshal(trimmed, &fields); err != nil {
			return nil, err
		}
		return &UnknownRow{Name: entityName, Fields: fields}, nil
	}

	row, _ := NewTableRow(kind)
	if err := json.Unmarshal(trimmed, row); err != nil {
		return nil, err
	}
	return row, nil
}
