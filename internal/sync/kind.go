package sync

// EntityKind is the closed set of entity categories carried by the change log.
type EntityKind int

const (
	KindUnknown EntityKind = iota
	KindNotes
	KindBranches
	KindAttributes
	KindRevisions
	KindAttachments
	KindBlobs
	KindNoteEmbeddings
	KindOptions
	KindNoteReordering
)

var kindNames = map[EntityKind]string{
	KindNotes:          "notes",
	KindBranches:       "branches",
	KindAttributes:     "attributes",
	KindRevisions:      "revisions",
	KindAttachments:    "attachments",
	KindBlobs:          "blobs",
	KindNoteEmbeddings: "note_embeddings",
	KindOptions:        "options",
	KindNoteReordering: "note_reordering",
}

var kindsByName = func() map[string]EntityKind {
	m := make(map[string]EntityKind, len(kindNames))
	for k, name := range kindNames {
		m[name] = k
	}
	return m
}()

// ParseKind maps an entity name to its kind. Unrecognized names map to
// KindUnknown.
func ParseKind(name string) EntityKind {
	return kindsByName[name]
}

// String returns the entity name, or "unknown".
func (k EntityKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Strategy selects how the reconciliation engine applies a change.
type Strategy int

const (
	// StrategyGeneric compares change timestamps, remote wins ties.
	StrategyGeneric Strategy = iota
	// StrategyReordering applies a branch position map unconditionally.
	StrategyReordering
	// StrategyEmbeddings compares the payload's utcDateModified, remote must be strictly newer.
	StrategyEmbeddings
)

// Strategy returns the apply strategy for the kind.
func (k EntityKind) Strategy() Strategy {
	switch k {
	case KindNoteReordering:
		return StrategyReordering
	case KindNoteEmbeddings:
		return StrategyEmbeddings
	default:
		return StrategyGeneric
	}
}

// TableSchema describes the table backing an entity kind.
type TableSchema struct {
	// Name is the SQL table name.
	Name string

	// PrimaryKey is the primary key column.
	PrimaryKey string

	// Columns lists every column in the order TableRow.Values and
	// TableRow.Fields produce them.
	Columns []string
}

var schemas = map[EntityKind]TableSchema{
	KindNotes: {
		Name:       "notes",
		PrimaryKey: "noteId",
		Columns: []string{"noteId", "title", "isProtected", "type", "mime", "blobId",
			"isDeleted", "deleteId", "dateCreated", "dateModified", "utcDateCreated", "utcDateModified"},
	},
	KindBranches: {
		Name:       "branches",
		PrimaryKey: "branchId",
		Columns: []string{"branchId", "noteId", "parentNoteId", "notePosition", "prefix",
			"isExpanded", "isDeleted", "deleteId", "utcDateModified"},
	},
	KindAttributes: {
		Name:       "attributes",
		PrimaryKey: "attributeId",
		Columns: []string{"attributeId", "noteId", "type", "name", "value", "position",
			"utcDateModified", "isDeleted", "deleteId", "isInheritable"},
	},
	KindRevisions: {
		Name:       "revisions",
		PrimaryKey: "revisionId",
		Columns: []string{"revisionId", "noteId", "type", "mime", "title", "isProtected", "blobId",
			"utcDateLastEdited", "utcDateCreated", "utcDateModified", "dateLastEdited", "dateCreated"},
	},
	KindAttachments: {
		Name:       "attachments",
		PrimaryKey: "attachmentId",
		Columns: []string{"attachmentId", "ownerId", "role", "mime", "title", "isProtected", "position",
			"blobId", "dateModified", "utcDateModified", "utcDateScheduledForErasureSince", "isDeleted", "deleteId"},
	},
	KindBlobs: {
		Name:       "blobs",
		PrimaryKey: "blobId",
		Columns:    []string{"blobId", "content", "dateModified", "utcDateModified"},
	},
	KindNoteEmbeddings: {
		Name:       "note_embeddings",
		PrimaryKey: "embedId",
		Columns: []string{"embedId", "noteId", "providerId", "modelId", "dimension", "embedding",
			"version", "dateCreated", "utcDateCreated", "dateModified", "utcDateModified"},
	},
	KindOptions: {
		Name:       "options",
		PrimaryKey: "name",
		Columns:    []string{"name", "value", "isSynced", "utcDateModified"},
	},
}

// SchemaFor returns the table schema for kind. note_reordering and unknown
// kinds have no table of their own.
func SchemaFor(kind EntityKind) (TableSchema, bool) {
	s, ok := schemas[kind]
	return s, ok
}
