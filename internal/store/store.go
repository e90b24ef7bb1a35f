package store

import (
	"context"

	notesync "github.com/hyperengineering/notesync/internal/sync"
)

// Store defines the read side of the replica consumed by the HTTP surface,
// the CLI and the background workers. Writes go through InTx.
type Store interface {
	InstanceID() string
	InTx(ctx context.Context, fn func(tx *Tx) error) error
	GetChanged(ctx context.Context, instanceID string, lastEntityChangeID int64, limit int) (*notesync.ChangedResponse, error)
	GetEntityChangesAfter(ctx context.Context, afterID int64, limit int) ([]notesync.EntityChange, error)
	EntityHashes(ctx context.Context) (map[string]map[string]string, error)
	MaxSyncedEntityChangeID(ctx context.Context) (int64, error)
	GenerateSnapshot(ctx context.Context) error
	GetSnapshotPath(ctx context.Context) (string, error)
	GetStats(ctx context.Context) (*Stats, error)
	Close() error
}

// Stats summarizes the change log.
type Stats struct {
	InstanceID        string `json:"instanceId"`
	EntityChanges     int64  `json:"entityChanges"`
	ErasedChanges     int64  `json:"erasedChanges"`
	MaxEntityChangeID int64  `json:"maxEntityChangeId"`
	SchemaVersion     int64  `json:"schemaVersion"`
}

var _ Store = (*SQLiteStore)(nil)
