package reconcile

import (
	"context"

	"github.com/hyperengineering/notesync/internal/store"
	notesync "github.com/hyperengineering/notesync/internal/sync"
)

// Replica is the transactional view of the local database the engine reads
// and writes while applying one batch. store.Tx implements it.
type Replica interface {
	ChangeIDExists(ctx context.Context, changeID string) (bool, error)
	GetEntityChange(ctx context.Context, entityName, entityID string) (*notesync.EntityChange, error)
	PutEntityChangeWithInstanceID(ctx context.Context, ec notesync.EntityChange, instanceID string) error
	PutEntityChangeForOtherInstances(ctx context.Context, ec notesync.EntityChange) error
	ReplaceRow(ctx context.Context, row notesync.Row) error
	DeleteRow(ctx context.Context, kind notesync.EntityKind, entityID string) error
	SetNotePositions(ctx context.Context, positions notesync.NoteReordering) error
	GetEmbeddingModified(ctx context.Context, embedID string) (string, bool, error)
}

// Transactor runs fn against a Replica inside one transaction. The
// transaction commits only when fn returns nil.
type Transactor interface {
	InTx(ctx context.Context, fn func(Replica) error) error
}

// TransactorFunc adapts a function to the Transactor interface.
type TransactorFunc func(ctx context.Context, fn func(Replica) error) error

// InTx calls f(ctx, fn).
func (f TransactorFunc) InTx(ctx context.Context, fn func(Replica) error) error {
	return f(ctx, fn)
}

// EventSink receives domain events once a batch has committed.
type EventSink interface {
	Publish(ctx context.Context, ev notesync.Event)
}

// ProgressNotifier is told when a batch starts applying new changes.
type ProgressNotifier interface {
	SyncPullInProgress(ctx context.Context)
}

type nopSink struct{}

func (nopSink) Publish(context.Context, notesync.Event) {}

type nopProgress struct{}

func (nopProgress) SyncPullInProgress(context.Context) {}

// StoreTransactor runs each batch in a transaction of s.
func StoreTransactor(s interface {
	InTx(ctx context.Context, fn func(tx *store.Tx) error) error
}) Transactor {
	return TransactorFunc(func(ctx context.Context, fn func(Replica) error) error {
		return s.InTx(ctx, func(tx *store.Tx) error { return fn(tx) })
	})
}

var _ Replica = (*store.Tx)(nil)
