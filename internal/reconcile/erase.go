package reconcile

import (
	"context"
	"fmt"

	notesync "github.com/hyperengineering/notesync/internal/sync"
)

// Eraser physically removes an erased entity from the replica.
type Eraser interface {
	Erase(ctx context.Context, r Replica, entityName, entityID string) error
}

// erasable lists the kinds whose rows may be physically deleted on erasure.
var erasable = map[notesync.EntityKind]bool{
	notesync.KindNotes:          true,
	notesync.KindBranches:       true,
	notesync.KindAttributes:     true,
	notesync.KindRevisions:      true,
	notesync.KindAttachments:    true,
	notesync.KindBlobs:          true,
	notesync.KindNoteEmbeddings: true,
}

// AllowListEraser deletes rows of the fixed set of erasable kinds by their
// primary key.
type AllowListEraser struct{}

// Erase deletes the row or returns ErrUnsupportedEntity.
func (AllowListEraser) Erase(ctx context.Context, r Replica, entityName, entityID string) error {
	kind := notesync.ParseKind(entityName)
	if !erasable[kind] {
		return fmt.Errorf("%w: %s '%s'", ErrUnsupportedEntity, entityName, entityID)
	}
	return r.DeleteRow(ctx, kind, entityID)
}
