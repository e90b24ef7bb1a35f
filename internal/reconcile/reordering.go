package reconcile

import (
	"context"
	"fmt"

	notesync "github.com/hyperengineering/notesync/internal/sync"
)

// applyReordering writes every branch position in the payload. It is always
// accepted.
func (b *batch) applyReordering(ctx context.Context, rec notesync.EntityChangeRecord) (result, error) {
	remote := rec.EntityChange
	if rec.Entity == nil {
		return result{}, &MalformedEntryError{
			EntityName: remote.EntityName,
			EntityID:   remote.EntityID,
			Change:     remote.String(),
		}
	}

	positions, ok := rec.Entity.(notesync.NoteReordering)
	if !ok {
		return result{}, fmt.Errorf("note_reordering payload has type %T", rec.Entity)
	}
	if err := b.replica.SetNotePositions(ctx, positions); err != nil {
		return result{}, err
	}

	if err := b.stamp(ctx, remote); err != nil {
		return result{}, err
	}
	return result{applied: true, row: positions}, nil
}
