package reconcile

import (
	"context"
	"fmt"

	notesync "github.com/hyperengineering/notesync/internal/sync"
)

// applyEmbedding compares the payload's utcDateModified with the local
// embedding row. Remote must be strictly newer to overwrite an existing row;
// an older or equal remote still moves the change stamp and is announced.
func (b *batch) applyEmbedding(ctx context.Context, rec notesync.EntityChangeRecord) (result, error) {
	remote := rec.EntityChange

	if remote.IsErased {
		if err := b.erase(ctx, remote); err != nil {
			return result{}, err
		}
		b.summary.Erased++
		if err := b.stamp(ctx, remote); err != nil {
			return result{}, err
		}
		return result{applied: true, row: rec.Entity}, nil
	}

	if rec.Entity == nil {
		return result{}, &MalformedEntryError{
			EntityName: remote.EntityName,
			EntityID:   remote.EntityID,
			Change:     remote.String(),
		}
	}
	row, ok := rec.Entity.(*notesync.NoteEmbeddingRow)
	if !ok {
		return result{}, fmt.Errorf("note_embeddings payload has type %T", rec.Entity)
	}

	localModified, exists, err := b.replica.GetEmbeddingModified(ctx, remote.EntityID)
	if err != nil {
		return result{}, err
	}

	if exists && !notesync.IsStrictlyOlder(localModified, row.UTCDateModified) {
		// Local vector is as new as the remote one: refresh the stamp only.
		// The change still counts as synced for listeners.
		if err := b.stamp(ctx, remote); err != nil {
			return result{}, err
		}
		return result{applied: true, row: row}, nil
	}

	decoded, err := notesync.DecodeEmbedding(row)
	if err != nil {
		return result{}, err
	}
	if err := b.replica.ReplaceRow(ctx, decoded); err != nil {
		return result{}, err
	}
	b.summary.AddUpdated(remote.EntityName, remote.EntityID)

	if err := b.stamp(ctx, remote); err != nil {
		return result{}, err
	}
	return result{applied: true, row: decoded}, nil
}
