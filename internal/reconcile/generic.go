package reconcile

import (
	"context"

	notesync "github.com/hyperengineering/notesync/internal/sync"
)

// applyGeneric applies a change by comparing utcDateChanged with the local
// change of the same entity. Remote wins ties.
func (b *batch) applyGeneric(ctx context.Context, rec notesync.EntityChangeRecord) (result, error) {
	remote := rec.EntityChange

	local, err := b.replica.GetEntityChange(ctx, remote.EntityName, remote.EntityID)
	if err != nil {
		return result{}, err
	}

	if local != nil && bool(local.IsErased) && !bool(remote.IsErased) &&
		!notesync.IsStrictlyOlder(local.UTCDateChanged, remote.UTCDateChanged) {
		return b.keepTombstone(ctx, *local)
	}

	if local == nil || notesync.IsOlderOrSame(local.UTCDateChanged, remote.UTCDateChanged) {
		row := rec.Entity
		if remote.IsErased {
			if err := b.erase(ctx, remote); err != nil {
				return result{}, err
			}
			if local != nil && bool(local.IsErased) {
				b.summary.AlreadyErased++
			} else {
				b.summary.Erased++
			}
		} else {
			if rec.Entity == nil {
				return result{}, &MalformedEntryError{
					EntityName: remote.EntityName,
					EntityID:   remote.EntityID,
					Change:     remote.String(),
				}
			}
			row, err = notesync.PreprocessContent(rec.Entity)
			if err != nil {
				return result{}, err
			}
			if err := b.replica.ReplaceRow(ctx, row); err != nil {
				return result{}, err
			}
			b.summary.AddUpdated(remote.EntityName, remote.EntityID)
		}

		if err := b.stamp(ctx, remote); err != nil {
			return result{}, err
		}
		return result{applied: true, row: row}, nil
	}

	if notesync.Differs(*local, remote) {
		// Ours is newer: the peer should take it on its next pull.
		if err := b.replica.PutEntityChangeForOtherInstances(ctx, *local); err != nil {
			return result{}, err
		}
	}
	return result{}, nil
}

// keepTombstone handles a non-erase change that is not newer than a local
// erasure. The row is erased again and the tombstone re-queued so the peer
// converges on it.
func (b *batch) keepTombstone(ctx context.Context, local notesync.EntityChange) (result, error) {
	if err := b.erase(ctx, local); err != nil {
		return result{}, err
	}
	b.summary.AlreadyErased++
	if err := b.replica.PutEntityChangeForOtherInstances(ctx, local); err != nil {
		return result{}, err
	}
	return result{}, nil
}
