package store

import (
	"context"
	"crypto/sha1"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"sort"
	"strings"

	notesync "github.com/hyperengineering/notesync/internal/sync"
)

const entityChangeColumns = `id, entityName, entityId, hash, isErased, changeId,
	componentId, instanceId, isSynced, utcDateChanged`

// INSERT OR REPLACE keeps a single change per (entityName, entityId); the
// replaced change receives a fresh id so peers pull it again.
const putEntityChangeSQL = `
	INSERT OR REPLACE INTO entity_changes
		(entityName, entityId, hash, isErased, changeId, componentId, instanceId, isSynced, utcDateChanged)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

// defaultComponentID marks changes written outside any UI component.
const defaultComponentID = "NA"

func scanEntityChange(scanner interface{ Scan(...any) error }) (*notesync.EntityChange, error) {
	var ec notesync.EntityChange
	var hash, changeID, componentID, instanceID sql.NullString
	err := scanner.Scan(&ec.ID, &ec.EntityName, &ec.EntityID, &hash, &ec.IsErased, &changeID,
		&componentID, &instanceID, &ec.IsSynced, &ec.UTCDateChanged)
	if err != nil {
		return nil, err
	}
	ec.Hash = hash.String
	ec.ChangeID = changeID.String
	ec.ComponentID = componentID.String
	ec.InstanceID = instanceID.String
	return &ec, nil
}

// ChangeIDExists reports whether a change with changeID has already been
// recorded. An empty changeID never matches.
func (q *queries) ChangeIDExists(ctx context.Context, changeID string) (bool, error) {
	if changeID == "" {
		return false, nil
	}
	var n int
	err := q.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM entity_changes WHERE changeId = ?`, changeID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check change id: %w", err)
	}
	return n > 0, nil
}

// GetEntityChange returns the current change for an entity, or nil when the
// entity has never been recorded.
func (q *queries) GetEntityChange(ctx context.Context, entityName, entityID string) (*notesync.EntityChange, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT `+entityChangeColumns+` FROM entity_changes WHERE entityName = ? AND entityId = ?`,
		entityName, entityID)
	ec, err := scanEntityChange(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get entity change %s/%s: %w", entityName, entityID, err)
	}
	return ec, nil
}

// PutEntityChange records ec as the current change for its entity, replacing
// any previous one. Empty fields are filled in: a fresh change id, the
// default component id, the local instance id and the current time.
// Returns the assigned change log id.
func (q *queries) PutEntityChange(ctx context.Context, ec notesync.EntityChange) (int64, error) {
	if ec.ChangeID == "" {
		ec.ChangeID = notesync.NewChangeID()
	}
	if ec.ComponentID == "" {
		ec.ComponentID = defaultComponentID
	}
	if ec.InstanceID == "" {
		ec.InstanceID = q.instanceID
	}
	if ec.UTCDateChanged == "" {
		ec.UTCDateChanged = notesync.NowUTC()
	}

	result, err := q.db.ExecContext(ctx, putEntityChangeSQL,
		ec.EntityName, ec.EntityID, ec.Hash, ec.IsErased, ec.ChangeID,
		ec.ComponentID, ec.InstanceID, ec.IsSynced, ec.UTCDateChanged)
	if err != nil {
		return 0, fmt.Errorf("put entity change %s/%s: %w", ec.EntityName, ec.EntityID, err)
	}
	return result.LastInsertId()
}

// PutEntityChangeWithInstanceID records ec attributed to instanceID.
func (q *queries) PutEntityChangeWithInstanceID(ctx context.Context, ec notesync.EntityChange, instanceID string) error {
	ec.InstanceID = instanceID
	_, err := q.PutEntityChange(ctx, ec)
	return err
}

// PutEntityChangeForOtherInstances re-queues ec as a new local change so every
// peer, the original sender included, pulls it again.
func (q *queries) PutEntityChangeForOtherInstances(ctx context.Context, ec notesync.EntityChange) error {
	ec.ChangeID = ""
	ec.InstanceID = ""
	_, err := q.PutEntityChange(ctx, ec)
	return err
}

// GetEntityChangesAfter returns synced changes with id > afterID in id order,
// up to limit.
func (q *queries) GetEntityChangesAfter(ctx context.Context, afterID int64, limit int) ([]notesync.EntityChange, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT `+entityChangeColumns+`
		FROM entity_changes
		WHERE isSynced = 1 AND id > ?
		ORDER BY id
		LIMIT ?`, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("query entity changes: %w", err)
	}
	defer rows.Close()

	var changes []notesync.EntityChange
	for rows.Next() {
		ec, err := scanEntityChange(rows)
		if err != nil {
			return nil, fmt.Errorf("scan entity change: %w", err)
		}
		changes = append(changes, *ec)
	}
	return changes, rows.Err()
}

// MaxSyncedEntityChangeID returns the highest synced change id, or 0.
func (q *queries) MaxSyncedEntityChangeID(ctx context.Context) (int64, error) {
	var id sql.NullInt64
	err := q.db.QueryRowContext(ctx,
		`SELECT MAX(id) FROM entity_changes WHERE isSynced = 1`).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("query max entity change id: %w", err)
	}
	return id.Int64, nil
}

// OutstandingPullCount returns how many synced changes after afterID were
// not produced by instanceID.
func (q *queries) OutstandingPullCount(ctx context.Context, instanceID string, afterID int64) (int64, error) {
	var n int64
	err := q.db.QueryRowContext(ctx, `
		SELECT COUNT(id) FROM entity_changes
		WHERE isSynced = 1 AND instanceId != ? AND id > ?`, instanceID, afterID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count outstanding changes: %w", err)
	}
	return n, nil
}

// GetChanged returns one page of a pull for the peer instanceID. Changes the
// peer produced itself are skipped; pages made up only of such changes are
// stepped over so the cursor always advances.
func (q *queries) GetChanged(ctx context.Context, instanceID string, lastEntityChangeID int64, limit int) (*notesync.ChangedResponse, error) {
	var filtered []notesync.EntityChange
	for {
		changes, err := q.GetEntityChangesAfter(ctx, lastEntityChangeID, limit)
		if err != nil {
			return nil, err
		}
		if len(changes) == 0 {
			break
		}
		for _, ec := range changes {
			if ec.InstanceID != instanceID {
				filtered = append(filtered, ec)
			}
		}
		if len(filtered) > 0 {
			break
		}
		lastEntityChangeID = changes[len(changes)-1].ID
	}

	records, err := q.GetEntityChangeRecords(ctx, filtered)
	if err != nil {
		return nil, err
	}
	if len(records) > 0 {
		lastEntityChangeID = records[len(records)-1].EntityChange.ID
	}

	outstanding, err := q.OutstandingPullCount(ctx, instanceID, lastEntityChangeID)
	if err != nil {
		return nil, err
	}

	if records == nil {
		records = []notesync.EntityChangeRecord{}
	}
	return &notesync.ChangedResponse{
		EntityChanges:        records,
		LastEntityChangeID:   lastEntityChangeID,
		OutstandingPullCount: outstanding,
	}, nil
}

// GetEntityChangeRecords pairs each change with its current row. Erased
// entities carry no row.
func (q *queries) GetEntityChangeRecords(ctx context.Context, changes []notesync.EntityChange) ([]notesync.EntityChangeRecord, error) {
	records := make([]notesync.EntityChangeRecord, 0, len(changes))
	for _, ec := range changes {
		rec := notesync.EntityChangeRecord{EntityChange: ec}
		if !ec.IsErased {
			row, err := q.GetEntityRow(ctx, ec.Kind(), ec.EntityID)
			if err != nil {
				return nil, fmt.Errorf("load %s/%s: %w", ec.EntityName, ec.EntityID, err)
			}
			rec.Entity = row
		}
		records = append(records, rec)
	}
	return records, nil
}

// EntityHashes returns per-sector digests of the synced change log, keyed by
// entity name and then by the first character of the entity id.
func (q *queries) EntityHashes(ctx context.Context) (map[string]map[string]string, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT entityName, entityId, hash, isErased
		FROM entity_changes
		WHERE isSynced = 1 AND entityName != 'note_reordering'
		ORDER BY entityId`)
	if err != nil {
		return nil, fmt.Errorf("query entity hashes: %w", err)
	}
	defer rows.Close()

	sectors := make(map[string]map[string]*strings.Builder)
	for rows.Next() {
		var name, id string
		var hash sql.NullString
		var erased notesync.Flag
		if err := rows.Scan(&name, &id, &hash, &erased); err != nil {
			return nil, fmt.Errorf("scan entity hash: %w", err)
		}
		if id == "" {
			continue
		}
		byName, ok := sectors[name]
		if !ok {
			byName = make(map[string]*strings.Builder)
			sectors[name] = byName
		}
		sector := id[:1]
		b, ok := byName[sector]
		if !ok {
			b = &strings.Builder{}
			byName[sector] = b
		}
		b.WriteString(id)
		b.WriteString(hash.String)
		if erased {
			b.WriteString("Y")
		} else {
			b.WriteString("N")
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	hashes := make(map[string]map[string]string, len(sectors))
	for name, byName := range sectors {
		hashes[name] = make(map[string]string, len(byName))
		for sector, b := range byName {
			hashes[name][sector] = sectorHash(b.String())
		}
	}
	return hashes, nil
}

// SectorNames returns the sorted sector keys of one entity name's hashes.
func SectorNames(hashes map[string]string) []string {
	keys := make([]string, 0, len(hashes))
	for k := range hashes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sectorHash(s string) string {
	sum := sha1.Sum([]byte(s))
	return base64.StdEncoding.EncodeToString(sum[:])[:10]
}
