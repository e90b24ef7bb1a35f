package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	notesync "github.com/hyperengineering/notesync/internal/sync"
)

// ReplaceRow writes row into its table, replacing any existing row with the
// same primary key. Every column is written from the row.
func (q *queries) ReplaceRow(ctx context.Context, row notesync.Row) error {
	tableRow, ok := row.(notesync.TableRow)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedTable, row.Kind())
	}
	schema, ok := notesync.SchemaFor(row.Kind())
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedTable, row.Kind())
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(schema.Columns)), ", ")
	sqlStr := fmt.Sprintf(
		"INSERT OR REPLACE INTO %s (%s) VALUES (%s)",
		schema.Name,
		strings.Join(schema.Columns, ", "),
		placeholders,
	)

	if _, err := q.db.ExecContext(ctx, sqlStr, tableRow.Values()...); err != nil {
		return fmt.Errorf("replace %s row %s: %w", schema.Name, row.EntityID(), err)
	}
	return nil
}

// DeleteRow physically removes the row of kind identified by entityID.
// Deleting a missing row is not an error.
func (q *queries) DeleteRow(ctx context.Context, kind notesync.EntityKind, entityID string) error {
	schema, ok := notesync.SchemaFor(kind)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedTable, kind)
	}

	sqlStr := fmt.Sprintf("DELETE FROM %s WHERE %s = ?", schema.Name, schema.PrimaryKey)
	if _, err := q.db.ExecContext(ctx, sqlStr, entityID); err != nil {
		return fmt.Errorf("delete %s row %s: %w", schema.Name, entityID, err)
	}
	return nil
}

// SetNotePositions updates notePosition for each listed branch. Branches that
// do not exist locally are ignored.
func (q *queries) SetNotePositions(ctx context.Context, positions notesync.NoteReordering) error {
	branchIDs := make([]string, 0, len(positions))
	for id := range positions {
		branchIDs = append(branchIDs, id)
	}
	sort.Strings(branchIDs)

	for _, id := range branchIDs {
		_, err := q.db.ExecContext(ctx,
			`UPDATE branches SET notePosition = ? WHERE branchId = ?`, positions[id], id)
		if err != nil {
			return fmt.Errorf("set position of branch %s: %w", id, err)
		}
	}
	return nil
}

// GetEmbeddingModified returns the utcDateModified of a local embedding.
// The bool is false when the embedding does not exist.
func (q *queries) GetEmbeddingModified(ctx context.Context, embedID string) (string, bool, error) {
	var modified string
	err := q.db.QueryRowContext(ctx,
		`SELECT utcDateModified FROM note_embeddings WHERE embedId = ?`, embedID).Scan(&modified)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get embedding %s: %w", embedID, err)
	}
	return modified, true, nil
}

// GetEntityRow loads the current row for an entity. For note_reordering the
// entity id names a parent note and the result maps each of its live
// branches to their position. Returns ErrNotFound when no row exists.
func (q *queries) GetEntityRow(ctx context.Context, kind notesync.EntityKind, entityID string) (notesync.Row, error) {
	if kind == notesync.KindNoteReordering {
		return q.getNotePositions(ctx, entityID)
	}

	schema, ok := notesync.SchemaFor(kind)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedTable, kind)
	}
	row, _ := notesync.NewTableRow(kind)

	sqlStr := fmt.Sprintf("SELECT %s FROM %s WHERE %s = ?",
		strings.Join(schema.Columns, ", "), schema.Name, schema.PrimaryKey)
	err := q.db.QueryRowContext(ctx, sqlStr, entityID).Scan(row.Fields()...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s %s: %w", schema.Name, entityID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get %s row %s: %w", schema.Name, entityID, err)
	}
	return row, nil
}

func (q *queries) getNotePositions(ctx context.Context, parentNoteID string) (notesync.NoteReordering, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT branchId, notePosition FROM branches
		WHERE parentNoteId = ? AND isDeleted = 0`, parentNoteID)
	if err != nil {
		return nil, fmt.Errorf("query positions under %s: %w", parentNoteID, err)
	}
	defer rows.Close()

	positions := make(notesync.NoteReordering)
	for rows.Next() {
		var id string
		var pos int
		if err := rows.Scan(&id, &pos); err != nil {
			return nil, fmt.Errorf("scan branch position: %w", err)
		}
		positions[id] = pos
	}
	return positions, rows.Err()
}
