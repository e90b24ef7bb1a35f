package store

import "errors"

var (
	// ErrNotFound is returned when a row or entity change does not exist.
	ErrNotFound = errors.New("entity not found")

	// ErrUnsupportedTable is returned when a row is written for an entity
	// kind that has no table in the replica schema.
	ErrUnsupportedTable = errors.New("entity has no backing table")

	// ErrSnapshotNotAvailable is returned before the first snapshot upload.
	ErrSnapshotNotAvailable = errors.New("snapshot not available")
)
