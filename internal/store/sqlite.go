package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	notesync "github.com/hyperengineering/notesync/internal/sync"
	_ "modernc.org/sqlite"
)

// execContext is satisfied by both *sql.DB and *sql.Tx.
type execContext interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queries holds every statement shared by the store and its transactions.
type queries struct {
	db         execContext
	instanceID string
}

// SQLiteStore represents the SQLite-backed replica: entity tables plus the
// entity change log.
type SQLiteStore struct {
	queries
	sqlDB  *sql.DB
	dbPath string
}

// Tx is a write transaction against the replica. All statements of one
// reconciled batch run through the same Tx.
type Tx struct {
	queries
}

// NewSQLiteStore creates a new SQLiteStore instance.
// It initializes the database with WAL mode, applies pragmas, and runs migrations.
// instanceID identifies this replica in the change log; an empty value
// generates one.
func NewSQLiteStore(dbPath, instanceID string) (*SQLiteStore, error) {
	// Ensure parent directory exists
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One connection keeps :memory: databases coherent and serializes writers.
	db.SetMaxOpenConns(1)

	// Enable pragmas for performance and safety
	if err := enablePragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable pragmas: %w", err)
	}

	// Run goose migrations
	if err := RunMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	if instanceID == "" {
		instanceID = notesync.NewInstanceID()
	}

	return &SQLiteStore{
		queries: queries{db: db, instanceID: instanceID},
		sqlDB:   db,
		dbPath:  dbPath,
	}, nil
}

// enablePragmas sets SQLite pragmas for optimal performance and safety.
func enablePragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA synchronous=NORMAL",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %s: %w", pragma, err)
		}
	}

	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.sqlDB.Close()
}

// InstanceID returns the local instance id.
func (s *SQLiteStore) InstanceID() string {
	return s.instanceID
}

// InTx runs fn inside a single transaction. The transaction commits when fn
// returns nil and rolls back otherwise.
func (s *SQLiteStore) InTx(ctx context.Context, fn func(tx *Tx) error) error {
	sqlTx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&Tx{queries: queries{db: sqlTx, instanceID: s.instanceID}}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// GetStats returns row counts for the change log.
func (s *SQLiteStore) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{InstanceID: s.instanceID}
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(isErased), 0), COALESCE(MAX(id), 0)
		FROM entity_changes`).Scan(&stats.EntityChanges, &stats.ErasedChanges, &stats.MaxEntityChangeID)
	if err != nil {
		return nil, fmt.Errorf("query stats: %w", err)
	}
	if stats.SchemaVersion, err = SchemaVersion(s.sqlDB); err != nil {
		return nil, err
	}
	return stats, nil
}

// snapshotDir returns the directory snapshots are written to.
func (s *SQLiteStore) snapshotDir() string {
	if s.dbPath == ":memory:" {
		return filepath.Join(os.TempDir(), "notesync-snapshots-"+s.instanceID)
	}
	return filepath.Join(filepath.Dir(s.dbPath), "snapshots")
}

// GenerateSnapshot writes a consistent copy of the database using VACUUM INTO.
// The copy is written to a temporary file and renamed over the previous
// snapshot so readers never observe a partial file.
func (s *SQLiteStore) GenerateSnapshot(ctx context.Context) error {
	dir := s.snapshotDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create snapshot directory: %w", err)
	}

	tmpPath := filepath.Join(dir, "current.db.tmp")
	if err := os.Remove(tmpPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove stale snapshot: %w", err)
	}

	// VACUUM INTO creates a clean, self-contained copy (WAL-safe, non-blocking)
	if _, err := s.sqlDB.ExecContext(ctx, "VACUUM INTO ?", tmpPath); err != nil {
		return fmt.Errorf("vacuum into: %w", err)
	}

	if err := os.Rename(tmpPath, filepath.Join(dir, "current.db")); err != nil {
		return fmt.Errorf("rename snapshot: %w", err)
	}
	return nil
}

// GetSnapshotPath returns the path to the current snapshot file.
// Returns ErrSnapshotNotAvailable if no snapshot has been generated.
func (s *SQLiteStore) GetSnapshotPath(ctx context.Context) (string, error) {
	path := filepath.Join(s.snapshotDir(), "current.db")
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return "", ErrSnapshotNotAvailable
		}
		return "", fmt.Errorf("stat snapshot: %w", err)
	}
	return path, nil
}
