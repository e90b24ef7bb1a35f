package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/hyperengineering/notesync/internal/config"
	"github.com/hyperengineering/notesync/internal/store"
	"github.com/spf13/cobra"
)

// Flags shared by the offline commands.
var (
	dbPathOverride string
	jsonOutput     bool
)

// addStoreFlags registers the flags every offline command accepts.
func addStoreFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&dbPathOverride, "db", "",
		"Database path (overrides config and NOTESYNC_DB_PATH)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false,
		"Output in JSON format")
}

// openStore opens the replica database named by --db or, failing that, by
// configuration. Offline commands do not need an API key.
func openStore() (*store.SQLiteStore, error) {
	cfg, err := config.LoadUnvalidated()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	path := dbPathOverride
	if path == "" {
		path = cfg.Database.Path
	}
	return store.NewSQLiteStore(path, cfg.Instance.ID)
}

// printJSON marshals v to JSON and writes to the given writer.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// newTabWriter returns a configured tabwriter for aligned columns.
func newTabWriter(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
}
