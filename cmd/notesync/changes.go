package main

import (
	"fmt"

	notesync "github.com/hyperengineering/notesync/internal/sync"
	"github.com/spf13/cobra"
)

var (
	changesAfter int64
	changesLimit int
)

var changesCmd = &cobra.Command{
	Use:   "changes",
	Short: "List change log rows after a cursor",
	Args:  cobra.NoArgs,
	RunE:  runChanges,
}

func init() {
	addStoreFlags(changesCmd)
	changesCmd.Flags().Int64Var(&changesAfter, "after", 0, "List changes with id greater than this")
	changesCmd.Flags().IntVar(&changesLimit, "limit", 100, "Maximum number of changes to list")
}

func runChanges(cmd *cobra.Command, args []string) error {
	if changesLimit <= 0 {
		return fmt.Errorf("--limit must be positive, got %d", changesLimit)
	}

	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	changes, err := db.GetEntityChangesAfter(cmd.Context(), changesAfter, changesLimit)
	if err != nil {
		return err
	}
	if changes == nil {
		changes = []notesync.EntityChange{}
	}

	out := cmd.OutOrStdout()

	if jsonOutput {
		return printJSON(out, changes)
	}

	if len(changes) == 0 {
		fmt.Fprintln(out, "No changes found.")
		return nil
	}

	w := newTabWriter(out)
	fmt.Fprintln(w, "ID\tENTITY\tENTITY ID\tCHANGED\tINSTANCE\tERASED")
	for _, ec := range changes {
		erased := ""
		if ec.IsErased {
			erased = "yes"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
			ec.ID, ec.EntityName, ec.EntityID, ec.UTCDateChanged, ec.InstanceID, erased)
	}
	return w.Flush()
}
