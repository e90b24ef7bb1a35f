package main

import (
	"fmt"
	"sort"

	"github.com/hyperengineering/notesync/internal/store"
	notesync "github.com/hyperengineering/notesync/internal/sync"
	"github.com/spf13/cobra"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Print per-sector entity hashes of the change log",
	Args:  cobra.NoArgs,
	RunE:  runCheck,
}

func init() {
	addStoreFlags(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	hashes, err := db.EntityHashes(ctx)
	if err != nil {
		return err
	}
	maxID, err := db.MaxSyncedEntityChangeID(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()

	if jsonOutput {
		return printJSON(out, notesync.CheckResponse{EntityHashes: hashes, MaxEntityChangeID: maxID})
	}

	fmt.Fprintf(out, "Max synced change: %d\n", maxID)
	if len(hashes) == 0 {
		fmt.Fprintln(out, "No synced entities.")
		return nil
	}

	names := make([]string, 0, len(hashes))
	for name := range hashes {
		names = append(names, name)
	}
	sort.Strings(names)

	w := newTabWriter(out)
	fmt.Fprintln(w, "ENTITY\tSECTOR\tHASH")
	for _, name := range names {
		for _, sector := range store.SectorNames(hashes[name]) {
			fmt.Fprintf(w, "%s\t%s\t%s\n", name, sector, hashes[name][sector])
		}
	}
	return w.Flush()
}
