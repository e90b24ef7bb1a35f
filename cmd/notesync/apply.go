package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/hyperengineering/notesync/internal/events"
	"github.com/hyperengineering/notesync/internal/reconcile"
	notesync "github.com/hyperengineering/notesync/internal/sync"
	"github.com/hyperengineering/notesync/internal/validation"
	"github.com/spf13/cobra"
)

var applyInstanceID string

var applyCmd = &cobra.Command{
	Use:   "apply <file>",
	Short: "Reconcile a JSON batch file into the local replica",
	Long: `Reconcile a sync batch ({"instanceId": ..., "entities": [...]}) into the
local replica without running the server. Use "-" to read from stdin.`,
	Args: cobra.ExactArgs(1),
	RunE: runApply,
}

func init() {
	addStoreFlags(applyCmd)
	applyCmd.Flags().StringVar(&applyInstanceID, "instance", "",
		"Origin instance id (overrides the file's instanceId)")
}

func runApply(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	req, err := readUpdateRequest(cmd.InOrStdin(), args[0])
	if err != nil {
		return err
	}
	if applyInstanceID != "" {
		req.InstanceID = applyInstanceID
	}

	if errs := validation.ValidateUpdateRequest(req); len(errs) > 0 {
		msgs := make([]string, len(errs))
		for i, e := range errs {
			msgs[i] = e.Field + ": " + e.Message
		}
		return fmt.Errorf("invalid batch: %s", strings.Join(msgs, "; "))
	}

	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelWarn}))
	bus := events.NewBus(logger)
	var changed, deleted int
	bus.Subscribe(notesync.EventEntityChangeSynced, func(_ context.Context, _ notesync.Event) { changed++ })
	bus.Subscribe(notesync.EventEntityDeleteSynced, func(_ context.Context, _ notesync.Event) { deleted++ })

	engine := reconcile.New(reconcile.StoreTransactor(db),
		reconcile.WithEventSink(bus),
		reconcile.WithLogger(logger),
	)
	summary, err := engine.ReconcileBatch(ctx, req.Entities, req.InstanceID)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		return printJSON(out, summary)
	}

	fmt.Fprintf(out, "Applied %d entity changes from %s\n", len(req.Entities), req.InstanceID)
	fmt.Fprintf(out, "Updated:         %d\n", summary.UpdatedCount())
	fmt.Fprintf(out, "Already updated: %d\n", summary.AlreadyUpdated)
	fmt.Fprintf(out, "Erased:          %d\n", summary.Erased)
	fmt.Fprintf(out, "Already erased:  %d\n", summary.AlreadyErased)
	fmt.Fprintf(out, "Events:          %d changed, %d deleted\n", changed, deleted)
	return nil
}

// readUpdateRequest decodes a batch from path, or from stdin when path is "-".
func readUpdateRequest(stdin io.Reader, path string) (notesync.UpdateRequest, error) {
	var req notesync.UpdateRequest

	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return req, fmt.Errorf("read batch: %w", err)
	}

	if err := json.Unmarshal(data, &req); err != nil {
		return req, fmt.Errorf("parse batch: %w", err)
	}
	return req, nil
}
