package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/hyperengineering/notesync/internal/api"
	"github.com/hyperengineering/notesync/internal/config"
	"github.com/hyperengineering/notesync/internal/events"
	"github.com/hyperengineering/notesync/internal/reconcile"
	"github.com/hyperengineering/notesync/internal/snapshot"
	"github.com/hyperengineering/notesync/internal/spool"
	"github.com/hyperengineering/notesync/internal/store"
	notesync "github.com/hyperengineering/notesync/internal/sync"
	"github.com/hyperengineering/notesync/internal/worker"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
)

// Version is set at build time via ldflags: -ldflags "-X main.Version=1.0.0"
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:          "notesync",
	Short:        "notesync - note replica sync server",
	Version:      Version,
	SilenceUsage: true,
	RunE:         run,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the sync HTTP server (default)",
	Args:  cobra.NoArgs,
	RunE:  run,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(applyCmd)
	rootCmd.AddCommand(changesCmd)
	rootCmd.AddCommand(checkCmd)
}

func run(cmd *cobra.Command, args []string) error {
	// 1. Signal handling
	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	// 2. Load configuration
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	slog.Info("configuration loaded")

	// 3. Initialize logger
	logger := newLogger(os.Stdout, cfg.Log)
	slog.SetDefault(logger)
	slog.Info("logger initialized", "level", cfg.Log.Level, "format", cfg.Log.Format)

	// 4. Initialize store (migrations, WAL mode)
	db, err := store.NewSQLiteStore(cfg.Database.Path, cfg.Instance.ID)
	if err != nil {
		return err
	}
	if cfg.Instance.ID == "" {
		slog.Warn("instance id generated; set NOTESYNC_INSTANCE_ID to keep it across restarts",
			"instance_id", db.InstanceID())
	}
	slog.Info("store initialized", "path", cfg.Database.Path, "instance_id", db.InstanceID())

	// 5. Initialize spool for paged uploads
	sp, err := spool.Open(cfg.Database.SpoolPath)
	if err != nil {
		db.Close()
		return err
	}
	slog.Info("spool initialized", "path", cfg.Database.SpoolPath)

	// 6. Initialize reconciliation engine
	bus := events.NewBus(logger)
	bus.Subscribe(notesync.EventEntityChangeSynced, events.LogHandler(logger))
	bus.Subscribe(notesync.EventEntityDeleteSynced, events.LogHandler(logger))
	progress := api.NewProgressTracker()
	engine := reconcile.New(reconcile.StoreTransactor(db),
		reconcile.WithEventSink(bus),
		reconcile.WithProgress(progress),
		reconcile.WithLogger(logger),
	)
	slog.Info("engine initialized", "events", bus.Names())

	// 7. Initialize snapshot storage
	uploader, err := snapshot.NewUploader(cfg.SnapshotStorage)
	if err != nil {
		return multierr.Combine(err, sp.Close(), db.Close())
	}

	// 8. Initialize HTTP router
	handler := api.NewHandler(db, engine, sp, cfg.Auth.APIKey, Version,
		api.WithProgressTracker(progress),
		api.WithUploader(uploader),
		api.WithPullBatchSize(cfg.Sync.PullBatchSize),
	)
	router := api.NewRouter(handler)
	slog.Info("router initialized")

	// 9. Configure HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout),
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout),
	}

	// 10. Start workers
	var wg sync.WaitGroup
	if interval := time.Duration(cfg.Worker.SnapshotInterval); interval > 0 {
		var snapUploader worker.SnapshotUploader
		if cfg.SnapshotStorage.Bucket != "" {
			snapUploader = uploader
		}
		startWorker(ctx, &wg, "snapshot", worker.NewSnapshotGenerationWorker(db, snapUploader, interval).Run)
	}
	if interval := time.Duration(cfg.Worker.SpoolCleanupInterval); interval > 0 {
		ttl := time.Duration(cfg.Sync.PartialRequestTTL)
		startWorker(ctx, &wg, "spool-cleanup", worker.NewSpoolCleanupWorker(sp, interval, ttl).Run)
	}

	// 11. Start HTTP server in goroutine
	go func() {
		slog.Info("server starting", "address", addr)
		// ErrServerClosed is the expected error when Shutdown() is called gracefully.
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			cancel()
		}
	}()

	// 12. Block until signal received
	<-ctx.Done()
	slog.Info("shutdown initiated")

	// 13. Graceful shutdown sequence
	shutdownCtx, shutdownCancel := context.WithTimeout(
		context.Background(),
		time.Duration(cfg.Server.ShutdownTimeout))
	defer shutdownCancel()

	// 13a. Stop HTTP server (drains in-flight requests)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	// 13b. Wait for workers to complete
	wg.Wait()

	// 13c. Close spool and store
	if err := closeAll(sp, db); err != nil {
		slog.Error("close error", "error", err)
		return err
	}

	slog.Info("shutdown complete")
	return nil
}

// closeAll closes every closer in order and combines their errors.
func closeAll(closers ...io.Closer) error {
	var err error
	for _, c := range closers {
		err = multierr.Append(err, c.Close())
	}
	return err
}

// newLogger builds the process logger from the log section. Format "text"
// selects the human-readable handler; anything else logs JSON.
func newLogger(w io.Writer, cfg config.LogConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Level)}
	if strings.EqualFold(cfg.Format, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// startWorker launches a background worker goroutine that respects context cancellation.
// Workers are tracked via WaitGroup for graceful shutdown.
func startWorker(ctx context.Context, wg *sync.WaitGroup, name string, fn func(ctx context.Context)) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		slog.Info("worker started", "worker", name)
		fn(ctx)
		slog.Info("worker stopped", "worker", name)
	}()
}
