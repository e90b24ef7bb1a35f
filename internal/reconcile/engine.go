// Package reconcile applies batches of entity changes received from a peer
// to the local replica using last-write-wins on utcDateChanged.
package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	notesync "github.com/hyperengineering/notesync/internal/sync"
)

// Engine reconciles inbound batches. Batches are serialized; entries within a
// batch are applied in delivery order inside a single transaction.
type Engine struct {
	tx       Transactor
	events   EventSink
	progress ProgressNotifier
	eraser   Eraser
	logger   *slog.Logger

	mu sync.Mutex
}

// Option configures an Engine.
type Option func(*Engine)

// WithEventSink sets the sink for ENTITY_CHANGE_SYNCED / ENTITY_DELETE_SYNCED.
func WithEventSink(s EventSink) Option {
	return func(e *Engine) { e.events = s }
}

// WithProgress sets the sync-pull-in-progress notifier.
func WithProgress(p ProgressNotifier) Option {
	return func(e *Engine) { e.progress = p }
}

// WithEraser replaces the default allow-list eraser.
func WithEraser(er Eraser) Option {
	return func(e *Engine) { e.eraser = er }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// New creates an Engine writing through tx.
func New(tx Transactor, opts ...Option) *Engine {
	e := &Engine{
		tx:       tx,
		events:   nopSink{},
		progress: nopProgress{},
		eraser:   AllowListEraser{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// batch carries the state of one ReconcileBatch call.
type batch struct {
	*Engine
	replica    Replica
	instanceID string
	summary    *notesync.Summary
	events     []notesync.Event
	signalled  bool
}

// ReconcileBatch applies records received from the peer instanceID. The whole
// batch commits or rolls back as a unit; events are published after commit.
func (e *Engine) ReconcileBatch(ctx context.Context, records []notesync.EntityChangeRecord, instanceID string) (*notesync.Summary, error) {
	summary := notesync.NewSummary()
	if len(records) == 0 {
		return summary, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	var events []notesync.Event
	err := e.tx.InTx(ctx, func(r Replica) error {
		b := &batch{
			Engine:     e,
			replica:    r,
			instanceID: instanceID,
			summary:    notesync.NewSummary(),
		}
		for _, rec := range records {
			if err := b.apply(ctx, rec); err != nil {
				return &EntryError{
					EntityName: rec.EntityChange.EntityName,
					EntityID:   rec.EntityChange.EntityID,
					Err:        err,
				}
			}
		}
		summary = b.summary
		events = b.events
		return nil
	})
	if err != nil {
		e.logger.Error("sync batch failed",
			"component", "reconcile",
			"action", "reconcile_batch",
			"instance_id", instanceID,
			"entries", len(records),
			"error", err,
		)
		return nil, err
	}

	for _, ev := range events {
		e.events.Publish(ctx, ev)
	}

	e.logger.Info("sync batch applied",
		"component", "reconcile",
		"action", "reconcile_batch",
		"instance_id", instanceID,
		"entries", len(records),
		"summary", summary,
	)
	return summary, nil
}

// apply handles one entry: idempotency check, strategy dispatch and event
// buffering.
func (b *batch) apply(ctx context.Context, rec notesync.EntityChangeRecord) error {
	remote := rec.EntityChange

	seen, err := b.replica.ChangeIDExists(ctx, remote.ChangeID)
	if err != nil {
		return err
	}
	if seen {
		b.summary.AlreadyUpdated++
		return nil
	}

	if !b.signalled {
		b.progress.SyncPullInProgress(ctx)
		b.signalled = true
	}

	kind := remote.Kind()
	if rec.Entity == nil && kind == notesync.KindOptions {
		// Local-only options travel without a row.
		return nil
	}

	var res result
	switch kind.Strategy() {
	case notesync.StrategyReordering:
		res, err = b.applyReordering(ctx, rec)
	case notesync.StrategyEmbeddings:
		res, err = b.applyEmbedding(ctx, rec)
	default:
		res, err = b.applyGeneric(ctx, rec)
	}
	if err != nil {
		return err
	}

	if res.applied {
		b.announce(remote, res.row)
	}
	return nil
}

// result is the outcome of one strategy. row is the row as written, or the
// inbound row when nothing was written.
type result struct {
	applied bool
	row     notesync.Row
}

func (b *batch) announce(remote notesync.EntityChange, row notesync.Row) {
	switch {
	case row != nil && notesync.Deleted(row), bool(remote.IsErased):
		if remote.Kind() == notesync.KindOptions {
			return
		}
		b.events = append(b.events, notesync.Event{
			Name:       notesync.EventEntityDeleteSynced,
			EntityName: remote.EntityName,
			EntityID:   remote.EntityID,
		})
	default:
		b.events = append(b.events, notesync.Event{
			Name:       notesync.EventEntityChangeSynced,
			EntityName: remote.EntityName,
			EntityID:   remote.EntityID,
			Row:        row,
		})
	}
}

// erase runs the eraser. Unsupported kinds are logged and swallowed.
func (b *batch) erase(ctx context.Context, ec notesync.EntityChange) error {
	err := b.eraser.Erase(ctx, b.replica, ec.EntityName, ec.EntityID)
	if errors.Is(err, ErrUnsupportedEntity) {
		b.logger.Error("cannot erase entity",
			"component", "reconcile",
			"action", "erase",
			"entity_name", ec.EntityName,
			"entity_id", ec.EntityID,
			"error", err,
		)
		return nil
	}
	return err
}

func (b *batch) stamp(ctx context.Context, ec notesync.EntityChange) error {
	return b.replica.PutEntityChangeWithInstanceID(ctx, ec, b.instanceID)
}
