package api

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// ProgressTracker records when a pushed batch last started applying new
// changes. It is the engine's progress notifier and feeds the health
// endpoint.
type ProgressTracker struct {
	mu       sync.Mutex
	lastPull time.Time
	pulls    int64
	now      func() time.Time
}

// NewProgressTracker creates a tracker with no recorded pulls.
func NewProgressTracker() *ProgressTracker {
	return &ProgressTracker{now: time.Now}
}

// SyncPullInProgress records the signal.
func (p *ProgressTracker) SyncPullInProgress(ctx context.Context) {
	p.mu.Lock()
	p.lastPull = p.now().UTC()
	p.pulls++
	n := p.pulls
	p.mu.Unlock()

	slog.DebugContext(ctx, "sync pull in progress",
		"component", "api",
		"action", "sync_pull_in_progress",
		"pulls", n,
	)
}

// LastPull returns the time of the latest signal and the number of signals
// seen. ok is false before the first one.
func (p *ProgressTracker) LastPull() (last time.Time, pulls int64, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastPull, p.pulls, p.pulls > 0
}
