package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hyperengineering/notesync/internal/config"
	"go.uber.org/multierr"
)

// logCapture captures slog output for testing
type logCapture struct {
	mu      sync.Mutex
	entries []map[string]any
}

func (c *logCapture) handler() slog.Handler {
	return slog.NewJSONHandler(c, &slog.HandlerOptions{Level: slog.LevelDebug})
}

func (c *logCapture) Write(p []byte) (n int, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var entry map[string]any
	if err := json.Unmarshal(p, &entry); err == nil {
		c.entries = append(c.entries, entry)
	}
	return len(p), nil
}

func (c *logCapture) hasMessage(msg string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.entries {
		if e["msg"] == msg {
			return true
		}
	}
	return false
}

func (c *logCapture) hasAttr(key, value string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.entries {
		if v, ok := e[key].(string); ok && v == value {
			return true
		}
	}
	return false
}

func captureDefault(t *testing.T) *logCapture {
	t.Helper()
	capture := &logCapture{}
	old := slog.Default()
	slog.SetDefault(slog.New(capture.handler()))
	t.Cleanup(func() { slog.SetDefault(old) })
	return capture
}

// TestStartWorker_LaunchesGoroutineAndTracksCompletion tests the startWorker helper
func TestStartWorker_LaunchesGoroutineAndTracksCompletion(t *testing.T) {
	capture := captureDefault(t)

	var wg sync.WaitGroup
	ctx, cancel := context.WithCancel(context.Background())

	started := make(chan struct{})
	startWorker(ctx, &wg, "spool-cleanup", func(ctx context.Context) {
		close(started)
		<-ctx.Done()
	})

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("worker function was not called")
	}

	cancel()
	wg.Wait()

	if !capture.hasMessage("worker started") {
		t.Error("expected 'worker started' log message")
	}
	if !capture.hasMessage("worker stopped") {
		t.Error("expected 'worker stopped' log message")
	}
	if !capture.hasAttr("worker", "spool-cleanup") {
		t.Error("expected log entry with worker='spool-cleanup' attribute")
	}
}

// TestWorkerWaitGroupIntegration verifies workers are waited on during shutdown
func TestWorkerWaitGroupIntegration(t *testing.T) {
	var wg sync.WaitGroup
	ctx, cancel := context.WithCancel(context.Background())

	var completed atomic.Bool
	startWorker(ctx, &wg, "snapshot", func(ctx context.Context) {
		<-ctx.Done()
		time.Sleep(20 * time.Millisecond) // in-flight snapshot
		completed.Store(true)
	})

	cancel()
	wg.Wait()

	if !completed.Load() {
		t.Error("wg.Wait() returned before worker completed")
	}
}

// fakeCloser records close order and returns err.
type fakeCloser struct {
	name  string
	err   error
	order *[]string
}

func (f fakeCloser) Close() error {
	*f.order = append(*f.order, f.name)
	return f.err
}

func TestCloseAll_ClosesEverythingInOrder(t *testing.T) {
	var order []string
	spoolErr := errors.New("spool: close failed")

	err := closeAll(
		fakeCloser{name: "spool", err: spoolErr, order: &order},
		fakeCloser{name: "store", order: &order},
	)

	if strings.Join(order, ",") != "spool,store" {
		t.Errorf("close order = %v, want [spool store]", order)
	}
	if !errors.Is(err, spoolErr) {
		t.Errorf("closeAll() error = %v, want %v", err, spoolErr)
	}
}

func TestCloseAll_CombinesErrors(t *testing.T) {
	var order []string
	errA := errors.New("a")
	errB := errors.New("b")

	err := closeAll(
		fakeCloser{name: "a", err: errA, order: &order},
		fakeCloser{name: "b", err: errB, order: &order},
	)

	if got := len(multierr.Errors(err)); got != 2 {
		t.Fatalf("combined errors = %d, want 2", got)
	}
	if !errors.Is(err, errA) || !errors.Is(err, errB) {
		t.Errorf("closeAll() error = %v, want both a and b", err)
	}
}

func TestCloseAll_NoErrors(t *testing.T) {
	var order []string
	if err := closeAll(fakeCloser{name: "only", order: &order}); err != nil {
		t.Errorf("closeAll() error = %v, want nil", err)
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := parseLogLevel(tt.in); got != tt.want {
			t.Errorf("parseLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewLogger_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, config.LogConfig{Level: "info", Format: "json"})

	logger.Info("store initialized", "component", "store")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %q", buf.String())
	}
	if entry["component"] != "store" {
		t.Errorf("component = %v, want store", entry["component"])
	}
}

func TestNewLogger_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, config.LogConfig{Level: "info", Format: "TEXT"})

	logger.Info("store initialized", "component", "store")

	if !strings.Contains(buf.String(), "component=store") {
		t.Errorf("text output = %q, want component=store", buf.String())
	}
}

func TestNewLogger_RespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, config.LogConfig{Level: "warn", Format: "json"})

	logger.Info("dropped")
	logger.Debug("dropped")

	if buf.Len() != 0 {
		t.Errorf("expected no output below warn, got %q", buf.String())
	}
}
