//go:build e2e

package e2e

import (
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"
)

// notesyncServer manages a running notesync server process.
type notesyncServer struct {
	cmd     *exec.Cmd
	dataDir string
	address string
	apiKey  string
	logFile string
}

// startNotesync launches the notesync binary and waits for it to become
// healthy. The server is configured entirely via environment variables.
func startNotesync(t *testing.T, instanceID string) *notesyncServer {
	t.Helper()

	if notesyncBin == "" {
		t.Skip("notesync binary not available (set NOTESYNC_BIN or add to PATH)")
	}

	dataDir := t.TempDir()
	port := freePort(t)
	logFile := filepath.Join(dataDir, "notesync.log")

	cmd := exec.Command(notesyncBin, "serve")
	cmd.Env = append(os.Environ(),
		fmt.Sprintf("NOTESYNC_PORT=%d", port),
		"NOTESYNC_DB_PATH="+filepath.Join(dataDir, "notesync.db"),
		"NOTESYNC_SPOOL_PATH="+filepath.Join(dataDir, "partial.db"),
		"NOTESYNC_API_KEY="+testAPIKey,
		"NOTESYNC_INSTANCE_ID="+instanceID,
		"NOTESYNC_CONFIG_PATH="+filepath.Join(dataDir, "nonexistent.yaml"),
	)

	lf, err := os.Create(logFile)
	if err != nil {
		t.Fatalf("create log file: %v", err)
	}
	cmd.Stdout = lf
	cmd.Stderr = lf

	if err := cmd.Start(); err != nil {
		lf.Close()
		t.Fatalf("start notesync: %v", err)
	}

	s := &notesyncServer{
		cmd:     cmd,
		dataDir: dataDir,
		address: fmt.Sprintf("127.0.0.1:%d", port),
		apiKey:  testAPIKey,
		logFile: logFile,
	}

	t.Cleanup(func() {
		s.stop()
		lf.Close()
	})

	if err := s.waitHealthy(10 * time.Second); err != nil {
		if data, rerr := os.ReadFile(logFile); rerr == nil {
			t.Logf("server log:\n%s", data)
		}
		t.Fatalf("notesync not healthy: %v", err)
	}

	return s
}

func (s *notesyncServer) stop() {
	if s.cmd != nil && s.cmd.Process != nil {
		_ = s.cmd.Process.Signal(os.Interrupt)
		_ = s.cmd.Wait()
	}
}

func (s *notesyncServer) baseURL() string {
	return "http://" + s.address
}

func (s *notesyncServer) waitHealthy(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	url := s.baseURL() + "/api/v1/health"

	for time.Now().Before(deadline) {
		resp, err := http.Get(url)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("notesync not healthy after %s", timeout)
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("free port: %v", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}
