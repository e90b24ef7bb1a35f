package api

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
)

// captureLogs routes the default logger into a buffer of JSON lines for the
// duration of the test.
func captureLogs(t *testing.T) *syncBuffer {
	t.Helper()
	buf := &syncBuffer{}
	old := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { slog.SetDefault(old) })
	return buf
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// entry returns the first logged record with the given message.
func (b *syncBuffer) entry(t *testing.T, msg string) map[string]any {
	t.Helper()
	for _, line := range strings.Split(strings.TrimSpace(b.String()), "\n") {
		var e map[string]any
		if err := json.Unmarshal([]byte(line), &e); err == nil && e["msg"] == msg {
			return e
		}
	}
	t.Fatalf("no %q log entry in %s", msg, b.String())
	return nil
}

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

// --- Auth ---

func TestAuthMiddleware(t *testing.T) {
	tests := []struct {
		name   string
		apiKey string
		header string
		want   int
	}{
		{"valid token", testAPIKey, "Bearer " + testAPIKey, http.StatusOK},
		{"missing header", testAPIKey, "", http.StatusUnauthorized},
		{"wrong token", testAPIKey, "Bearer nope", http.StatusUnauthorized},
		{"scheme is case sensitive", testAPIKey, "bearer " + testAPIKey, http.StatusUnauthorized},
		{"token without scheme", testAPIKey, testAPIKey, http.StatusUnauthorized},
		{"whitespace token", testAPIKey, "Bearer    ", http.StatusUnauthorized},
		{"dev mode admits anonymous", "", "", http.StatusOK},
		{"dev mode rejects a token", "", "Bearer " + testAPIKey, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/sync/check", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()

			AuthMiddleware(tt.apiKey)(okHandler).ServeHTTP(rec, req)

			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestAuthMiddleware_FailureIsLoggedWithoutKey(t *testing.T) {
	logs := captureLogs(t)

	handler := middleware.RequestID(AuthMiddleware(testAPIKey)(okHandler))
	req := httptest.NewRequest(http.MethodPut, "/api/v1/sync/update", nil)
	req.Header.Set("Authorization", "Bearer guess")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if strings.Contains(rec.Body.String(), testAPIKey) || strings.Contains(logs.String(), testAPIKey) {
		t.Error("API key leaked into the response or logs")
	}
	e := logs.entry(t, "auth failure")
	if e["path"] != "/api/v1/sync/update" || e["component"] != "api" {
		t.Errorf("auth failure entry = %v", e)
	}
	if id, _ := e["request_id"].(string); id == "" {
		t.Error("auth failure entry has no request_id")
	}
}

func TestAuthMiddleware_ProtectsSyncRoutesOnly(t *testing.T) {
	ts := newTestServer(t)

	for _, target := range []string{"/api/v1/sync/changed?instanceId=x", "/api/v1/sync/check", "/api/v1/sync/stats", "/api/v1/snapshot"} {
		rec := httptest.NewRecorder()
		ts.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("GET %s without token = %d, want 401", target, rec.Code)
		}
	}

	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("GET /api/v1/health without token = %d, want 200", rec.Code)
	}
}

// --- Logging ---

func TestLogLevelForStatus(t *testing.T) {
	tests := []struct {
		status int
		want   slog.Level
	}{
		{http.StatusOK, slog.LevelInfo},
		{http.StatusAccepted, slog.LevelInfo},
		{http.StatusTemporaryRedirect, slog.LevelInfo},
		{http.StatusConflict, slog.LevelWarn},
		{http.StatusRequestEntityTooLarge, slog.LevelWarn},
		{http.StatusInternalServerError, slog.LevelError},
		{http.StatusServiceUnavailable, slog.LevelError},
	}
	for _, tt := range tests {
		if got := logLevelForStatus(tt.status); got != tt.want {
			t.Errorf("logLevelForStatus(%d) = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestLoggingMiddleware_RecordsRequest(t *testing.T) {
	logs := captureLogs(t)

	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})
	handler := middleware.RequestID(LoggingMiddleware(inner))
	req := httptest.NewRequest(http.MethodPut, "/api/v1/sync/update", nil)
	req.Header.Set("Authorization", "Bearer "+testAPIKey)

	handler.ServeHTTP(httptest.NewRecorder(), req)

	e := logs.entry(t, "request completed")
	if e["level"] != "INFO" {
		t.Errorf("level = %v, want INFO", e["level"])
	}
	if e["status"] != float64(http.StatusAccepted) || e["method"] != http.MethodPut {
		t.Errorf("entry = %v, want PUT with status 202", e)
	}
	if id, _ := e["request_id"].(string); id == "" {
		t.Error("request entry has no request_id")
	}
	if strings.Contains(logs.String(), testAPIKey) {
		t.Error("Authorization header leaked into request log")
	}
}

func TestLoggingMiddleware_FirstWriteHeaderWins(t *testing.T) {
	logs := captureLogs(t)

	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.WriteHeader(http.StatusOK)
	})

	LoggingMiddleware(inner).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPut, "/api/v1/sync/update", nil))

	e := logs.entry(t, "request completed")
	if e["status"] != float64(http.StatusConflict) || e["level"] != "WARN" {
		t.Errorf("entry = %v, want status 409 at WARN", e)
	}
}

func TestLoggingMiddleware_BodyWithoutHeaderIs200(t *testing.T) {
	logs := captureLogs(t)

	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"healthy"}`))
		w.WriteHeader(http.StatusInternalServerError)
	})

	LoggingMiddleware(inner).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

	if e := logs.entry(t, "request completed"); e["status"] != float64(http.StatusOK) {
		t.Errorf("status = %v, want 200 once the body was written", e["status"])
	}
}

// --- Recovery ---

func TestRecoveryMiddleware_PanicBecomesProblem(t *testing.T) {
	logs := captureLogs(t)

	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("spool bucket missing: secret-detail")
	})
	rec := httptest.NewRecorder()

	RecoveryMiddleware(inner).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/sync/check", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	var p Problem
	if err := json.Unmarshal(rec.Body.Bytes(), &p); err != nil {
		t.Fatal(err)
	}
	if p.Type != problemBase+"internal-error" {
		t.Errorf("type = %q, want internal-error", p.Type)
	}
	if strings.Contains(rec.Body.String(), "secret-detail") {
		t.Error("panic value leaked into the response")
	}
	if e := logs.entry(t, "panic recovered"); !strings.Contains(e["error"].(string), "secret-detail") {
		t.Errorf("panic entry = %v, want the panic value logged", e)
	}
}

func TestRecoveryMiddleware_AbortHandlerIsRethrown(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(http.ErrAbortHandler)
	})

	defer func() {
		if got := recover(); got != http.ErrAbortHandler {
			t.Errorf("recovered %v, want http.ErrAbortHandler", got)
		}
	}()
	RecoveryMiddleware(inner).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/snapshot", nil))
	t.Error("expected the abort panic to propagate")
}

func TestGetRequestID(t *testing.T) {
	var got string
	handler := middleware.RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = GetRequestID(r.Context())
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

	if got == "" {
		t.Error("GetRequestID() = empty inside chi RequestID middleware")
	}
	if id := GetRequestID(httptest.NewRequest(http.MethodGet, "/", nil).Context()); id != "" {
		t.Errorf("GetRequestID() = %q without middleware, want empty", id)
	}
}
