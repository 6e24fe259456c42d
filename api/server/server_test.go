package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dbmon/internal/config"
	"dbmon/internal/monitor"
)

const sampleJSONL = `{"event_type":"blocking","payload":{"blocking_session_id":51,"wait_time_ms":12000}}
{"event_type":"cpu_memory","payload":{"cpu_percent":95}}
`

const sampleRules = `
rules:
  - id: "cpu-pressure"
    event_type: "cpu_memory"
    field: "cpu_percent"
    op: ">="
    value: 90
    severity: "critical"
    message: "CPU at or above 90%"
`

// testServer wires a mock-mode service without a store: nil-store reads
// come back empty, and indexing is a no-op.
func testServer(t *testing.T) *Server {
	t.Helper()
	dir := t.TempDir()
	samplePath := filepath.Join(dir, "sample.jsonl")
	rulesPath := filepath.Join(dir, "rules.yaml")
	require.NoError(t, os.WriteFile(samplePath, []byte(sampleJSONL), 0644))
	require.NoError(t, os.WriteFile(rulesPath, []byte(sampleRules), 0644))

	cfg := config.Load()
	cfg.Collector.Mode = config.ModeMock
	cfg.Collector.SamplePath = samplePath
	cfg.Alerting.RulesPath = rulesPath
	cfg.AI.Enabled = false

	svc, err := monitor.NewService(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { svc.Close() })

	return NewServer(svc, cfg)
}

func doJSON(t *testing.T, srv *Server, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	var decoded map[string]any
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &decoded))
	}
	return w, decoded
}

func TestHealthCheck(t *testing.T) {
	srv := testServer(t)
	w, body := doJSON(t, srv, http.MethodGet, "/health", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, config.ModeMock, body["mode"])
	assert.Equal(t, float64(1), body["rules"])
}

func TestRunCollector(t *testing.T) {
	srv := testServer(t)
	w, body := doJSON(t, srv, http.MethodPost, "/run-collector", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, body["run_id"])
	assert.Equal(t, float64(2), body["events_collected"])
	// One event crosses the cpu threshold.
	assert.Equal(t, float64(1), body["alerts_raised"])
}

func TestDeltaRoutes(t *testing.T) {
	srv := testServer(t)
	for _, path := range []string{"/blocking", "/slow-queries", "/deadlocks", "/delta/tempdb_health"} {
		w, body := doJSON(t, srv, http.MethodGet, path, "")
		require.Equal(t, http.StatusOK, w.Code, path)
		assert.Contains(t, body, "new", path)
		assert.Contains(t, body, "resolved", path)
	}
}

func TestDeltaUnknownEventType(t *testing.T) {
	srv := testServer(t)
	w, _ := doJSON(t, srv, http.MethodGet, "/delta/nonsense", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestExplainUsesFallbackWhenAIDisabled(t *testing.T) {
	srv := testServer(t)
	payload := `{"event":{"event_type":"blocking","payload":{"blocked_session_id":73,"wait_time_ms":9000}}}`
	w, body := doJSON(t, srv, http.MethodPost, "/explain", payload)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "fallback", body["source"])
	expl, ok := body["explanation"].(map[string]any)
	require.True(t, ok)
	assert.NotEmpty(t, expl["summary"])
	assert.NotEmpty(t, expl["recommendations"])
}

func TestExplainRejectsBadBody(t *testing.T) {
	srv := testServer(t)
	w, _ := doJSON(t, srv, http.MethodPost, "/explain", "not json")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestKillSessionUnavailableInMockMode(t *testing.T) {
	srv := testServer(t)
	w, body := doJSON(t, srv, http.MethodPost, "/kill-session", `{"session_id":73}`)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, body["error"], "live mode")
}

func TestKillSessionRejectsBadBody(t *testing.T) {
	srv := testServer(t)
	w, _ := doJSON(t, srv, http.MethodPost, "/kill-session", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListAndReloadRules(t *testing.T) {
	srv := testServer(t)

	w, body := doJSON(t, srv, http.MethodGet, "/rules", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), body["count"])

	w, body = doJSON(t, srv, http.MethodPost, "/rules/reload", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), body["count"])
}

func TestSearchEventsEmptyStore(t *testing.T) {
	srv := testServer(t)
	w, body := doJSON(t, srv, http.MethodGet, "/api/events?event_type=blocking", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(0), body["count"])
}
