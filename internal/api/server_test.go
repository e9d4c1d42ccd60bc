package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailherald/mailherald/internal/config"
	"github.com/mailherald/mailherald/internal/logging"
	"github.com/mailherald/mailherald/internal/metrics"
)

func newTestServer(status StatusFunc) *Server {
	cfg := config.ServerConfig{Host: "127.0.0.1", HTTPPort: 8080}
	logger := logging.NewLogger(logging.WithOutput(os.Stderr), logging.WithLevel(logging.LevelError))
	return NewServer(cfg, metrics.NewMetrics("test"), logger, status)
}

func TestHealthz(t *testing.T) {
	server := newTestServer(nil)

	w := httptest.NewRecorder()
	server.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestStatus(t *testing.T) {
	server := newTestServer(func() StatusReport {
		return StatusReport{
			Version:         "1.0",
			AuthorizedUsers: 3,
			ActiveSessions:  1,
			PollerRunning:   true,
			UptimeSeconds:   120,
		}
	})

	w := httptest.NewRecorder()
	server.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/status", nil))

	require.Equal(t, http.StatusOK, w.Code)

	var report StatusReport
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.Equal(t, 3, report.AuthorizedUsers)
	assert.Equal(t, 1, report.ActiveSessions)
	assert.True(t, report.PollerRunning)
}

func TestStatusUnavailable(t *testing.T) {
	server := newTestServer(nil)

	w := httptest.NewRecorder()
	server.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/status", nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	server := newTestServer(nil)
	server.metrics.RecordNotification("email")

	w := httptest.NewRecorder()
	server.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "test_notifications_sent_total")
}
