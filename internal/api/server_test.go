package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/qcline/internal/buildinfo"
	"github.com/tphakala/qcline/internal/conf"
	"github.com/tphakala/qcline/internal/observability"
	"github.com/tphakala/qcline/internal/simulator"
	"github.com/tphakala/qcline/internal/testutil"
)

func testSettings(t *testing.T) *conf.Settings {
	t.Helper()
	settings := testutil.LoadSettings(t, "simulation:\n  seed: 3\nwebserver:\n  host: 127.0.0.1\n")
	// Let the kernel pick a free port for Run.
	settings.WebServer.Port = "0"
	return settings
}

func newTestServer(t *testing.T, opts ...ServerOption) (*Server, *simulator.Runner) {
	t.Helper()
	settings := testSettings(t)
	engine, err := simulator.BuildEngine(settings)
	require.NoError(t, err)
	runner := simulator.New(engine)

	s, err := New(settings, runner, opts...)
	require.NoError(t, err)
	return s, runner
}

func serve(s *Server, method, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(method, target, http.NoBody))
	return rec
}

func TestConfigFromSettings(t *testing.T) {
	cfg := ConfigFromSettings(testSettings(t))
	assert.Equal(t, "127.0.0.1:0", cfg.Address())
	assert.Equal(t, 5*time.Second, cfg.CacheTTL)
	require.NoError(t, cfg.Validate())

	cfg = ConfigFromSettings(nil)
	assert.Equal(t, ":8080", cfg.Address())

	cfg.Port = ""
	assert.Error(t, cfg.Validate())
}

func TestServerRoutesAndMiddleware(t *testing.T) {
	m, err := observability.NewMetrics()
	require.NoError(t, err)

	s, _ := newTestServer(t,
		WithMetrics(m),
		WithBuildInfo(buildinfo.NewContext("0.9.0", "2026-01-02", "run-1")))
	require.NotNil(t, s.APIController())
	require.NotNil(t, s.Echo())

	rec := serve(s, http.MethodGet, "/api/v1/health")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"version":"0.9.0"`)
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	rec = serve(s, http.MethodPatch, "/api/v1/lanes/L9")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(s, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `qcline_http_requests_total{method="GET",path="/api/v1/health",status_code="200"} 1`)
	assert.Contains(t, body, `qcline_http_requests_total{method="PATCH",path="/api/v1/lanes/:id",status_code="404"} 1`)
	assert.Contains(t, body, `qcline_http_request_errors_total{error_type="client",method="PATCH",path="/api/v1/lanes/:id"} 1`)
}

func TestServerWithoutMetrics(t *testing.T) {
	s, _ := newTestServer(t)

	assert.Equal(t, http.StatusNotFound, serve(s, http.MethodGet, "/metrics").Code)
	assert.Equal(t, http.StatusOK, serve(s, http.MethodGet, "/api/v1/lanes").Code)
}

func TestServerRunStopsOnCancel(t *testing.T) {
	s, _ := newTestServer(t)

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	assert.NoError(t, testutil.ReceiveWithin(t, done, testutil.DefaultTestTimeout, "server did not stop after cancellation"))
}
