package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/3leaps/seqsubmit/internal/errors"
	"github.com/3leaps/seqsubmit/internal/server/handlers"
	"github.com/3leaps/seqsubmit/pkg/jobstore"
)

func serve(t *testing.T, srv *Server, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func errorBody(t *testing.T, rec *httptest.ResponseRecorder) apperrors.HTTPError {
	t.Helper()
	var body apperrors.HTTPErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body.Error
}

func TestServer_ReadinessFollowsJobStore(t *testing.T) {
	store, err := jobstore.Open(context.Background(), jobstore.Config{Path: filepath.Join(t.TempDir(), "jobs.db")})
	require.NoError(t, err)

	m := handlers.InitHealthManager("test")
	m.RegisterChecker("store", handlers.HealthCheckerFunc(store.Ping))
	srv := New("127.0.0.1", 0)

	rec := serve(t, srv, http.MethodGet, "/health/ready")
	require.Equal(t, http.StatusOK, rec.Code)

	require.NoError(t, store.Close())

	rec = serve(t, srv, http.MethodGet, "/health/ready")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	body := errorBody(t, rec)
	assert.Equal(t, apperrors.CodeServiceUnavailable, body.Code)
	assert.Equal(t, map[string]any{"store": handlers.StatusUnhealthy}, body.Details["checks"])

	// Liveness does not depend on the store.
	assert.Equal(t, http.StatusOK, serve(t, srv, http.MethodGet, "/health/live").Code)
}

func TestServer_OpsRoutes(t *testing.T) {
	handlers.InitHealthManager("test")
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("seqsubmit_jobs_running 0\n"))
	})

	tests := []struct {
		name   string
		opts   []Option
		method string
		path   string
		want   int
		code   string
	}{
		{name: "health", method: http.MethodGet, path: "/health", want: http.StatusOK},
		{name: "startup", method: http.MethodGet, path: "/health/startup", want: http.StatusOK},
		{name: "version", method: http.MethodGet, path: "/version", want: http.StatusOK},
		{name: "metrics mounted", opts: []Option{WithMetricsHandler(metrics)}, method: http.MethodGet, path: "/metrics", want: http.StatusOK},
		{name: "metrics absent", method: http.MethodGet, path: "/metrics", want: http.StatusNotFound, code: apperrors.CodeNotFound},
		{name: "pprof mounted", opts: []Option{WithPprof(true)}, method: http.MethodGet, path: "/debug/pprof/", want: http.StatusOK},
		{name: "pprof absent", method: http.MethodGet, path: "/debug/pprof/", want: http.StatusNotFound, code: apperrors.CodeNotFound},
		{name: "no jobs api", method: http.MethodGet, path: "/jobs", want: http.StatusNotFound, code: apperrors.CodeNotFound},
		{name: "read only", method: http.MethodPost, path: "/version", want: http.StatusMethodNotAllowed, code: apperrors.CodeMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(t, New("127.0.0.1", 0, tt.opts...), tt.method, tt.path)
			require.Equal(t, tt.want, rec.Code)
			if tt.code != "" {
				assert.Equal(t, tt.code, errorBody(t, rec).Code)
			}
		})
	}
}

func TestServer_RequestIDOnErrors(t *testing.T) {
	srv := New("127.0.0.1", 0)

	req := httptest.NewRequest(http.MethodGet, "/jobs/3f2a", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))
	body := errorBody(t, rec)
	assert.Equal(t, "abc-123", body.RequestID)
	assert.Contains(t, body.Message, "/jobs/3f2a")
}

func TestServer_Options(t *testing.T) {
	srv := New("localhost", 8081, WithTimeouts(5*time.Second, 0, time.Minute), WithLogger(nil))

	assert.Equal(t, 8081, srv.Port())
	assert.Equal(t, "localhost:8081", srv.Addr())
	assert.Equal(t, 5*time.Second, srv.readTimeout)
	assert.Equal(t, 30*time.Second, srv.writeTimeout)
	assert.Equal(t, time.Minute, srv.idleTimeout)
	assert.NotNil(t, srv.logger)
	assert.NoError(t, srv.Shutdown(context.Background()))
}
