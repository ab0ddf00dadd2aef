package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/seqsubmit/pkg/job"
)

func healthy(context.Context) error { return nil }

func storeDown(context.Context) error {
	return job.NewError("ping job store", job.ErrStorage, errors.New("sql: database is closed"))
}

func waitForCancel(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

// jobManagerHealth mirrors what serve registers for a leader.
func jobManagerHealth(store, scheduler HealthCheckerFunc) *HealthManager {
	m := NewHealthManager("1.2.3")
	m.RegisterChecker("store", store)
	m.RegisterChecker("scheduler", scheduler)
	return m
}

func TestReadiness_AllChecksHealthy(t *testing.T) {
	m := jobManagerHealth(healthy, healthy)

	rec := httptest.NewRecorder()
	m.ReadinessHandler(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp HealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, StatusHealthy, resp.Status)
	assert.Equal(t, "1.2.3", resp.Version)
	assert.Equal(t, map[string]string{"store": StatusHealthy, "scheduler": StatusHealthy}, resp.Checks)
}

func TestReadiness_StoreDownIsUnavailable(t *testing.T) {
	m := jobManagerHealth(storeDown, healthy)

	rec := httptest.NewRecorder()
	m.ReadinessHandler(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	got := decodeEnvelope(t, rec)
	assert.Equal(t, "SERVICE_UNAVAILABLE", got.Code)
	assert.Equal(t, "1.2.3", got.Details["version"])
	assert.Equal(t, map[string]any{"store": StatusUnhealthy, "scheduler": StatusHealthy}, got.Details["checks"])
}

func TestReadiness_SlowSchedulerIsDegraded(t *testing.T) {
	m := jobManagerHealth(healthy, waitForCancel)
	m.timeout = 10 * time.Millisecond

	rec := httptest.NewRecorder()
	m.ReadinessHandler(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp HealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, StatusDegraded, resp.Status)
	assert.Equal(t, StatusTimeout, resp.Checks["scheduler"])
	assert.Equal(t, StatusHealthy, resp.Checks["store"])
}

func TestDetermineOverallStatus(t *testing.T) {
	m := NewHealthManager("dev")
	assert.Equal(t, StatusHealthy, m.determineOverallStatus(nil))
	assert.Equal(t, StatusDegraded, m.determineOverallStatus(map[string]string{"store": StatusHealthy, "scheduler": StatusTimeout}))
	assert.Equal(t, StatusUnhealthy, m.determineOverallStatus(map[string]string{"store": StatusUnhealthy, "scheduler": StatusTimeout}))
}

func TestLivenessAndStartupIgnoreDependencies(t *testing.T) {
	m := jobManagerHealth(storeDown, storeDown)

	for name, h := range map[string]http.HandlerFunc{
		"live":    m.LivenessHandler,
		"startup": m.StartupHandler,
	} {
		t.Run(name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h(rec, httptest.NewRequest(http.MethodGet, "/health/"+name, nil))
			assert.Equal(t, http.StatusOK, rec.Code)
		})
	}

	rec := httptest.NewRecorder()
	m.HealthHandler(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRegisterChecker_Replaces(t *testing.T) {
	m := jobManagerHealth(storeDown, healthy)
	m.RegisterChecker("store", HealthCheckerFunc(healthy))

	rec := httptest.NewRecorder()
	m.ReadinessHandler(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGlobalHandlers(t *testing.T) {
	globalMu.Lock()
	original := globalHealthManager
	globalHealthManager = nil
	globalMu.Unlock()
	defer func() {
		globalMu.Lock()
		globalHealthManager = original
		globalMu.Unlock()
	}()

	endpoints := map[string]http.HandlerFunc{
		"/health":         HealthHandler,
		"/health/live":    LivenessHandler,
		"/health/ready":   ReadinessHandler,
		"/health/startup": StartupHandler,
	}

	for path, h := range endpoints {
		rec := httptest.NewRecorder()
		h(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, "%s before init", path)
	}

	m := InitHealthManager("2.0.0")
	require.Same(t, m, GetHealthManager())
	m.RegisterChecker("store", HealthCheckerFunc(storeDown))

	want := map[string]int{
		"/health":         http.StatusServiceUnavailable,
		"/health/live":    http.StatusOK,
		"/health/ready":   http.StatusServiceUnavailable,
		"/health/startup": http.StatusOK,
	}
	for path, h := range endpoints {
		rec := httptest.NewRecorder()
		h(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, want[path], rec.Code, path)
	}
}

func TestVersionHandler(t *testing.T) {
	SetVersionInfo("1.4.0", "abc123", "2026-01-02")
	defer SetVersionInfo("dev", "unknown", "unknown")

	rec := httptest.NewRecorder()
	VersionHandler(rec, httptest.NewRequest(http.MethodGet, "/version", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var info VersionInfo
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&info))
	assert.Equal(t, "1.4.0", info.Version)
	assert.Equal(t, "abc123", info.Commit)
	assert.Equal(t, "2026-01-02", info.BuildDate)
	assert.NotEmpty(t, info.GoVersion)
}
