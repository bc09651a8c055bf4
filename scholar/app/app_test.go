package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"scholar/scholar/config"
	"scholar/scholar/utils/logging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestApp(t *testing.T) (*App, string) {
	t.Helper()
	base := t.TempDir()
	t.Setenv("SCHOLAR_BASE_DIR", base)
	a, err := New(context.Background(), config.ProfileTest)
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a, base
}

func TestHealth(t *testing.T) {
	a, _ := newTestApp(t)

	rr := httptest.NewRecorder()
	a.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"healthy","environment":"test"}`, rr.Body.String())
}

func TestNewCreatesDirectories(t *testing.T) {
	a, base := newTestApp(t)
	for _, dir := range []string{"instance", "papers", "logs"} {
		info, err := os.Stat(filepath.Join(base, dir))
		require.NoError(t, err, dir)
		assert.True(t, info.IsDir())
	}
	assert.Equal(t, filepath.Join(base, "papers"), a.Paths.Papers)
	assert.NotNil(t, a.DB)
}

func TestNewTwice(t *testing.T) {
	base := t.TempDir()
	t.Setenv("SCHOLAR_BASE_DIR", base)
	for i := 0; i < 2; i++ {
		a, err := New(context.Background(), config.ProfileTest)
		require.NoError(t, err, "attempt %d", i+1)
		a.Close()
	}
}

func TestUnknownProfile(t *testing.T) {
	_, err := New(context.Background(), "staging")
	assert.ErrorIs(t, err, config.ErrUnknownProfile)
}

func TestLogRotationPolicy(t *testing.T) {
	a, base := newTestApp(t)
	require.NotNil(t, a.LogRotation)
	assert.Equal(t, 10, a.LogRotation.MaxSize)
	assert.Equal(t, 5, a.LogRotation.MaxBackups)
	assert.Equal(t, filepath.Join(base, "logs", logging.LogFileName), a.LogRotation.Filename)

	data, err := os.ReadFile(a.LogRotation.Filename)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Application logging to file configured.")
}

func TestCORSForFrontend(t *testing.T) {
	a, _ := newTestApp(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", config.DevFrontendURL)
	rr := httptest.NewRecorder()
	a.Handler().ServeHTTP(rr, req)
	assert.Equal(t, config.DevFrontendURL, rr.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rr.Header().Get("Access-Control-Allow-Credentials"))
}

func TestRoutesMounted(t *testing.T) {
	a, _ := newTestApp(t)
	for _, path := range []string{"/api/papers/", "/api/rag/sessions", "/api/auth/me"} {
		rr := httptest.NewRecorder()
		a.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusUnauthorized, rr.Code, path)
	}

	rr := httptest.NewRecorder()
	a.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "scholar_http_requests_total")
}

func TestUnusableDatabaseIsLatent(t *testing.T) {
	t.Setenv("SCHOLAR_BASE_DIR", t.TempDir())
	t.Setenv("DATABASE_URL", "mysql://nowhere/db")
	a, err := New(context.Background(), config.ProfileTest)
	require.NoError(t, err)
	defer a.Close()
	assert.Nil(t, a.DB)

	rr := httptest.NewRecorder()
	a.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	a.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/auth/login", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestNewSurvivesUnwritableDirs(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))
	t.Setenv("SCHOLAR_BASE_DIR", filepath.Join(blocker, "base"))
	t.Setenv("PAPER_SAVE_DIR", filepath.Join(blocker, "papers"))

	a, err := New(context.Background(), config.ProfileTest)
	require.NoError(t, err)
	defer a.Close()
	assert.Nil(t, a.LogRotation)
	assert.Nil(t, a.DB)

	rr := httptest.NewRecorder()
	a.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rr.Code)

	for _, path := range []string{"/api/auth/login", "/api/papers/", "/api/rag/sessions"} {
		rr = httptest.NewRecorder()
		a.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusServiceUnavailable, rr.Code, path)
	}
}

func TestCloseReleasesLogFile(t *testing.T) {
	a, base := newTestApp(t)
	a.Close()

	logging.AppLogger.Info("after app close")
	data, err := os.ReadFile(filepath.Join(base, "logs", logging.LogFileName))
	require.NoError(t, err)
	assert.NotContains(t, string(data), "after app close")
}

func TestSchedulerJobs(t *testing.T) {
	a, _ := newTestApp(t)
	assert.ElementsMatch(t, []string{"prune_rate_limiters", "prune_revoked_tokens", "prune_search_cache"}, a.Scheduler.Jobs())
	a.Scheduler.RunNow()
}
