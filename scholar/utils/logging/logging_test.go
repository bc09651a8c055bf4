package logging

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitLoggerRotationPolicy(t *testing.T) {
	dir := t.TempDir()

	rotator, err := InitLogger(dir, false)
	require.NoError(t, err)
	t.Cleanup(func() { rotator.Close() })

	assert.Equal(t, filepath.Join(dir, "app.log"), rotator.Filename)
	assert.Equal(t, 10, rotator.MaxSize)
	assert.Equal(t, 5, rotator.MaxBackups)

	AppLogger.Info("Application logging to file configured.")
	require.NoError(t, AppLogger.Sync())

	data, err := os.ReadFile(filepath.Join(dir, "app.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "Application logging to file configured.")
	assert.Contains(t, string(data), "logging_test.go")
}

func TestInitLoggerBadDirFallsBack(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	rotator, err := InitLogger(filepath.Join(blocker, "logs"), false)
	assert.Error(t, err)
	assert.Nil(t, rotator)
	assert.NotPanics(t, func() { AppLogger.Info("still logging") })
}

func TestLogDuration(t *testing.T) {
	ctx := WithTraceID(context.Background(), "trace-1")
	assert.NotPanics(t, func() { LogDuration(ctx, "work")() })
}

func TestCloseLoggerDetachesFile(t *testing.T) {
	dir := t.TempDir()
	rotator, err := InitLogger(dir, false)
	require.NoError(t, err)

	AppLogger.Info("before close")
	require.NoError(t, CloseLogger(rotator))
	AppLogger.Info("after close")

	data, err := os.ReadFile(filepath.Join(dir, LogFileName))
	require.NoError(t, err)
	assert.Contains(t, string(data), "before close")
	assert.NotContains(t, string(data), "after close")

	assert.NoError(t, CloseLogger(nil))
}
