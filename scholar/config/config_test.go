package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestByName(t *testing.T) {
	for _, name := range []string{ProfileDev, ProfileTest, ProfileProd} {
		cfg, ok := ByName(name)
		require.True(t, ok, name)
		assert.Equal(t, name, cfg.Name)
		assert.Equal(t, []string{DevFrontendURL}, cfg.AllowedOrigins)
		assert.Equal(t, 5000, cfg.Port)
	}

	_, ok := ByName("staging")
	assert.False(t, ok)
}

func TestLoadUnknownProfile(t *testing.T) {
	_, err := Load("staging")
	assert.ErrorIs(t, err, ErrUnknownProfile)
}

func TestProdPaths(t *testing.T) {
	t.Setenv("SCHOLAR_BASE_DIR", t.TempDir())
	t.Setenv("PAPER_SAVE_DIR", "/somewhere/else")

	cfg, err := Load(ProfileProd)
	require.NoError(t, err)

	p := cfg.Paths()
	assert.Equal(t, "/tmp/papers", p.Papers)
	assert.Equal(t, "/tmp/logs", p.Logs)
}

func TestDevPathsDeriveFromConfig(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("SCHOLAR_BASE_DIR", dir)

	cfg, err := Load(ProfileDev)
	require.NoError(t, err)

	p := cfg.Paths()
	assert.Equal(t, filepath.Join(dir, "papers"), p.Papers)
	assert.Equal(t, filepath.Join(dir, "logs"), p.Logs)
	assert.Equal(t, filepath.Join(dir, "instance"), p.Instance)
	assert.Equal(t, "sqlite:///"+filepath.Join(dir, "instance", "dev.db"), cfg.DatabaseURI)
	assert.True(t, cfg.UsesSQLiteFile())
	assert.True(t, cfg.Debug)
}

func TestPaperSaveDirOverride(t *testing.T) {
	t.Setenv("SCHOLAR_BASE_DIR", t.TempDir())
	t.Setenv("PAPER_SAVE_DIR", "/data/papers")

	cfg, err := Load(ProfileTest)
	require.NoError(t, err)
	assert.Equal(t, "/data/papers", cfg.Paths().Papers)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SCHOLAR_BASE_DIR", t.TempDir())
	t.Setenv("PORT", "8080")
	t.Setenv("DATABASE_URL", "postgres://u:p@db:5432/scholar")
	t.Setenv("CORS_ORIGINS", "http://a.test, http://b.test")

	cfg, err := Load(ProfileDev)
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "0.0.0.0:8080", cfg.Addr())
	assert.False(t, cfg.UsesSQLiteFile())
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.AllowedOrigins)
}

func TestInvalidPort(t *testing.T) {
	t.Setenv("PORT", "not-a-port")
	_, err := Load(ProfileDev)
	assert.Error(t, err)
}

func TestYAMLOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scholar.yaml")
	content := `
dev:
  debug: false
  access_token_ttl: 2h
  rag:
    top_k: 9
prod:
  port: 9000
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	t.Setenv("SCHOLAR_BASE_DIR", dir)
	t.Setenv("SCHOLAR_CONFIG_FILE", path)

	cfg, err := Load(ProfileDev)
	require.NoError(t, err)
	assert.False(t, cfg.Debug)
	assert.Equal(t, 2*time.Hour, cfg.AccessTokenTTL)
	assert.Equal(t, 9, cfg.RAG.TopK)
	assert.Equal(t, 200, cfg.RAG.ChunkOverlap)
	assert.Equal(t, 5000, cfg.Port)
}

func TestProfileFromEnv(t *testing.T) {
	t.Setenv("APP_CONFIG", "")
	t.Setenv("FLASK_CONFIG", "")
	assert.Equal(t, ProfileDev, ProfileFromEnv())

	t.Setenv("FLASK_CONFIG", ProfileProd)
	assert.Equal(t, ProfileProd, ProfileFromEnv())

	t.Setenv("APP_CONFIG", ProfileTest)
	assert.Equal(t, ProfileTest, ProfileFromEnv())
}
