package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lcsgmoraes-droid/Sistema-Pet-sub000/internal/domain"
)

func isolate(t *testing.T) {
	t.Helper()
	for _, k := range []string{"PORT", "DB_PATH", "TEMPLATES_DIR", "SEED_PATH", "LOG_LEVEL",
		"LOG_FORMAT", "CONFIDENCE_HIGH_PCT", "CONFIDENCE_MEDIUM_PCT", "RECON_CONFIG"} {
		t.Setenv(k, "")
	}
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
}

func TestLoad_Defaults(t *testing.T) {
	isolate(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 1.0, cfg.Confidence.HighPct)
	assert.Equal(t, 5.0, cfg.Confidence.MediumPct)
}

func TestLoad_YAMLThenEnv(t *testing.T) {
	isolate(t)

	path := filepath.Join(t.TempDir(), "recon.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: \"9090\"\ndb_path: /tmp/x.db\nconfidence:\n  high_pct: 0.5\n  medium_pct: 3\n"), 0o644))
	t.Setenv("RECON_CONFIG", path)
	t.Setenv("DB_PATH", "/var/lib/recon.db")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "/var/lib/recon.db", cfg.DBPath)
	assert.Equal(t, 0.5, cfg.Confidence.HighPct)
	assert.Equal(t, 3.0, cfg.Confidence.MediumPct)
}

func TestLoad_EnvFile(t *testing.T) {
	isolate(t)
	os.Unsetenv("LOG_LEVEL")

	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("LOG_LEVEL=debug\n"), 0o644))
	t.Setenv("ENV_FILE", envFile)
	t.Cleanup(func() { os.Unsetenv("LOG_LEVEL") })

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoad_RejectsInvertedThresholds(t *testing.T) {
	isolate(t)
	t.Setenv("CONFIDENCE_HIGH_PCT", "10")
	t.Setenv("CONFIDENCE_MEDIUM_PCT", "2")

	_, err := Load()
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestLoad_BadFloat(t *testing.T) {
	isolate(t)
	t.Setenv("CONFIDENCE_HIGH_PCT", "abc")

	_, err := Load()
	assert.Error(t, err)
}
