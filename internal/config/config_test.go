package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	for _, key := range []string{"PORT", "STORE_DRIVER", "ROLE_CACHE_TTL_SECONDS", "ACTIVATION_VALIDITY_DAYS", "NATS_SUBJECT_PREFIX"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, DriverPostgres, cfg.StoreDriver)
	assert.Equal(t, 30*time.Second, cfg.RoleCacheTTL)
	assert.Zero(t, cfg.ActivationValidity)
	assert.Equal(t, "upets.events", cfg.NATSSubjectPrefix)
	assert.Equal(t, 120, cfg.RateLimitPerMinute)
}

func TestLoadReadsEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("ACTIVATION_VALIDITY_DAYS=365\nPUBLIC_ORIGIN=https://upets.example/\n"), 0o600))
	t.Setenv("ENV_FILE", path)
	t.Setenv("ACTIVATION_VALIDITY_DAYS", "")
	t.Setenv("PUBLIC_ORIGIN", "")
	os.Unsetenv("ACTIVATION_VALIDITY_DAYS")
	os.Unsetenv("PUBLIC_ORIGIN")

	cfg := Load()
	assert.Equal(t, 365*24*time.Hour, cfg.ActivationValidity)
	assert.Equal(t, "https://upets.example", cfg.PublicOrigin)
}

func TestReadIntFallsBackOnGarbage(t *testing.T) {
	t.Setenv("RATE_LIMIT_BURST", "lots")
	assert.Equal(t, 30, readInt("RATE_LIMIT_BURST", 30))
}

func TestReadListTrimsEntries(t *testing.T) {
	t.Setenv("TRUSTED_PROXIES", " 10.0.0.0/8, ,192.0.2.10 ")
	assert.Equal(t, []string{"10.0.0.0/8", "192.0.2.10"}, readList("TRUSTED_PROXIES"))

	t.Setenv("TRUSTED_PROXIES", "")
	assert.Empty(t, readList("TRUSTED_PROXIES"))
}
