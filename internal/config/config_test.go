package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setAPIEnv(t *testing.T) {
	t.Helper()
	t.Setenv("SUPABASE_URL", "https://example.supabase.co/")
	t.Setenv("SUPABASE_ANON_KEY", "anon")
	t.Setenv("DATABASE_URL", "postgres://localhost/pokeden")
	t.Setenv("PORT", "")
}

func TestLoadAPIFromEnvDefaults(t *testing.T) {
	setAPIEnv(t)

	cfg, err := LoadAPIFromEnv()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, StorePostgres, cfg.Store)
	assert.Equal(t, "https://example.supabase.co", cfg.SupabaseURL)
	assert.Equal(t, 24*time.Hour, cfg.SpeciesCacheTTL)
	assert.Equal(t, int32(20), cfg.DBMaxConns)
	assert.True(t, cfg.SeedItems)
}

func TestLoadAPIFromEnvPortOverride(t *testing.T) {
	setAPIEnv(t)
	t.Setenv("PORT", "9090")

	cfg, err := LoadAPIFromEnv()
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Addr)
}

func TestLoadAPIFromEnvValidation(t *testing.T) {
	setAPIEnv(t)
	t.Setenv("DATABASE_URL", "")
	_, err := LoadAPIFromEnv()
	require.Error(t, err)

	t.Setenv("POKEDEN_STORE", "memory")
	cfg, err := LoadAPIFromEnv()
	require.NoError(t, err)
	assert.Equal(t, StoreMemory, cfg.Store)

	t.Setenv("POKEDEN_STORE", "mongo")
	_, err = LoadAPIFromEnv()
	require.Error(t, err)
}

func TestLoadWorkerFromEnv(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/pokeden")
	t.Setenv("POKEDEN_IDEMPOTENCY_RETENTION", "48h")

	cfg, err := LoadWorkerFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "@hourly", cfg.PruneSchedule)
	assert.Equal(t, 48*time.Hour, cfg.Retention)
	assert.False(t, cfg.RunOnce)

	t.Setenv("POKEDEN_IDEMPOTENCY_RETENTION", "0s")
	_, err = LoadWorkerFromEnv()
	require.Error(t, err)
}

func TestLoadCLIFromEnv(t *testing.T) {
	t.Setenv("PKD_API_BASE_URL", "https://api.pokeden.dev/")
	assert.Equal(t, "https://api.pokeden.dev", LoadCLIFromEnv().APIBaseURL)
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLogLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLogLevel("warning"))
	assert.Equal(t, slog.LevelInfo, ParseLogLevel("nonsense"))
}
