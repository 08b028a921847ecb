package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMemoryDefaults(t *testing.T) {
	t.Setenv("STORAGE_MODE", "memory")
	t.Setenv("POSTGRES_DSN", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "rudefriend-board", cfg.ServiceName)
	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, "9091", cfg.MetricsPort)
	assert.Equal(t, StorageMemory, cfg.StorageMode)
	assert.Equal(t, 10, cfg.VoteRateBurst)
	assert.Equal(t, "@every 2s", cfg.OutboxRelaySpec)
	assert.Equal(t, 30*time.Second, cfg.JobTimeout)
	assert.False(t, cfg.TrustProxyHeaders)
}

func TestLoadPostgresRequiresDSN(t *testing.T) {
	t.Setenv("STORAGE_MODE", "postgres")
	t.Setenv("POSTGRES_DSN", "")

	_, err := Load()
	require.Error(t, err)
}

func TestLoadRejectsUnknownStorage(t *testing.T) {
	t.Setenv("STORAGE_MODE", "sqlite")
	_, err := Load()
	require.Error(t, err)
}

func TestLoadParsesOverrides(t *testing.T) {
	t.Setenv("STORAGE_MODE", "postgres")
	t.Setenv("POSTGRES_DSN", "postgres://board@localhost/board")
	t.Setenv("TRUST_PROXY_HEADERS", "yes")
	t.Setenv("VOTE_RATE_PER_SECOND", "0.5")
	t.Setenv("TALLY_REPAIR_WORKERS", "0")
	t.Setenv("JOB_TIMEOUT", "bogus")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("METRICS_PORT", " 9200 ")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.TrustProxyHeaders)
	assert.Equal(t, 0.5, cfg.VoteRatePerSecond)
	assert.Equal(t, 1, cfg.TallyRepairWorkers)
	assert.Equal(t, 30*time.Second, cfg.JobTimeout)
	assert.Equal(t, 3, cfg.RedisDB)
	assert.Equal(t, "9200", cfg.MetricsPort)
}

func TestEnvBool(t *testing.T) {
	t.Setenv("FLAG_ON", "On")
	t.Setenv("FLAG_OFF", "0")
	t.Setenv("FLAG_JUNK", "maybe")
	assert.True(t, envBool("FLAG_ON", false))
	assert.False(t, envBool("FLAG_OFF", true))
	assert.True(t, envBool("FLAG_JUNK", true))
	assert.False(t, envBool("FLAG_UNSET_FOR_TEST", false))
}
