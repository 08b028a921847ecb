package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

// Config is centralized process configuration.
// Keep infra values here and pass typed config into builders.
type Config struct {
	ServiceName string
	HTTPPort    string
	MetricsPort string
	StorageMode string
	PostgresDSN string
	AutoMigrate bool

	PostgresMaxOpenConns    int
	PostgresMaxIdleConns    int
	PostgresConnMaxLifetime time.Duration

	RedisAddr          string
	RedisPassword      string
	RedisDB            int
	EventChannelPrefix string

	VoteRatePerSecond float64
	VoteRateBurst     int
	TrustProxyHeaders bool
	PasswordHashCost  int

	OutboxRelaySpec    string
	OutboxBatchSize    int
	TallyRepairSpec    string
	TallyRepairWorkers int
	JobTimeout         time.Duration
}

func Load() (Config, error) {
	cfg := Config{
		ServiceName: envString("SERVICE_NAME", "rudefriend-board"),
		HTTPPort:    envString("HTTP_PORT", "8080"),
		MetricsPort: envString("METRICS_PORT", "9091"),
		StorageMode: strings.ToLower(envString("STORAGE_MODE", StoragePostgres)),
		PostgresDSN: strings.TrimSpace(os.Getenv("POSTGRES_DSN")),
		AutoMigrate: envBool("AUTO_MIGRATE", false),

		PostgresMaxOpenConns:    envInt("POSTGRES_MAX_OPEN_CONNS", 20),
		PostgresMaxIdleConns:    envInt("POSTGRES_MAX_IDLE_CONNS", 5),
		PostgresConnMaxLifetime: envDuration("POSTGRES_CONN_MAX_LIFETIME", 30*time.Minute),

		RedisAddr:          strings.TrimSpace(os.Getenv("REDIS_ADDR")),
		RedisPassword:      os.Getenv("REDIS_PASSWORD"),
		RedisDB:            envInt("REDIS_DB", 0),
		EventChannelPrefix: envString("EVENT_CHANNEL_PREFIX", "rudefriend"),

		VoteRatePerSecond: envFloat("VOTE_RATE_PER_SECOND", 5),
		VoteRateBurst:     envInt("VOTE_RATE_BURST", 10),
		TrustProxyHeaders: envBool("TRUST_PROXY_HEADERS", false),
		PasswordHashCost:  envInt("PASSWORD_HASH_COST", 10),

		OutboxRelaySpec:    envString("OUTBOX_RELAY_SPEC", "@every 2s"),
		OutboxBatchSize:    envInt("OUTBOX_BATCH_SIZE", 100),
		TallyRepairSpec:    envString("TALLY_REPAIR_SPEC", "@every 5m"),
		TallyRepairWorkers: envInt("TALLY_REPAIR_WORKERS", 4),
		JobTimeout:         envDuration("JOB_TIMEOUT", 30*time.Second),
	}

	switch cfg.StorageMode {
	case StorageMemory:
	case StoragePostgres:
		if cfg.PostgresDSN == "" {
			return Config{}, fmt.Errorf("POSTGRES_DSN is required when STORAGE_MODE=%s", StoragePostgres)
		}
	default:
		return Config{}, fmt.Errorf("unsupported STORAGE_MODE %q", cfg.StorageMode)
	}
	if cfg.VoteRateBurst < 1 {
		return Config{}, fmt.Errorf("VOTE_RATE_BURST must be at least 1, got %d", cfg.VoteRateBurst)
	}
	if cfg.TallyRepairWorkers < 1 {
		cfg.TallyRepairWorkers = 1
	}
	return cfg, nil
}

func envString(name string, fallback string) string {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	return raw
}

func envInt(name string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

func envFloat(name string, fallback float64) float64 {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}

func envDuration(name string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	value, err := time.ParseDuration(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}

func envBool(name string, fallback bool) bool {
	raw := strings.TrimSpace(strings.ToLower(os.Getenv(name)))
	if raw == "" {
		return fallback
	}
	switch raw {
	case "1", "true", "t", "yes", "y", "on":
		return true
	case "0", "false", "f", "no", "n", "off":
		return false
	default:
		return fallback
	}
}
