package db

import (
	"context"
	"io/fs"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	entries, err := fs.ReadDir(migrationFiles, "migrations")
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	ups := map[string]bool{}
	downs := map[string]bool{}
	for _, entry := range entries {
		name := entry.Name()
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		default:
			t.Fatalf("unexpected migration file %s", name)
		}
	}
	assert.Equal(t, ups, downs)
}

func TestInitialMigrationCreatesBoardTables(t *testing.T) {
	raw, err := fs.ReadFile(migrationFiles, "migrations/0001_board_votes.up.sql")
	require.NoError(t, err)
	sql := string(raw)

	for _, table := range []string{"members", "board_posts", "board_votes", "board_vote_summaries", "board_outbox"} {
		assert.Contains(t, sql, "CREATE TABLE IF NOT EXISTS "+table+" ")
	}
	assert.Contains(t, sql, "uq_board_votes_member")
	assert.Contains(t, sql, "uq_board_votes_ip")
	assert.Contains(t, sql, "CHECK (vote_count >= 0)")
}

func TestConnectRequiresDSN(t *testing.T) {
	_, err := Connect(context.Background(), Options{})
	require.Error(t, err)
}

func TestNilPostgresCloseAndMigrate(t *testing.T) {
	var p *Postgres
	assert.NoError(t, p.Close())
	assert.Error(t, p.Migrate(nil))
}

func TestOptionsDefaults(t *testing.T) {
	opts := Options{DSN: "postgres://x", MaxOpenConns: 2, MaxIdleConns: 8}.withDefaults()
	assert.Equal(t, 2, opts.MaxOpenConns)
	assert.Equal(t, 2, opts.MaxIdleConns)
	assert.Equal(t, 30*time.Minute, opts.ConnMaxLifetime)
	assert.Equal(t, 5*time.Second, opts.PingTimeout)
}
