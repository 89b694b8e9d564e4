package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadReadsGenesisFromEnv(t *testing.T) {
	t.Setenv("LEDGER_OWNERS", "alice, bob,,")
	t.Setenv("LEDGER_MIN_ACTIVE_MINUTES", "40")
	t.Setenv("LEDGER_MIN_STEPS", "not-a-number")
	t.Setenv("OUTBOX_POLL_INTERVAL", "500ms")

	cfg := Load()

	require.Equal(t, []string{"alice", "bob"}, cfg.Genesis.Owners)
	require.Equal(t, uint32(40), cfg.Genesis.MinActiveMinutes)
	require.Zero(t, cfg.Genesis.MinSteps)
	require.Equal(t, 500*time.Millisecond, cfg.OutboxPollInterval)
	require.Equal(t, StorePostgres, cfg.StoreDriver)
}

func TestLoadIgnoresThresholdsOutsideUint32(t *testing.T) {
	// 2^32 + 40 would wrap to 40 if narrowed from int.
	t.Setenv("LEDGER_MIN_ACTIVE_MINUTES", "4294967336")
	t.Setenv("LEDGER_MIN_STEPS", "-1")

	cfg := Load()

	require.Zero(t, cfg.Genesis.MinActiveMinutes)
	require.Zero(t, cfg.Genesis.MinSteps)

	t.Setenv("LEDGER_MIN_ACTIVE_MINUTES", "4294967295")
	require.Equal(t, uint32(4294967295), Load().Genesis.MinActiveMinutes)
}

func TestLoadWithFileOverridesEnv(t *testing.T) {
	t.Setenv("LEDGER_OWNERS", "alice")
	path := filepath.Join(t.TempDir(), "ledger.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
store:
  driver: sqlite
  sqlite_path: /tmp/ledger.db
genesis:
  owners: [carol, dave]
  min_steps: 8000
`), 0o600))

	cfg, err := LoadWithFile(path)
	require.NoError(t, err)

	require.Equal(t, StoreSQLite, cfg.StoreDriver)
	require.Equal(t, "/tmp/ledger.db", cfg.SQLitePath)
	require.Equal(t, []string{"carol", "dave"}, cfg.Genesis.Owners)
	require.Equal(t, uint32(8000), cfg.Genesis.MinSteps)
}

func TestLoadWithFileMissing(t *testing.T) {
	_, err := LoadWithFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
