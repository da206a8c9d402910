package db

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T, key string) (*DB, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nested", "reference.db")
	database, err := Open(path, key)
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	return database, path
}

func TestOpen_RejectsEmptyKey(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "x.db"), "")
	assert.Error(t, err)
}

func TestRunMigrations_IsIdempotent(t *testing.T) {
	database, _ := openTemp(t, "s3cret")

	require.NoError(t, database.RunMigrations())
	require.NoError(t, database.RunMigrations())

	version, err := database.SchemaVersion()
	require.NoError(t, err)
	assert.Equal(t, len(migrations), version)

	for _, table := range []string{"billing_rates", "rate_sync", "case_profiles"} {
		var name string
		err := database.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		require.NoError(t, err, table)
	}
}

func TestOpen_WrongKeyFails(t *testing.T) {
	database, path := openTemp(t, "right key")
	require.NoError(t, database.RunMigrations())
	require.NoError(t, database.Close())

	_, err := Open(path, "wrong key")
	assert.Error(t, err)
}

func TestReset_ClearsRows(t *testing.T) {
	database, _ := openTemp(t, "k")
	require.NoError(t, database.RunMigrations())

	_, err := database.Exec(`INSERT INTO rate_sync (user_id, synced_at) VALUES ('u1', '2024-06-12T09:00:00Z')`)
	require.NoError(t, err)

	require.NoError(t, database.Reset())

	var n int
	require.NoError(t, database.QueryRow("SELECT COUNT(*) FROM rate_sync").Scan(&n))
	assert.Zero(t, n)
}
