package clientdata

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanupJobName(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	job := NewCleanupJob(repo, zerolog.Nop())

	assert.Equal(t, "client_data_cleanup", job.Name())
}

func TestCleanupJobRun(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db)
	job := NewCleanupJob(repo, zerolog.Nop())

	now := time.Now()
	expiredAt := now.Add(-time.Hour).Unix()
	freshAt := now.Add(time.Hour).Unix()

	for _, table := range AllTables {
		_, err := db.Exec("INSERT INTO "+table+" (cache_key, data, expires_at) VALUES (?, ?, ?)",
			"expired", `{"status":"expired"}`, expiredAt)
		require.NoError(t, err)
		_, err = db.Exec("INSERT INTO "+table+" (cache_key, data, expires_at) VALUES (?, ?, ?)",
			"fresh", `{"status":"fresh"}`, freshAt)
		require.NoError(t, err)
	}

	require.NoError(t, job.Run())

	// Only the fresh row in each table survives.
	for _, table := range AllTables {
		var count int
		require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM "+table).Scan(&count))
		assert.Equal(t, 1, count, table)

		result, err := repo.Get(table, "fresh")
		require.NoError(t, err)
		assert.NotNil(t, result)
	}
}

func TestCleanupJobRunEmptyTables(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	job := NewCleanupJob(repo, zerolog.Nop())

	require.NoError(t, job.Run())
}
