package library

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tempDB(t *testing.T) *Database {
	t.Helper()
	db, err := NewDatabase(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpenDatabase_ReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "lib.db")

	db, err := NewDatabase(path)
	require.NoError(t, err)
	_, err = db.db.Exec(`INSERT INTO authors (name) VALUES ('Borges')`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = NewDatabase(path)
	require.NoError(t, err)
	defer db.Close()

	var n int
	require.NoError(t, db.db.Get(&n, `SELECT COUNT(*) FROM authors`))
	assert.Equal(t, 1, n)

	var version string
	require.NoError(t, db.db.Get(&version, `SELECT value FROM meta WHERE key = 'schema_version'`))
	assert.Equal(t, "1", version)
}

func TestOpenDatabase_UnsupportedDriver(t *testing.T) {
	_, err := OpenDatabase("mysql", "whatever")
	assert.Error(t, err)
}

func TestSchema_RejectsAvailableAboveTotal(t *testing.T) {
	db := tempDB(t)
	_, err := db.db.Exec(`INSERT INTO authors (id, name) VALUES (1, 'A')`)
	require.NoError(t, err)

	_, err = db.db.Exec(`INSERT INTO books (title, author_id, publication_year, total_copies, available_copies, created_at, updated_at)
        VALUES ('T', 1, 2000, 1, 2, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)`)
	assert.Error(t, err)
}

func TestIsUniqueViolation_SQLite(t *testing.T) {
	db := tempDB(t)
	_, err := db.db.Exec(`INSERT INTO categories (name) VALUES ('Poetry')`)
	require.NoError(t, err)

	_, err = db.db.Exec(`INSERT INTO categories (name) VALUES ('Poetry')`)
	require.Error(t, err)
	assert.True(t, isUniqueViolation(err))
	assert.False(t, isUniqueViolation(assert.AnError))
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	db := tempDB(t)

	err := db.withTx(context.Background(), func(tx *sqlx.Tx) error {
		if _, err := tx.Exec(`INSERT INTO authors (name) VALUES ('Ghost')`); err != nil {
			return err
		}
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	var n int
	require.NoError(t, db.db.Get(&n, `SELECT COUNT(*) FROM authors`))
	assert.Zero(t, n)
}
