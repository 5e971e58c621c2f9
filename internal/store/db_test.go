package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConnString(t *testing.T) {
	cases := []struct {
		in      string
		dialect Dialect
		dsn     string
	}{
		{"sqlite://./data/app.db", SQLite, "./data/app.db"},
		{"sqlite:app.db", SQLite, "app.db"},
		{"file:app.db", SQLite, "app.db"},
		{":memory:", SQLite, ":memory:"},
		{"postgres://u:p@localhost:5432/db?sslmode=disable", Postgres, "postgres://u:p@localhost:5432/db?sslmode=disable"},
		{"host=localhost dbname=events", Postgres, "host=localhost dbname=events"},
	}
	for _, tc := range cases {
		d, dsn := parseConnString(tc.in)
		assert.Equal(t, tc.dialect, d, tc.in)
		assert.Equal(t, tc.dsn, dsn, tc.in)
	}
}

func TestMigrateSQLiteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	db, err := NewDB(ctx, "sqlite://"+filepath.Join(t.TempDir(), "events.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, db.Migrate(ctx))
	require.NoError(t, db.Migrate(ctx))
	assert.True(t, db.Healthy(ctx))

	for _, table := range []string{"students", "events", "registrations", "staff", "admins"} {
		var n int
		err := db.Client.QueryRowContext(ctx, `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = $1`, table).Scan(&n)
		require.NoError(t, err)
		assert.Equal(t, 1, n, table)
	}
}

func TestSQLiteDSNKeepsCallerParameters(t *testing.T) {
	assert.Equal(t, "app.db?_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL", sqliteDSN("app.db"))
	assert.Equal(t, "app.db?cache=shared&_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL", sqliteDSN("app.db?cache=shared"))

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "events.db")
	db, err := NewDB(ctx, "file:"+path+"?cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate(ctx))
	assert.FileExists(t, path)

	var fk int
	require.NoError(t, db.Client.QueryRowContext(ctx, `PRAGMA foreign_keys`).Scan(&fk))
	assert.Equal(t, 1, fk)
}

func TestNilDBIsUnhealthy(t *testing.T) {
	var db *DB
	assert.False(t, db.Healthy(context.Background()))
	assert.NoError(t, db.Close())
}

func TestIsUniqueViolation(t *testing.T) {
	ctx := context.Background()
	db, err := NewDB(ctx, "sqlite://"+filepath.Join(t.TempDir(), "events.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate(ctx))

	insert := `INSERT INTO staff (username, password, name) VALUES ($1, $2, $3)`
	_, err = db.Client.ExecContext(ctx, insert, "door", "hash", "Door Staff")
	require.NoError(t, err)
	_, err = db.Client.ExecContext(ctx, insert, "door", "hash", "Door Staff")
	require.Error(t, err)
	assert.True(t, IsUniqueViolation(err))

	assert.False(t, IsUniqueViolation(assert.AnError))
	assert.False(t, IsUniqueViolation(nil))
}
