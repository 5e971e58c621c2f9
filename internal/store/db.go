package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema/*.sql
var schemas embed.FS

// Dialect names the SQL engine behind a DB.
type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

// DB wraps sql.DB for Postgres (pgx) or SQLite (go-sqlite3).
//
// Queries shared by both engines use $n placeholders; SQLite binds them in order
// of first appearance, so every query must introduce $1, $2, ... in ascending order.
type DB struct {
	Client  *sql.DB
	Dialect Dialect
}

// NewDB opens the database named by connString and pings it.
// sqlite://path, file:path and :memory: select SQLite, anything else goes to pgx.
func NewDB(ctx context.Context, connString string) (*DB, error) {
	dialect, dsn := parseConnString(connString)

	var (
		db  *sql.DB
		err error
	)
	switch dialect {
	case SQLite:
		path, _, _ := strings.Cut(dsn, "?")
		if dir := filepath.Dir(path); path != ":memory:" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create sqlite dir: %w", err)
			}
		}
		db, err = sql.Open("sqlite3", sqliteDSN(dsn))
		if err != nil {
			return nil, err
		}
		// SQLite allows one writer; a single connection keeps transactions serialized.
		db.SetMaxOpenConns(1)
	default:
		db, err = sql.Open("pgx", dsn)
		if err != nil {
			return nil, err
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(time.Hour)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", dialect, err)
	}
	return &DB{Client: db, Dialect: dialect}, nil
}

func parseConnString(s string) (Dialect, string) {
	switch {
	case strings.HasPrefix(s, "sqlite://"):
		return SQLite, strings.TrimPrefix(s, "sqlite://")
	case strings.HasPrefix(s, "sqlite:"):
		return SQLite, strings.TrimPrefix(s, "sqlite:")
	case strings.HasPrefix(s, "file:"):
		return SQLite, strings.TrimPrefix(s, "file:")
	case s == ":memory:":
		return SQLite, s
	}
	return Postgres, s
}

// sqliteDSN appends the connection defaults to dsn. Parameters already present
// in dsn come first and take precedence.
func sqliteDSN(dsn string) string {
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL"
}

// Migrate applies the embedded schema for the dialect. Statements are idempotent.
func (d *DB) Migrate(ctx context.Context) error {
	raw, err := schemas.ReadFile("schema/" + string(d.Dialect) + ".sql")
	if err != nil {
		return fmt.Errorf("read schema: %w", err)
	}
	for _, stmt := range strings.Split(string(raw), ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := d.Client.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

// Healthy reports whether the database answers a ping.
func (d *DB) Healthy(ctx context.Context) bool {
	if d == nil || d.Client == nil {
		return false
	}
	return d.Client.PingContext(ctx) == nil
}

// Close closes the underlying connection.
func (d *DB) Close() error {
	if d == nil || d.Client == nil {
		return nil
	}
	return d.Client.Close()
}
