package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "pgx"
)

// Database wraps the sqlx.DB connection.
type Database struct {
	*sqlx.DB
}

// sqliteSchema defines the database tables for sqlite.
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS users (
    user_id INTEGER PRIMARY KEY AUTOINCREMENT,
    slack_user_id TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS repositories (
    repository_id INTEGER PRIMARY KEY AUTOINCREMENT,
    owner TEXT NOT NULL,
    repository TEXT NOT NULL,
    UNIQUE(owner, repository)
);

CREATE TABLE IF NOT EXISTS subscriptions (
    user_id INTEGER NOT NULL REFERENCES users(user_id),
    repository_id INTEGER NOT NULL REFERENCES repositories(repository_id),
    subscribed_at DATETIME NOT NULL,
    PRIMARY KEY (user_id, repository_id)
);

CREATE INDEX IF NOT EXISTS idx_subscriptions_repository ON subscriptions(repository_id);
`

// postgresSchema is the same layout for postgres.
const postgresSchema = `
CREATE TABLE IF NOT EXISTS users (
    user_id BIGSERIAL PRIMARY KEY,
    slack_user_id VARCHAR NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS repositories (
    repository_id BIGSERIAL PRIMARY KEY,
    owner VARCHAR NOT NULL,
    repository VARCHAR NOT NULL,
    UNIQUE (owner, repository)
);

CREATE TABLE IF NOT EXISTS subscriptions (
    user_id BIGINT NOT NULL,
    repository_id BIGINT NOT NULL,
    subscribed_at TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (user_id, repository_id),
    CONSTRAINT subscriptions_user_id_fkey FOREIGN KEY (user_id) REFERENCES users (user_id),
    CONSTRAINT subscriptions_repository_id_fkey FOREIGN KEY (repository_id) REFERENCES repositories (repository_id)
);

CREATE INDEX IF NOT EXISTS idx_subscriptions_repository ON subscriptions (repository_id);
`

// NewDatabase opens a connection for driver and initializes the schema.
func NewDatabase(ctx context.Context, driver, dsn string) (*Database, error) {
	var schema string
	switch driver {
	case DriverSQLite:
		if err := ensureDir(dsn); err != nil {
			return nil, err
		}
		schema = sqliteSchema
	case DriverPostgres:
		schema = postgresSchema
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := sqlx.ConnectContext(ctx, driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if driver == DriverSQLite {
		// PRAGMA foreign_keys is per connection; a single connection keeps it
		// in force and serializes writers.
		db.SetMaxOpenConns(1)
		if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
		}
	}

	// Initialize schema
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Database{DB: db}, nil
}

// Close closes the database connection.
func (d *Database) Close() error {
	return d.DB.Close()
}

func ensureDir(dsn string) error {
	if dsn == ":memory:" || strings.HasPrefix(dsn, "file:") {
		return nil
	}
	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create database directory: %w", err)
	}
	return nil
}

// isForeignKeyViolation recognizes FK failures from either driver.
func isForeignKeyViolation(err error) bool {
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintForeignKey
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503"
	}
	return false
}
