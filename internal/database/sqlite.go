package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-client/internal/config"
	"github.com/stemsi/exstem-client/migrations"
)

// NewSQLiteDB opens and validates the embedded SQLite store.
// WAL mode allows the foreground API and the background sync run to read
// concurrently; busy_timeout serializes the occasional writer collision.
func NewSQLiteDB(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*sql.DB, error) {
	dsn, err := BuildDSN(cfg.SQLitePath)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// A single writer connection avoids SQLITE_BUSY churn under the
	// foreground/background access pattern described in the store contract.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	log.Info().
		Str("path", cfg.SQLitePath).
		Msg("SQLite store opened")

	return db, nil
}

// BuildDSN converts a store path into a mattn/go-sqlite3 DSN, creating the
// parent directory if needed. ":memory:" is passed through for tests.
func BuildDSN(path string) (string, error) {
	if path == ":memory:" {
		return "file::memory:?cache=shared&_busy_timeout=5000", nil
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("create sqlite dir: %w", err)
		}
	}
	return fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on", filepath.ToSlash(path)), nil
}

// MigrateUp applies all pending schema migrations from the embedded set.
// Called on agent startup so a fresh device works without a separate
// migration step; the cmd/migrate CLI remains available for manual control.
func MigrateUp(db *sql.DB, log zerolog.Logger) error {
	source, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return fmt.Errorf("load embedded migrations: %w", err)
	}

	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("init migrate driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("init migrate: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("read schema version: %w", err)
	}

	log.Info().
		Uint("version", version).
		Bool("dirty", dirty).
		Msg("Schema migrations applied")

	return nil
}
