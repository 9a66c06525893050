package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/si3lab/lidarlink/internal/infrastructure/config"
)

const (
	dirPermissions  = 0750
	filePermissions = 0600

	// MemoryPath opens a private in-memory database.
	MemoryPath = ":memory:"

	pingTimeout     = 5 * time.Second
	connMaxIdleTime = 30 * time.Minute
)

// DB wraps the journal's sql.DB with migrations and health checks.
type DB struct {
	*sql.DB
	path string
}

// Open opens (creating if needed) the SQLite file named by cfg.Path.
//
// The pool is limited to one connection: SQLite has a single writer, and
// an in-memory database exists only on the connection that created it.
//
// Parameters:
//   - cfg: Database section of the configuration
//
// Returns:
//   - *DB: Connected database
//   - error: If the directory, file or connection cannot be set up
func Open(cfg config.DatabaseConfig) (*DB, error) {
	dsn := MemoryPath
	if cfg.Path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), dirPermissions); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
		dsn = fmt.Sprintf("file:%s?_busy_timeout=%d&_foreign_keys=on",
			cfg.Path, cfg.BusyTimeout*int(time.Second/time.Millisecond))
		if cfg.WALMode {
			dsn += "&_journal_mode=WAL&_synchronous=NORMAL"
		}
	}

	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxIdleTime(connMaxIdleTime)
	if cfg.Path == MemoryPath {
		// Recycling the connection would drop the database.
		sqlDB.SetConnMaxIdleTime(0)
		sqlDB.SetConnMaxLifetime(0)
	} else {
		sqlDB.SetConnMaxLifetime(time.Hour)
	}

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("verifying database connection: %w", err)
	}

	if cfg.Path != MemoryPath {
		_ = os.Chmod(cfg.Path, filePermissions) //nolint:errcheck // File may appear on first write
	}

	return &DB{DB: sqlDB, path: cfg.Path}, nil
}

// Close closes the database. Safe to call on a nil DB.
func (db *DB) Close() error {
	if db == nil || db.DB == nil {
		return nil
	}
	if err := db.DB.Close(); err != nil {
		return fmt.Errorf("closing database: %w", err)
	}
	return nil
}

// Path returns the file path the database was opened with.
func (db *DB) Path() string {
	return db.path
}

// HealthCheck runs a trivial query.
func (db *DB) HealthCheck(ctx context.Context) error {
	var one int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("database health check: %w", err)
	}
	return nil
}
