package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-sqlite3"
)

const (
	dirPermissions  = 0750
	filePermissions = 0600

	msPerSecond = 1000

	// connectionTimeout bounds the initial ping.
	connectionTimeout = 5 * time.Second

	connMaxIdleTime = 30 * time.Minute

	// memoryPath opens a private in-memory database (tests, dry runs).
	memoryPath = ":memory:"
)

// DB wraps sql.DB with supervisor-specific helpers.
//
// The connection pool is pinned to a single connection: SQLite has one
// writer, and the flag store relies on serialised transactions for its
// read-modify-write guarantee.
type DB struct {
	*sql.DB
	path string
}

// Config holds the settings needed to open the database.
type Config struct {
	// Path is the database file, or ":memory:".
	Path string

	// WALMode enables write-ahead logging for crash recovery.
	WALMode bool

	// BusyTimeout is how long, in seconds, a writer waits for a lock.
	BusyTimeout int
}

// Open opens (creating if necessary) the SQLite database described by cfg.
//
// Parameters:
//   - cfg: Database configuration
//
// Returns:
//   - *DB: Open database handle, verified with a ping
//   - error: If the directory, file or connection cannot be set up
func Open(cfg Config) (*DB, error) {
	inMemory := cfg.Path == memoryPath

	var connStr string
	if inMemory {
		connStr = fmt.Sprintf("file::memory:?_busy_timeout=%d&_foreign_keys=on", cfg.BusyTimeout*msPerSecond)
	} else {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), dirPermissions); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
		connStr = fmt.Sprintf("file:%s?_busy_timeout=%d&_foreign_keys=on", cfg.Path, cfg.BusyTimeout*msPerSecond)
		if cfg.WALMode {
			connStr += "&_journal_mode=WAL&_synchronous=NORMAL"
		}
	}

	sqlDB, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	if inMemory {
		// Recycling the only connection would drop the in-memory schema.
		sqlDB.SetConnMaxLifetime(0)
		sqlDB.SetConnMaxIdleTime(0)
	} else {
		sqlDB.SetConnMaxLifetime(time.Hour)
		sqlDB.SetConnMaxIdleTime(connMaxIdleTime)
	}

	db := &DB{DB: sqlDB, path: cfg.Path}

	ctx, cancel := context.WithTimeout(context.Background(), connectionTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		sqlDB.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("verifying database connection: %w", err)
	}

	if !inMemory {
		_ = os.Chmod(cfg.Path, filePermissions) //nolint:errcheck // The file may not exist until first write
	}

	return db, nil
}

// OpenMemory opens a private in-memory database.
func OpenMemory() (*DB, error) {
	return Open(Config{Path: memoryPath, BusyTimeout: 5})
}

// Close closes the database connection.
func (db *DB) Close() error {
	if db.DB == nil {
		return nil
	}
	if err := db.DB.Close(); err != nil {
		return fmt.Errorf("closing database: %w", err)
	}
	return nil
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// HealthCheck verifies the database answers queries.
func (db *DB) HealthCheck(ctx context.Context) error {
	var result int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}

// WithTx runs fn inside a transaction, committing when fn returns nil
// and rolling back otherwise.
//
// Parameters:
//   - ctx: Context for cancellation
//   - fn: Work to perform; its error is returned unwrapped
//
// Returns:
//   - error: fn's error, or a begin/commit failure
func (db *DB) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// IsUniqueConstraintError reports whether err is a SQLite UNIQUE or PRIMARY KEY violation.
func IsUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

// FormatTime renders t the way every table stores timestamps (RFC3339, UTC).
func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// NullableTime renders an optional timestamp for a nullable TEXT column.
func NullableTime(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return FormatTime(*t)
}

// ParseTime parses a stored timestamp. Empty or NULL values yield nil.
func ParseTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil //nolint:nilnil // absent timestamp is not an error
	}
	t, err := time.Parse(time.RFC3339Nano, s.String)
	if err != nil {
		return nil, fmt.Errorf("parsing timestamp %q: %w", s.String, err)
	}
	return &t, nil
}

// BoolToInt converts a bool to SQLite's 0/1 representation.
func BoolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
