package database

import (
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"github.com/tallyhq/tally/internal/config"
)

// DB wraps the pooled SQL connection shared by the whole process.
type DB struct {
	*sql.DB
	driver string
	mu     sync.Mutex
}

// New opens the database described by cfg and verifies connectivity.
// The returned pool is owned by the process; callers must not open
// per-request connections.
func New(cfg *config.Config) (*DB, error) {
	var dsn string
	switch cfg.DBDriver {
	case config.DriverMySQL:
		dsn = fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
			cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName)
	case config.DriverSQLite:
		// WAL mode for better concurrency
		dsn = fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on", cfg.DBPath)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.DBDriver)
	}

	db, err := sql.Open(cfg.DBDriver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// SQLite with WAL mode supports concurrent reads but serializes writes;
	// the same pool sizing is adequate for MySQL.
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	log.Debug().Str("driver", cfg.DBDriver).Msg("Database connection established")

	return &DB{
		DB:     db,
		driver: cfg.DBDriver,
	}, nil
}

// NewSQLite opens a SQLite database at path. Used by the default dev
// setup and by tests.
func NewSQLite(path string) (*DB, error) {
	return New(&config.Config{DBDriver: config.DriverSQLite, DBPath: path})
}

// Driver returns the active SQL driver name.
func (db *DB) Driver() string {
	return db.driver
}

// Transaction wraps a function in a database transaction
func (db *DB) Transaction(fn func(*sql.Tx) error) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			log.Error().Err(rbErr).Msg("Failed to rollback transaction")
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}
