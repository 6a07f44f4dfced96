package database

import (
	"fmt"

	"github.com/tallyhq/tally/internal/config"
)

// Optimize runs SQLite's PRAGMA optimize to refresh planner stats.
// It is a no-op on other drivers.
func (db *DB) Optimize() error {
	if db == nil || db.DB == nil {
		return fmt.Errorf("database not initialized")
	}
	if db.driver != config.DriverSQLite {
		return nil
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	if _, err := db.Exec("PRAGMA optimize"); err != nil {
		return fmt.Errorf("failed to optimize database: %w", err)
	}

	return nil
}
