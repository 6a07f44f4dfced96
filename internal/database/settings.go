package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/tallyhq/tally/internal/config"
)

// GetSetting retrieves a setting value, or "" when unset.
func (db *DB) GetSetting(key string) (string, error) {
	var value string
	err := db.QueryRow("SELECT `value` FROM settings WHERE `key` = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get setting: %w", err)
	}
	return value, nil
}

// SetSetting stores a setting value, replacing any existing one.
func (db *DB) SetSetting(key, value string) error {
	var stmt string
	switch db.driver {
	case config.DriverMySQL:
		stmt = "INSERT INTO settings (`key`, `value`, updated_at) VALUES (?, ?, ?)" +
			" ON DUPLICATE KEY UPDATE `value` = VALUES(`value`), updated_at = VALUES(updated_at)"
	default:
		stmt = "INSERT INTO settings (`key`, `value`, updated_at) VALUES (?, ?, ?)" +
			" ON CONFLICT(`key`) DO UPDATE SET `value` = excluded.`value`, updated_at = excluded.updated_at"
	}

	if _, err := db.Exec(stmt, key, value, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to set setting: %w", err)
	}
	return nil
}
