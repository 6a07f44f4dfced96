package database

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Migrate runs all database migrations. The DDL is written in the
// portable subset understood by both MySQL and SQLite.
func (db *DB) Migrate() error {
	log.Info().Msg("Running database migrations")

	// Create migrations table if not exists
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER NOT NULL PRIMARY KEY,
			applied_at DATETIME NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	// Get current version
	var currentVersion int
	err = db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to get current migration version: %w", err)
	}

	log.Debug().Int("current_version", currentVersion).Msg("Current schema version")

	// Run migrations
	for _, migration := range migrations {
		if migration.Version > currentVersion {
			log.Info().Int("version", migration.Version).Str("name", migration.Name).Msg("Applying migration")

			if err := db.Transaction(func(tx *sql.Tx) error {
				// Execute migration SQL - split by semicolons and execute each statement
				// This ensures each statement is properly executed and errors are caught
				statements := splitSQLStatements(migration.SQL)
				for i, stmt := range statements {
					if _, err := tx.Exec(stmt); err != nil {
						return fmt.Errorf("migration %d statement %d failed: %w", migration.Version, i+1, err)
					}
				}

				// Record migration
				if _, err := tx.Exec("INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)", migration.Version, time.Now().UTC()); err != nil {
					return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
				}

				return nil
			}); err != nil {
				return err
			}
		}
	}

	log.Info().Msg("Database migrations complete")
	return nil
}

type migration struct {
	Version int
	Name    string
	SQL     string
}

// splitSQLStatements splits a SQL string into individual statements.
// It handles comments and only returns non-empty statements.
func splitSQLStatements(sql string) []string {
	var statements []string
	var current strings.Builder

	lines := strings.Split(sql, "\n")
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		// Skip empty lines and comments
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		current.WriteString(line)
		current.WriteString("\n")

		// Check if line ends with semicolon (statement complete)
		if strings.HasSuffix(trimmed, ";") {
			stmt := strings.TrimSpace(current.String())
			if stmt != "" && stmt != ";" {
				statements = append(statements, stmt)
			}
			current.Reset()
		}
	}

	// Handle any remaining content without trailing semicolon
	if remaining := strings.TrimSpace(current.String()); remaining != "" {
		statements = append(statements, remaining)
	}

	return statements
}

var migrations = []migration{
	{
		Version: 1,
		Name:    "initial_schema",
		SQL: `
			-- Account ledger: one row per signed-in identity
			CREATE TABLE users (
				name TEXT NULL,
				email VARCHAR(255) NOT NULL PRIMARY KEY,
				google_image_url TEXT NULL,
				token_remaining INTEGER NOT NULL DEFAULT 5,
				signup_date DATETIME NULL
			);

			-- Web sessions carrying the resolved Google identity
			CREATE TABLE sessions (
				id VARCHAR(64) NOT NULL PRIMARY KEY,
				email VARCHAR(255) NOT NULL,
				name TEXT NULL,
				picture TEXT NULL,
				expires_at DATETIME NULL,
				created_at DATETIME NULL
			);

			-- Global settings
			CREATE TABLE settings (
				` + "`key`" + ` VARCHAR(191) NOT NULL PRIMARY KEY,
				` + "`value`" + ` TEXT NOT NULL,
				updated_at DATETIME NULL
			);

			CREATE INDEX idx_sessions_expires_at ON sessions (expires_at);
		`,
	},
	{
		Version: 2,
		Name:    "token_grants",
		SQL: `
			-- Audit trail for bulk token grants applied by the importer
			CREATE TABLE token_grants (
				id VARCHAR(36) NOT NULL PRIMARY KEY,
				source TEXT NOT NULL,
				email VARCHAR(255) NOT NULL,
				amount INTEGER NOT NULL,
				applied_at DATETIME NULL
			);

			CREATE INDEX idx_token_grants_email ON token_grants (email);
		`,
	},
}
