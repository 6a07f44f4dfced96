package config

import (
	"fmt"
	"os"
	"strconv"
)

const (
	// DriverMySQL selects the networked MySQL backend.
	DriverMySQL = "mysql"
	// DriverSQLite selects the embedded SQLite backend.
	DriverSQLite = "sqlite"

	// DefaultDBPort is the default MySQL port.
	DefaultDBPort = 3306
)

// Config holds process-level configuration read from the environment
// once at startup. Database credentials are never re-read per request.
type Config struct {
	DBDriver   string
	DBHost     string
	DBUser     string
	DBPassword string
	DBName     string
	DBPort     int
	DBPath     string // sqlite database file

	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string

	AdminUser     string
	AdminPassword string
}

// FromEnv builds a Config from the environment. The database driver
// defaults to sqlite; setting DB_HOST switches to MySQL unless
// DB_DRIVER forces otherwise.
func FromEnv() (*Config, error) {
	cfg := &Config{
		DBDriver:   os.Getenv("DB_DRIVER"),
		DBHost:     os.Getenv("DB_HOST"),
		DBUser:     os.Getenv("DB_USER"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBName:     os.Getenv("DB_NAME"),
		DBPort:     DefaultDBPort,

		GoogleClientID:     os.Getenv("GOOGLE_CLIENT_ID"),
		GoogleClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),
		GoogleRedirectURL:  os.Getenv("GOOGLE_REDIRECT_URL"),

		AdminUser:     os.Getenv("ADMIN_USER"),
		AdminPassword: os.Getenv("ADMIN_PASSWORD"),
	}

	if v := os.Getenv("DB_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid DB_PORT %q: %w", v, err)
		}
		cfg.DBPort = port
	}

	if cfg.DBDriver == "" {
		if cfg.DBHost != "" {
			cfg.DBDriver = DriverMySQL
		} else {
			cfg.DBDriver = DriverSQLite
		}
	}

	switch cfg.DBDriver {
	case DriverMySQL:
		if cfg.DBHost == "" || cfg.DBUser == "" || cfg.DBName == "" {
			return nil, fmt.Errorf("mysql driver requires DB_HOST, DB_USER and DB_NAME")
		}
	case DriverSQLite:
		// DBPath is filled in from the --db flag by the caller
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.DBDriver)
	}

	if cfg.AdminUser == "" {
		cfg.AdminUser = "admin"
	}

	return cfg, nil
}
