package config

import "testing"

func clearDBEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"DB_DRIVER", "DB_HOST", "DB_USER", "DB_PASSWORD", "DB_NAME", "DB_PORT", "ADMIN_USER", "ADMIN_PASSWORD"} {
		t.Setenv(key, "")
	}
}

func TestFromEnv_DefaultsToSQLite(t *testing.T) {
	clearDBEnv(t)

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv returned error: %v", err)
	}
	if cfg.DBDriver != DriverSQLite {
		t.Fatalf("expected sqlite driver, got %q", cfg.DBDriver)
	}
	if cfg.DBPort != DefaultDBPort {
		t.Fatalf("expected default port %d, got %d", DefaultDBPort, cfg.DBPort)
	}
	if cfg.AdminUser != "admin" {
		t.Fatalf("expected default admin user, got %q", cfg.AdminUser)
	}
}

func TestFromEnv_HostImpliesMySQL(t *testing.T) {
	clearDBEnv(t)
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("DB_USER", "tally")
	t.Setenv("DB_NAME", "tally")
	t.Setenv("DB_PORT", "3307")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv returned error: %v", err)
	}
	if cfg.DBDriver != DriverMySQL {
		t.Fatalf("expected mysql driver, got %q", cfg.DBDriver)
	}
	if cfg.DBPort != 3307 {
		t.Fatalf("expected port 3307, got %d", cfg.DBPort)
	}
}

func TestFromEnv_MySQLRequiresCredentials(t *testing.T) {
	clearDBEnv(t)
	t.Setenv("DB_DRIVER", "mysql")
	t.Setenv("DB_HOST", "db.internal")

	if _, err := FromEnv(); err == nil {
		t.Fatal("expected error for mysql without DB_USER/DB_NAME")
	}
}

func TestFromEnv_RejectsBadValues(t *testing.T) {
	clearDBEnv(t)
	t.Setenv("DB_PORT", "not-a-port")
	if _, err := FromEnv(); err == nil {
		t.Fatal("expected error for invalid DB_PORT")
	}

	clearDBEnv(t)
	t.Setenv("DB_DRIVER", "oracle")
	if _, err := FromEnv(); err == nil {
		t.Fatal("expected error for unsupported driver")
	}
}
