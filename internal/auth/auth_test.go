package auth

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/tallyhq/tally/internal/database"
)

func testService(t *testing.T) *Service {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := database.NewSQLite(dbPath)
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return NewService(db)
}

func TestHashAndCheckPassword(t *testing.T) {
	hash, err := HashPassword("hunter22")
	if err != nil {
		t.Fatalf("HashPassword returned error: %v", err)
	}
	if !CheckPassword("hunter22", hash) {
		t.Fatal("expected password to verify")
	}
	if CheckPassword("wrong", hash) {
		t.Fatal("expected wrong password to fail")
	}
}

func TestCreateAndResolveSession(t *testing.T) {
	svc := testService(t)

	session, err := svc.CreateSession(Identity{Name: "Alice", Email: "a@x.com", Picture: "https://img/a"})
	if err != nil {
		t.Fatalf("CreateSession returned error: %v", err)
	}
	if len(session.ID) != 64 {
		t.Fatalf("expected 64-char hex session id, got %d chars", len(session.ID))
	}

	identity, err := svc.Resolve(session.ID)
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if identity == nil {
		t.Fatal("expected identity to resolve")
	}
	if identity.Email != "a@x.com" || identity.Name != "Alice" {
		t.Fatalf("unexpected identity: %+v", identity)
	}
}

func TestResolve_MissingAndExpiredSessions(t *testing.T) {
	svc := testService(t)

	identity, err := svc.Resolve("does-not-exist")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if identity != nil {
		t.Fatal("expected no identity for unknown session")
	}

	session, err := svc.CreateSession(Identity{Email: "a@x.com"})
	if err != nil {
		t.Fatalf("CreateSession returned error: %v", err)
	}
	if err := svc.db.ExtendSession(session.ID, time.Now().Add(-time.Minute)); err != nil {
		t.Fatalf("failed to backdate session: %v", err)
	}

	identity, err = svc.Resolve(session.ID)
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if identity != nil {
		t.Fatal("expected expired session to resolve to no identity")
	}

	// Expired sessions are deleted on resolution
	record, err := svc.db.GetSession(session.ID)
	if err != nil {
		t.Fatalf("GetSession returned error: %v", err)
	}
	if record != nil {
		t.Fatal("expected expired session to be deleted")
	}
}

func TestEnsureAdminCredentials(t *testing.T) {
	svc := testService(t)

	apiKey, generated, err := svc.EnsureAdminCredentials("s3cret-admin")
	if err != nil {
		t.Fatalf("EnsureAdminCredentials returned error: %v", err)
	}
	if !generated {
		t.Fatal("expected key to be generated on first run")
	}
	if len(apiKey) != 2*APIKeyLength {
		t.Fatalf("expected %d-char hex key, got %d chars", 2*APIKeyLength, len(apiKey))
	}

	// Second run reuses the stored key
	again, generated, err := svc.EnsureAdminCredentials("")
	if err != nil {
		t.Fatalf("EnsureAdminCredentials returned error: %v", err)
	}
	if generated {
		t.Fatal("expected key to be reused on second run")
	}
	if again != apiKey {
		t.Fatal("expected the same key on second run")
	}

	valid, err := svc.ValidateAPIKey(apiKey)
	if err != nil {
		t.Fatalf("ValidateAPIKey returned error: %v", err)
	}
	if !valid {
		t.Fatal("expected stored key to validate")
	}
	valid, err = svc.ValidateAPIKey("bogus")
	if err != nil {
		t.Fatalf("ValidateAPIKey returned error: %v", err)
	}
	if valid {
		t.Fatal("expected bogus key to fail")
	}

	valid, err = svc.ValidateAdminPassword("s3cret-admin")
	if err != nil {
		t.Fatalf("ValidateAdminPassword returned error: %v", err)
	}
	if !valid {
		t.Fatal("expected admin password to validate")
	}
	valid, err = svc.ValidateAdminPassword("wrong")
	if err != nil {
		t.Fatalf("ValidateAdminPassword returned error: %v", err)
	}
	if valid {
		t.Fatal("expected wrong admin password to fail")
	}
}
