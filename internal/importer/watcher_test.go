package importer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/tallyhq/tally/internal/database"
)

func testDB(t *testing.T) *database.DB {
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
	return db
}

func writeGrantFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write grant file: %v", err)
	}
	return path
}

func TestProcessFile_AppliesGrantsAndSkipsUnknown(t *testing.T) {
	db := testDB(t)
	dir := t.TempDir()

	if err := db.RegisterOrTopUp("Alice", "a@x.com", ""); err != nil {
		t.Fatalf("register returned error: %v", err)
	}

	w, err := New(db, nil, dir)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	defer w.Stop()

	path := writeGrantFile(t, dir, "grants.json",
		`[{"email":"a@x.com","amount":10},{"email":"ghost@x.com","amount":99}]`)

	if err := w.ProcessFile(path); err != nil {
		t.Fatalf("ProcessFile returned error: %v", err)
	}

	account, err := db.GetAccount("a@x.com")
	if err != nil {
		t.Fatalf("GetAccount returned error: %v", err)
	}
	if account.TokenRemaining != database.SignupBonus+10 {
		t.Fatalf("expected balance %d, got %d", database.SignupBonus+10, account.TokenRemaining)
	}

	// Unknown email never creates a row
	ghost, err := db.GetAccount("ghost@x.com")
	if err != nil {
		t.Fatalf("GetAccount returned error: %v", err)
	}
	if ghost != nil {
		t.Fatal("expected no account for unknown email")
	}

	// File is renamed after processing
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatal("expected original file to be renamed")
	}
	if _, err := os.Stat(path + ".done"); err != nil {
		t.Fatalf("expected .done file: %v", err)
	}
}

func TestProcessFile_UnparseableFileMarkedFailed(t *testing.T) {
	db := testDB(t)
	dir := t.TempDir()

	w, err := New(db, nil, dir)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	defer w.Stop()

	path := writeGrantFile(t, dir, "broken.json", `{not json`)

	if err := w.ProcessFile(path); err == nil {
		t.Fatal("expected error for unparseable file")
	}
	if _, err := os.Stat(path + ".failed"); err != nil {
		t.Fatalf("expected .failed file: %v", err)
	}
}

func TestStart_WithoutDirectoryIsNoop(t *testing.T) {
	db := testDB(t)

	w, err := New(db, nil, "")
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	defer w.Stop()

	started, err := w.Start()
	if err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	if started {
		t.Fatal("expected watcher not to start without a directory")
	}
}
