package database

import (
	"errors"
	"path/filepath"
	"testing"
)

func testDB(t *testing.T) *DB {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := NewSQLite(dbPath)
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

func TestRegisterOrTopUp_CreatesAccountWithBonus(t *testing.T) {
	db := testDB(t)

	if err := db.RegisterOrTopUp("Alice", "a@x.com", "https://img/a"); err != nil {
		t.Fatalf("RegisterOrTopUp returned error: %v", err)
	}

	account, err := db.GetAccount("a@x.com")
	if err != nil {
		t.Fatalf("GetAccount returned error: %v", err)
	}
	if account == nil {
		t.Fatal("expected account to exist")
	}
	if account.TokenRemaining != SignupBonus {
		t.Fatalf("expected balance %d, got %d", SignupBonus, account.TokenRemaining)
	}
	if account.Name != "Alice" || account.GoogleImageURL != "https://img/a" {
		t.Fatalf("unexpected profile fields: %q %q", account.Name, account.GoogleImageURL)
	}
	if account.SignupDate.IsZero() {
		t.Fatal("expected signup date to be set")
	}
}

func TestRegisterOrTopUp_RepeatAddsBonusWithoutNewRow(t *testing.T) {
	db := testDB(t)

	if err := db.RegisterOrTopUp("Alice", "a@x.com", ""); err != nil {
		t.Fatalf("first register returned error: %v", err)
	}
	if err := db.RegisterOrTopUp("Alice", "a@x.com", ""); err != nil {
		t.Fatalf("second register returned error: %v", err)
	}

	account, err := db.GetAccount("a@x.com")
	if err != nil {
		t.Fatalf("GetAccount returned error: %v", err)
	}
	if account.TokenRemaining != 2*SignupBonus {
		t.Fatalf("expected balance %d, got %d", 2*SignupBonus, account.TokenRemaining)
	}

	count, err := db.CountAccounts()
	if err != nil {
		t.Fatalf("CountAccounts returned error: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 row, got %d", count)
	}
}

func TestDebitToken_SubtractsOneAndLeavesOthersUnchanged(t *testing.T) {
	db := testDB(t)

	if err := db.RegisterOrTopUp("Alice", "a@x.com", ""); err != nil {
		t.Fatalf("register returned error: %v", err)
	}
	if err := db.RegisterOrTopUp("Bob", "b@x.com", ""); err != nil {
		t.Fatalf("register returned error: %v", err)
	}

	if err := db.DebitToken("a@x.com"); err != nil {
		t.Fatalf("DebitToken returned error: %v", err)
	}

	a, err := db.GetAccount("a@x.com")
	if err != nil {
		t.Fatalf("GetAccount returned error: %v", err)
	}
	if a.TokenRemaining != SignupBonus-1 {
		t.Fatalf("expected balance %d, got %d", SignupBonus-1, a.TokenRemaining)
	}

	b, err := db.GetAccount("b@x.com")
	if err != nil {
		t.Fatalf("GetAccount returned error: %v", err)
	}
	if b.TokenRemaining != SignupBonus {
		t.Fatalf("expected other account untouched at %d, got %d", SignupBonus, b.TokenRemaining)
	}
}

func TestDebitToken_UnknownEmail(t *testing.T) {
	db := testDB(t)

	err := db.DebitToken("nobody@x.com")
	if !errors.Is(err, ErrNoAccount) {
		t.Fatalf("expected ErrNoAccount, got %v", err)
	}
}

func TestDebitToken_AllowsNegativeBalance(t *testing.T) {
	db := testDB(t)

	if err := db.RegisterOrTopUp("Alice", "a@x.com", ""); err != nil {
		t.Fatalf("register returned error: %v", err)
	}
	for i := 0; i < SignupBonus+1; i++ {
		if err := db.DebitToken("a@x.com"); err != nil {
			t.Fatalf("debit %d returned error: %v", i, err)
		}
	}

	account, err := db.GetAccount("a@x.com")
	if err != nil {
		t.Fatalf("GetAccount returned error: %v", err)
	}
	if account.TokenRemaining != -1 {
		t.Fatalf("expected balance -1, got %d", account.TokenRemaining)
	}
}

func TestListAccounts_ReturnsAllRows(t *testing.T) {
	db := testDB(t)

	emails := []string{"a@x.com", "b@x.com", "c@x.com"}
	for _, email := range emails {
		if err := db.RegisterOrTopUp("", email, ""); err != nil {
			t.Fatalf("register %s returned error: %v", email, err)
		}
	}

	accounts, err := db.ListAccounts()
	if err != nil {
		t.Fatalf("ListAccounts returned error: %v", err)
	}
	if len(accounts) != len(emails) {
		t.Fatalf("expected %d rows, got %d", len(emails), len(accounts))
	}

	seen := make(map[string]bool)
	for _, a := range accounts {
		seen[a.Email] = true
	}
	for _, email := range emails {
		if !seen[email] {
			t.Fatalf("expected %s in listing", email)
		}
	}
}

func TestGrantTokens(t *testing.T) {
	db := testDB(t)

	if err := db.RegisterOrTopUp("Alice", "a@x.com", ""); err != nil {
		t.Fatalf("register returned error: %v", err)
	}

	if err := db.GrantTokens("a@x.com", 20); err != nil {
		t.Fatalf("GrantTokens returned error: %v", err)
	}
	account, err := db.GetAccount("a@x.com")
	if err != nil {
		t.Fatalf("GetAccount returned error: %v", err)
	}
	if account.TokenRemaining != SignupBonus+20 {
		t.Fatalf("expected balance %d, got %d", SignupBonus+20, account.TokenRemaining)
	}

	if err := db.GrantTokens("nobody@x.com", 20); !errors.Is(err, ErrNoAccount) {
		t.Fatalf("expected ErrNoAccount for unknown email, got %v", err)
	}
}

func TestGetAccount_MissingReturnsNil(t *testing.T) {
	db := testDB(t)

	account, err := db.GetAccount("nobody@x.com")
	if err != nil {
		t.Fatalf("GetAccount returned error: %v", err)
	}
	if account != nil {
		t.Fatalf("expected nil account, got %+v", account)
	}
}
