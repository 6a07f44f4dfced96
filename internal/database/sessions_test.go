package database

import (
	"testing"
	"time"
)

func TestSessionLifecycle(t *testing.T) {
	db := testDB(t)

	expires := time.Now().Add(time.Hour)
	created, err := db.CreateSession("sess-1", "a@x.com", "Alice", "https://img/a", expires)
	if err != nil {
		t.Fatalf("CreateSession returned error: %v", err)
	}
	if created.Email != "a@x.com" {
		t.Fatalf("expected email a@x.com, got %q", created.Email)
	}

	session, err := db.GetSession("sess-1")
	if err != nil {
		t.Fatalf("GetSession returned error: %v", err)
	}
	if session == nil {
		t.Fatal("expected session to exist")
	}
	if session.Name != "Alice" || session.Picture != "https://img/a" {
		t.Fatalf("unexpected identity fields: %q %q", session.Name, session.Picture)
	}

	if err := db.DeleteSession("sess-1"); err != nil {
		t.Fatalf("DeleteSession returned error: %v", err)
	}
	session, err = db.GetSession("sess-1")
	if err != nil {
		t.Fatalf("GetSession returned error: %v", err)
	}
	if session != nil {
		t.Fatal("expected session to be deleted")
	}
}

func TestDeleteExpiredSessions(t *testing.T) {
	db := testDB(t)

	now := time.Now()
	if _, err := db.CreateSession("old", "a@x.com", "", "", now.Add(-time.Hour)); err != nil {
		t.Fatalf("CreateSession returned error: %v", err)
	}
	if _, err := db.CreateSession("live", "b@x.com", "", "", now.Add(time.Hour)); err != nil {
		t.Fatalf("CreateSession returned error: %v", err)
	}

	purged, err := db.DeleteExpiredSessions(now)
	if err != nil {
		t.Fatalf("DeleteExpiredSessions returned error: %v", err)
	}
	if purged != 1 {
		t.Fatalf("expected 1 purged session, got %d", purged)
	}

	session, err := db.GetSession("live")
	if err != nil {
		t.Fatalf("GetSession returned error: %v", err)
	}
	if session == nil {
		t.Fatal("expected live session to survive purge")
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	db := testDB(t)

	val, err := db.GetSetting("missing")
	if err != nil {
		t.Fatalf("GetSetting returned error: %v", err)
	}
	if val != "" {
		t.Fatalf("expected empty value for unset key, got %q", val)
	}

	if err := db.SetSetting("log.max_backups", "3"); err != nil {
		t.Fatalf("SetSetting returned error: %v", err)
	}
	if err := db.SetSetting("log.max_backups", "7"); err != nil {
		t.Fatalf("SetSetting overwrite returned error: %v", err)
	}

	val, err = db.GetSetting("log.max_backups")
	if err != nil {
		t.Fatalf("GetSetting returned error: %v", err)
	}
	if val != "7" {
		t.Fatalf("expected overwritten value 7, got %q", val)
	}
}
