package database

import (
	"database/sql"
	"fmt"
	"time"
)

// SessionRecord is a stored web session carrying the resolved Google
// identity.
type SessionRecord struct {
	ID        string
	Email     string
	Name      string
	Picture   string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// CreateSession inserts a new session record.
func (db *DB) CreateSession(id, email, name, picture string, expiresAt time.Time) (*SessionRecord, error) {
	now := time.Now().UTC()
	_, err := db.Exec(`
		INSERT INTO sessions (id, email, name, picture, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, id, email, name, picture, expiresAt, now)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	return &SessionRecord{
		ID:        id,
		Email:     email,
		Name:      name,
		Picture:   picture,
		ExpiresAt: expiresAt,
		CreatedAt: now,
	}, nil
}

// GetSession retrieves a session by ID. Returns nil when no row matches.
func (db *DB) GetSession(id string) (*SessionRecord, error) {
	session := &SessionRecord{}
	var name, picture sql.NullString
	err := db.QueryRow(`
		SELECT id, email, name, picture, expires_at, created_at
		FROM sessions WHERE id = ?
	`, id).Scan(&session.ID, &session.Email, &name, &picture, &session.ExpiresAt, &session.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	session.Name = name.String
	session.Picture = picture.String
	return session, nil
}

// DeleteSession removes a session by ID.
func (db *DB) DeleteSession(id string) error {
	_, err := db.Exec("DELETE FROM sessions WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// ExtendSession updates a session's expiration time.
func (db *DB) ExtendSession(id string, expiresAt time.Time) error {
	_, err := db.Exec("UPDATE sessions SET expires_at = ? WHERE id = ?", expiresAt, id)
	if err != nil {
		return fmt.Errorf("failed to extend session: %w", err)
	}
	return nil
}

// DeleteExpiredSessions removes sessions that expired before cutoff and
// returns how many were purged.
func (db *DB) DeleteExpiredSessions(cutoff time.Time) (int64, error) {
	result, err := db.Exec("DELETE FROM sessions WHERE expires_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	return result.RowsAffected()
}
