package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/tallyhq/tally/internal/database"
)

const (
	// SessionDuration is how long sessions last
	SessionDuration = 7 * 24 * time.Hour // 7 days
	// BcryptCost is the bcrypt cost factor
	BcryptCost = 12
)

// Identity is the authenticated principal resolved from a session.
type Identity struct {
	Name    string
	Email   string
	Picture string
}

// Service resolves sessions and manages admin credentials.
type Service struct {
	db *database.DB
}

// NewService creates a new auth service
func NewService(db *database.DB) *Service {
	return &Service{db: db}
}

// HashPassword hashes a password using bcrypt
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), BcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword verifies a password against a hash
func CheckPassword(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// CreateSession creates a new session for the identity
func (s *Service) CreateSession(id Identity) (*database.SessionRecord, error) {
	sessionID, err := generateSessionID()
	if err != nil {
		return nil, err
	}

	expiresAt := time.Now().Add(SessionDuration)
	return s.db.CreateSession(sessionID, id.Email, id.Name, id.Picture, expiresAt)
}

// Resolve returns the identity for a session ID, or nil when the
// session is missing or expired. Expired sessions are deleted on sight.
func (s *Service) Resolve(sessionID string) (*Identity, error) {
	session, err := s.db.GetSession(sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, nil
	}

	if time.Now().After(session.ExpiresAt) {
		if err := s.db.DeleteSession(sessionID); err != nil {
			return nil, fmt.Errorf("failed to delete expired session: %w", err)
		}
		return nil, nil
	}

	return &Identity{
		Name:    session.Name,
		Email:   session.Email,
		Picture: session.Picture,
	}, nil
}

// DeleteSession removes a session
func (s *Service) DeleteSession(sessionID string) error {
	return s.db.DeleteSession(sessionID)
}

// ExtendSession extends a session's expiration
func (s *Service) ExtendSession(sessionID string) error {
	return s.db.ExtendSession(sessionID, time.Now().Add(SessionDuration))
}

// generateSessionID creates a cryptographically secure session ID
func generateSessionID() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate session id: %w", err)
	}
	return hex.EncodeToString(bytes), nil
}
