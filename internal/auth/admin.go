package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
)

const (
	// APIKeyLength is the length of generated API keys in bytes (will be hex encoded)
	APIKeyLength = 32

	settingAdminAPIKey       = "admin.api_key"
	settingAdminPasswordHash = "admin.password_hash"
)

// GenerateAPIKey creates a new cryptographically secure API key
func GenerateAPIKey() (string, error) {
	bytes := make([]byte, APIKeyLength)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate api key: %w", err)
	}
	return hex.EncodeToString(bytes), nil
}

// EnsureAdminCredentials bootstraps admin access. The API key is
// generated on first run and persisted; when adminPassword is non-empty
// its bcrypt hash is (re)stored for HTTP Basic access to admin routes.
// Returns the API key and whether it was newly generated.
func (s *Service) EnsureAdminCredentials(adminPassword string) (apiKey string, generated bool, err error) {
	apiKey, err = s.db.GetSetting(settingAdminAPIKey)
	if err != nil {
		return "", false, err
	}
	if apiKey == "" {
		apiKey, err = GenerateAPIKey()
		if err != nil {
			return "", false, err
		}
		if err := s.db.SetSetting(settingAdminAPIKey, apiKey); err != nil {
			return "", false, err
		}
		generated = true
	}

	if adminPassword != "" {
		hash, err := HashPassword(adminPassword)
		if err != nil {
			return "", false, err
		}
		if err := s.db.SetSetting(settingAdminPasswordHash, hash); err != nil {
			return "", false, err
		}
	}

	return apiKey, generated, nil
}

// ValidateAPIKey checks a presented key against the stored admin key.
func (s *Service) ValidateAPIKey(key string) (bool, error) {
	stored, err := s.db.GetSetting(settingAdminAPIKey)
	if err != nil {
		return false, err
	}
	if stored == "" || key == "" {
		return false, nil
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(key)) == 1, nil
}

// ValidateAdminPassword checks a presented password against the stored
// bcrypt hash. Returns false when no password was configured.
func (s *Service) ValidateAdminPassword(password string) (bool, error) {
	hash, err := s.db.GetSetting(settingAdminPasswordHash)
	if err != nil {
		return false, err
	}
	if hash == "" {
		return false, nil
	}
	return CheckPassword(password, hash), nil
}
