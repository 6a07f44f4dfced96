package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	googleoauth "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"
)

// GoogleVerifier exchanges OAuth authorization codes for Google
// identities. It is the service's session resolver backend.
type GoogleVerifier struct {
	cfg *oauth2.Config
}

// NewGoogleVerifier builds a verifier from OAuth client credentials.
func NewGoogleVerifier(clientID, clientSecret, redirectURL string) (*GoogleVerifier, error) {
	if clientID == "" || clientSecret == "" {
		return nil, fmt.Errorf("google oauth client id/secret not configured")
	}

	return &GoogleVerifier{cfg: &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Endpoint:     google.Endpoint,
		Scopes: []string{
			googleoauth.UserinfoEmailScope,
			googleoauth.UserinfoProfileScope,
		},
	}}, nil
}

// AuthURL returns the Google consent page URL for the given state.
func (v *GoogleVerifier) AuthURL(state string) string {
	return v.cfg.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

// Exchange trades an authorization code for the signed-in identity.
func (v *GoogleVerifier) Exchange(ctx context.Context, code string) (*Identity, error) {
	token, err := v.cfg.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange code: %w", err)
	}

	svc, err := googleoauth.NewService(ctx, option.WithTokenSource(v.cfg.TokenSource(ctx, token)))
	if err != nil {
		return nil, fmt.Errorf("failed to create userinfo client: %w", err)
	}

	info, err := svc.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch userinfo: %w", err)
	}
	if info.Email == "" {
		return nil, fmt.Errorf("google userinfo has no email")
	}

	return &Identity{
		Name:    info.Name,
		Email:   info.Email,
		Picture: info.Picture,
	}, nil
}

// GenerateState creates a random state value for the OAuth round trip.
func GenerateState() (string, error) {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate oauth state: %w", err)
	}
	return hex.EncodeToString(bytes), nil
}
