package middleware

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/tallyhq/tally/internal/auth"
)

type contextKey string

// IdentityContextKey is the context key for the resolved session identity
const IdentityContextKey contextKey = "identity"

// Logger is a middleware that logs requests
func Logger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			log.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Dur("duration", time.Since(start)).
				Str("remote", r.RemoteAddr).
				Str("request_id", middleware.GetReqID(r.Context())).
				Msg("Request")
		}()

		next.ServeHTTP(ww, r)
	})
}

// ResolveSession attaches the session identity to the request context
// when a valid session cookie is present. Absence of an identity is not
// an error here; each handler decides whether it is required.
func ResolveSession(authService *auth.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie("session")
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}

			identity, err := authService.Resolve(cookie.Value)
			if err != nil {
				log.Error().Err(err).Msg("Failed to resolve session")
				next.ServeHTTP(w, r)
				return
			}
			if identity == nil {
				// Clear invalid cookie
				http.SetCookie(w, &http.Cookie{
					Name:     "session",
					Value:    "",
					Path:     "/",
					MaxAge:   -1,
					HttpOnly: true,
				})
				next.ServeHTTP(w, r)
				return
			}

			// Extend session on activity
			if err := authService.ExtendSession(cookie.Value); err != nil {
				log.Debug().Err(err).Msg("Failed to extend session")
			}

			ctx := context.WithValue(r.Context(), IdentityContextKey, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin restricts a route to callers presenting the admin API
// key (X-API-Key) or the admin HTTP Basic credentials.
func RequireAdmin(authService *auth.Service, adminUser string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if key := r.Header.Get("X-API-Key"); key != "" {
				valid, err := authService.ValidateAPIKey(key)
				if err != nil {
					log.Error().Err(err).Msg("Failed to validate API key")
					jsonError(w, "Internal server error", http.StatusInternalServerError)
					return
				}
				if valid {
					next.ServeHTTP(w, r)
					return
				}
			}

			if username, password, ok := r.BasicAuth(); ok && username == adminUser {
				valid, err := authService.ValidateAdminPassword(password)
				if err != nil {
					log.Error().Err(err).Msg("Failed to validate admin password")
					jsonError(w, "Internal server error", http.StatusInternalServerError)
					return
				}
				if valid {
					next.ServeHTTP(w, r)
					return
				}
			}

			w.Header().Set("WWW-Authenticate", `Basic realm="Admin"`)
			jsonError(w, "Unauthorized", http.StatusUnauthorized)
		})
	}
}

// GetIdentity retrieves the resolved identity from context
func GetIdentity(ctx context.Context) *auth.Identity {
	identity, ok := ctx.Value(IdentityContextKey).(*auth.Identity)
	if !ok {
		return nil
	}
	return identity
}

// AllowSubnet is a middleware that restricts access to connections from within the allowed subnet.
// This checks the actual connection source (RemoteAddr), useful for whitelisting reverse proxies.
func AllowSubnet(allowedNet *net.IPNet) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// If no subnet restriction, allow all
			if allowedNet == nil {
				next.ServeHTTP(w, r)
				return
			}

			// Get the direct connection IP from RemoteAddr
			host, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				// Maybe it's just an IP without port
				host = r.RemoteAddr
			}

			ip := net.ParseIP(host)
			if ip == nil {
				log.Warn().Str("remote_addr", r.RemoteAddr).Msg("Could not parse remote address")
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}

			// Check if connection source is within allowed subnet
			if !allowedNet.Contains(ip) {
				log.Warn().
					Str("remote_addr", r.RemoteAddr).
					Str("allowed_subnet", allowedNet.String()).
					Msg("Connection rejected: source IP not in allowed subnet")
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func jsonError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":"` + message + `"}`))
}
