package handlers

import (
	"net/http"

	"github.com/tallyhq/tally/internal/auth"
	"github.com/tallyhq/tally/internal/database"
	"github.com/tallyhq/tally/internal/web/sse"
)

// Handlers contains all HTTP handlers
type Handlers struct {
	db          *database.DB
	authService *auth.Service
	google      *auth.GoogleVerifier
	broker      *sse.Broker
	isDev       bool
}

// New creates a new Handlers instance. google may be nil when sign-in
// is not configured; the auth routes then respond 503.
func New(db *database.DB, authService *auth.Service, google *auth.GoogleVerifier, broker *sse.Broker, isDev bool) *Handlers {
	return &Handlers{
		db:          db,
		authService: authService,
		google:      google,
		broker:      broker,
		isDev:       isDev,
	}
}

// Health reports database connectivity
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.db.Ping(); err != nil {
		h.jsonError(w, "Database unreachable", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// jsonMessage sends a JSON success response
func (h *Handlers) jsonMessage(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"message":"` + message + `"}`))
}

// jsonError sends a JSON error response
func (h *Handlers) jsonError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":"` + message + `"}`))
}

// applyCookieSecurity sets Secure/SameSite defaults based on environment.
func (h *Handlers) applyCookieSecurity(c *http.Cookie) {
	if c.SameSite == 0 {
		c.SameSite = http.SameSiteLaxMode
	}
	if !h.isDev {
		c.Secure = true
	}
}
