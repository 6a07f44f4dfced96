package handlers

import (
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tallyhq/tally/internal/auth"
)

const stateCookieName = "oauth_state"

// GoogleLogin redirects the browser to the Google consent page
func (h *Handlers) GoogleLogin(w http.ResponseWriter, r *http.Request) {
	if h.google == nil {
		h.jsonError(w, "Sign-in not configured", http.StatusServiceUnavailable)
		return
	}

	state, err := auth.GenerateState()
	if err != nil {
		log.Error().Err(err).Msg("Failed to generate oauth state")
		h.jsonError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	cookie := &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/",
		MaxAge:   600,
		HttpOnly: true,
	}
	h.applyCookieSecurity(cookie)
	http.SetCookie(w, cookie)

	http.Redirect(w, r, h.google.AuthURL(state), http.StatusSeeOther)
}

// GoogleCallback completes the OAuth round trip and establishes a
// session carrying the Google identity.
func (h *Handlers) GoogleCallback(w http.ResponseWriter, r *http.Request) {
	if h.google == nil {
		h.jsonError(w, "Sign-in not configured", http.StatusServiceUnavailable)
		return
	}

	stateCookie, err := r.Cookie(stateCookieName)
	if err != nil || stateCookie.Value == "" || r.URL.Query().Get("state") != stateCookie.Value {
		h.jsonError(w, "Invalid oauth state", http.StatusBadRequest)
		return
	}

	// State cookie is single use
	clear := &http.Cookie{Name: stateCookieName, Value: "", Path: "/", MaxAge: -1, HttpOnly: true}
	h.applyCookieSecurity(clear)
	http.SetCookie(w, clear)

	code := r.URL.Query().Get("code")
	if code == "" {
		h.jsonError(w, "Missing authorization code", http.StatusBadRequest)
		return
	}

	identity, err := h.google.Exchange(r.Context(), code)
	if err != nil {
		log.Error().Err(err).Msg("Failed to complete Google sign-in")
		h.jsonError(w, "Sign-in failed", http.StatusBadGateway)
		return
	}

	session, err := h.authService.CreateSession(*identity)
	if err != nil {
		log.Error().Err(err).Msg("Failed to create session")
		h.jsonError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	cookie := &http.Cookie{
		Name:     "session",
		Value:    session.ID,
		Path:     "/",
		Expires:  session.ExpiresAt,
		HttpOnly: true,
	}
	h.applyCookieSecurity(cookie)
	http.SetCookie(w, cookie)

	log.Info().Str("email", identity.Email).Msg("User signed in")
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// Logout deletes the caller's session
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie("session"); err == nil {
		if err := h.authService.DeleteSession(cookie.Value); err != nil {
			log.Debug().Err(err).Msg("Failed to delete session during logout")
		}
	}

	cookie := &http.Cookie{
		Name:     "session",
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
	}
	h.applyCookieSecurity(cookie)
	http.SetCookie(w, cookie)

	http.Redirect(w, r, "/", http.StatusSeeOther)
}
