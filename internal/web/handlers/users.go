package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/tallyhq/tally/internal/database"
	"github.com/tallyhq/tally/internal/web/middleware"
	"github.com/tallyhq/tally/internal/web/sse"
)

// RegisterOrTopUp handles POST /api/users. First sign-in creates the
// account with the signup bonus; every repeat call adds the bonus
// again. Repeats are intentional: the bonus is a sign-in reward, not an
// idempotent registration.
func (h *Handlers) RegisterOrTopUp(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentity(r.Context())
	if identity == nil || identity.Email == "" {
		h.jsonError(w, "No email provided", http.StatusBadRequest)
		return
	}

	if err := h.db.RegisterOrTopUp(identity.Name, identity.Email, identity.Picture); err != nil {
		log.Error().Err(err).Str("email", identity.Email).Msg("Failed to register account")
		h.jsonError(w, "Failed to execute operation", http.StatusInternalServerError)
		return
	}

	h.broker.Publish(sse.Event{
		Type: sse.EventAccountRegistered,
		Data: map[string]any{"email": identity.Email},
	})

	log.Info().Str("email", identity.Email).Msg("Account registered or topped up")
	h.jsonMessage(w, "Operation successful")
}

// ListUsers handles GET /api/users. Admin only; returns every ledger
// row verbatim.
func (h *Handlers) ListUsers(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.db.ListAccounts()
	if err != nil {
		log.Error().Err(err).Msg("Failed to list accounts")
		h.jsonError(w, "Failed to fetch users", http.StatusInternalServerError)
		return
	}
	if accounts == nil {
		accounts = []*database.Account{}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(accounts); err != nil {
		log.Error().Err(err).Msg("Failed to encode account list")
	}
}

// DebitToken handles PUT /api/users, subtracting one token from the
// caller's account. A missing session email is a client error rather
// than the silent zero-row update it used to be.
func (h *Handlers) DebitToken(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentity(r.Context())
	if identity == nil || identity.Email == "" {
		log.Warn().Msg("Debit attempted without a session email")
		h.jsonError(w, "No email provided", http.StatusBadRequest)
		return
	}

	if err := h.db.DebitToken(identity.Email); err != nil {
		if errors.Is(err, database.ErrNoAccount) {
			h.jsonError(w, "Account not found", http.StatusNotFound)
			return
		}
		log.Error().Err(err).Str("email", identity.Email).Msg("Failed to debit token")
		h.jsonError(w, "Failed to subtract tokens", http.StatusInternalServerError)
		return
	}

	h.broker.Publish(sse.Event{
		Type: sse.EventTokenDebited,
		Data: map[string]any{"email": identity.Email},
	})

	h.jsonMessage(w, "1 token subtracted successfully")
}
