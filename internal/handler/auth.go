package handler

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/ringboard/ringboard/internal/domain"
	"github.com/ringboard/ringboard/internal/service"
)

// AuthHandler handles authentication and ring-connection endpoints.
type AuthHandler struct {
	tokens   *service.TokenService
	sessions *service.SessionService
	profiles service.ProfileStore
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(tokens *service.TokenService, sessions *service.SessionService, profiles service.ProfileStore) *AuthHandler {
	return &AuthHandler{tokens: tokens, sessions: sessions, profiles: profiles}
}

// OuraRedirect redirects the user to the provider's consent page.
func (h *AuthHandler) OuraRedirect(w http.ResponseWriter, r *http.Request) {
	state := generateState()
	http.SetCookie(w, &http.Cookie{
		Name:     "oauth_state",
		Value:    state,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   600,
	})
	http.Redirect(w, r, h.tokens.AuthCodeURL(state), http.StatusTemporaryRedirect)
}

// OuraCallback handles the OAuth callback: it exchanges the one-time code,
// links or updates the profile, stores the encrypted credential, and issues
// a first-party session pair.
func (h *AuthHandler) OuraCallback(w http.ResponseWriter, r *http.Request) {
	if err := validateOAuthState(r); err != nil {
		WriteError(w, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err))
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		WriteError(w, fmt.Errorf("%w: missing code parameter", domain.ErrInvalidInput))
		return
	}

	profile, err := h.tokens.CompleteGrant(r.Context(), code)
	if err != nil {
		WriteError(w, err)
		return
	}

	pair, err := h.sessions.Pair(profile.ID)
	if err != nil {
		WriteError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"profile": profile,
		"session": pair,
	})
}

// Me returns the currently authenticated profile.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	profileID, ok := GetProfileID(r.Context())
	if !ok {
		WriteError(w, domain.ErrUnauthorized)
		return
	}

	profile, err := h.profiles.FindByID(r.Context(), profileID)
	if err != nil {
		WriteError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, profile)
}

// Refresh generates a new session pair from a session refresh token.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RefreshToken string `json:"refresh_token" validate:"required"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		WriteError(w, fmt.Errorf("%w: invalid request body", domain.ErrInvalidInput))
		return
	}
	if err := Validate(body); err != nil {
		WriteError(w, err)
		return
	}

	pair, err := h.sessions.Refresh(body.RefreshToken)
	if err != nil {
		WriteError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, pair)
}

// Disconnect revokes the stored provider credential. The profile itself is
// kept, so the user still appears on the leaderboard with zeroed scores.
func (h *AuthHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	profileID, ok := GetProfileID(r.Context())
	if !ok {
		WriteError(w, domain.ErrUnauthorized)
		return
	}

	if err := h.tokens.Revoke(r.Context(), profileID); err != nil {
		WriteError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{"status": "disconnected"})
}

func generateState() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "fallback-state"
	}
	return base64.URLEncoding.EncodeToString(b)
}

func validateOAuthState(r *http.Request) error {
	cookie, err := r.Cookie("oauth_state")
	if err != nil {
		return fmt.Errorf("missing oauth_state cookie")
	}

	queryState := r.URL.Query().Get("state")
	if queryState == "" || queryState != cookie.Value {
		return fmt.Errorf("state mismatch")
	}

	return nil
}
