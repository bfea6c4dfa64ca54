package handler

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ringboard/ringboard/internal/domain"
	"github.com/ringboard/ringboard/internal/service"
)

// FriendHandler handles follow-edge endpoints.
type FriendHandler struct {
	friends *service.FriendService
}

// NewFriendHandler creates a new FriendHandler.
func NewFriendHandler(friends *service.FriendService) *FriendHandler {
	return &FriendHandler{friends: friends}
}

// List returns the profiles the caller follows.
func (h *FriendHandler) List(w http.ResponseWriter, r *http.Request) {
	profileID, ok := GetProfileID(r.Context())
	if !ok {
		WriteError(w, domain.ErrUnauthorized)
		return
	}

	profiles, err := h.friends.List(r.Context(), profileID)
	if err != nil {
		WriteError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, profiles)
}

// Create adds a follow edge from the caller to the given profile.
func (h *FriendHandler) Create(w http.ResponseWriter, r *http.Request) {
	profileID, ok := GetProfileID(r.Context())
	if !ok {
		WriteError(w, domain.ErrUnauthorized)
		return
	}

	var body struct {
		TargetID string `json:"target_id" validate:"required,uuid"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		WriteError(w, fmt.Errorf("%w: invalid request body", domain.ErrInvalidInput))
		return
	}
	if err := Validate(body); err != nil {
		WriteError(w, err)
		return
	}

	targetID, err := uuid.Parse(body.TargetID)
	if err != nil {
		WriteError(w, fmt.Errorf("%w: malformed target_id", domain.ErrInvalidInput))
		return
	}

	link, err := h.friends.Add(r.Context(), profileID, targetID)
	if err != nil {
		WriteError(w, err)
		return
	}

	WriteJSON(w, http.StatusCreated, link)
}

// Delete removes the follow edge from the caller to the given profile.
func (h *FriendHandler) Delete(w http.ResponseWriter, r *http.Request) {
	profileID, ok := GetProfileID(r.Context())
	if !ok {
		WriteError(w, domain.ErrUnauthorized)
		return
	}

	targetID, err := uuid.Parse(chi.URLParam(r, "targetID"))
	if err != nil {
		WriteError(w, fmt.Errorf("%w: malformed target id", domain.ErrInvalidInput))
		return
	}

	if err := h.friends.Remove(r.Context(), profileID, targetID); err != nil {
		WriteError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}
