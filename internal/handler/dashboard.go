package handler

import (
	"net/http"
	"time"

	"github.com/ringboard/ringboard/internal/domain"
	"github.com/ringboard/ringboard/internal/service"
)

// DashboardHandler serves the leaderboard and the requesting user's own
// metric series.
type DashboardHandler struct {
	leaderboard *service.LeaderboardService
	friends     *service.FriendService
	profiles    service.ProfileStore
}

// NewDashboardHandler creates a new DashboardHandler.
func NewDashboardHandler(leaderboard *service.LeaderboardService, friends *service.FriendService, profiles service.ProfileStore) *DashboardHandler {
	return &DashboardHandler{leaderboard: leaderboard, friends: friends, profiles: profiles}
}

// Leaderboard returns the ranked cross-user view. scope=friends restricts
// it to the caller plus the profiles they follow; the default covers every
// known profile.
func (h *DashboardHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	profileID, ok := GetProfileID(r.Context())
	if !ok {
		WriteError(w, domain.ErrUnauthorized)
		return
	}

	win := service.DefaultWindow(time.Now())

	var entries []domain.LeaderboardEntry
	if r.URL.Query().Get("scope") == "friends" {
		self, err := h.profiles.FindByID(r.Context(), profileID)
		if err != nil {
			WriteError(w, err)
			return
		}
		targets, err := h.friends.List(r.Context(), profileID)
		if err != nil {
			WriteError(w, err)
			return
		}
		entries = h.leaderboard.BuildFor(r.Context(), profileID, win, append([]domain.Profile{*self}, targets...))
	} else {
		var err error
		entries, err = h.leaderboard.Build(r.Context(), profileID, win)
		if err != nil {
			WriteError(w, err)
			return
		}
	}

	WriteJSON(w, http.StatusOK, entries)
}

// Dashboard returns the leaderboard together with the caller's own sleep
// and readiness series. A caller without a usable ring credential gets a
// reconnect error; other users' failures only degrade their own rows.
func (h *DashboardHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	profileID, ok := GetProfileID(r.Context())
	if !ok {
		WriteError(w, domain.ErrUnauthorized)
		return
	}

	win := service.DefaultWindow(time.Now())

	own, err := h.leaderboard.OwnMetrics(r.Context(), profileID, win)
	if err != nil {
		WriteError(w, err)
		return
	}

	entries, err := h.leaderboard.Build(r.Context(), profileID, win)
	if err != nil {
		WriteError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"metrics":     own,
		"leaderboard": entries,
	})
}
