package service

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ringboard/ringboard/internal/domain"
)

// TokenProvider hands out valid provider access tokens per profile.
type TokenProvider interface {
	ValidToken(ctx context.Context, profileID uuid.UUID) (string, error)
}

// MetricsFetcher fetches daily metric series from the provider.
type MetricsFetcher interface {
	FetchDailyMetric(ctx context.Context, accessToken string, kind domain.MetricKind, start, end time.Time) ([]domain.DailyMetric, error)
}

// Window is an inclusive date range for metric queries.
type Window struct {
	Start time.Time
	End   time.Time
}

// DefaultWindow is the last seven days ending today, computed at call time.
func DefaultWindow(now time.Time) Window {
	return Window{Start: now.AddDate(0, 0, -7), End: now}
}

// Dashboard is the requesting user's own metric series for display.
type Dashboard struct {
	Sleep     []domain.DailyMetric `json:"sleep"`
	Readiness []domain.DailyMetric `json:"readiness"`
}

// LeaderboardService ranks profiles by their recent sleep scores. Each
// profile is processed independently: a missing credential, failed refresh,
// or provider error degrades that one entry to zeros and never aborts the
// batch.
type LeaderboardService struct {
	profiles ProfileStore
	tokens   TokenProvider
	metrics  MetricsFetcher
	workers  int
}

// NewLeaderboardService creates a new LeaderboardService. workers bounds
// the concurrent per-profile fetches.
func NewLeaderboardService(profiles ProfileStore, tokens TokenProvider, metrics MetricsFetcher, workers int) *LeaderboardService {
	if workers < 1 {
		workers = 1
	}
	return &LeaderboardService{profiles: profiles, tokens: tokens, metrics: metrics, workers: workers}
}

// Build ranks every known profile over the window. The requesting user's
// entry is flagged; entries are sorted by average score descending with
// input order breaking ties.
func (s *LeaderboardService) Build(ctx context.Context, currentID uuid.UUID, win Window) ([]domain.LeaderboardEntry, error) {
	profiles, err := s.profiles.List(ctx)
	if err != nil {
		return nil, err
	}
	return s.BuildFor(ctx, currentID, win, profiles), nil
}

// BuildFor ranks the given profiles. Used directly for scoped views such
// as a friends-only leaderboard.
func (s *LeaderboardService) BuildFor(ctx context.Context, currentID uuid.UUID, win Window, profiles []domain.Profile) []domain.LeaderboardEntry {
	entries := make([]domain.LeaderboardEntry, len(profiles))

	var g errgroup.Group
	g.SetLimit(s.workers)
	for i, p := range profiles {
		i, p := i, p
		g.Go(func() error {
			entries[i] = s.entryFor(ctx, p, win)
			return nil
		})
	}
	// Goroutines only record entries, never errors.
	_ = g.Wait()

	for i := range entries {
		entries[i].IsCurrentUser = entries[i].ProfileID == currentID
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].AvgScore > entries[j].AvgScore
	})
	return entries
}

// OwnMetrics fetches the requesting user's sleep and readiness series.
// Unlike the batch path, credential errors propagate so the caller can
// redirect to re-authentication.
func (s *LeaderboardService) OwnMetrics(ctx context.Context, profileID uuid.UUID, win Window) (*Dashboard, error) {
	token, err := s.tokens.ValidToken(ctx, profileID)
	if err != nil {
		return nil, err
	}

	sleep, err := s.metrics.FetchDailyMetric(ctx, token, domain.MetricSleep, win.Start, win.End)
	if err != nil {
		return nil, err
	}
	readiness, err := s.metrics.FetchDailyMetric(ctx, token, domain.MetricReadiness, win.Start, win.End)
	if err != nil {
		return nil, err
	}

	return &Dashboard{Sleep: sleep, Readiness: readiness}, nil
}

// entryFor computes one profile's entry, degrading to zeros on any failure.
func (s *LeaderboardService) entryFor(ctx context.Context, p domain.Profile, win Window) (entry domain.LeaderboardEntry) {
	entry = domain.LeaderboardEntry{ProfileID: p.ID, DisplayName: p.DisplayName}

	defer func() {
		if r := recover(); r != nil {
			slog.Error("leaderboard entry panicked", "profile_id", p.ID, "panic", r)
			entry = domain.LeaderboardEntry{ProfileID: p.ID, DisplayName: p.DisplayName}
		}
	}()

	token, err := s.tokens.ValidToken(ctx, p.ID)
	if err != nil {
		slog.Debug("leaderboard entry degraded: no valid token", "profile_id", p.ID, "error", err)
		return entry
	}

	series, err := s.metrics.FetchDailyMetric(ctx, token, domain.MetricSleep, win.Start, win.End)
	if err != nil {
		slog.Debug("leaderboard entry degraded: fetch failed", "profile_id", p.ID, "error", err)
		return entry
	}

	entry.LatestScore, entry.AvgScore, entry.ObservationCount = scoreStats(series)
	return entry
}

// scoreStats reduces a daily series to (latest, average, count) over the
// days that carry a score. The average is rounded to one decimal place.
// Duplicate days are all counted; days without a score are skipped, not
// treated as zero.
func scoreStats(series []domain.DailyMetric) (latest int, avg float64, count int) {
	sorted := make([]domain.DailyMetric, len(series))
	copy(sorted, series)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Day > sorted[j].Day
	})

	var sum int
	for _, m := range sorted {
		if m.Score == nil {
			continue
		}
		if count == 0 {
			latest = *m.Score
		}
		sum += *m.Score
		count++
	}
	if count == 0 {
		return 0, 0, 0
	}

	avg = math.Round(float64(sum)/float64(count)*10) / 10
	return latest, avg, count
}
