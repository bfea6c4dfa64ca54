package domain

import (
	"github.com/google/uuid"
)

// MetricKind selects which daily collection to fetch from the provider.
type MetricKind string

const (
	MetricSleep     MetricKind = "sleep"
	MetricReadiness MetricKind = "readiness"
)

// DailyMetric is one day's record from a provider metric collection. Score
// is nil when the provider published no score for that day; nil means "no
// observation", never zero.
type DailyMetric struct {
	Day          string         `json:"day"`
	Score        *int           `json:"score,omitempty"`
	Contributors map[string]int `json:"contributors,omitempty"`
}

// LeaderboardEntry is one profile's row in the ranked cross-user view.
// Recomputed fresh on every request. Profiles without a usable credential
// appear with zeroed scores rather than being dropped.
type LeaderboardEntry struct {
	ProfileID        uuid.UUID `json:"profile_id"`
	DisplayName      string    `json:"display_name"`
	LatestScore      int       `json:"latest_score"`
	AvgScore         float64   `json:"avg_score"`
	ObservationCount int       `json:"observation_count"`
	IsCurrentUser    bool      `json:"is_current_user"`
}
