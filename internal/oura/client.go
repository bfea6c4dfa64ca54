// Package oura is a thin client for the Oura v2 REST API.
package oura

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/ringboard/ringboard/internal/domain"
)

const dateLayout = "2006-01-02"

// maxErrorBody caps how much of a provider error response is carried in a
// MetricsFetchError.
const maxErrorBody = 2048

// Client calls the provider's user-collection endpoints with a caller
// supplied bearer token. All calls honor the context and the configured
// request timeout; the limiter smooths request bursts during leaderboard
// fan-out so the provider's rate limit is not tripped.
type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a Client for the given API base URL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		// The provider allows 300 requests per 5 minutes; ten per second
		// with a modest burst keeps leaderboard fan-out fast while staying
		// under that for sustained load.
		limiter: rate.NewLimiter(rate.Limit(10), 20),
	}
}

type dailyMetricPayload struct {
	Data []domain.DailyMetric `json:"data"`
}

// FetchDailyMetric returns the per-day records of the requested collection
// for the inclusive date range. A non-200 response is returned as a
// *domain.MetricsFetchError carrying the status and body; days without a
// published score keep a nil score.
func (c *Client) FetchDailyMetric(ctx context.Context, accessToken string, kind domain.MetricKind, start, end time.Time) ([]domain.DailyMetric, error) {
	endpoint := fmt.Sprintf("%s/v2/usercollection/daily_%s?%s", c.baseURL, kind, url.Values{
		"start_date": {start.Format(dateLayout)},
		"end_date":   {end.Format(dateLayout)},
	}.Encode())

	var payload dailyMetricPayload
	if err := c.getJSON(ctx, endpoint, accessToken, &payload); err != nil {
		return nil, err
	}
	return payload.Data, nil
}

// FetchPersonalInfo returns the account identity for the token's owner.
func (c *Client) FetchPersonalInfo(ctx context.Context, accessToken string) (*domain.PersonalInfo, error) {
	var info domain.PersonalInfo
	if err := c.getJSON(ctx, c.baseURL+"/v2/usercollection/personal_info", accessToken, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint, accessToken string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("oura api request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &domain.MetricsFetchError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode oura response: %w", err)
	}
	return nil
}
