// Package livedata polls the external live-match feed.
package livedata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"matchpulse/internal/model"
)

const maxBodySize = 5 * 1024 * 1024

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client fetches live-match snapshots from the data-source collaborator.
type Client struct {
	client  HTTPClient
	baseURL string
	timeout time.Duration
}

// New creates a Client polling the given feed URL.
func New(client HTTPClient, baseURL string) *Client {
	return &Client{
		client:  client,
		baseURL: baseURL,
		timeout: 30 * time.Second,
	}
}

type feedPayload struct {
	Matches []model.LiveMatch `json:"matches"`
}

// FetchLiveMatches retrieves the current live-match set. An empty feed is
// a normal result, not an error. Derived statistics (goal differential,
// total goals) are filled in from the scores when the feed omits them, and
// the match clock is mirrored into the stats map so conditions can bound it.
func (c *Client) FetchLiveMatches(ctx context.Context) ([]model.LiveMatch, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "MatchPulse/1.0")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	var payload feedPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	matches := payload.Matches
	for i := range matches {
		normalize(&matches[i])
	}
	return matches, nil
}

func normalize(m *model.LiveMatch) {
	if m.Stats == nil {
		m.Stats = make(map[model.StatField]float64)
	}
	if _, ok := m.Stats[model.FieldMinute]; !ok {
		m.Stats[model.FieldMinute] = float64(m.Minute)
	}
	if _, ok := m.Stats[model.FieldGoalDifferential]; !ok {
		diff := m.HomeScore - m.AwayScore
		if diff < 0 {
			diff = -diff
		}
		m.Stats[model.FieldGoalDifferential] = float64(diff)
	}
	if _, ok := m.Stats[model.FieldTotalGoals]; !ok {
		m.Stats[model.FieldTotalGoals] = float64(m.HomeScore + m.AwayScore)
	}
}
