package scoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"sync"
	"time"

	"newsgraph/internal/services"
)

// Features describe one fact in its daily context.
type Features struct {
	FactType              string  `json:"fact_type"`
	EntityCount           int     `json:"entity_count"`
	LocationCount         int     `json:"location_count"`
	PreliminaryImportance *int    `json:"preliminary_importance,omitempty"`
	TopicHeat             float64 `json:"topic_heat"`
	TrendingEntityHits    int     `json:"trending_entity_hits"`
	ThreadMatches         int     `json:"thread_matches"`
}

// Model maps features to an importance score. Scores outside 1..10 are
// clamped by the caller.
type Model interface {
	Score(ctx context.Context, f Features) (float64, error)
	Version() string
}

// HeuristicModel is the built-in linear model used when no external
// scoring service is configured.
type HeuristicModel struct{}

const heuristicVersion = "heuristic-v1"

// Version identifies the coefficient set.
func (HeuristicModel) Version() string { return heuristicVersion }

// Score applies fixed weights; the preliminary estimate anchors the result
// when present.
func (HeuristicModel) Score(_ context.Context, f Features) (float64, error) {
	base := 4.0
	if f.PreliminaryImportance != nil {
		base = float64(*f.PreliminaryImportance)
	}
	score := base +
		0.25*math.Min(float64(f.EntityCount), 4) +
		0.25*math.Min(float64(f.LocationCount), 2) +
		0.5*math.Log1p(f.TopicHeat) +
		0.5*math.Min(float64(f.TrendingEntityHits), 3) +
		1.0*math.Min(float64(f.ThreadMatches), 2)
	return score, nil
}

// HTTPModel posts features to an external scoring service which answers
// {"score": n, "version": "..."}.
type HTTPModel struct {
	url    string
	apiKey string
	client *http.Client

	mu      sync.RWMutex
	version string
}

// NewHTTPModel builds a model client for url.
func NewHTTPModel(url, apiKey string, timeout time.Duration) *HTTPModel {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPModel{
		url:     strings.TrimSpace(url),
		apiKey:  strings.TrimSpace(apiKey),
		client:  &http.Client{Timeout: timeout},
		version: "http",
	}
}

// Version reports the version string last returned by the service.
func (m *HTTPModel) Version() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.version
}

type scoreResponse struct {
	Score   *float64 `json:"score"`
	Version string   `json:"version"`
}

// Score calls the external service once.
func (m *HTTPModel) Score(ctx context.Context, f Features) (float64, error) {
	body, err := json.Marshal(f)
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.url, bytes.NewReader(body))
	if err != nil {
		return 0, services.Wrap(services.ErrConfiguration, "scoring", "request", "invalid model url", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if m.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+m.apiKey)
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return 0, services.Wrap(services.ErrExternalTool, "scoring", "request", "model unreachable", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, services.Wrap(services.ErrExternalTool, "scoring", "read", "model response", err)
	}
	if resp.StatusCode != http.StatusOK {
		return 0, services.Wrap(services.ErrExternalTool, "scoring", "request",
			fmt.Sprintf("model returned status %d", resp.StatusCode), nil)
	}
	var decoded scoreResponse
	if err := json.Unmarshal(raw, &decoded); err != nil || decoded.Score == nil {
		return 0, services.Wrap(services.ErrMalformedOutput, "scoring", "decode", "model response lacks score", err)
	}
	if decoded.Version != "" {
		m.mu.Lock()
		m.version = decoded.Version
		m.mu.Unlock()
	}
	return *decoded.Score, nil
}
