package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"guildwarden/internal/core/domain"
	"guildwarden/internal/core/ports"

	"go.uber.org/zap"
)

// HTTPSource probes activity endpoints that return a JSON activity list, the
// shape the aggregation proxy exposes for every supported platform.
type HTTPSource struct {
	httpClient *http.Client
	logger     *zap.SugaredLogger
}

func NewHTTPSource(timeout time.Duration, logger *zap.SugaredLogger) ports.ActivitySource {
	return &HTTPSource{
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

type activityPayload struct {
	Live  bool   `json:"live"`
	Title string `json:"title"`
	URL   string `json:"url"`
}

func (s *HTTPSource) Fetch(ctx context.Context, target domain.NotifierTarget) ([]domain.Activity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.URL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("probe failed for %s: %w", target.Platform, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("probe for %s returned %d", target.Platform, resp.StatusCode)
	}

	var payloads []activityPayload
	if err := json.NewDecoder(resp.Body).Decode(&payloads); err != nil {
		return nil, fmt.Errorf("undecodable probe response for %s: %w", target.Platform, err)
	}

	now := time.Now()
	var activities []domain.Activity
	for _, p := range payloads {
		if !p.Live || p.URL == "" {
			continue
		}
		activities = append(activities, domain.Activity{
			Target:     target,
			Title:      p.Title,
			URL:        p.URL,
			ObservedAt: now,
		})
	}
	return activities, nil
}
