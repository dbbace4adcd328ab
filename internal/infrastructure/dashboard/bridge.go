package dashboard

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"guildwarden/pkg/utils"

	"go.uber.org/zap"
)

// Bridge talks to the staff dashboard's HTTP API: it pulls configuration
// overrides and pushes events and metrics. The dashboard is best-effort
// infrastructure; every push failure is swallowed after logging so the bot
// never degrades because the dashboard is down.
type Bridge struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *zap.SugaredLogger
}

func NewBridge(baseURL, apiKey string, timeout time.Duration, logger *zap.SugaredLogger) *Bridge {
	logger.Infow("dashboard bridge enabled",
		"base_url", baseURL,
		"api_key", utils.MaskSensitive(apiKey, 4),
	)
	return &Bridge{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// RemoteConfig is the subset of settings the dashboard can override live.
type RemoteConfig struct {
	FreezeEnabled  *bool   `json:"freeze_enabled,omitempty"`
	WelcomeMessage *string `json:"welcome_message,omitempty"`
	MinAge         *int    `json:"min_age,omitempty"`
}

// FetchConfig pulls the current remote configuration.
func (b *Bridge) FetchConfig(ctx context.Context) (*RemoteConfig, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"/api/bot/config", nil)
	if err != nil {
		return nil, err
	}
	b.authorize(req)

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("dashboard config fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("dashboard config fetch returned %d", resp.StatusCode)
	}

	var cfg RemoteConfig
	if err := json.NewDecoder(resp.Body).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode dashboard config: %w", err)
	}
	return &cfg, nil
}

// PushEvent sends one lifecycle event. Implements the services event sink.
func (b *Bridge) PushEvent(ctx context.Context, event string, payload map[string]interface{}) {
	body := map[string]interface{}{
		"event":     event,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"payload":   payload,
	}
	if err := b.post(ctx, "/api/bot/events", body); err != nil {
		b.logger.Debugw("dashboard event push failed", "event", event, "error", err)
	}
}

// PushMetrics sends a point-in-time metrics snapshot.
func (b *Bridge) PushMetrics(ctx context.Context, metrics map[string]interface{}) {
	body := map[string]interface{}{
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"metrics":   metrics,
	}
	if err := b.post(ctx, "/api/bot/metrics", body); err != nil {
		b.logger.Debugw("dashboard metrics push failed", "error", err)
	}
}

func (b *Bridge) post(ctx context.Context, path string, body interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	b.authorize(req)

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("dashboard returned %d", resp.StatusCode)
	}
	return nil
}

func (b *Bridge) authorize(req *http.Request) {
	if b.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+b.apiKey)
	}
}
