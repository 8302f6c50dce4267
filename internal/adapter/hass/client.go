// Package hass adapts the Home Assistant REST and WebSocket APIs to the
// monitor's capability interfaces: state reads, notification delivery, and
// state-change event subscription.
package hass

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"rainwatch/internal/config"
	"rainwatch/internal/observability"
)

// Client talks to the Home Assistant REST API. It implements
// monitor.StateReader and monitor.Notifier.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// NewClient creates a Home Assistant REST client authenticated with a
// long-lived access token.
func NewClient(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.HassURL, "/"),
		token:   cfg.HassToken,
		httpClient: &http.Client{
			Timeout: cfg.HassTimeout,
		},
		logger:  logger,
		metrics: metrics,
	}
}

// stateResponse mirrors GET /api/states/{entity_id}.
type stateResponse struct {
	EntityID   string                     `json:"entity_id"`
	State      string                     `json:"state"`
	Attributes map[string]json.RawMessage `json:"attributes"`
}

// GetState returns the current state string of an entity.
func (c *Client) GetState(ctx context.Context, entityID string) (string, error) {
	st, err := c.fetchState(ctx, entityID)
	if err != nil {
		return "", err
	}
	return st.State, nil
}

// GetAttribute returns an entity attribute's value, or "" when the entity or
// attribute is absent. A JSON string attribute is returned unquoted; any
// other JSON value (the nowcast integrations differ on whether the forecast
// is a string or a nested array) is returned as its raw JSON text.
func (c *Client) GetAttribute(ctx context.Context, entityID, attribute string) (string, error) {
	st, err := c.fetchState(ctx, entityID)
	if err != nil {
		return "", err
	}

	raw, ok := st.Attributes[attribute]
	if !ok {
		return "", nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	return string(raw), nil
}

// Send delivers a message through POST /api/services/notify/{service}.
func (c *Client) Send(ctx context.Context, service, message string) error {
	body, err := json.Marshal(map[string]string{"message": message})
	if err != nil {
		return fmt.Errorf("serialize notify payload: %w", err)
	}

	u := fmt.Sprintf("%s/api/services/notify/%s", c.baseURL, url.PathEscape(service))
	resp, err := c.doRequest(ctx, http.MethodPost, u, bytes.NewReader(body), "notify")
	if err != nil {
		return fmt.Errorf("notify %s: %w", service, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		detail, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("notify %s: status %d: %s", service, resp.StatusCode, detail)
	}
	return nil
}

func (c *Client) fetchState(ctx context.Context, entityID string) (stateResponse, error) {
	u := fmt.Sprintf("%s/api/states/%s", c.baseURL, url.PathEscape(entityID))
	resp, err := c.doRequest(ctx, http.MethodGet, u, nil, "get_state")
	if err != nil {
		return stateResponse{}, fmt.Errorf("get state %s: %w", entityID, err)
	}
	defer resp.Body.Close()

	// Home Assistant returns 404 for entities it has never seen; treat that
	// as absent rather than failing the whole evaluation.
	if resp.StatusCode == http.StatusNotFound {
		c.logger.Debug("entity not found", "entity", entityID)
		return stateResponse{}, nil
	}
	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(resp.Body)
		return stateResponse{}, fmt.Errorf("get state %s: status %d: %s", entityID, resp.StatusCode, detail)
	}

	var st stateResponse
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return stateResponse{}, fmt.Errorf("decode state %s: %w", entityID, err)
	}
	return st, nil
}

func (c *Client) doRequest(ctx context.Context, method, u string, body io.Reader, op string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if c.metrics != nil {
		c.metrics.HassRequestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}
	if err != nil {
		return nil, err
	}
	return resp, nil
}
