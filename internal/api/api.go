// Package api talks to the relay's plain HTTP surface.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"fjarsyn/internal/logging"
	"fjarsyn/models"
)

var log = logging.New("api")

// ============================================================
// API CLIENT
// ============================================================

type APIClient struct {
	Timeout time.Duration
	client  *http.Client
}

func NewAPIClient(timeout time.Duration) *APIClient {
	return &APIClient{
		Timeout: timeout,
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *APIClient) IsSuccessStatusCode(statusCode int) bool {
	return statusCode >= 200 && statusCode < 300
}

// Health is the relay's /healthz body.
type Health struct {
	Peers int `json:"peers"`
}

// RelayHealth probes the relay behind a signaling URL such as
// ws://host:30000/ws.
func (c *APIClient) RelayHealth(ctx context.Context, signalingURL string) (Health, error) {
	endpoint, err := HealthURL(signalingURL)
	if err != nil {
		return Health{}, err
	}

	body, status, err := c.get(ctx, endpoint)
	if err != nil {
		return Health{}, err
	}
	if !c.IsSuccessStatusCode(status) {
		return Health{}, fmt.Errorf("health probe: status %d", status)
	}

	var h Health
	if err := c.ParseResponse(body, &h); err != nil {
		return Health{}, err
	}
	log.Debugf("✅ Relay healthy (%d peers)", h.Peers)
	return h, nil
}

// HealthURL maps ws/wss signaling URLs to the http/https health endpoint.
func HealthURL(signalingURL string) (string, error) {
	u, err := url.Parse(signalingURL)
	if err != nil {
		return "", fmt.Errorf("invalid relay URL: %w", err)
	}
	switch u.Scheme {
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	case "http", "https":
	default:
		return "", fmt.Errorf("unsupported relay scheme %q", u.Scheme)
	}
	u.Path = models.HealthPath
	u.RawQuery = ""
	return u.String(), nil
}

func (c *APIClient) get(ctx context.Context, endpoint string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read response: %w", err)
	}
	return body, resp.StatusCode, nil
}

func (c *APIClient) ParseResponse(body []byte, result interface{}) error {
	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}
