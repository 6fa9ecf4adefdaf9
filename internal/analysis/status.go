package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// statusTimeout bounds health probes independently of the analysis timeout.
const statusTimeout = 5 * time.Second

// ServicesStatus mirrors the service's /services-status report.
type ServicesStatus struct {
	Backend  string          `json:"backend" msgpack:"backend"`
	Services map[string]bool `json:"services" msgpack:"services"`
}

// BackendUp reports whether the backend field says the service is up. The
// service sends "healthy"; "ok" and "up" are accepted too.
func (s *ServicesStatus) BackendUp() bool {
	if s == nil {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(s.Backend)) {
	case "healthy", "ok", "up":
		return true
	}
	return false
}

// Health returns nil when GET /health answers 200.
func (c *Client) Health(ctx context.Context) error {
	resp, err := c.get(ctx, "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("analysis service unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

// ServicesStatus fetches the per-service health map.
func (c *Client) ServicesStatus(ctx context.Context) (*ServicesStatus, error) {
	resp, err := c.get(ctx, "/services-status")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("services status: unexpected status %d", resp.StatusCode)
	}

	var status ServicesStatus
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&status); err != nil {
		return nil, fmt.Errorf("failed to decode services status: %w", err)
	}
	return &status, nil
}

func (c *Client) get(ctx context.Context, path string) (*http.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, statusTimeout)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to perform request: %w", err)
	}
	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}
