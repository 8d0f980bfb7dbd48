package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tinkererway/govmon/pkg/config"
)

// Collector delivers readings to the remote HTTP collector. A failed
// delivery is reported as an error and never triggers a re-measurement;
// averaging inside the estimator is the only resilience mechanism.
type Collector struct {
	url    string
	client *http.Client
}

// NewCollector creates a collector client from the report configuration.
func NewCollector(cfg config.ReportConfig) *Collector {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	return &Collector{
		url: cfg.URL,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// Send POSTs one reading as JSON to the collector endpoint.
func (c *Collector) Send(ctx context.Context, r Reading) error {
	body, err := json.Marshal(r.toPayload())
	if err != nil {
		return fmt.Errorf("failed to marshal reading: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send reading: %w", err)
	}
	defer resp.Body.Close()

	// Drain so the connection can be reused.
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("collector returned status %d", resp.StatusCode)
	}

	return nil
}
