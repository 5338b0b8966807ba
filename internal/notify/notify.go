// Package notify pushes an ntfy notification when delivery is failing
// across the board, so a misconfigured endpoint or dead network path gets
// noticed before the retention cap starts discarding data.
package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/traverse-labs/waypost/internal/transmit"
)

// Notifier is told about completed transmission cycles.
type Notifier interface {
	CycleDone(ctx context.Context, result transmit.CycleResult)
}

// Client implements the ntfy notification client. It only speaks up when a
// cycle fails on every endpoint, and at most once per quiet period.
type Client struct {
	httpClient *http.Client
	config     *Config
	logger     *zap.Logger

	mu       sync.Mutex
	lastSent time.Time
}

// NewClient creates a new ntfy client.
func NewClient(cfg *Config, logger *zap.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		config: cfg,
		logger: logger,
	}
}

// CycleDone sends a failure notification when every endpoint attempt in the
// cycle failed. Healthy and partially healthy cycles are silent.
func (c *Client) CycleDone(ctx context.Context, result transmit.CycleResult) {
	if !c.config.Enabled {
		return
	}
	if result.Endpoints == 0 || result.Failed < result.Endpoints {
		return
	}

	c.mu.Lock()
	if time.Since(c.lastSent) < c.config.QuietPeriod {
		c.mu.Unlock()
		return
	}
	c.lastSent = time.Now()
	c.mu.Unlock()

	title := "Location delivery failing"
	message := FormatFailureMessage(result)
	tags := "x"
	if c.config.Tags != "" {
		tags = c.config.Tags + ",x"
	}

	if err := c.send(ctx, title, message, tags, "high"); err != nil {
		c.logger.Warn("failed to send notification", zap.Error(err))
	}
}

func (c *Client) send(ctx context.Context, title, message, tags, priority string) error {
	url := fmt.Sprintf("%s/%s", strings.TrimSuffix(c.config.Server, "/"), c.config.Topic)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(message))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Title", title)
	req.Header.Set("Priority", priority)
	req.Header.Set("Tags", tags)

	if c.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.Token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending notification: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	// Drain response body to allow connection reuse
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notification failed with status: %d", resp.StatusCode)
	}

	c.logger.Debug("notification sent", zap.String("title", title))
	return nil
}

// NoopNotifier is a no-op implementation for when notifications are disabled.
type NoopNotifier struct{}

// CycleDone is a no-op.
func (n *NoopNotifier) CycleDone(_ context.Context, _ transmit.CycleResult) {}

// New creates the appropriate notifier based on config.
func New(cfg *Config, logger *zap.Logger) Notifier {
	if !cfg.Enabled {
		return &NoopNotifier{}
	}
	return NewClient(cfg, logger)
}
