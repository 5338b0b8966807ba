// Package poster performs the single HTTP post of one batch payload to one
// endpoint. Retry and backoff live here; the engine above only sees
// success or failure.
package poster

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/klauspost/compress/gzip"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Options tunes the HTTP poster.
type Options struct {
	Timeout       time.Duration
	RetryCount    int
	RetryDelay    time.Duration
	RatePerSecond int
	Compress      bool
}

// HTTPPoster posts JSON batch payloads with rate limiting and bounded
// retry on transient failures.
type HTTPPoster struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	retryCount int
	retryDelay time.Duration
	compress   bool
	logger     *zap.Logger
}

func New(opts Options, logger *zap.Logger) *HTTPPoster {
	transport := &http.Transport{
		MaxIdleConns:       100,
		MaxConnsPerHost:    10,
		IdleConnTimeout:    90 * time.Second,
		DisableCompression: false,
	}

	ratePerSec := opts.RatePerSecond
	if ratePerSec <= 0 {
		ratePerSec = 5
	}

	return &HTTPPoster{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   opts.Timeout,
		},
		limiter:    rate.NewLimiter(rate.Limit(ratePerSec), ratePerSec*2),
		retryCount: opts.RetryCount,
		retryDelay: opts.RetryDelay,
		compress:   opts.Compress,
		logger:     logger,
	}
}

// Post sends one batch payload to destination. Headers are attached to
// every attempt. Transient failures (network errors, 429, 5xx) are retried
// with exponential backoff up to the configured count; any other
// non-success status fails immediately.
func (p *HTTPPoster) Post(ctx context.Context, destination string, headers map[string]string, payload []byte) error {
	if err := p.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	body := payload
	encoding := ""
	if p.compress {
		compressed, err := gzipBytes(payload)
		if err != nil {
			return fmt.Errorf("compressing payload: %w", err)
		}
		body = compressed
		encoding = "gzip"
	}

	var lastErr error
	for attempt := 0; attempt <= p.retryCount; attempt++ {
		if attempt > 0 {
			delay := p.retryDelay * time.Duration(1<<(attempt-1)) // Exponential backoff
			p.logger.Debug("retrying post",
				zap.String("destination", destination),
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
			)

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		err := p.postOnce(ctx, destination, headers, body, encoding)
		if err == nil {
			return nil
		}
		if !retryable(err) {
			return err
		}
		lastErr = err
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

func (p *HTTPPoster) postOnce(ctx context.Context, destination string, headers map[string]string, body []byte, encoding string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, destination, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if encoding != "" {
		req.Header.Set("Content-Encoding", encoding)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	// Drain response body to allow connection reuse
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return ErrRateLimited
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: status %d", ErrAuthFailed, resp.StatusCode)
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: status %d", ErrServerError, resp.StatusCode)
	default:
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
	}
}

func gzipBytes(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	if _, err := gw.Write(data); err != nil {
		return nil, err
	}
	if err := gw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
