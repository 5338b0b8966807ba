package config

import (
	"fmt"
	"net/url"
	"strings"
)

var validLogLevels = map[string]bool{
	"debug": true, "info": true, "warn": true, "error": true,
}

func (c *Config) Validate() error {
	seen := make(map[string]bool, len(c.Endpoints))
	for i, ep := range c.Endpoints {
		if ep.URL == "" {
			return fmt.Errorf("endpoints[%d]: url is required", i)
		}
		parsed, err := url.ParseRequestURI(ep.URL)
		if err != nil {
			return fmt.Errorf("endpoints[%d]: invalid url %q: %w", i, ep.URL, err)
		}
		if parsed.Scheme != "http" && parsed.Scheme != "https" {
			return fmt.Errorf("endpoints[%d]: unsupported scheme %q", i, parsed.Scheme)
		}
		// Endpoint identity is case-insensitive; duplicates would share a
		// delivery cursor and double-send.
		key := strings.ToLower(ep.URL)
		if seen[key] {
			return fmt.Errorf("endpoints[%d]: duplicate endpoint %q", i, ep.URL)
		}
		seen[key] = true
	}

	if c.Transmission.IntervalSec < 1 {
		return fmt.Errorf("transmission.interval_sec must be >= 1")
	}
	if c.Transmission.TickSec < 1 {
		return fmt.Errorf("transmission.tick_sec must be >= 1")
	}
	if c.Retention.MaxAgeDays < 1 {
		return fmt.Errorf("retention.max_age_days must be >= 1")
	}
	if c.Poster.TimeoutSec < 1 {
		return fmt.Errorf("poster.timeout_sec must be >= 1")
	}
	if c.Poster.RetryCount < 0 {
		return fmt.Errorf("poster.retry_count must not be negative")
	}
	if c.Storage.Path == "" {
		return fmt.Errorf("storage.path is required")
	}
	if c.Logging.Level != "" && !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of debug, info, warn, error")
	}
	return nil
}
