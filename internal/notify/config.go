package notify

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds ntfy notification configuration.
type Config struct {
	Enabled     bool          // Whether notifications are enabled
	Server      string        // ntfy server URL (default: https://ntfy.sh)
	Topic       string        // Topic name (required if enabled)
	Tags        string        // Comma-separated emoji tags (e.g., "satellite")
	Token       string        // Optional access token for private topics
	QuietPeriod time.Duration // Minimum time between failure notifications
}

// LoadConfig loads notification config from environment variables.
func LoadConfig() *Config {
	return &Config{
		Enabled:     getEnvBoolOrDefault("NTFY_ENABLED", false),
		Server:      getEnvOrDefault("NTFY_SERVER", "https://ntfy.sh"),
		Topic:       os.Getenv("NTFY_TOPIC"),
		Tags:        getEnvOrDefault("NTFY_TAGS", "satellite"),
		Token:       os.Getenv("NTFY_TOKEN"),
		QuietPeriod: getEnvDurationOrDefault("NTFY_QUIET_PERIOD", time.Hour),
	}
}

// Validate checks configuration is valid when enabled.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Topic == "" {
		return errors.New("NTFY_TOPIC is required when NTFY_ENABLED=true")
	}
	if c.QuietPeriod < 0 {
		return fmt.Errorf("NTFY_QUIET_PERIOD must not be negative")
	}
	return nil
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBoolOrDefault(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvDurationOrDefault(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
