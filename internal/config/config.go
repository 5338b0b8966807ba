package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/traverse-labs/waypost/internal/transmit"
)

type Config struct {
	Endpoints    []EndpointConfig   `mapstructure:"endpoints"`
	Transmission TransmissionConfig `mapstructure:"transmission"`
	Retention    RetentionConfig    `mapstructure:"retention"`
	Poster       PosterConfig       `mapstructure:"poster"`
	Collection   CollectionConfig   `mapstructure:"collection"`
	Ingest       IngestConfig       `mapstructure:"ingest"`
	Storage      StorageConfig      `mapstructure:"storage"`
	Logging      LoggingConfig      `mapstructure:"logging"`
}

type EndpointConfig struct {
	URL     string            `mapstructure:"url"`
	Headers map[string]string `mapstructure:"headers"`
}

type TransmissionConfig struct {
	IntervalSec int `mapstructure:"interval_sec"`
	TickSec     int `mapstructure:"tick_sec"`
}

type RetentionConfig struct {
	MaxAgeDays int `mapstructure:"max_age_days"`
}

type PosterConfig struct {
	TimeoutSec    int  `mapstructure:"timeout_sec"`
	RetryCount    int  `mapstructure:"retry_count"`
	RetryDelaySec int  `mapstructure:"retry_delay_sec"`
	RatePerSecond int  `mapstructure:"rate_per_second"`
	Compress      bool `mapstructure:"compress"`
}

type CollectionConfig struct {
	Fields      []string `mapstructure:"fields"`
	DeviceModel string   `mapstructure:"device_model"`
	OSVersion   string   `mapstructure:"os_version"`
	InstallID   string   `mapstructure:"install_id"`
}

type IngestConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

type StorageConfig struct {
	Path string `mapstructure:"path"`
}

type LoggingConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Directory string `mapstructure:"directory"`
	Level     string `mapstructure:"level"`
}

func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("transmission.interval_sec", 60)
	v.SetDefault("transmission.tick_sec", 60)
	v.SetDefault("retention.max_age_days", 10)
	v.SetDefault("poster.timeout_sec", 30)
	v.SetDefault("poster.retry_count", 0)
	v.SetDefault("poster.retry_delay_sec", 5)
	v.SetDefault("poster.rate_per_second", 5)
	v.SetDefault("poster.compress", true)
	v.SetDefault("ingest.enabled", true)
	v.SetDefault("ingest.addr", ":8090")
	v.SetDefault("storage.path", "data/waypost.db")
	v.SetDefault("logging.enabled", true)
	v.SetDefault("logging.directory", "logs")
	v.SetDefault("logging.level", "info")

	// Environment variable support
	v.SetEnvPrefix("WAYPOST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// Load config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("default")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// TransmissionInterval returns the staleness threshold as a duration.
func (c *Config) TransmissionInterval() time.Duration {
	return time.Duration(c.Transmission.IntervalSec) * time.Second
}

// Tick returns the periodic trigger interval for the daemon loop.
func (c *Config) Tick() time.Duration {
	return time.Duration(c.Transmission.TickSec) * time.Second
}

// MaxRetention returns the retention cap as a duration.
func (c *Config) MaxRetention() time.Duration {
	return time.Duration(c.Retention.MaxAgeDays) * 24 * time.Hour
}

// TransmitEndpoints converts the configured endpoints into engine values.
func (c *Config) TransmitEndpoints() []transmit.Endpoint {
	endpoints := make([]transmit.Endpoint, 0, len(c.Endpoints))
	for _, ep := range c.Endpoints {
		endpoints = append(endpoints, transmit.Endpoint{
			URL:     ep.URL,
			Headers: ep.Headers,
		})
	}
	return endpoints
}
