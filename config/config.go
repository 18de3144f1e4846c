package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Predictflow PredictflowConfig `yaml:"predictflow"`
	Logging     LoggingConfig     `yaml:"logging"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Channels    ChannelsConfig    `yaml:"channels"`
	Stream      StreamConfig      `yaml:"stream"`
	Rest        RestConfig        `yaml:"rest"`
	Discovery   DiscoveryConfig   `yaml:"discovery"`
}

type PredictflowConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	MaxAge int    `yaml:"max_age"`
}

type MetricsConfig struct {
	CloudWatchEnabled bool   `yaml:"cloudwatch_enabled"`
	Region            string `yaml:"region"`
	Namespace         string `yaml:"namespace"`
	DashboardName     string `yaml:"dashboard_name"`
	AccessKeyID       string `yaml:"access_key_id"`
	SecretAccessKey   string `yaml:"secret_access_key"`
	ChannelSize       bool   `yaml:"channel_size"`
}

type ChannelsConfig struct {
	EventBuffer int `yaml:"event_buffer"`
	ErrorBuffer int `yaml:"error_buffer"`
}

type StreamConfig struct {
	URL                     string `yaml:"url"`
	HeartbeatIntervalMs     int    `yaml:"heartbeat_interval_ms"`
	MessageTimeoutMs        int    `yaml:"message_timeout_ms"`
	MaxReconnectAttempts    int    `yaml:"max_reconnect_attempts"`
	InitialReconnectDelayMs int    `yaml:"initial_reconnect_delay_ms"`
	MaxReconnectDelayMs     int    `yaml:"max_reconnect_delay_ms"`
}

func (s StreamConfig) HeartbeatInterval() time.Duration {
	return time.Duration(s.HeartbeatIntervalMs) * time.Millisecond
}

func (s StreamConfig) MessageTimeout() time.Duration {
	return time.Duration(s.MessageTimeoutMs) * time.Millisecond
}

func (s StreamConfig) InitialReconnectDelay() time.Duration {
	return time.Duration(s.InitialReconnectDelayMs) * time.Millisecond
}

func (s StreamConfig) MaxReconnectDelay() time.Duration {
	return time.Duration(s.MaxReconnectDelayMs) * time.Millisecond
}

type RestConfig struct {
	BaseURL              string      `yaml:"base_url"`
	KeyID                string      `yaml:"key_id"`
	SecretKey            string      `yaml:"secret_key"`
	MaxRequestsPerMinute int         `yaml:"max_requests_per_minute"`
	TimeoutSeconds       int         `yaml:"timeout_seconds"`
	BatchConcurrency     int         `yaml:"batch_concurrency"`
	Retry                RetryConfig `yaml:"retry"`
}

func (r RestConfig) Timeout() time.Duration {
	return time.Duration(r.TimeoutSeconds) * time.Second
}

type RetryConfig struct {
	MaxAttempts    int `yaml:"max_attempts"`
	InitialDelayMs int `yaml:"initial_delay_ms"`
}

func (r RetryConfig) InitialDelay() time.Duration {
	return time.Duration(r.InitialDelayMs) * time.Millisecond
}

type DiscoveryConfig struct {
	BaseURL             string   `yaml:"base_url"`
	Categories          []string `yaml:"categories"`
	RequestsPerSecond   int      `yaml:"requests_per_second"`
	SyncIntervalMinutes int      `yaml:"sync_interval_minutes"`
}

func (d DiscoveryConfig) SyncInterval() time.Duration {
	return time.Duration(d.SyncIntervalMinutes) * time.Minute
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Config{
		Metrics: MetricsConfig{
			ChannelSize: true,
		},
		Channels: ChannelsConfig{
			EventBuffer: 1000,
			ErrorBuffer: 100,
		},
		Stream: StreamConfig{
			HeartbeatIntervalMs:     30000,
			MessageTimeoutMs:        60000,
			MaxReconnectAttempts:    5,
			InitialReconnectDelayMs: 2000,
			MaxReconnectDelayMs:     30000,
		},
		Rest: RestConfig{
			MaxRequestsPerMinute: 200,
			TimeoutSeconds:       30,
			BatchConcurrency:     10,
			Retry: RetryConfig{
				MaxAttempts:    3,
				InitialDelayMs: 1000,
			},
		},
		Discovery: DiscoveryConfig{
			RequestsPerSecond: 5,
		},
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Override credentials from environment variables if available
	if v := os.Getenv("PREDICTFLOW_KEY_ID"); v != "" {
		config.Rest.KeyID = strings.TrimSpace(v)
	}
	if v := os.Getenv("PREDICTFLOW_SECRET_KEY"); v != "" {
		config.Rest.SecretKey = strings.TrimSpace(v)
	}
	if config.Metrics.CloudWatchEnabled {
		if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
			config.Metrics.AccessKeyID = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
			config.Metrics.SecretAccessKey = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_REGION"); v != "" {
			config.Metrics.Region = strings.TrimSpace(v)
		}
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

func validateConfig(cfg *Config) error {
	if cfg.Predictflow.Name == "" {
		return fmt.Errorf("predictflow.name is required")
	}

	if cfg.Predictflow.Version == "" {
		return fmt.Errorf("predictflow.version is required")
	}

	if cfg.Channels.EventBuffer <= 0 {
		return fmt.Errorf("channels.event_buffer must be greater than 0")
	}
	if cfg.Channels.ErrorBuffer <= 0 {
		return fmt.Errorf("channels.error_buffer must be greater than 0")
	}

	if cfg.Stream.URL == "" {
		return fmt.Errorf("stream.url is required")
	}
	if cfg.Stream.HeartbeatIntervalMs <= 0 {
		return fmt.Errorf("stream.heartbeat_interval_ms must be greater than 0")
	}
	if cfg.Stream.MessageTimeoutMs <= 0 {
		return fmt.Errorf("stream.message_timeout_ms must be greater than 0")
	}
	if cfg.Stream.MaxReconnectAttempts <= 0 {
		return fmt.Errorf("stream.max_reconnect_attempts must be greater than 0")
	}
	if cfg.Stream.InitialReconnectDelayMs <= 0 || cfg.Stream.MaxReconnectDelayMs < cfg.Stream.InitialReconnectDelayMs {
		return fmt.Errorf("stream reconnect delays are invalid")
	}

	if cfg.Rest.BaseURL == "" {
		return fmt.Errorf("rest.base_url is required")
	}
	if cfg.Rest.MaxRequestsPerMinute <= 0 {
		return fmt.Errorf("rest.max_requests_per_minute must be greater than 0")
	}
	if cfg.Rest.TimeoutSeconds <= 0 {
		return fmt.Errorf("rest.timeout_seconds must be greater than 0")
	}
	if cfg.Rest.BatchConcurrency <= 0 {
		return fmt.Errorf("rest.batch_concurrency must be greater than 0")
	}
	if cfg.Rest.Retry.MaxAttempts < 0 {
		return fmt.Errorf("rest.retry.max_attempts must not be negative")
	}
	if cfg.Rest.Retry.InitialDelayMs <= 0 {
		return fmt.Errorf("rest.retry.initial_delay_ms must be greater than 0")
	}

	if cfg.Discovery.BaseURL == "" {
		return fmt.Errorf("discovery.base_url is required")
	}
	if cfg.Discovery.RequestsPerSecond <= 0 {
		return fmt.Errorf("discovery.requests_per_second must be greater than 0")
	}

	return nil
}
