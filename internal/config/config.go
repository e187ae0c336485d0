package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Webhook  WebhookConfig  `yaml:"webhook"`
	API      APIConfig      `yaml:"api"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

// GetHost returns the server host, with container detection
func (c ServerConfig) GetHost() string {
	// On ECS/container, listen on all interfaces
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// Addr returns the host:port listen address.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.GetHost(), c.Port)
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	URL             string `yaml:"url"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime_minutes"`
}

// RedisConfig holds Redis connection settings for the rate limiter and
// the shared TTL caches (AWS IP ranges, SNS signing certificates)
type RedisConfig struct {
	URL string `yaml:"url"`
}

// WebhookConfig holds SNS webhook endpoint settings
type WebhookConfig struct {
	// SecretKey is the shared secret SNS must present as ?key=.
	// The secret check is always mandatory.
	SecretKey string `yaml:"secret_key"`

	// EndpointSlug is the path segment of the webhook endpoint,
	// e.g. "ses-sns-webhook" serves POST /webhook/ses-sns-webhook.
	EndpointSlug string `yaml:"endpoint_slug"`

	// ValidateAWSIP enables the AWS source-IP membership check.
	// Defaults to true. The check itself fails open on lookup errors.
	ValidateAWSIP *bool `yaml:"validate_aws_ip"`

	// Rate limit ceilings per source IP (fixed windows)
	MaxRequestsPerMinute int `yaml:"max_requests_per_minute"`
	MaxRequestsPerHour   int `yaml:"max_requests_per_hour"`

	// HTTPTimeoutSeconds bounds outbound calls: IP-range fetch,
	// certificate fetch, SubscribeURL confirmation
	HTTPTimeoutSeconds int `yaml:"http_timeout_seconds"`
}

// AWSIPValidationEnabled reports whether the AWS source-IP check runs.
func (c WebhookConfig) AWSIPValidationEnabled() bool {
	if c.ValidateAWSIP == nil {
		return true
	}
	return *c.ValidateAWSIP
}

// HTTPTimeout returns the outbound HTTP timeout as a duration
func (c WebhookConfig) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTPTimeoutSeconds) * time.Second
}

// APIConfig holds reporting API settings
type APIConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// Load reads and parses the configuration file. A missing file is not
// an error: everything can come from defaults and env overrides.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	if err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, err
		}
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 20
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 30
	}
	if cfg.Redis.URL == "" {
		cfg.Redis.URL = "redis://localhost:6379/0"
	}
	if cfg.Webhook.EndpointSlug == "" {
		cfg.Webhook.EndpointSlug = "ses-sns-webhook"
	}
	if cfg.Webhook.MaxRequestsPerMinute == 0 {
		cfg.Webhook.MaxRequestsPerMinute = 300
	}
	if cfg.Webhook.MaxRequestsPerHour == 0 {
		cfg.Webhook.MaxRequestsPerHour = 3000
	}
	if cfg.Webhook.HTTPTimeoutSeconds == 0 {
		cfg.Webhook.HTTPTimeoutSeconds = 10
	}
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars,
// so secrets can live in .env locally and in real env vars on ECS.
func LoadFromEnv(path string) (*Config, error) {
	// Load .env file if it exists (no error if missing)
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		cfg.Database.URL = dbURL
	}
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		cfg.Redis.URL = redisURL
	}
	if secret := os.Getenv("SNS_SECRET_KEY"); secret != "" {
		cfg.Webhook.SecretKey = secret
	}
	if slug := os.Getenv("SNS_ENDPOINT_SLUG"); slug != "" {
		cfg.Webhook.EndpointSlug = slug
	}
	if v := os.Getenv("VALIDATE_AWS_IP"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Webhook.ValidateAWSIP = &b
		}
	}

	return cfg, nil
}
