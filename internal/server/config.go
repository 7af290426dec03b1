// Package server provides configuration helpers that define runtime defaults,
// validation, and rate-limiting parameters for the chatroom service.
package server

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Tyrowin/chatroom/internal/hub"
	"github.com/Tyrowin/chatroom/internal/logger"
)

// RateLimitConfig defines the parameters for per-connection message rate limiting.
type RateLimitConfig struct {
	Burst          int           `yaml:"burst"`
	RefillInterval time.Duration `yaml:"refill_interval"`
}

// HubConfig selects the protocol variant and outbound delivery limits.
type HubConfig struct {
	Mode                string        `yaml:"mode"`
	AnnounceJoins       bool          `yaml:"announce_joins"`
	RefreshUsersOnLeave bool          `yaml:"refresh_users_on_leave"`
	SendBuffer          int           `yaml:"send_buffer"`
	SendTimeout         time.Duration `yaml:"send_timeout"`
}

// LoggingConfig represents logging settings
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config holds the server configuration settings including security controls.
type Config struct {
	Port           string          `yaml:"port"`
	AllowedOrigins []string        `yaml:"allowed_origins"`
	MaxMessageSize int64           `yaml:"max_message_size"`
	RateLimit      RateLimitConfig `yaml:"rate_limit"`
	Hub            HubConfig       `yaml:"hub"`
	Logging        LoggingConfig   `yaml:"logging"`
}

const (
	defaultPort           = ":8080"
	defaultMaxMessageSize = 4096
	defaultBurst          = 5
	defaultRefillInterval = time.Second
	defaultSendBuffer     = 256
	defaultSendTimeout    = 10 * time.Second
)

func defaultConfig() Config {
	return Config{
		Port: defaultPort,
		AllowedOrigins: []string{
			"http://localhost:8080",
		},
		MaxMessageSize: defaultMaxMessageSize,
		RateLimit: RateLimitConfig{
			Burst:          defaultBurst,
			RefillInterval: defaultRefillInterval,
		},
		Hub: HubConfig{
			Mode:                string(hub.ModeNamed),
			AnnounceJoins:       true,
			RefreshUsersOnLeave: true,
			SendBuffer:          defaultSendBuffer,
			SendTimeout:         defaultSendTimeout,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// NewConfig creates a Config instance populated with default values for all settings.
func NewConfig() *Config {
	cfg := defaultConfig()
	return &cfg
}

// NewConfigFromEnv creates a Config instance from environment variables.
// Falls back to default values if environment variables are not set.
func NewConfigFromEnv() *Config {
	cfg := defaultConfig()
	applyEnvOverrides(&cfg)
	return &cfg
}

// LoadConfig builds the configuration from defaults, then the YAML file at
// path (if non-empty), then environment variables, and validates the result.
func LoadConfig(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		if err := loadFromFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	cfg = sanitizeConfig(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

func applyEnvOverrides(cfg *Config) {
	if port := os.Getenv("SERVER_PORT"); port != "" {
		cfg.Port = port
	}

	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		cfg.AllowedOrigins = parseOrigins(origins)
	}

	if maxSize := os.Getenv("MAX_MESSAGE_SIZE"); maxSize != "" {
		cfg.MaxMessageSize = parseMaxMessageSize(maxSize, cfg.MaxMessageSize)
	}

	if burst := os.Getenv("RATE_LIMIT_BURST"); burst != "" {
		cfg.RateLimit.Burst = parseIntValue(burst, cfg.RateLimit.Burst)
	}

	// Seconds, as a plain integer.
	if interval := os.Getenv("RATE_LIMIT_REFILL_INTERVAL"); interval != "" {
		cfg.RateLimit.RefillInterval = parseRefillInterval(interval, cfg.RateLimit.RefillInterval)
	}

	if mode := os.Getenv("HUB_MODE"); mode != "" {
		cfg.Hub.Mode = strings.ToLower(strings.TrimSpace(mode))
	}

	if announce := os.Getenv("HUB_ANNOUNCE_JOINS"); announce != "" {
		cfg.Hub.AnnounceJoins = parseBoolValue(announce, cfg.Hub.AnnounceJoins)
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}

	if format := os.Getenv("LOG_FORMAT"); format != "" {
		cfg.Logging.Format = format
	}
}

func sanitizeConfig(cfg Config) Config {
	if cfg.Port == "" {
		cfg.Port = defaultPort
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = defaultMaxMessageSize
	}
	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = defaultBurst
	}
	if cfg.RateLimit.RefillInterval <= 0 {
		cfg.RateLimit.RefillInterval = defaultRefillInterval
	}
	if cfg.Hub.SendBuffer <= 0 {
		cfg.Hub.SendBuffer = defaultSendBuffer
	}
	if cfg.Hub.SendTimeout <= 0 {
		cfg.Hub.SendTimeout = defaultSendTimeout
	}
	cfg.AllowedOrigins = append([]string(nil), cfg.AllowedOrigins...)
	return cfg
}

// Validate checks values that cannot be defaulted.
func (c *Config) Validate() error {
	if _, err := hub.ParseMode(c.Hub.Mode); err != nil {
		return err
	}
	if _, ok := logger.ParseLevel(c.Logging.Level); !ok {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}
	return nil
}

// HubOptions converts the hub section into hub.Options. Call Validate first;
// an unknown mode falls back to named.
func (c *Config) HubOptions() hub.Options {
	mode, err := hub.ParseMode(c.Hub.Mode)
	if err != nil {
		mode = hub.ModeNamed
	}
	return hub.Options{
		Mode:                mode,
		AnnounceJoins:       c.Hub.AnnounceJoins,
		RefreshUsersOnLeave: c.Hub.RefreshUsersOnLeave,
	}
}

// String returns a string representation of the configuration (for logging)
func (c *Config) String() string {
	return fmt.Sprintf("Config{Port: %s, Origins: %v, Mode: %s, MaxMessageSize: %d, LogLevel: %s}",
		c.Port, c.AllowedOrigins, c.Hub.Mode, c.MaxMessageSize, c.Logging.Level)
}

func parseOrigins(origins string) []string {
	parts := strings.Split(origins, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func parseMaxMessageSize(value string, defaultValue int64) int64 {
	if size, err := strconv.ParseInt(value, 10, 64); err == nil && size > 0 {
		return size
	}
	return defaultValue
}

func parseIntValue(value string, defaultValue int) int {
	if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
		return parsed
	}
	return defaultValue
}

func parseBoolValue(value string, defaultValue bool) bool {
	if parsed, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
		return parsed
	}
	return defaultValue
}

func parseRefillInterval(value string, defaultValue time.Duration) time.Duration {
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return defaultValue
}
