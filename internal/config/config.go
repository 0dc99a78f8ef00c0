// ABOUTME: Configuration loading and parsing for parley-gateway
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/parley-chat/parley/internal/handoff"
)

// Config represents the complete parley-gateway configuration
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Bot     BotConfig     `yaml:"bot"`
	Channel ChannelConfig `yaml:"channel"`
	Session SessionConfig `yaml:"session"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig holds the consumer-facing HTTP server configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// BotConfig holds the bot webhook target and request options
type BotConfig struct {
	// Host is the initial webhook host; handoffs may retarget it per session.
	Host string `yaml:"host"`
	// Headers are passed through verbatim on every webhook request.
	Headers map[string]string `yaml:"headers"`
}

// ChannelConfig holds the attendant channel configuration.
// An empty endpoint selects the in-process broker.
type ChannelConfig struct {
	Endpoint string `yaml:"endpoint"` // redis address, e.g. "localhost:6379"
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// SessionConfig holds per-session pipeline configuration
type SessionConfig struct {
	Title            string   `yaml:"title"`
	WelcomeMessage   string   `yaml:"welcome_message"`
	HandoffIntent    string   `yaml:"handoff_intent"`
	MessageBlacklist []string `yaml:"message_blacklist"`
	ExternalRole     bool     `yaml:"external_role"`

	WaitingTimeout time.Duration `yaml:"-"`
	MessageDelay   time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	WaitingTimeoutRaw string `yaml:"waiting_timeout"`
	MessageDelayRaw   string `yaml:"message_delay"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration defaults applied before loading.
func Default() *Config {
	return &Config{
		Server: ServerConfig{HTTPAddr: ":8090"},
		Session: SessionConfig{
			Title:            "bot",
			HandoffIntent:    handoff.DefaultIntent,
			MessageBlacklist: append([]string(nil), handoff.DefaultBlacklist...),
			ExternalRole:     true,
			WaitingTimeout:   5 * time.Second,
			MessageDelay:     800 * time.Millisecond,
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expandedData), cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Parse duration fields
	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	// Match ${VAR_NAME} pattern
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}

	// The external role always starts against the bot webhook.
	if c.Session.ExternalRole && c.Bot.Host == "" {
		return fmt.Errorf("bot.host is required for the external role")
	}
	if c.Bot.Host != "" && !strings.HasPrefix(c.Bot.Host, "http://") && !strings.HasPrefix(c.Bot.Host, "https://") {
		return fmt.Errorf("bot.host must be an http(s) URL, got %q", c.Bot.Host)
	}

	if c.Session.WaitingTimeout <= 0 {
		return fmt.Errorf("session.waiting_timeout must be positive")
	}
	if c.Session.MessageDelay <= 0 {
		return fmt.Errorf("session.message_delay must be positive")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Session.WaitingTimeoutRaw != "" {
		cfg.Session.WaitingTimeout, err = time.ParseDuration(cfg.Session.WaitingTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing waiting_timeout %q: %w", cfg.Session.WaitingTimeoutRaw, err)
		}
	}

	if cfg.Session.MessageDelayRaw != "" {
		cfg.Session.MessageDelay, err = time.ParseDuration(cfg.Session.MessageDelayRaw)
		if err != nil {
			return fmt.Errorf("parsing message_delay %q: %w", cfg.Session.MessageDelayRaw, err)
		}
	}

	return nil
}
