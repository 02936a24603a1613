// ABOUTME: Config structs, file loading, validation, duration parsing.

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config is the complete courier configuration.
type Config struct {
	Database   DatabaseConfig   `yaml:"database" toml:"database"`
	Logging    LoggingConfig    `yaml:"logging" toml:"logging"`
	Dispatcher DispatcherConfig `yaml:"dispatcher" toml:"dispatcher"`
	Outbox     OutboxConfig     `yaml:"outbox" toml:"outbox"`
	Interact   InteractConfig   `yaml:"interact" toml:"interact"`
	Telegram   TelegramConfig   `yaml:"telegram" toml:"telegram"`
	Discord    DiscordConfig    `yaml:"discord" toml:"discord"`
}

// DatabaseConfig locates the SQLite store.
type DatabaseConfig struct {
	Path string `yaml:"path" toml:"path" env:"COURIER_DB_PATH"`
}

// LoggingConfig selects the log level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level" env:"COURIER_LOG_LEVEL"`
	Format string `yaml:"format" toml:"format" env:"COURIER_LOG_FORMAT"`
}

// DispatcherConfig scopes inbound routing.
type DispatcherConfig struct {
	// AllowedUsers restricts processing to these user ids; empty allows all.
	AllowedUsers []string `yaml:"allowed_users" toml:"allowed_users"`
}

// OutboxConfig tunes durable delivery.
type OutboxConfig struct {
	MaxAttempts int `yaml:"max_attempts" toml:"max_attempts"`

	SweepInterval    time.Duration `yaml:"-" toml:"-"`
	SweepIntervalRaw string        `yaml:"sweep_interval" toml:"sweep_interval"`
}

// InteractConfig tunes approval/question prompts.
type InteractConfig struct {
	Timeout    time.Duration `yaml:"-" toml:"-"`
	TimeoutRaw string        `yaml:"timeout" toml:"timeout"`
}

// TelegramConfig holds the Telegram bot settings.
type TelegramConfig struct {
	Enabled     bool   `yaml:"enabled" toml:"enabled"`
	Token       string `yaml:"token" toml:"token" env:"COURIER_TELEGRAM_TOKEN"`
	APIBase     string `yaml:"api_base" toml:"api_base"`
	PollTimeout int    `yaml:"poll_timeout" toml:"poll_timeout"`
}

// DiscordConfig holds the Discord bot settings.
type DiscordConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Token   string `yaml:"token" toml:"token" env:"COURIER_DISCORD_TOKEN"`
	APIBase string `yaml:"api_base" toml:"api_base"`
	Intents int    `yaml:"intents" toml:"intents"`
}

// Defaults applied after parsing, before validation.
const (
	defaultTelegramAPIBase = "https://api.telegram.org"
	defaultDiscordAPIBase  = "https://discord.com/api/v10"
	defaultDiscordIntents  = 33280 // GUILD_MESSAGES | MESSAGE_CONTENT
)

// Load reads, expands, parses, and validates a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := expandEnvVars(string(data))

	var cfg Config
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	case ".toml":
		if err := toml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config extension %q", ext)
	}

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} with the environment value, or the empty
// string when unset.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)
	return re.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(re.FindStringSubmatch(match)[1])
	})
}

func parseDurations(cfg *Config) error {
	var err error

	if cfg.Outbox.SweepIntervalRaw != "" {
		cfg.Outbox.SweepInterval, err = time.ParseDuration(cfg.Outbox.SweepIntervalRaw)
		if err != nil {
			return fmt.Errorf("parsing outbox.sweep_interval %q: %w", cfg.Outbox.SweepIntervalRaw, err)
		}
	}

	if cfg.Interact.TimeoutRaw != "" {
		cfg.Interact.Timeout, err = time.ParseDuration(cfg.Interact.TimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing interact.timeout %q: %w", cfg.Interact.TimeoutRaw, err)
		}
	}

	return nil
}

func (c *Config) applyDefaults() {
	if c.Telegram.APIBase == "" {
		c.Telegram.APIBase = defaultTelegramAPIBase
	}
	if c.Discord.APIBase == "" {
		c.Discord.APIBase = defaultDiscordAPIBase
	}
	if c.Discord.Intents == 0 {
		c.Discord.Intents = defaultDiscordIntents
	}
}

// Validate checks required fields, reporting the first failure.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if !c.Telegram.Enabled && !c.Discord.Enabled {
		return fmt.Errorf("at least one platform must be enabled")
	}
	if c.Telegram.Enabled && c.Telegram.Token == "" {
		return fmt.Errorf("telegram.token is required when telegram is enabled")
	}
	if c.Discord.Enabled && c.Discord.Token == "" {
		return fmt.Errorf("discord.token is required when discord is enabled")
	}
	return nil
}
