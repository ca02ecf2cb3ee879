// ABOUTME: Configuration loading and parsing for salesdesk-gateway
// ABOUTME: Supports YAML or TOML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config represents the complete salesdesk-gateway configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Tailscale TailscaleConfig `yaml:"tailscale" toml:"tailscale"`
	Database  DatabaseConfig  `yaml:"database" toml:"database"`
	Auth      AuthConfig      `yaml:"auth" toml:"auth"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`
	Routing   RoutingConfig   `yaml:"routing" toml:"routing"`
	WebSocket WebSocketConfig `yaml:"websocket" toml:"websocket"`
	Assistant AssistantConfig `yaml:"assistant" toml:"assistant"`
	Stats     StatsConfig     `yaml:"stats" toml:"stats"`
	Events    EventsConfig    `yaml:"events" toml:"events"`
	Roster    RosterConfig    `yaml:"roster" toml:"roster"`
	RateLimit RateLimitConfig `yaml:"rate_limit" toml:"rate_limit"`
	CORS      CORSConfig      `yaml:"cors" toml:"cors"`
}

// ServerConfig holds server address configuration.
// GRPCAddr is optional and only serves the health service.
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr" toml:"http_addr"`
	GRPCAddr string `yaml:"grpc_addr" toml:"grpc_addr"`
}

// TailscaleConfig holds Tailscale tsnet configuration
type TailscaleConfig struct {
	Enabled   bool   `yaml:"enabled" toml:"enabled"`
	Hostname  string `yaml:"hostname" toml:"hostname"`
	AuthKey   string `yaml:"auth_key" toml:"auth_key"`
	StateDir  string `yaml:"state_dir" toml:"state_dir"`
	Ephemeral bool   `yaml:"ephemeral" toml:"ephemeral"`
	Funnel    bool   `yaml:"funnel" toml:"funnel"` // public HTTPS on :443
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	// Driver is "sqlite" (modernc, pure Go) or "sqlite3" (mattn, cgo)
	Driver string `yaml:"driver" toml:"driver"`
	Path   string `yaml:"path" toml:"path"`
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret" toml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"-" toml:"-"`

	TokenTTLRaw string `yaml:"token_ttl" toml:"token_ttl"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// RoutingConfig holds conversation routing knobs
type RoutingConfig struct {
	EscalationKeywords []string `yaml:"escalation_keywords" toml:"escalation_keywords"`
	UrgentKeywords     []string `yaml:"urgent_keywords" toml:"urgent_keywords"`
	HighKeywords       []string `yaml:"high_keywords" toml:"high_keywords"`

	// RebroadcastOnRepDisconnect re-announces released conversations to available reps
	RebroadcastOnRepDisconnect bool `yaml:"rebroadcast_on_rep_disconnect" toml:"rebroadcast_on_rep_disconnect"`

	DedupeTTL    time.Duration `yaml:"-" toml:"-"`
	DedupeTTLRaw string        `yaml:"dedupe_ttl" toml:"dedupe_ttl"`
}

// WebSocketConfig holds per-connection transport limits
type WebSocketConfig struct {
	SendBuffer      int      `yaml:"send_buffer" toml:"send_buffer"`
	MaxMessageBytes int64    `yaml:"max_message_bytes" toml:"max_message_bytes"`
	AllowedOrigins  []string `yaml:"allowed_origins" toml:"allowed_origins"`

	PingInterval time.Duration `yaml:"-" toml:"-"`
	PongTimeout  time.Duration `yaml:"-" toml:"-"`
	WriteTimeout time.Duration `yaml:"-" toml:"-"`

	// Raw string values for unmarshaling
	PingIntervalRaw string `yaml:"ping_interval" toml:"ping_interval"`
	PongTimeoutRaw  string `yaml:"pong_timeout" toml:"pong_timeout"`
	WriteTimeoutRaw string `yaml:"write_timeout" toml:"write_timeout"`
}

// AssistantConfig selects the automated responder
type AssistantConfig struct {
	Provider     string       `yaml:"provider" toml:"provider"` // rules, openai
	HistoryLimit int          `yaml:"history_limit" toml:"history_limit"`
	OpenAI       OpenAIConfig `yaml:"openai" toml:"openai"`
}

// OpenAIConfig holds credentials for the OpenAI-compatible responder
type OpenAIConfig struct {
	APIKey  string `yaml:"api_key" toml:"api_key"`
	Model   string `yaml:"model" toml:"model"`
	BaseURL string `yaml:"base_url" toml:"base_url"`
}

// StatsConfig controls the statistics day boundary
type StatsConfig struct {
	// Timezone is an IANA name; "Local" or empty uses the process timezone
	Timezone string `yaml:"timezone" toml:"timezone"`
}

// EventsConfig configures the AMQP domain event publisher
type EventsConfig struct {
	Enabled  bool   `yaml:"enabled" toml:"enabled"`
	URL      string `yaml:"url" toml:"url"`
	Exchange string `yaml:"exchange" toml:"exchange"`
	Producer string `yaml:"producer" toml:"producer"`
}

// RosterConfig configures the Redis presence mirror
type RosterConfig struct {
	Enabled   bool   `yaml:"enabled" toml:"enabled"`
	Addr      string `yaml:"addr" toml:"addr"`
	Password  string `yaml:"password" toml:"password"`
	DB        int    `yaml:"db" toml:"db"`
	KeyPrefix string `yaml:"key_prefix" toml:"key_prefix"`
}

// RateLimitConfig holds /api/ rate limiting
type RateLimitConfig struct {
	Enabled  bool   `yaml:"enabled" toml:"enabled"`
	Backend  string `yaml:"backend" toml:"backend"` // memory, redis
	Requests int    `yaml:"requests" toml:"requests"`

	Window    time.Duration `yaml:"-" toml:"-"`
	WindowRaw string        `yaml:"window" toml:"window"`
}

// CORSConfig holds cross-origin settings for the HTTP API
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins" toml:"allowed_origins"`
}

// Default keyword sets used when the config leaves them empty.
var (
	DefaultEscalationKeywords = []string{"human", "representative", "salesperson", "sales", "agent", "support person"}
	DefaultUrgentKeywords     = []string{"urgent", "emergency", "asap", "immediately", "critical"}
	DefaultHighKeywords       = []string{"important", "priority", "serious", "problem"}
)

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are parsed as TOML, everything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expandedData := expandEnvVars(string(data))

	var cfg Config
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expandedData, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
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

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// applyDefaults fills zero values with the gateway defaults.
func (c *Config) applyDefaults() {
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Auth.TokenTTL == 0 {
		c.Auth.TokenTTL = 7 * 24 * time.Hour
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}

	if len(c.Routing.EscalationKeywords) == 0 {
		c.Routing.EscalationKeywords = DefaultEscalationKeywords
	}
	if len(c.Routing.UrgentKeywords) == 0 {
		c.Routing.UrgentKeywords = DefaultUrgentKeywords
	}
	if len(c.Routing.HighKeywords) == 0 {
		c.Routing.HighKeywords = DefaultHighKeywords
	}
	if c.Routing.DedupeTTL == 0 {
		c.Routing.DedupeTTL = 5 * time.Minute
	}

	if c.WebSocket.SendBuffer == 0 {
		c.WebSocket.SendBuffer = 128
	}
	if c.WebSocket.MaxMessageBytes == 0 {
		c.WebSocket.MaxMessageBytes = 1 << 20
	}
	if c.WebSocket.PingInterval == 0 {
		c.WebSocket.PingInterval = 30 * time.Second
	}
	if c.WebSocket.PongTimeout == 0 {
		c.WebSocket.PongTimeout = 60 * time.Second
	}
	if c.WebSocket.WriteTimeout == 0 {
		c.WebSocket.WriteTimeout = 10 * time.Second
	}

	if c.Assistant.Provider == "" {
		c.Assistant.Provider = "rules"
	}
	if c.Assistant.HistoryLimit == 0 {
		c.Assistant.HistoryLimit = 10
	}
	if c.Assistant.OpenAI.Model == "" {
		c.Assistant.OpenAI.Model = "gpt-4o-mini"
	}

	if c.Events.Exchange == "" {
		c.Events.Exchange = "salesdesk.events"
	}
	if c.Events.Producer == "" {
		c.Events.Producer = "salesdesk-gateway"
	}

	if c.Roster.KeyPrefix == "" {
		c.Roster.KeyPrefix = "salesdesk"
	}

	if c.RateLimit.Backend == "" {
		c.RateLimit.Backend = "memory"
	}
	if c.RateLimit.Requests == 0 {
		c.RateLimit.Requests = 100
	}
	if c.RateLimit.Window == 0 {
		c.RateLimit.Window = 15 * time.Minute
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if !c.Tailscale.Enabled && c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required (or enable tailscale)")
	}

	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return fmt.Errorf("tailscale.hostname is required when tailscale is enabled")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	switch c.Database.Driver {
	case "sqlite", "sqlite3":
	default:
		return fmt.Errorf("database.driver must be sqlite or sqlite3, got %q", c.Database.Driver)
	}

	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}

	switch c.Assistant.Provider {
	case "rules":
	case "openai":
		if c.Assistant.OpenAI.APIKey == "" {
			return fmt.Errorf("assistant.openai.api_key is required when provider is openai")
		}
	default:
		return fmt.Errorf("assistant.provider must be rules or openai, got %q", c.Assistant.Provider)
	}

	if c.Events.Enabled && c.Events.URL == "" {
		return fmt.Errorf("events.url is required when events are enabled")
	}

	if c.Roster.Enabled && c.Roster.Addr == "" {
		return fmt.Errorf("roster.addr is required when roster is enabled")
	}

	switch c.RateLimit.Backend {
	case "memory":
	case "redis":
		if c.Roster.Addr == "" {
			return fmt.Errorf("rate_limit.backend redis needs roster.addr")
		}
	default:
		return fmt.Errorf("rate_limit.backend must be memory or redis, got %q", c.RateLimit.Backend)
	}

	if _, err := c.Stats.Location(); err != nil {
		return err
	}

	return nil
}

// Location resolves the configured statistics timezone.
func (s StatsConfig) Location() (*time.Location, error) {
	if s.Timezone == "" || s.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return nil, fmt.Errorf("stats.timezone %q: %w", s.Timezone, err)
	}
	return loc, nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"token_ttl", cfg.Auth.TokenTTLRaw, &cfg.Auth.TokenTTL},
		{"dedupe_ttl", cfg.Routing.DedupeTTLRaw, &cfg.Routing.DedupeTTL},
		{"ping_interval", cfg.WebSocket.PingIntervalRaw, &cfg.WebSocket.PingInterval},
		{"pong_timeout", cfg.WebSocket.PongTimeoutRaw, &cfg.WebSocket.PongTimeout},
		{"write_timeout", cfg.WebSocket.WriteTimeoutRaw, &cfg.WebSocket.WriteTimeout},
		{"window", cfg.RateLimit.WindowRaw, &cfg.RateLimit.Window},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}

	return nil
}
