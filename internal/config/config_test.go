// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML and TOML loading, env var expansion, defaults, and duration parsing

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	configPath := writeConfig(t, "config.yaml", `
server:
  http_addr: "0.0.0.0:3001"
  grpc_addr: "0.0.0.0:50051"

database:
  path: "./test.db"

auth:
  jwt_secret: "secret"
  token_ttl: "24h"

routing:
  escalation_keywords: ["human", "person"]
  rebroadcast_on_rep_disconnect: true

websocket:
  send_buffer: 32
  ping_interval: "15s"

logging:
  level: "debug"
  format: "json"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.HTTPAddr != "0.0.0.0:3001" {
		t.Errorf("Server.HTTPAddr = %q, want %q", cfg.Server.HTTPAddr, "0.0.0.0:3001")
	}
	if cfg.Server.GRPCAddr != "0.0.0.0:50051" {
		t.Errorf("Server.GRPCAddr = %q, want %q", cfg.Server.GRPCAddr, "0.0.0.0:50051")
	}
	if cfg.Database.Path != "./test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "./test.db")
	}
	if cfg.Auth.TokenTTL != 24*time.Hour {
		t.Errorf("Auth.TokenTTL = %v, want %v", cfg.Auth.TokenTTL, 24*time.Hour)
	}
	if len(cfg.Routing.EscalationKeywords) != 2 || cfg.Routing.EscalationKeywords[1] != "person" {
		t.Errorf("Routing.EscalationKeywords = %v, want [human person]", cfg.Routing.EscalationKeywords)
	}
	if !cfg.Routing.RebroadcastOnRepDisconnect {
		t.Error("Routing.RebroadcastOnRepDisconnect = false, want true")
	}
	if cfg.WebSocket.SendBuffer != 32 {
		t.Errorf("WebSocket.SendBuffer = %d, want 32", cfg.WebSocket.SendBuffer)
	}
	if cfg.WebSocket.PingInterval != 15*time.Second {
		t.Errorf("WebSocket.PingInterval = %v, want %v", cfg.WebSocket.PingInterval, 15*time.Second)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "debug")
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Logging.Format = %q, want %q", cfg.Logging.Format, "json")
	}
}

func TestLoad_Defaults(t *testing.T) {
	configPath := writeConfig(t, "config.yaml", `
server:
  http_addr: "localhost:3001"
database:
  path: "./test.db"
auth:
  jwt_secret: "secret"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Database.Driver != "sqlite" {
		t.Errorf("Database.Driver = %q, want %q", cfg.Database.Driver, "sqlite")
	}
	if strings.Join(cfg.Routing.EscalationKeywords, ",") != strings.Join(DefaultEscalationKeywords, ",") {
		t.Errorf("Routing.EscalationKeywords = %v, want defaults", cfg.Routing.EscalationKeywords)
	}
	if cfg.Routing.DedupeTTL != 5*time.Minute {
		t.Errorf("Routing.DedupeTTL = %v, want 5m", cfg.Routing.DedupeTTL)
	}
	if cfg.WebSocket.SendBuffer != 128 {
		t.Errorf("WebSocket.SendBuffer = %d, want 128", cfg.WebSocket.SendBuffer)
	}
	if cfg.WebSocket.PongTimeout != 60*time.Second {
		t.Errorf("WebSocket.PongTimeout = %v, want 60s", cfg.WebSocket.PongTimeout)
	}
	if cfg.Assistant.Provider != "rules" {
		t.Errorf("Assistant.Provider = %q, want %q", cfg.Assistant.Provider, "rules")
	}
	if cfg.RateLimit.Requests != 100 || cfg.RateLimit.Window != 15*time.Minute {
		t.Errorf("RateLimit = %d/%v, want 100/15m", cfg.RateLimit.Requests, cfg.RateLimit.Window)
	}
	if cfg.Routing.RebroadcastOnRepDisconnect {
		t.Error("rebroadcast should default to false")
	}
}

func TestLoad_TOML(t *testing.T) {
	configPath := writeConfig(t, "gateway.toml", `
[server]
http_addr = "127.0.0.1:3001"

[database]
driver = "sqlite3"
path = "./test.db"

[auth]
jwt_secret = "secret"

[websocket]
write_timeout = "5s"

[assistant]
provider = "rules"
history_limit = 4
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.HTTPAddr != "127.0.0.1:3001" {
		t.Errorf("Server.HTTPAddr = %q, want %q", cfg.Server.HTTPAddr, "127.0.0.1:3001")
	}
	if cfg.Database.Driver != "sqlite3" {
		t.Errorf("Database.Driver = %q, want %q", cfg.Database.Driver, "sqlite3")
	}
	if cfg.WebSocket.WriteTimeout != 5*time.Second {
		t.Errorf("WebSocket.WriteTimeout = %v, want 5s", cfg.WebSocket.WriteTimeout)
	}
	if cfg.Assistant.HistoryLimit != 4 {
		t.Errorf("Assistant.HistoryLimit = %d, want 4", cfg.Assistant.HistoryLimit)
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("TEST_SALESDESK_SECRET", "from-env")
	t.Setenv("TEST_SALESDESK_DB", "/tmp/salesdesk.db")

	configPath := writeConfig(t, "config.yaml", `
server:
  http_addr: "localhost:3001"
database:
  path: "${TEST_SALESDESK_DB}"
auth:
  jwt_secret: "${TEST_SALESDESK_SECRET}"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Auth.JWTSecret != "from-env" {
		t.Errorf("Auth.JWTSecret = %q, want %q", cfg.Auth.JWTSecret, "from-env")
	}
	if cfg.Database.Path != "/tmp/salesdesk.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/tmp/salesdesk.db")
	}
}

func TestLoad_EnvVarExpansion_UnsetVar(t *testing.T) {
	configPath := writeConfig(t, "config.yaml", `
server:
  http_addr: "localhost:3001"
database:
  path: "./test.db"
auth:
  jwt_secret: "${TEST_SALESDESK_DEFINITELY_UNSET}"
`)

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("Load() expected error for empty jwt_secret, got nil")
	}
	if !strings.Contains(err.Error(), "jwt_secret") {
		t.Errorf("error = %v, want mention of jwt_secret", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := writeConfig(t, "config.yaml", "server: [unterminated")

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	configPath := writeConfig(t, "config.yaml", `
server:
  http_addr: "localhost:3001"
database:
  path: "./test.db"
auth:
  jwt_secret: "secret"
websocket:
  ping_interval: "soon"
`)

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("Load() expected error for invalid duration, got nil")
	}
	if !strings.Contains(err.Error(), "ping_interval") {
		t.Errorf("error = %v, want mention of ping_interval", err)
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg := &Config{
			Server:   ServerConfig{HTTPAddr: "localhost:3001"},
			Database: DatabaseConfig{Path: "./test.db"},
			Auth:     AuthConfig{JWTSecret: "secret"},
		}
		cfg.applyDefaults()
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"missing http addr", func(c *Config) { c.Server.HTTPAddr = "" }, "server.http_addr"},
		{"tailscale without hostname", func(c *Config) { c.Tailscale.Enabled = true }, "tailscale.hostname"},
		{"tailscale replaces http addr", func(c *Config) {
			c.Server.HTTPAddr = ""
			c.Tailscale.Enabled = true
			c.Tailscale.Hostname = "salesdesk"
		}, ""},
		{"bad driver", func(c *Config) { c.Database.Driver = "postgres" }, "database.driver"},
		{"openai without key", func(c *Config) { c.Assistant.Provider = "openai" }, "api_key"},
		{"unknown provider", func(c *Config) { c.Assistant.Provider = "oracle" }, "assistant.provider"},
		{"events without url", func(c *Config) { c.Events.Enabled = true }, "events.url"},
		{"roster without addr", func(c *Config) { c.Roster.Enabled = true }, "roster.addr"},
		{"redis limiter without addr", func(c *Config) { c.RateLimit.Backend = "redis" }, "roster.addr"},
		{"bad timezone", func(c *Config) { c.Stats.Timezone = "Mars/Olympus" }, "stats.timezone"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}
