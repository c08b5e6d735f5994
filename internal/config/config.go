// Package config is the typed root configuration for the chat orchestration
// core: server binding, database backend, orchestrator tunables, the LLM
// provider, and the ambient audit/logging/rate-limit/auth/refresh concerns.
package config

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/haasonsaas/chatcore/internal/audit"
	"github.com/haasonsaas/chatcore/internal/llm"
	"github.com/haasonsaas/chatcore/internal/orchestrator"
	"github.com/haasonsaas/chatcore/internal/ratelimit"
)

// Config is the root configuration structure.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Database     DatabaseConfig     `yaml:"database"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	LLM          LLMConfig          `yaml:"llm"`
	Audit        audit.Config       `yaml:"audit"`
	Logging      LoggingConfig      `yaml:"logging"`
	RateLimit    RateLimitConfig    `yaml:"rate_limit"`
	Auth         AuthConfig         `yaml:"auth"`
	Refresh      RefreshConfig      `yaml:"refresh"`
}

// ServerConfig configures the HTTP/SSE listener.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DatabaseConfig configures the conversation store's backend.
type DatabaseConfig struct {
	// Driver selects the conversation store backend: "postgres", "sqlite",
	// or "memory".
	Driver          string        `yaml:"driver"`
	URL             string        `yaml:"url"`
	MaxConnections  int           `yaml:"max_connections"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// OrchestratorConfig mirrors orchestrator.Config with yaml tags for
// file-based configuration; ToOrchestrator converts it at wiring time.
type OrchestratorConfig struct {
	MaxContextTokens           int `yaml:"max_context_tokens"`
	MaxMessagesPerConversation int `yaml:"max_messages_per_conversation"`
	MaxConversationsPerUser    int `yaml:"max_conversations_per_user"`
	MaxToolRounds              int `yaml:"max_tool_rounds"`
	MaxToolRetries             int `yaml:"max_tool_retries"`
	RequestMaxTokens           int `yaml:"request_max_tokens"`
}

// ToOrchestrator converts c into an orchestrator.Config.
func (c OrchestratorConfig) ToOrchestrator() orchestrator.Config {
	return orchestrator.Config{
		MaxContextTokens:           c.MaxContextTokens,
		MaxMessagesPerConversation: c.MaxMessagesPerConversation,
		MaxConversationsPerUser:    c.MaxConversationsPerUser,
		MaxToolRounds:              c.MaxToolRounds,
		MaxToolRetries:             c.MaxToolRetries,
		RequestMaxTokens:           c.RequestMaxTokens,
	}
}

// LLMConfig configures the LLM provider and its retry policy.
type LLMConfig struct {
	// Provider selects the concrete client: "anthropic" or "openai".
	Provider string `yaml:"provider"`
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`

	MaxRetries     int           `yaml:"max_retries"`
	InitialDelay   time.Duration `yaml:"initial_delay"`
	MaxDelay       time.Duration `yaml:"max_delay"`
	JitterFraction float64       `yaml:"jitter_fraction"`
}

// ToRetryConfig converts c's retry tunables into an llm.RetryConfig.
func (c LLMConfig) ToRetryConfig() llm.RetryConfig {
	return llm.RetryConfig{
		MaxRetries:     c.MaxRetries,
		InitialDelay:   c.InitialDelay,
		MaxDelay:       c.MaxDelay,
		JitterFraction: c.JitterFraction,
	}
}

// LoggingConfig configures the structured logger. Output always defaults to
// os.Stdout; file-based config has no way to name a different io.Writer.
type LoggingConfig struct {
	Level          string   `yaml:"level"`
	Format         string   `yaml:"format"`
	AddSource      bool     `yaml:"add_source"`
	RedactPatterns []string `yaml:"redact_patterns"`
}

// RateLimitConfig configures the two UserThrottle buckets.
type RateLimitConfig struct {
	Enabled bool `yaml:"enabled"`

	ChatRequestsPerSecond float64 `yaml:"chat_requests_per_second"`
	ChatBurstSize         int     `yaml:"chat_burst_size"`

	ToolRequestsPerSecond float64 `yaml:"tool_requests_per_second"`
	ToolBurstSize         int     `yaml:"tool_burst_size"`
}

// ToRatelimitConfigs converts c into the pair of ratelimit.Config values
// NewUserThrottle expects.
func (c RateLimitConfig) ToRatelimitConfigs() (chat, tool ratelimit.Config) {
	chat = ratelimit.Config{RequestsPerSecond: c.ChatRequestsPerSecond, BurstSize: c.ChatBurstSize, Enabled: c.Enabled}
	tool = ratelimit.Config{RequestsPerSecond: c.ToolRequestsPerSecond, BurstSize: c.ToolBurstSize, Enabled: c.Enabled}
	return chat, tool
}

// AuthConfig configures bearer token issuance/verification.
type AuthConfig struct {
	JWTSecret   string        `yaml:"jwt_secret"`
	TokenExpiry time.Duration `yaml:"token_expiry"`
}

// RefreshConfig configures the cron-triggered price-refresh dispatch.
type RefreshConfig struct {
	Enabled bool   `yaml:"enabled"`
	Cron    string `yaml:"cron"`
}

// Default returns the configuration a fresh local deployment should start
// from: an in-memory store, conservative orchestrator bounds, rate limiting
// on, and the refresh trigger disabled until a schedule is supplied.
func Default() Config {
	return Config{
		Server:   ServerConfig{Host: "0.0.0.0", Port: 8080},
		Database: DatabaseConfig{Driver: "memory", MaxConnections: 10, ConnMaxLifetime: 5 * time.Minute},
		Orchestrator: OrchestratorConfig{
			MaxContextTokens:           8000,
			MaxMessagesPerConversation: 100,
			MaxConversationsPerUser:    20,
			MaxToolRounds:              10,
			MaxToolRetries:             3,
			RequestMaxTokens:           4096,
		},
		LLM: LLMConfig{
			Provider:       "anthropic",
			MaxRetries:     3,
			InitialDelay:   500 * time.Millisecond,
			MaxDelay:       30 * time.Second,
			JitterFraction: 0.1,
		},
		Audit:   audit.DefaultConfig(),
		Logging: LoggingConfig{Level: "info", Format: "json"},
		RateLimit: RateLimitConfig{
			Enabled:               true,
			ChatRequestsPerSecond: 1,
			ChatBurstSize:         5,
			ToolRequestsPerSecond: 0.5,
			ToolBurstSize:         10,
		},
		Auth:    AuthConfig{TokenExpiry: 24 * time.Hour},
		Refresh: RefreshConfig{Enabled: false, Cron: "@hourly"},
	}
}

// Load reads and parses the configuration file at path, applying
// environment-variable expansion, then layering Default() under whatever
// the file specifies, then validating the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	decoder := yaml.NewDecoder(strings.NewReader(expanded))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("config: %s contains more than one YAML document", path)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func validate(cfg *Config) error {
	if cfg.Database.Driver != "memory" && cfg.Database.Driver != "postgres" && cfg.Database.Driver != "sqlite" {
		return fmt.Errorf("config: database.driver must be memory, postgres, or sqlite, got %q", cfg.Database.Driver)
	}
	if cfg.Database.Driver != "memory" && strings.TrimSpace(cfg.Database.URL) == "" {
		return fmt.Errorf("config: database.url is required for driver %q", cfg.Database.Driver)
	}
	if cfg.LLM.Provider != "anthropic" && cfg.LLM.Provider != "openai" {
		return fmt.Errorf("config: llm.provider must be anthropic or openai, got %q", cfg.LLM.Provider)
	}
	if strings.TrimSpace(cfg.LLM.APIKey) == "" {
		return fmt.Errorf("config: llm.api_key is required")
	}
	if strings.TrimSpace(cfg.Auth.JWTSecret) == "" {
		return fmt.Errorf("config: auth.jwt_secret is required")
	}
	if cfg.Refresh.Enabled && strings.TrimSpace(cfg.Refresh.Cron) == "" {
		return fmt.Errorf("config: refresh.cron is required when refresh.enabled is true")
	}
	return nil
}
