// Package config provides the configuration schema, loader, provider registry
// and hot-reload watcher for the chat simulator.
package config

import (
	"log/slog"
	"time"
)

// LogLevel controls log verbosity for the server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Level maps l to its slog level. Unknown values map to info.
func (l LogLevel) Level() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	}
	return slog.LevelInfo
}

// Defaults applied by [ApplyDefaults].
const (
	DefaultListenAddr       = ":8080"
	DefaultGatewayTimeout   = 30 * time.Second
	DefaultTemperature      = 0.9
	DefaultMaxTokens        = 2048
	DefaultMinInterval      = 2 * time.Second
	DefaultMaxInterval      = 4 * time.Second
	DefaultKeepAlive        = 30 * time.Second
	DefaultMaxTopicsPerUser = 4
	DefaultWatchInterval    = 5 * time.Second
)

// Config is the root configuration structure.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Providers []ProviderEntry `yaml:"providers"`
	Gateway   GatewayConfig   `yaml:"gateway"`
	Stream    StreamConfig    `yaml:"stream"`
	Quota     QuotaConfig     `yaml:"quota"`
	Auth      AuthConfig      `yaml:"auth"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity. Hot-reloadable.
	LogLevel LogLevel `yaml:"log_level"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`

	// AllowedOrigins lists host patterns allowed to open the WebSocket
	// stream cross-origin.
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// ProviderEntry configures one AI backend. Entries are tried by the
// gateway in round-robin order. The Name field is used to look up the
// constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "groq",
	// "cerebras"). Must be unique within the list.
	Name string `yaml:"name"`

	// APIKey is the authentication key. "${VAR}" references are expanded
	// from the environment.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider.
	Model string `yaml:"model"`

	// Options holds provider-specific values not covered above.
	Options map[string]any `yaml:"options"`
}

// GatewayConfig tunes the provider failover gateway.
type GatewayConfig struct {
	// Timeout bounds each provider attempt.
	Timeout time.Duration `yaml:"timeout"`

	// Temperature is the sampling temperature sent with every request.
	Temperature float64 `yaml:"temperature"`

	// MaxTokens caps the length of a generated phrase set.
	MaxTokens int `yaml:"max_tokens"`
}

// StreamConfig holds the default pacing of chat streams. Hot-reloadable.
type StreamConfig struct {
	MinInterval time.Duration `yaml:"min_interval"`
	MaxInterval time.Duration `yaml:"max_interval"`
	KeepAlive   time.Duration `yaml:"keep_alive"`
}

// QuotaConfig limits what a single user may generate. Hot-reloadable.
type QuotaConfig struct {
	// MaxTopicsPerUser is the number of topics a user may own.
	MaxTopicsPerUser int `yaml:"max_topics_per_user"`

	// GenerationsPerMinute rate-limits phrase generation requests per user.
	// Zero disables the limit.
	GenerationsPerMinute int `yaml:"generations_per_minute"`

	// GenerationBurst is the burst size of the rate limit.
	GenerationBurst int `yaml:"generation_burst"`
}

// AuthConfig selects how callers are identified.
type AuthConfig struct {
	// UserHeader is the identity header set by the fronting auth proxy.
	// Empty disables header authentication.
	UserHeader string `yaml:"user_header"`

	// Tokens maps static bearer tokens to user ids, for development.
	Tokens map[string]string `yaml:"tokens"`
}

// ApplyDefaults fills unset fields with their defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Gateway.Timeout == 0 {
		cfg.Gateway.Timeout = DefaultGatewayTimeout
	}
	if cfg.Gateway.Temperature == 0 {
		cfg.Gateway.Temperature = DefaultTemperature
	}
	if cfg.Gateway.MaxTokens == 0 {
		cfg.Gateway.MaxTokens = DefaultMaxTokens
	}
	if cfg.Stream.MinInterval == 0 && cfg.Stream.MaxInterval == 0 {
		cfg.Stream.MinInterval = DefaultMinInterval
		cfg.Stream.MaxInterval = DefaultMaxInterval
	}
	if cfg.Stream.KeepAlive == 0 {
		cfg.Stream.KeepAlive = DefaultKeepAlive
	}
	if cfg.Quota.MaxTopicsPerUser == 0 {
		cfg.Quota.MaxTopicsPerUser = DefaultMaxTopicsPerUser
	}
	if cfg.Quota.GenerationsPerMinute > 0 && cfg.Quota.GenerationBurst == 0 {
		cfg.Quota.GenerationBurst = 1
	}
}
