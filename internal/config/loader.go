package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// KnownProviderNames lists the provider names with a built-in factory.
// Used by [Validate] to warn about unrecognised provider names.
var KnownProviderNames = []string{
	"groq", "cerebras", "openai", "anthropic", "gemini", "deepseek",
	"mistral", "ollama", "llamacpp", "llamafile",
}

// KeylessProviders are local backends that run without an API key.
var KeylessProviders = []string{"ollama", "llamacpp", "llamafile"}

// Stream pacing bounds accepted in configuration.
const (
	minStreamInterval = 500 * time.Millisecond
	maxStreamInterval = 30 * time.Second
)

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, expands environment
// references in secrets, applies defaults and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	expandEnv(cfg)
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// expandEnv resolves ${VAR} references in provider keys, endpoints and
// auth tokens.
func expandEnv(cfg *Config) {
	for i := range cfg.Providers {
		cfg.Providers[i].APIKey = os.ExpandEnv(cfg.Providers[i].APIKey)
		cfg.Providers[i].BaseURL = os.ExpandEnv(cfg.Providers[i].BaseURL)
	}
	if len(cfg.Auth.Tokens) > 0 {
		tokens := make(map[string]string, len(cfg.Auth.Tokens))
		for tok, user := range cfg.Auth.Tokens {
			tokens[os.ExpandEnv(tok)] = user
		}
		cfg.Auth.Tokens = tokens
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	// Providers
	if len(cfg.Providers) == 0 {
		errs = append(errs, errors.New("providers: at least one provider is required"))
	}
	seen := make(map[string]int, len(cfg.Providers))
	for i, p := range cfg.Providers {
		prefix := fmt.Sprintf("providers[%d]", i)
		if p.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
			continue
		}
		if prev, ok := seen[p.Name]; ok {
			errs = append(errs, fmt.Errorf("%s.name %q is a duplicate of providers[%d]", prefix, p.Name, prev))
		}
		seen[p.Name] = i
		if p.Model == "" {
			errs = append(errs, fmt.Errorf("%s.model is required", prefix))
		}
		validateProviderName(p.Name)
		if p.APIKey == "" && !slices.Contains(KeylessProviders, p.Name) {
			slog.Warn("provider has no API key; it will fail until one is configured", "provider", p.Name)
		}
	}

	// Gateway
	if cfg.Gateway.Timeout < 0 {
		errs = append(errs, fmt.Errorf("gateway.timeout %v must be positive", cfg.Gateway.Timeout))
	}
	if cfg.Gateway.Temperature < 0 || cfg.Gateway.Temperature > 2 {
		errs = append(errs, fmt.Errorf("gateway.temperature %.2f is out of range [0, 2]", cfg.Gateway.Temperature))
	}
	if cfg.Gateway.MaxTokens < 0 {
		errs = append(errs, fmt.Errorf("gateway.max_tokens %d must be positive", cfg.Gateway.MaxTokens))
	}

	// Stream
	s := cfg.Stream
	if s.MinInterval < minStreamInterval || s.MaxInterval > maxStreamInterval || s.MaxInterval <= s.MinInterval {
		errs = append(errs, fmt.Errorf("stream: interval %v-%v is invalid; need %v <= min < max <= %v",
			s.MinInterval, s.MaxInterval, minStreamInterval, maxStreamInterval))
	}
	if s.KeepAlive < time.Second {
		errs = append(errs, fmt.Errorf("stream.keep_alive %v must be at least 1s", s.KeepAlive))
	}

	// Quota
	if cfg.Quota.MaxTopicsPerUser < 1 {
		errs = append(errs, fmt.Errorf("quota.max_topics_per_user %d must be at least 1", cfg.Quota.MaxTopicsPerUser))
	}
	if cfg.Quota.GenerationsPerMinute < 0 || cfg.Quota.GenerationBurst < 0 {
		errs = append(errs, errors.New("quota: generation rate limits must not be negative"))
	}

	// Auth
	if cfg.Auth.UserHeader == "" && len(cfg.Auth.Tokens) == 0 {
		errs = append(errs, errors.New("auth: configure user_header or tokens"))
	}
	for tok, user := range cfg.Auth.Tokens {
		if tok == "" || user == "" {
			errs = append(errs, errors.New("auth.tokens: tokens and user ids must not be empty"))
			break
		}
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is not one of the
// [KnownProviderNames].
func validateProviderName(name string) {
	if slices.Contains(KnownProviderNames, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or a third-party provider",
		"name", name,
		"known", KnownProviderNames,
	)
}
