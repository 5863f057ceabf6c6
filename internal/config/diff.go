package config

import (
	"fmt"
	"maps"
	"slices"
)

// ConfigDiff describes what changed between two configs.
// Fields are grouped by whether they can be applied without restart.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	StreamChanged bool
	NewStream     StreamConfig

	QuotaChanged bool
	NewQuota     QuotaConfig

	// RestartRequired lists changed sections that only take effect after a
	// restart.
	RestartRequired []string
}

// HasChanges reports whether anything differs.
func (d ConfigDiff) HasChanges() bool {
	return d.LogLevelChanged || d.StreamChanged || d.QuotaChanged || len(d.RestartRequired) > 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if old.Stream != new.Stream {
		d.StreamChanged = true
		d.NewStream = new.Stream
	}
	if old.Quota != new.Quota {
		d.QuotaChanged = true
		d.NewQuota = new.Quota
	}

	if old.Server.ListenAddr != new.Server.ListenAddr ||
		!tlsEqual(old.Server.TLS, new.Server.TLS) ||
		!slices.Equal(old.Server.AllowedOrigins, new.Server.AllowedOrigins) {
		d.RestartRequired = append(d.RestartRequired, "server")
	}
	if !providersEqual(old.Providers, new.Providers) {
		d.RestartRequired = append(d.RestartRequired, "providers")
	}
	if old.Gateway != new.Gateway {
		d.RestartRequired = append(d.RestartRequired, "gateway")
	}
	if old.Auth.UserHeader != new.Auth.UserHeader || !maps.Equal(old.Auth.Tokens, new.Auth.Tokens) {
		d.RestartRequired = append(d.RestartRequired, "auth")
	}
	return d
}

func tlsEqual(a, b *TLSConfig) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// providersEqual compares the fields that affect provider construction.
// Options are compared by key and printed value.
func providersEqual(a, b []ProviderEntry) bool {
	return slices.EqualFunc(a, b, func(x, y ProviderEntry) bool {
		if x.Name != y.Name || x.APIKey != y.APIKey || x.BaseURL != y.BaseURL || x.Model != y.Model {
			return false
		}
		return maps.EqualFunc(x.Options, y.Options, func(v, w any) bool {
			return fmt.Sprint(v) == fmt.Sprint(w)
		})
	})
}
