package api

import (
	"net/http"
	"time"

	"github.com/MrWong99/chatsim/internal/phrase"
)

// keyPrefixLen is how much of an API key the health summary reveals.
const keyPrefixLen = 8

// MaskKey returns the first characters of key followed by "...", or
// "NOT SET" for an empty key.
func MaskKey(key string) string {
	if key == "" {
		return "NOT SET"
	}
	r := []rune(key)
	if len(r) > keyPrefixLen {
		r = r[:keyPrefixLen]
	}
	return string(r) + "..."
}

type providerHealth struct {
	Kind       string `json:"kind"`
	Model      string `json:"model,omitempty"`
	Configured bool   `json:"configured"`
	KeyPrefix  string `json:"keyPrefix"`
}

type healthResponse struct {
	Timestamp time.Time                 `json:"timestamp"`
	Status    string                    `json:"status"`
	Providers map[string]providerHealth `json:"providers"`
	Cache     phrase.Stats              `json:"cache"`
	Errors    []string                  `json:"errors"`
}

// handleHealth serves GET /api/health: which providers are configured,
// with masked keys, plus a phrase cache summary. It answers 503 when no
// provider is usable.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	res := healthResponse{
		Timestamp: time.Now().UTC(),
		Status:    "ok",
		Providers: map[string]providerHealth{},
		Cache:     s.store.Stats(),
		Errors:    []string{},
	}
	usable := 0
	for _, p := range s.providers() {
		configured := p.APIKey != "" || !p.KeyRequired
		res.Providers[p.Name] = providerHealth{
			Kind:       p.Kind,
			Model:      p.Model,
			Configured: configured,
			KeyPrefix:  MaskKey(p.APIKey),
		}
		if configured {
			usable++
		} else {
			res.Errors = append(res.Errors, p.Name+": API key is not set")
		}
	}
	if usable == 0 {
		res.Errors = append(res.Errors, "no AI provider is configured")
	}

	status := http.StatusOK
	if len(res.Errors) > 0 {
		res.Status = "error"
	}
	if usable == 0 {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, res)
}
