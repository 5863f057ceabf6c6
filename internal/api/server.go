// Package api exposes the chat simulator over HTTP: the chat stream (SSE
// and WebSocket), phrase generation, the caller's topic quota and a
// provider configuration summary.
//
// Handlers translate every domain error into a typed JSON response; none of
// them lets an error escape as a 500 without a body.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/chatsim/internal/observe"
	"github.com/MrWong99/chatsim/internal/phrase"
	"github.com/MrWong99/chatsim/internal/stream"
	"github.com/MrWong99/chatsim/internal/synth"
)

// Generator runs the generate-phrases flow. [*synth.Service] implements it.
type Generator interface {
	Generate(ctx context.Context, userID, topic string, mode phrase.Mode) (*synth.Result, error)
}

// StreamDefaults are the stream settings used when a request does not
// override them.
type StreamDefaults struct {
	Pacing    stream.Pacing
	KeepAlive time.Duration
}

// ProviderStatus describes one configured AI provider for the health
// summary.
type ProviderStatus struct {
	Name   string
	Kind   string
	Model  string
	APIKey string

	// KeyRequired is false for local backends that run without a key.
	KeyRequired bool
}

// Option configures a [Server].
type Option func(*Server)

// WithLimiter rate-limits phrase generation per user.
func WithLimiter(l *Limiter) Option {
	return func(s *Server) {
		s.limiter = l
	}
}

// WithProviders sets the source of the provider summary served on
// /api/health.
func WithProviders(fn func() []ProviderStatus) Option {
	return func(s *Server) {
		s.providers = fn
	}
}

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithWebSocketOptions sets the accept options of /api/chat-ws, for example
// allowed origins.
func WithWebSocketOptions(o *websocket.AcceptOptions) Option {
	return func(s *Server) {
		s.wsOpts = o
	}
}

// Server holds the API handlers and their collaborators.
type Server struct {
	store     phrase.Store
	gen       Generator
	src       stream.Source
	auth      Authenticator
	limiter   *Limiter
	providers func() []ProviderStatus
	metrics   *observe.Metrics
	wsOpts    *websocket.AcceptOptions

	mu       sync.RWMutex
	defaults StreamDefaults
}

// NewServer returns a Server. store backs the user-info endpoint, gen the
// phrase generation, src the chat streams and auth identifies callers.
func NewServer(store phrase.Store, gen Generator, src stream.Source, auth Authenticator, opts ...Option) *Server {
	s := &Server{
		store: store,
		gen:   gen,
		src:   src,
		auth:  auth,
		defaults: StreamDefaults{
			Pacing:    stream.DefaultPacing,
			KeepAlive: stream.DefaultKeepAlive,
		},
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	if s.providers == nil {
		s.providers = func() []ProviderStatus { return nil }
	}
	return s
}

// SetStreamDefaults replaces the defaults for streams opened afterwards.
func (s *Server) SetStreamDefaults(d StreamDefaults) {
	d.Pacing = d.Pacing.Clamp()
	if d.KeepAlive <= 0 {
		d.KeepAlive = stream.DefaultKeepAlive
	}
	s.mu.Lock()
	s.defaults = d
	s.mu.Unlock()
}

// StreamDefaults returns the current stream defaults.
func (s *Server) StreamDefaults() StreamDefaults {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.defaults
}

// Register adds the API routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/chat-stream", s.handleChatStream)
	mux.HandleFunc("GET /api/chat-ws", s.handleChatWS)
	mux.HandleFunc("POST /api/generate-phrases", s.handleGenerate)
	mux.HandleFunc("GET /api/generate-phrases", s.handleUserInfo)
	mux.HandleFunc("GET /api/health", s.handleHealth)
}

// authenticate resolves the caller or writes a 401.
func (s *Server) authenticate(w http.ResponseWriter, r *http.Request, body any) (string, bool) {
	id, ok := s.auth.Authenticate(r)
	if !ok || id == "" {
		writeJSON(w, http.StatusUnauthorized, body)
		return "", false
	}
	return id, true
}

type errorBody struct {
	Error string `json:"error"`
}

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
