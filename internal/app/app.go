// Package app wires the chat simulator subsystems into a running server.
//
// New builds the phrase store, the provider gateway, the phrase
// synthesizer, the message generator and the HTTP surface from a validated
// config. Run serves until its context is cancelled and then drains open
// streams. Config edits picked up by the watcher are applied in place where
// possible.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/coder/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/chatsim/internal/api"
	"github.com/MrWong99/chatsim/internal/chatgen"
	"github.com/MrWong99/chatsim/internal/config"
	"github.com/MrWong99/chatsim/internal/health"
	"github.com/MrWong99/chatsim/internal/observe"
	"github.com/MrWong99/chatsim/internal/phrase"
	"github.com/MrWong99/chatsim/internal/resilience"
	"github.com/MrWong99/chatsim/internal/stream"
	"github.com/MrWong99/chatsim/internal/synth"
	"github.com/MrWong99/chatsim/pkg/provider/llm"
)

const (
	// shutdownTimeout bounds how long open streams get to finish.
	shutdownTimeout = 10 * time.Second

	// sweepInterval is how often idle rate-limit buckets are dropped.
	sweepInterval = time.Minute
)

// App owns the lifetime of every subsystem.
type App struct {
	cfg     *config.Config
	level   *slog.LevelVar
	metrics *observe.Metrics

	store   *phrase.MemStore
	gateway *resilience.Gateway
	synth   *synth.Service
	chat    *chatgen.Generator
	limiter *api.Limiter
	server  *api.Server
	health  *health.Handler
	handler http.Handler
	scrape  http.Handler

	watcher *config.Watcher

	mu  sync.Mutex
	srv *http.Server
}

// Option is a functional option for New.
type Option func(*App)

// WithLevelVar lets hot reload adjust the log level of the installed logger.
func WithLevelVar(v *slog.LevelVar) Option {
	return func(a *App) { a.level = v }
}

// WithMetrics replaces the default metric instruments.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithMetricsHandler serves h on /metrics instead of the default
// Prometheus registry.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.scrape = h }
}

// WithStore injects a phrase store instead of a fresh MemStore.
func WithStore(s *phrase.MemStore) Option {
	return func(a *App) { a.store = s }
}

// WithConfigWatcher makes Run poll path and apply changes in place.
// The watcher's initial config replaces nothing; New's cfg stays the
// baseline for the first diff.
func WithConfigWatcher(path string, interval time.Duration) Option {
	return func(a *App) {
		w, err := config.NewWatcher(path, a.ApplyConfig, config.WithInterval(interval))
		if err != nil {
			slog.Warn("config hot reload disabled", "path", path, "err", err)
			return
		}
		a.watcher = w
	}
}

// New creates an App from cfg. providers must be in the same order as
// cfg.Providers; main builds them through the config registry.
func New(cfg *config.Config, providers []llm.Provider, opts ...Option) (*App, error) {
	a := &App{cfg: cfg}
	for _, o := range opts {
		o(a)
	}
	if a.level == nil {
		a.level = new(slog.LevelVar)
		a.level.Set(cfg.Server.LogLevel.Level())
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.scrape == nil {
		a.scrape = observe.MetricsHandler()
	}

	// ── 1. Phrase store ──────────────────────────────────────────────────
	if a.store == nil {
		a.store = phrase.NewMemStore(phrase.WithMaxTopics(cfg.Quota.MaxTopicsPerUser))
	} else {
		a.store.SetMaxTopics(cfg.Quota.MaxTopicsPerUser)
	}

	// ── 2. Provider gateway ──────────────────────────────────────────────
	gw, err := resilience.NewGateway(providers,
		resilience.WithTimeout(cfg.Gateway.Timeout),
		resilience.WithRequestDefaults(cfg.Gateway.Temperature, cfg.Gateway.MaxTokens),
		resilience.WithMetrics(a.metrics),
	)
	if err != nil {
		return nil, fmt.Errorf("app: init gateway: %w", err)
	}
	a.gateway = gw

	// ── 3. Synthesizer and chat generator ────────────────────────────────
	a.synth = synth.NewService(a.store, a.gateway, synth.WithMetrics(a.metrics))
	a.chat = chatgen.New(a.store, chatgen.WithMetrics(a.metrics))

	// ── 4. HTTP surface ──────────────────────────────────────────────────
	a.limiter = api.NewLimiter(cfg.Quota.GenerationsPerMinute, cfg.Quota.GenerationBurst)

	serverOpts := []api.Option{
		api.WithLimiter(a.limiter),
		api.WithProviders(a.providerStatus),
		api.WithMetrics(a.metrics),
	}
	if len(cfg.Server.AllowedOrigins) > 0 {
		serverOpts = append(serverOpts, api.WithWebSocketOptions(&websocket.AcceptOptions{
			OriginPatterns: cfg.Server.AllowedOrigins,
		}))
	}
	a.server = api.NewServer(a.store, a.synth, a.chat, newAuthenticator(cfg.Auth), serverOpts...)
	a.server.SetStreamDefaults(streamDefaults(cfg.Stream))

	a.health = health.New(health.Checker{Name: "providers", Check: a.checkProviders})

	mux := http.NewServeMux()
	a.server.Register(mux)
	a.health.Register(mux)
	mux.Handle("GET /metrics", a.scrape)
	a.handler = observe.Middleware(a.metrics)(mux)

	return a, nil
}

// Handler returns the root HTTP handler.
func (a *App) Handler() http.Handler {
	return a.handler
}

// Health returns the readiness handler.
func (a *App) Health() *health.Handler {
	return a.health
}

// Reload re-reads the watched config file. It reports false when no
// watcher is configured.
func (a *App) Reload() bool {
	if a.watcher == nil {
		return false
	}
	a.watcher.Reload()
	return true
}

// Run listens on the configured address and serves until ctx is done.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.Server.ListenAddr)
	if err != nil {
		return fmt.Errorf("app: listen %q: %w", a.cfg.Server.ListenAddr, err)
	}
	return a.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done, then shuts down gracefully. The
// config watcher and the rate-limit sweeper run alongside the server.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	a.mu.Lock()
	a.srv = srv
	a.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = srv.ServeTLS(ln, tls.CertFile, tls.KeyFile)
		} else {
			err = srv.Serve(ln)
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: serve: %w", err)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		return a.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		a.limiter.Run(gctx, sweepInterval)
		return nil
	})
	if a.watcher != nil {
		g.Go(func() error { return a.watcher.Run(gctx) })
	}

	slog.Info("chat simulator listening",
		"addr", ln.Addr().String(),
		"providers", a.gateway.Providers(),
		"tls", a.cfg.Server.TLS != nil,
	)
	return g.Wait()
}

// Shutdown marks the server as draining and closes the listener. Streams
// end when their request context is cancelled. Safe to call more than once.
func (a *App) Shutdown(ctx context.Context) error {
	a.health.SetDraining(true)
	a.mu.Lock()
	srv := a.srv
	a.mu.Unlock()
	if srv == nil {
		return nil
	}
	slog.Info("shutting down")
	if err := srv.Shutdown(ctx); err != nil {
		slog.Warn("graceful shutdown incomplete, closing connections", "err", err)
		_ = srv.Close()
		return err
	}
	return nil
}

// ApplyConfig applies the hot-reloadable parts of next. Sections that need
// a restart are logged and left untouched.
func (a *App) ApplyConfig(old, next *config.Config) {
	d := config.Diff(old, next)
	if !d.HasChanges() {
		return
	}
	if d.LogLevelChanged {
		a.level.Set(d.NewLogLevel.Level())
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.StreamChanged {
		a.server.SetStreamDefaults(streamDefaults(d.NewStream))
		slog.Info("stream defaults changed",
			"min", d.NewStream.MinInterval,
			"max", d.NewStream.MaxInterval,
			"keep_alive", d.NewStream.KeepAlive,
		)
	}
	if d.QuotaChanged {
		a.store.SetMaxTopics(d.NewQuota.MaxTopicsPerUser)
		a.limiter.SetRate(d.NewQuota.GenerationsPerMinute, d.NewQuota.GenerationBurst)
		slog.Info("quota changed",
			"max_topics_per_user", d.NewQuota.MaxTopicsPerUser,
			"generations_per_minute", d.NewQuota.GenerationsPerMinute,
		)
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config changes need a restart to take effect", "sections", d.RestartRequired)
	}
}

// providerStatus feeds the /api/health provider summary.
func (a *App) providerStatus() []api.ProviderStatus {
	out := make([]api.ProviderStatus, 0, len(a.cfg.Providers))
	for _, p := range a.cfg.Providers {
		out = append(out, api.ProviderStatus{
			Name:        p.Name,
			Kind:        p.Name,
			Model:       p.Model,
			APIKey:      p.APIKey,
			KeyRequired: !slices.Contains(config.KeylessProviders, p.Name),
		})
	}
	return out
}

// checkProviders fails readiness when no provider can serve requests.
func (a *App) checkProviders(context.Context) error {
	for _, p := range a.providerStatus() {
		if !p.KeyRequired || p.APIKey != "" {
			return nil
		}
	}
	return errors.New("no provider has an API key")
}

func streamDefaults(s config.StreamConfig) api.StreamDefaults {
	return api.StreamDefaults{
		Pacing:    stream.Pacing{Min: s.MinInterval, Max: s.MaxInterval},
		KeepAlive: s.KeepAlive,
	}
}

// newAuthenticator accepts configured bearer tokens first and falls back to
// the trusted user header.
func newAuthenticator(cfg config.AuthConfig) api.Authenticator {
	var auths []api.Authenticator
	if len(cfg.Tokens) > 0 {
		auths = append(auths, api.NewTokenAuthenticator(cfg.Tokens))
	}
	if cfg.UserHeader != "" {
		auths = append(auths, api.HeaderAuthenticator{Header: cfg.UserHeader})
	}
	return api.Chain(auths...)
}
