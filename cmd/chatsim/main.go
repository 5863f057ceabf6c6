// Command chatsim serves the synthetic live-stream chat simulator.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/chatsim/internal/app"
	"github.com/MrWong99/chatsim/internal/config"
	"github.com/MrWong99/chatsim/internal/observe"
	"github.com/MrWong99/chatsim/pkg/provider/llm"
	"github.com/MrWong99/chatsim/pkg/provider/llm/anyllm"
	"github.com/MrWong99/chatsim/pkg/provider/llm/openai"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	watch := flag.Bool("watch", true, "reload hot-reloadable settings when the config file changes")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "chatsim: config file %q not found; copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "chatsim: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	level := new(slog.LevelVar)
	level.Set(cfg.Server.LogLevel.Level())
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	slog.Info("chatsim starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Telemetry ─────────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tel, err := observe.Init(ctx, observe.ProviderConfig{
		ServiceName:    "chatsim",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(sctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Providers ─────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg, cfg.Gateway.Timeout)

	providers, err := reg.CreateAll(cfg.Providers)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}
	for _, p := range cfg.Providers {
		slog.Info("provider created", "name", p.Name, "model", p.Model)
	}

	// ── Application ───────────────────────────────────────────────────────────
	opts := []app.Option{
		app.WithLevelVar(level),
		app.WithMetrics(tel.Metrics()),
		app.WithMetricsHandler(tel.Handler()),
	}
	if *watch {
		opts = append(opts, app.WithConfigWatcher(*configPath, config.DefaultWatchInterval))
	}
	application, err := app.New(cfg, providers, opts...)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	// SIGHUP forces a config reload even when mtime polling misses it.
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-hup:
				if !application.Reload() {
					slog.Warn("SIGHUP ignored: config watching is disabled")
				}
			}
		}
	}()

	if err := application.Run(ctx); err != nil {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires the provider factories that ship with
// chatsim into reg. timeout bounds each HTTP request of the openai-go client.
func registerBuiltinProviders(reg *config.Registry, timeout time.Duration) {
	// Every any-llm-go backend shares the same pattern: optional APIKey and
	// optional BaseURL. Local backends simply leave the key empty.
	for _, name := range anyllm.SupportedProviders {
		reg.Register(name, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(name, entry.Model, opts...)
		})
	}

	// Cerebras speaks the OpenAI wire format and goes through openai-go.
	reg.Register("cerebras", func(entry config.ProviderEntry) (llm.Provider, error) {
		opts := []openai.Option{openai.WithTimeout(timeout)}
		if entry.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(entry.BaseURL))
		}
		if topP, ok := config.OptFloat(entry.Options, "top_p"); ok {
			opts = append(opts, openai.WithTopP(topP))
		}
		if retries, ok := config.OptFloat(entry.Options, "max_retries"); ok {
			opts = append(opts, openai.WithMaxRetries(int(retries)))
		}
		if on, ok := config.OptBool(entry.Options, "json_mode"); ok {
			opts = append(opts, openai.WithJSONMode(on))
		}
		return openai.NewCerebras(entry.APIKey, entry.Model, opts...)
	})

	slog.Debug("registered providers", "names", reg.Names())
}
