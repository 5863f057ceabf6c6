// Command chatsim-watch follows a chat stream in the terminal. It keeps the
// stream open across server restarts and network drops.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MrWong99/chatsim/internal/client"
	"github.com/MrWong99/chatsim/internal/phrase"
	"github.com/MrWong99/chatsim/internal/stream"
)

func main() {
	os.Exit(run())
}

func run() int {
	baseURL := flag.String("url", "http://localhost:8080", "chat simulator base URL")
	topic := flag.String("topic", "", "game or topic to stream (required)")
	mode := flag.String("mode", string(phrase.ModeGame), "stream mode: game or topic")
	preset := flag.Int("speed", -1, fmt.Sprintf("pacing preset 0-%d, slowest first; overrides -min/-max", len(stream.Presets)-1))
	minDelay := flag.Duration("min", 0, "minimum delay between messages (0 uses the server default)")
	maxDelay := flag.Duration("max", 0, "maximum delay between messages (0 uses the server default)")
	token := flag.String("token", os.Getenv("CHATSIM_TOKEN"), "bearer token")
	user := flag.String("user", "", "user id sent in the X-User-Id header")
	retries := flag.Int("retries", 10, "consecutive failed attempts before giving up")
	verbose := flag.Bool("v", false, "log keep-alives and reconnects")
	flag.Parse()

	lvl := slog.LevelWarn
	if *verbose {
		lvl = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))

	if *topic == "" {
		fmt.Fprintln(os.Stderr, "chatsim-watch: -topic is required")
		flag.Usage()
		return 2
	}
	m, err := phrase.ParseMode(*mode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "chatsim-watch: %v\n", err)
		return 2
	}

	req := client.Request{Topic: *topic, Mode: m}
	switch {
	case *preset >= 0 && *preset < len(stream.Presets):
		req.Pacing = stream.Presets[*preset]
	case *preset >= len(stream.Presets):
		fmt.Fprintf(os.Stderr, "chatsim-watch: -speed must be between 0 and %d\n", len(stream.Presets)-1)
		return 2
	case *minDelay > 0 || *maxDelay > 0:
		req.Pacing = stream.Pacing{Min: *minDelay, Max: *maxDelay}.Clamp()
	}

	var opts []client.Option
	if *token != "" {
		opts = append(opts, client.WithToken(*token))
	}
	if *user != "" {
		opts = append(opts, client.WithHeader("X-User-Id", *user))
	}

	rc := client.NewReconnector(client.ReconnectorConfig{
		Client:     client.New(*baseURL, opts...),
		MaxRetries: *retries,
		OnOpen: func(failures int) {
			if failures > 0 {
				slog.Info("reconnected", "failed_attempts", failures)
			}
		},
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err = rc.Run(ctx, req, func(ev client.Event) error {
		if ev.KeepAlive {
			slog.Debug("keep-alive")
			return nil
		}
		return printMessage(os.Stdout, ev)
	})
	if err != nil {
		if errors.Is(err, client.ErrGaveUp) {
			fmt.Fprintf(os.Stderr, "chatsim-watch: connection lost: %v\n", err)
		} else {
			fmt.Fprintf(os.Stderr, "chatsim-watch: %v\n", err)
		}
		return 1
	}
	return 0
}

func printMessage(w io.Writer, ev client.Event) error {
	msg := ev.Message
	ts := time.UnixMilli(msg.Timestamp).Format(time.TimeOnly)
	_, err := fmt.Fprintf(w, "%s  %-12s %s\n", ts, msg.Username+":", msg.Content)
	return err
}
