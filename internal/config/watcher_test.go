package config_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/chatsim/internal/config"
)

const watcherValidYAML = `
server:
  log_level: info
providers:
  - name: groq
    api_key: gsk-test
    model: openai/gpt-oss-120b
auth:
  user_header: X-User-Id
`

const watcherUpdatedYAML = `
server:
  log_level: debug
providers:
  - name: groq
    api_key: gsk-test
    model: openai/gpt-oss-120b
quota:
  max_topics_per_user: 8
auth:
  user_header: X-User-Id
`

const watcherInvalidYAML = `
server:
  log_level: bananas
`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write file %q: %v", path, err)
	}
}

// bumpMtime moves the file's mtime forward so coarse filesystem clocks
// cannot hide a rewrite from the poller.
func bumpMtime(t *testing.T, path string, by time.Duration) {
	t.Helper()
	ts := time.Now().Add(by)
	if err := os.Chtimes(path, ts, ts); err != nil {
		t.Fatalf("failed to touch file: %v", err)
	}
}

// runWatcher starts w.Run and stops it when the test ends.
func runWatcher(t *testing.T, w *config.Watcher) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("Run returned %v", err)
		}
	})
}

func TestWatcher_InitialLoad(t *testing.T) {
	t.Parallel()
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, cfgPath, watcherValidYAML)

	w, err := config.NewWatcher(cfgPath, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cfg := w.Current()
	if cfg == nil {
		t.Fatal("Current() returned nil")
	}
	if cfg.Server.LogLevel != config.LogInfo {
		t.Errorf("log_level = %q, want info", cfg.Server.LogLevel)
	}
	if cfg.Quota.MaxTopicsPerUser != config.DefaultMaxTopicsPerUser {
		t.Errorf("max_topics_per_user = %d", cfg.Quota.MaxTopicsPerUser)
	}
}

func TestWatcher_DetectsChange(t *testing.T) {
	t.Parallel()
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, cfgPath, watcherValidYAML)

	var (
		mu     sync.Mutex
		oldCfg *config.Config
		newCfg *config.Config
		called = make(chan struct{}, 1)
	)
	w, err := config.NewWatcher(cfgPath, func(old, new *config.Config) {
		mu.Lock()
		oldCfg, newCfg = old, new
		mu.Unlock()
		select {
		case called <- struct{}{}:
		default:
		}
	}, config.WithInterval(50*time.Millisecond))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	runWatcher(t, w)

	writeFile(t, cfgPath, watcherUpdatedYAML)
	bumpMtime(t, cfgPath, time.Second)

	select {
	case <-called:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for onChange callback")
	}

	mu.Lock()
	defer mu.Unlock()
	if oldCfg.Server.LogLevel != config.LogInfo {
		t.Errorf("old log_level = %q, want info", oldCfg.Server.LogLevel)
	}
	if newCfg.Server.LogLevel != config.LogDebug {
		t.Errorf("new log_level = %q, want debug", newCfg.Server.LogLevel)
	}
	if newCfg.Quota.MaxTopicsPerUser != 8 {
		t.Errorf("new max_topics_per_user = %d, want 8", newCfg.Quota.MaxTopicsPerUser)
	}
	if w.Current() != newCfg {
		t.Error("Current() should return the reloaded config")
	}

	d := config.Diff(oldCfg, newCfg)
	if !d.LogLevelChanged || !d.QuotaChanged || len(d.RestartRequired) != 0 {
		t.Errorf("diff = %+v", d)
	}
}

func TestWatcher_InvalidFileKeepsOldConfig(t *testing.T) {
	t.Parallel()
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, cfgPath, watcherValidYAML)

	callCount := 0
	var mu sync.Mutex

	w, err := config.NewWatcher(cfgPath, func(old, new *config.Config) {
		mu.Lock()
		callCount++
		mu.Unlock()
	}, config.WithInterval(50*time.Millisecond))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	runWatcher(t, w)

	writeFile(t, cfgPath, watcherInvalidYAML)
	bumpMtime(t, cfgPath, time.Second)

	// Wait enough polls for it to notice the change.
	time.Sleep(300 * time.Millisecond)

	mu.Lock()
	calls := callCount
	mu.Unlock()
	if calls != 0 {
		t.Errorf("callback should not be called for invalid config, got %d calls", calls)
	}
	if cur := w.Current(); cur.Server.LogLevel != config.LogInfo {
		t.Errorf("Current() should still have old config, got log_level=%q", cur.Server.LogLevel)
	}
}

func TestWatcher_InitialLoadFails(t *testing.T) {
	t.Parallel()
	if _, err := config.NewWatcher("/nonexistent/path.yaml", nil); err == nil {
		t.Fatal("expected error for non-existent file, got nil")
	}

	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, cfgPath, watcherInvalidYAML)
	if _, err := config.NewWatcher(cfgPath, nil); err == nil {
		t.Fatal("expected error for invalid file, got nil")
	}
}

func TestWatcher_RunReturnsOnCancel(t *testing.T) {
	t.Parallel()
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, cfgPath, watcherValidYAML)

	w, err := config.NewWatcher(cfgPath, nil, config.WithInterval(time.Hour))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := w.Run(ctx); err != nil {
		t.Errorf("Run() = %v, want nil", err)
	}
}

func TestWatcher_TouchWithoutContentChange(t *testing.T) {
	t.Parallel()
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, cfgPath, watcherValidYAML)

	callCount := 0
	var mu sync.Mutex

	w, err := config.NewWatcher(cfgPath, func(old, new *config.Config) {
		mu.Lock()
		callCount++
		mu.Unlock()
	}, config.WithInterval(50*time.Millisecond))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	runWatcher(t, w)

	bumpMtime(t, cfgPath, time.Second)
	time.Sleep(300 * time.Millisecond)

	mu.Lock()
	calls := callCount
	mu.Unlock()
	if calls != 0 {
		t.Errorf("callback should not fire for touch-only, got %d calls", calls)
	}
}

func TestWatcher_ReloadWithoutMtimeChange(t *testing.T) {
	t.Parallel()
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, cfgPath, watcherValidYAML)
	info, err := os.Stat(cfgPath)
	if err != nil {
		t.Fatal(err)
	}

	called := make(chan *config.Config, 1)
	w, err := config.NewWatcher(cfgPath, func(_, new *config.Config) {
		called <- new
	}, config.WithInterval(time.Hour))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	runWatcher(t, w)

	// Rewrite and restore the old mtime so only a forced reload can see it.
	writeFile(t, cfgPath, watcherUpdatedYAML)
	if err := os.Chtimes(cfgPath, info.ModTime(), info.ModTime()); err != nil {
		t.Fatal(err)
	}
	w.Reload()
	w.Reload()

	select {
	case cfg := <-called:
		if cfg.Server.LogLevel != config.LogDebug {
			t.Errorf("reloaded log_level = %q, want debug", cfg.Server.LogLevel)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Reload did not trigger onChange")
	}
}
