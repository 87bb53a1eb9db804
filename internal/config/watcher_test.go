package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/castnode/castnode/internal/logging"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// loggingLoader is the loader the daemon wires into its watcher.
func loggingLoader(path string) (logging.Config, error) {
	return LoadLoggingConfig(path), nil
}

func writeLoggingConfig(t *testing.T, path, screencastLevel string) {
	t.Helper()
	content := fmt.Sprintf("[logging]\nlevel = \"info\"\nscreencast = %q\n", screencastLevel)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestConfigWatcher_ReloadsLoggingConfig(t *testing.T) {
	path := writeTempConfig(t, "[logging]\nscreencast = \"info\"\n")

	received := make(chan logging.Config, 1)
	watcher := NewConfigWatcher(
		path,
		loggingLoader,
		newTestLogger(),
		WithDebounce[logging.Config](50*time.Millisecond),
	)

	watcher.OnReload(func(cfg logging.Config) {
		received <- cfg
	})

	if startErr := watcher.Start(); startErr != nil {
		t.Fatal(startErr)
	}
	defer func() {
		if stopErr := watcher.Stop(); stopErr != nil {
			t.Errorf("watcher.Stop failed: %v", stopErr)
		}
	}()

	// Wait for watcher to initialize
	time.Sleep(100 * time.Millisecond)

	writeLoggingConfig(t, path, "debug")

	select {
	case cfg := <-received:
		if cfg.Modules["screencast"] != "debug" {
			t.Errorf("Modules[screencast] = %q, want %q", cfg.Modules["screencast"], "debug")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for config reload")
	}
}

func TestConfigWatcher_AppliesModuleLevels(t *testing.T) {
	path := writeTempConfig(t, "[logging]\nscreencast = \"info\"\n")

	// The module logger must exist before SetModuleLevel can re-level it.
	logger := logging.GetLogger("screencast")
	logging.SetModuleLevel("screencast", "info")
	if logger.Enabled(context.Background(), slog.LevelDebug) {
		t.Fatal("screencast logger should start at info")
	}

	watcher := NewConfigWatcher(
		path,
		loggingLoader,
		newTestLogger(),
		WithDebounce[logging.Config](50*time.Millisecond),
	)

	applied := make(chan struct{}, 1)
	watcher.OnReload(func(cfg logging.Config) {
		for module, level := range cfg.Modules {
			logging.SetModuleLevel(module, level)
		}
		applied <- struct{}{}
	})

	if startErr := watcher.Start(); startErr != nil {
		t.Fatal(startErr)
	}
	defer func() {
		if stopErr := watcher.Stop(); stopErr != nil {
			t.Errorf("watcher.Stop failed: %v", stopErr)
		}
	}()

	time.Sleep(100 * time.Millisecond)
	writeLoggingConfig(t, path, "debug")

	select {
	case <-applied:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for config reload")
	}

	if !logger.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("screencast logger should be debug-enabled after reload")
	}
	logging.SetModuleLevel("screencast", "info")
}

func TestConfigWatcher_CoalescesRapidWrites(t *testing.T) {
	path := writeTempConfig(t, "[logging]\nscreencast = \"info\"\n")

	var count atomic.Int32
	last := make(chan logging.Config, 16)

	watcher := NewConfigWatcher(
		path,
		loggingLoader,
		newTestLogger(),
		WithDebounce[logging.Config](200*time.Millisecond),
	)

	watcher.OnReload(func(cfg logging.Config) {
		count.Add(1)
		last <- cfg
	})

	if startErr := watcher.Start(); startErr != nil {
		t.Fatal(startErr)
	}
	defer func() {
		if stopErr := watcher.Stop(); stopErr != nil {
			t.Errorf("watcher.Stop failed: %v", stopErr)
		}
	}()

	// Rapid writes inside the debounce window collapse into one reload
	time.Sleep(100 * time.Millisecond)
	for _, level := range []string{"debug", "warn", "error"} {
		writeLoggingConfig(t, path, level)
		time.Sleep(50 * time.Millisecond)
	}

	time.Sleep(500 * time.Millisecond)

	if got := count.Load(); got != 1 {
		t.Errorf("expected 1 debounced reload, got %d", got)
	}
	if cfg := <-last; cfg.Modules["screencast"] != "error" {
		t.Errorf("Modules[screencast] = %q, want final value %q", cfg.Modules["screencast"], "error")
	}
}

func TestConfigWatcher_LoaderError(t *testing.T) {
	path := writeTempConfig(t, "[logging]\nscreencast = \"info\"\n")

	// Strict loader so malformed files surface through the error handler.
	strictLoader := func(path string) (logging.Config, error) {
		data, err := os.ReadFile(path)
		if err != nil {
			return logging.Config{}, err
		}
		var cfg logging.Config
		err = toml.Unmarshal(data, &cfg)
		return cfg, err
	}

	errorReceived := make(chan error, 1)
	configReceived := make(chan logging.Config, 1)

	watcher := NewConfigWatcher(
		path,
		strictLoader,
		newTestLogger(),
		WithDebounce[logging.Config](50*time.Millisecond),
		WithErrorHandler[logging.Config](func(err error) {
			errorReceived <- err
		}),
	)

	watcher.OnReload(func(cfg logging.Config) {
		configReceived <- cfg
	})

	if startErr := watcher.Start(); startErr != nil {
		t.Fatal(startErr)
	}
	defer func() {
		if stopErr := watcher.Stop(); stopErr != nil {
			t.Errorf("watcher.Stop failed: %v", stopErr)
		}
	}()

	time.Sleep(100 * time.Millisecond)
	if writeErr := os.WriteFile(path, []byte("invalid toml [[["), 0o644); writeErr != nil {
		t.Fatal(writeErr)
	}

	select {
	case <-errorReceived:
		// Expected
	case <-configReceived:
		t.Fatal("reload handler should not be called on error")
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for error handler")
	}
}

func TestConfigWatcher_Unsubscribe(t *testing.T) {
	path := writeTempConfig(t, "[logging]\nscreencast = \"info\"\n")

	var kept, removed atomic.Int32
	watcher := NewConfigWatcher(
		path,
		loggingLoader,
		newTestLogger(),
		WithDebounce[logging.Config](50*time.Millisecond),
	)

	watcher.OnReload(func(logging.Config) { kept.Add(1) })
	unsub := watcher.OnReload(func(logging.Config) { removed.Add(1) })

	if startErr := watcher.Start(); startErr != nil {
		t.Fatal(startErr)
	}
	defer func() {
		if stopErr := watcher.Stop(); stopErr != nil {
			t.Errorf("watcher.Stop failed: %v", stopErr)
		}
	}()

	time.Sleep(100 * time.Millisecond)
	writeLoggingConfig(t, path, "debug")
	time.Sleep(200 * time.Millisecond)

	unsub()

	writeLoggingConfig(t, path, "warn")
	time.Sleep(200 * time.Millisecond)

	if got := kept.Load(); got != 2 {
		t.Errorf("kept handler: expected 2 calls, got %d", got)
	}
	if got := removed.Load(); got != 1 {
		t.Errorf("removed handler: expected 1 call, got %d", got)
	}
}

func TestConfigWatcher_Stop(t *testing.T) {
	path := writeTempConfig(t, "[logging]\nscreencast = \"info\"\n")

	var count atomic.Int32
	watcher := NewConfigWatcher(
		path,
		loggingLoader,
		newTestLogger(),
		WithDebounce[logging.Config](50*time.Millisecond),
	)

	watcher.OnReload(func(logging.Config) { count.Add(1) })

	if startErr := watcher.Start(); startErr != nil {
		t.Fatal(startErr)
	}

	time.Sleep(100 * time.Millisecond)
	if stopErr := watcher.Stop(); stopErr != nil {
		t.Fatal(stopErr)
	}

	// Changes after stop must not trigger handlers
	writeLoggingConfig(t, path, "debug")
	time.Sleep(200 * time.Millisecond)

	if got := count.Load(); got != 0 {
		t.Errorf("expected 0 calls after stop, got %d", got)
	}
}
