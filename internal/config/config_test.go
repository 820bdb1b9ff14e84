package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/scikit-surgery/sksurgerybk/internal/logger"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SKSURGERYBK_DIR", t.TempDir())

	cfg := Load()

	if cfg.Scanner.Address != "128.16.0.3" {
		t.Errorf("unexpected default address %q", cfg.Scanner.Address)
	}
	if cfg.Scanner.Port != 7915 {
		t.Errorf("unexpected default port %d", cfg.Scanner.Port)
	}
	if cfg.Scanner.FPS != 25 || cfg.Scanner.TimeoutSeconds != 5 || cfg.Scanner.PacketSize != 1024 {
		t.Errorf("unexpected scanner defaults: %+v", cfg.Scanner)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("unexpected default log level %q", cfg.LogLevel)
	}
	if !cfg.Record.Enabled {
		t.Error("recording should default to enabled")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("SKSURGERYBK_DIR", t.TempDir())
	t.Setenv("SKSURGERYBK_LOG_LEVEL", "debug")
	t.Setenv("SKSURGERYBK_SCANNER_ADDR", "10.0.0.9")
	t.Setenv("SKSURGERYBK_SCANNER_PORT", "7000")
	t.Setenv("SKSURGERYBK_FPS", "40")

	cfg := Load()

	if cfg.LogLevel != "debug" {
		t.Errorf("expected log level debug, got %q", cfg.LogLevel)
	}
	if cfg.Scanner.Address != "10.0.0.9" || cfg.Scanner.Port != 7000 || cfg.Scanner.FPS != 40 {
		t.Errorf("env overrides not applied: %+v", cfg.Scanner)
	}
}

func TestLoadIgnoresBadEnvValues(t *testing.T) {
	t.Setenv("SKSURGERYBK_DIR", t.TempDir())
	t.Setenv("SKSURGERYBK_SCANNER_PORT", "not-a-port")
	t.Setenv("SKSURGERYBK_FPS", "-3")

	cfg := Load()

	if cfg.Scanner.Port != 7915 {
		t.Errorf("bad port override should be ignored, got %d", cfg.Scanner.Port)
	}
	if cfg.Scanner.FPS != 25 {
		t.Errorf("bad fps override should be ignored, got %d", cfg.Scanner.FPS)
	}
}

func TestLoadMergesConfigFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("SKSURGERYBK_DIR", dir)

	content := `{"log_level": "warn", "scanner": {"fps": 30}}`
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg := Load()

	if cfg.LogLevel != "warn" {
		t.Errorf("expected log level warn from file, got %q", cfg.LogLevel)
	}
	if cfg.Scanner.FPS != 30 {
		t.Errorf("expected fps 30 from file, got %d", cfg.Scanner.FPS)
	}
	// Fields absent from the file keep their defaults.
	if cfg.Scanner.Port != 7915 {
		t.Errorf("expected default port preserved, got %d", cfg.Scanner.Port)
	}
	if cfg.Path != path {
		t.Errorf("expected config path %q recorded, got %q", path, cfg.Path)
	}
}

func TestMergeFileRejectsMalformedJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte("{nope"), 0600); err != nil {
		t.Fatal(err)
	}

	cfg := &Config{}
	if err := cfg.MergeFile(path); err == nil {
		t.Error("expected parse error for malformed config")
	}
}

func TestWatchFileReloads(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("SKSURGERYBK_DIR", dir)

	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(`{"log_level": "info"}`), 0600); err != nil {
		t.Fatal(err)
	}

	reloaded := make(chan *Config, 1)
	w, err := WatchFile(path, func(cfg *Config) {
		select {
		case reloaded <- cfg:
		default:
		}
	})
	if err != nil {
		t.Fatalf("watch failed: %v", err)
	}
	defer w.Close()

	if err := os.WriteFile(path, []byte(`{"log_level": "debug"}`), 0600); err != nil {
		t.Fatal(err)
	}

	select {
	case cfg := <-reloaded:
		if cfg.LogLevel != "debug" {
			t.Errorf("expected reloaded log level debug, got %q", cfg.LogLevel)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for config reload")
	}
}

func TestWatcherLogsWithConfiguredHandler(t *testing.T) {
	var buf bytes.Buffer
	logCfg := logger.DefaultConfig()
	logCfg.Level = slog.LevelDebug
	logCfg.Output = &buf
	logger.Init(logCfg)
	t.Cleanup(func() { logger.Init(logger.DefaultConfig()) })

	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(`{}`), 0600); err != nil {
		t.Fatal(err)
	}

	w, err := WatchFile(path, func(*Config) {})
	if err != nil {
		t.Fatalf("watch failed: %v", err)
	}
	defer w.Close()

	out := buf.String()
	if !strings.Contains(out, "watching config file") || !strings.Contains(out, "component=config") {
		t.Errorf("watcher logs did not reach the configured handler: %q", out)
	}
}
