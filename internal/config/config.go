// Package config holds runtime configuration for the CLI and daemon.
// Defaults live under ~/.sksurgerybk and can be overridden by
// environment variables and a JSON config file.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

type ScannerConfig struct {
	Address        string `json:"address"`
	Port           int    `json:"port"`
	TimeoutSeconds int    `json:"timeout_seconds"`
	FPS            int    `json:"fps"`
	PacketSize     int    `json:"packet_size"`
}

type RecordConfig struct {
	Enabled   bool   `json:"enabled"`
	Root      string `json:"root"`
	DBPath    string `json:"db_path"`
	QueueSize int    `json:"queue_size"`
}

type Config struct {
	SocketPath  string        `json:"socket_path"`
	PIDPath     string        `json:"pid_path"`
	LogLevel    string        `json:"log_level"`
	LogFormat   string        `json:"log_format"`
	HistorySize int           `json:"history_size"`
	Scanner     ScannerConfig `json:"scanner"`
	Record      RecordConfig  `json:"record"`

	// Path points at the config file this config was merged from,
	// empty when only defaults and env applied.
	Path string `json:"-"`
}

// Load builds the default configuration, then applies environment
// overrides and, when present, ~/.sksurgerybk/config.json.
func Load() *Config {
	homeDir, _ := os.UserHomeDir()
	baseDir := filepath.Join(homeDir, ".sksurgerybk")
	if dir := os.Getenv("SKSURGERYBK_DIR"); dir != "" {
		baseDir = dir
	}

	cfg := &Config{
		SocketPath:  filepath.Join(baseDir, "daemon.sock"),
		PIDPath:     filepath.Join(baseDir, "daemon.pid"),
		LogLevel:    "info",
		LogFormat:   "text",
		HistorySize: 32,
		Scanner: ScannerConfig{
			// Factory defaults of the BK5000 OEM interface.
			Address:        "128.16.0.3",
			Port:           7915,
			TimeoutSeconds: 5,
			FPS:            25,
			PacketSize:     1024,
		},
		Record: RecordConfig{
			Enabled:   true,
			Root:      filepath.Join(baseDir, "sessions"),
			DBPath:    filepath.Join(baseDir, "record.db"),
			QueueSize: 256,
		},
	}

	cfg.applyEnv()

	path := filepath.Join(baseDir, "config.json")
	if _, err := os.Stat(path); err == nil {
		if err := cfg.MergeFile(path); err == nil {
			cfg.Path = path
		}
	}

	return cfg
}

func (c *Config) applyEnv() {
	if v := os.Getenv("SKSURGERYBK_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("SKSURGERYBK_SCANNER_ADDR"); v != "" {
		c.Scanner.Address = v
	}
	if v := os.Getenv("SKSURGERYBK_SCANNER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			c.Scanner.Port = port
		}
	}
	if v := os.Getenv("SKSURGERYBK_FPS"); v != "" {
		if fps, err := strconv.Atoi(v); err == nil && fps > 0 {
			c.Scanner.FPS = fps
		}
	}
}

// MergeFile overlays values from a JSON config file. Fields absent
// from the file keep their current values.
func (c *Config) MergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	if err := json.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{filepath.Dir(c.SocketPath), c.Record.Root, filepath.Dir(c.Record.DBPath)} {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}
