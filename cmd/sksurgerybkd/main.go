package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/scikit-surgery/sksurgerybk/internal/config"
	"github.com/scikit-surgery/sksurgerybk/internal/daemon"
	"github.com/scikit-surgery/sksurgerybk/internal/logger"
)

func main() {
	cfg := config.Load()

	logCfg := logger.DefaultConfig()
	logCfg.Level = logger.ParseLevel(cfg.LogLevel)
	logCfg.Format = cfg.LogFormat
	logger.Init(logCfg)

	log := logger.ForComponent("main")

	if err := cfg.EnsureDirectories(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to ensure directories: %v\n", err)
		os.Exit(1)
	}

	pidFile := daemon.NewPIDFile(cfg.PIDPath)
	if pidFile.IsProcessAlive() {
		fmt.Println("Daemon already running")
		os.Exit(0)
	}

	if err := pidFile.Write(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write PID file: %v\n", err)
		os.Exit(1)
	}
	defer pidFile.Remove()

	d, err := daemon.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create daemon: %v\n", err)
		os.Exit(1)
	}

	if err := d.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start daemon: %v\n", err)
		os.Exit(1)
	}

	// Log level follows edits to the config file without a restart.
	if cfg.Path != "" {
		watcher, err := config.WatchFile(cfg.Path, func(next *config.Config) {
			logger.SetLevel(logger.ParseLevel(next.LogLevel))
		})
		if err != nil {
			log.Warn("config file watch unavailable", "error", err)
		} else {
			defer watcher.Close()
		}
	}

	handleSignals(d)
}

func handleSignals(d *daemon.Daemon) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	d.Shutdown()
}
