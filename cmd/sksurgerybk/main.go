package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/scikit-surgery/sksurgerybk/internal/bk5000"
	"github.com/scikit-surgery/sksurgerybk/internal/calc"
	"github.com/scikit-surgery/sksurgerybk/internal/config"
	"github.com/scikit-surgery/sksurgerybk/internal/control"
	"github.com/scikit-surgery/sksurgerybk/internal/daemon"
	"github.com/scikit-surgery/sksurgerybk/internal/logger"
	"github.com/scikit-surgery/sksurgerybk/internal/record"
)

const version = "0.1.0"

const usageText = `Usage:
  sksurgerybk <a> <b> [--multiply]   add (or multiply) two numbers
  sksurgerybk stream [flags]         stream frames directly from the scanner
  sksurgerybk status                 show daemon and scanner state
  sksurgerybk start                  connect and start streaming via the daemon
  sksurgerybk stop                   stop streaming
  sksurgerybk snapshot [-o path]     save the latest frame as PGM
  sksurgerybk sessions               list recorded sessions
  sksurgerybk frames [session]       list recorded frame files
  sksurgerybk version                print version
`

func main() {
	args := os.Args[1:]
	if len(args) == 0 {
		fmt.Fprint(os.Stderr, usageText)
		os.Exit(1)
	}

	var err error
	switch args[0] {
	case "stream":
		err = runStream(args[1:])
	case "status":
		err = runStatus()
	case "start":
		err = runStart()
	case "stop":
		err = runStop()
	case "snapshot":
		err = runSnapshot(args[1:])
	case "sessions":
		err = runSessions()
	case "frames":
		err = runFrames(args[1:])
	case "version":
		fmt.Println(version)
	case "help", "-h", "--help":
		fmt.Print(usageText)
	default:
		err = runCalculator(args)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// runCalculator implements the documented demo: two operands,
// optionally --multiply.
func runCalculator(args []string) error {
	multiply := false
	operands := make([]string, 0, len(args))

	for _, arg := range args {
		switch arg {
		case "--multiply", "-multiply":
			multiply = true
		default:
			operands = append(operands, arg)
		}
	}

	if len(operands) != 2 {
		return fmt.Errorf("expected two operands, got %d", len(operands))
	}

	result, err := calc.Compute(operands[0], operands[1], multiply)
	if err != nil {
		return err
	}

	fmt.Println(result)
	return nil
}

func initLogging(cfg *config.Config) {
	logCfg := logger.DefaultConfig()
	logCfg.Level = logger.ParseLevel(cfg.LogLevel)
	logCfg.Format = cfg.LogFormat
	logger.Init(logCfg)
}

// dialDaemon makes sure the daemon is up and returns a control
// client.
func dialDaemon(ctx context.Context) (*control.Client, *config.Config, error) {
	cfg := config.Load()
	initLogging(cfg)

	if err := cfg.EnsureDirectories(); err != nil {
		return nil, nil, err
	}
	if err := daemon.EnsureRunning(cfg.SocketPath, cfg.PIDPath); err != nil {
		return nil, nil, err
	}

	client, err := control.Dial(ctx, cfg.SocketPath)
	if err != nil {
		return nil, nil, err
	}
	return client, cfg, nil
}

func runStatus() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, _, err := dialDaemon(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	status, err := client.Status(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("connected:  %v\n", status.Connected)
	fmt.Printf("streaming:  %v\n", status.Streaming)
	if status.Width > 0 {
		fmt.Printf("window:     %dx%d\n", status.Width, status.Height)
	}
	fmt.Printf("frames:     %d (%d dropped)\n", status.FramesSeen, status.FramesDropped)
	if status.Session != "" {
		fmt.Printf("session:    %s\n", status.Session)
	}
	fmt.Printf("uptime:     %ds\n", status.UptimeSeconds)
	return nil
}

func runStart() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, cfg, err := dialDaemon(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.Connect(ctx, control.ConnectParams{}); err != nil {
		return err
	}
	if err := client.StartStream(ctx); err != nil {
		return err
	}

	fmt.Printf("streaming from %s:%d\n", cfg.Scanner.Address, cfg.Scanner.Port)
	return nil
}

func runStop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, _, err := dialDaemon(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.StopStream(ctx); err != nil {
		return err
	}

	fmt.Println("streaming stopped")
	return nil
}

func runSnapshot(args []string) error {
	fs := flag.NewFlagSet("snapshot", flag.ContinueOnError)
	out := fs.String("o", "", "output path for the PGM file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, _, err := dialDaemon(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	result, err := client.Snapshot(ctx, control.SnapshotParams{Path: *out})
	if err != nil {
		return err
	}

	fmt.Printf("saved frame %d (%dx%d) to %s\n", result.Seq, result.Width, result.Height, result.Path)
	return nil
}

func runSessions() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, _, err := dialDaemon(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	result, err := client.Sessions(ctx)
	if err != nil {
		return err
	}

	if len(result.Sessions) == 0 {
		fmt.Println("no recorded sessions")
		return nil
	}

	for _, sess := range result.Sessions {
		state := "open"
		if sess.FinishedAt != nil {
			state = "finished"
		}
		fmt.Printf("%s  %s  %dx%d@%dfps  %d frames  %s\n",
			sess.ID, sess.StartedAt.Format(time.RFC3339),
			sess.Width, sess.Height, sess.FPS, sess.FrameCount, state)
	}
	return nil
}

func runFrames(args []string) error {
	session := ""
	if len(args) > 0 {
		session = args[0]
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, _, err := dialDaemon(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	result, err := client.Frames(ctx, control.FramesParams{Session: session})
	if err != nil {
		return err
	}

	if len(result.Files) == 0 {
		fmt.Println("no recorded frames")
		return nil
	}

	for _, file := range result.Files {
		fmt.Println(file)
	}
	if session != "" {
		fmt.Printf("%d files on disk, %d indexed\n", len(result.Files), result.Indexed)
	}
	return nil
}

// runStream talks to the scanner directly, without the daemon.
func runStream(args []string) error {
	cfg := config.Load()

	fs := flag.NewFlagSet("stream", flag.ContinueOnError)
	addr := fs.String("addr", cfg.Scanner.Address, "scanner IP address")
	port := fs.Int("port", cfg.Scanner.Port, "scanner port")
	fps := fs.Int("fps", cfg.Scanner.FPS, "requested frames per second")
	frames := fs.Int("frames", 0, "number of frames to grab, 0 for unlimited")
	recordDir := fs.String("record", "", "record frames under this directory")
	timeout := fs.Duration("timeout", time.Duration(cfg.Scanner.TimeoutSeconds)*time.Second, "socket timeout")
	if err := fs.Parse(args); err != nil {
		return err
	}

	initLogging(cfg)
	log := logger.ForComponent("stream")

	scannerCfg := bk5000.Config{
		Timeout:         *timeout,
		FramesPerSecond: *fps,
		PacketSize:      cfg.Scanner.PacketSize,
	}

	client := bk5000.New(scannerCfg)
	defer client.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := client.Connect(ctx, *addr, *port); err != nil {
		return err
	}
	if err := client.QueryWinSize(); err != nil {
		return err
	}
	if err := client.StartStreaming(); err != nil {
		return err
	}
	defer func() {
		if err := client.StopStreaming(); err != nil {
			log.Warn("failed to stop streaming", "error", err)
		}
	}()

	var recorder *record.Recorder
	sessionID := ""
	if *recordDir != "" {
		store, err := record.NewStore(filepath.Join(*recordDir, "record.db"))
		if err != nil {
			return err
		}
		defer store.Close()

		width, height := client.WindowSize()
		sess := record.NewSession(fmt.Sprintf("%s:%d", *addr, *port), width, height, *fps)
		sessionID = sess.ID
		if err := store.InsertSession(sess); err != nil {
			return err
		}
		defer store.FinishSession(sessionID)

		recorder = record.NewRecorder(store, record.DefaultRecorderConfig(*recordDir))
		recorder.Start()
		defer recorder.Stop()
	}

	grabbed := 0
	for *frames == 0 || grabbed < *frames {
		frame, err := client.GetFrame(ctx)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			return err
		}

		grabbed++
		if recorder != nil {
			recorder.Enqueue(sessionID, frame)
		}
		if grabbed%100 == 0 {
			log.Info("streaming", "frames", grabbed)
		}
	}

	fmt.Printf("grabbed %d frames\n", grabbed)
	return nil
}
