// Package daemon hosts the long-lived process that owns the scanner
// TCP connection, pumps frames, records sessions and serves the
// control socket.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/scikit-surgery/sksurgerybk/internal/bk5000"
	"github.com/scikit-surgery/sksurgerybk/internal/config"
	"github.com/scikit-surgery/sksurgerybk/internal/control"
	"github.com/scikit-surgery/sksurgerybk/internal/logger"
	"github.com/scikit-surgery/sksurgerybk/internal/record"
)

var (
	ErrAlreadyStreaming = errors.New("already streaming")
	ErrNotStreaming     = errors.New("not streaming")
	ErrNoFrames         = errors.New("no frames captured yet")
)

type Daemon struct {
	cfg      *config.Config
	scanner  *bk5000.Client
	store    *record.Store
	recorder *record.Recorder
	history  *lru.Cache[uint64, *bk5000.Frame]

	listener *SocketListener
	server   *control.Server

	connections map[net.Conn]bool
	connMu      sync.Mutex

	shutdown     chan struct{}
	shutdownOnce sync.Once
	startTime    time.Time

	// mu guards the scanner lifecycle and session bookkeeping.
	mu         sync.Mutex
	connected  bool
	address    string
	sessionID  string
	pumpCancel context.CancelFunc
	pumpDone   chan struct{}

	framesSeen atomic.Uint64
	lastSeq    atomic.Uint64

	log *slog.Logger
}

func New(cfg *config.Config) (*Daemon, error) {
	history, err := lru.New[uint64, *bk5000.Frame](cfg.HistorySize)
	if err != nil {
		return nil, fmt.Errorf("create frame history: %w", err)
	}

	d := &Daemon{
		cfg:         cfg,
		scanner:     bk5000.New(scannerConfig(cfg)),
		history:     history,
		listener:    NewSocketListener(cfg.SocketPath),
		connections: make(map[net.Conn]bool),
		shutdown:    make(chan struct{}),
		startTime:   time.Now(),
		log:         logger.ForComponent("daemon"),
	}
	d.server = control.NewServer(d)

	if cfg.Record.Enabled {
		store, err := record.NewStore(cfg.Record.DBPath)
		if err != nil {
			return nil, fmt.Errorf("open record store: %w", err)
		}
		d.store = store

		recCfg := record.DefaultRecorderConfig(cfg.Record.Root)
		if cfg.Record.QueueSize > 0 {
			recCfg.QueueSize = cfg.Record.QueueSize
		}
		d.recorder = record.NewRecorder(store, recCfg)
	}

	return d, nil
}

func scannerConfig(cfg *config.Config) bk5000.Config {
	sc := bk5000.DefaultConfig()
	if cfg.Scanner.TimeoutSeconds > 0 {
		sc.Timeout = time.Duration(cfg.Scanner.TimeoutSeconds) * time.Second
	}
	if cfg.Scanner.FPS > 0 {
		sc.FramesPerSecond = cfg.Scanner.FPS
	}
	if cfg.Scanner.PacketSize > 0 {
		sc.PacketSize = cfg.Scanner.PacketSize
	}
	return sc
}

// Start brings up the control socket and the recorder, then accepts
// connections until Shutdown.
func (d *Daemon) Start() error {
	if err := d.listener.Start(); err != nil {
		return err
	}

	if d.recorder != nil {
		d.recorder.Start()
	}

	go d.acceptConnections()

	d.log.Info("daemon listening", "socket", d.cfg.SocketPath)
	return nil
}

func (d *Daemon) acceptConnections() {
	for {
		conn, err := d.listener.Accept()
		if err != nil {
			select {
			case <-d.shutdown:
				return
			default:
				continue
			}
		}

		d.connMu.Lock()
		d.connections[conn] = true
		d.connMu.Unlock()

		go d.handleConnection(conn)
	}
}

func (d *Daemon) handleConnection(conn net.Conn) {
	defer func() {
		conn.Close()
		d.connMu.Lock()
		delete(d.connections, conn)
		d.connMu.Unlock()
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		select {
		case <-d.shutdown:
			cancel()
		case <-ctx.Done():
		}
	}()

	d.server.Serve(ctx, conn)
}

func (d *Daemon) Shutdown() {
	d.shutdownOnce.Do(func() {
		d.log.Info("daemon shutting down")
		close(d.shutdown)

		if err := d.StopStream(context.Background()); err != nil && !errors.Is(err, ErrNotStreaming) {
			d.log.Warn("failed to stop stream during shutdown", "error", err)
		}
		d.scanner.Close()

		d.listener.Close()

		d.connMu.Lock()
		for conn := range d.connections {
			conn.Close()
		}
		d.connMu.Unlock()

		if d.recorder != nil {
			d.recorder.Stop()
		}
		if d.store != nil {
			d.store.Close()
		}
	})
}

// Wait blocks until Shutdown has been triggered.
func (d *Daemon) Wait() {
	<-d.shutdown
}

// -- control.Backend --

func (d *Daemon) Status(ctx context.Context) (*control.StatusResult, error) {
	d.mu.Lock()
	connected := d.connected
	session := d.sessionID
	d.mu.Unlock()

	width, height := d.scanner.WindowSize()

	status := &control.StatusResult{
		Connected:     connected,
		Streaming:     d.scanner.IsStreaming(),
		Width:         width,
		Height:        height,
		FramesSeen:    d.framesSeen.Load(),
		Session:       session,
		UptimeSeconds: int64(time.Since(d.startTime).Seconds()),
	}
	if d.recorder != nil {
		status.FramesDropped = d.recorder.Stats().Dropped
	}
	return status, nil
}

func (d *Daemon) Connect(ctx context.Context, params control.ConnectParams) error {
	d.mu.Lock()
	alreadyConnected := d.connected
	d.mu.Unlock()
	if alreadyConnected {
		return nil
	}

	address := params.Address
	if address == "" {
		address = d.cfg.Scanner.Address
	}
	port := params.Port
	if port == 0 {
		port = d.cfg.Scanner.Port
	}

	if err := d.scanner.Connect(ctx, address, port); err != nil {
		return err
	}
	if err := d.scanner.QueryWinSize(); err != nil {
		d.scanner.Close()
		return fmt.Errorf("query window size: %w", err)
	}

	d.mu.Lock()
	d.connected = true
	d.address = fmt.Sprintf("%s:%d", address, port)
	d.mu.Unlock()
	return nil
}

func (d *Daemon) Disconnect(ctx context.Context) error {
	if err := d.StopStream(ctx); err != nil && !errors.Is(err, ErrNotStreaming) {
		return err
	}

	d.mu.Lock()
	d.connected = false
	d.mu.Unlock()

	return d.scanner.Close()
}

func (d *Daemon) StartStream(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.connected {
		return bk5000.ErrNotConnected
	}
	if d.pumpCancel != nil {
		return ErrAlreadyStreaming
	}

	width, height := d.scanner.WindowSize()
	sess := record.NewSession(d.address, width, height, d.cfg.Scanner.FPS)
	sessionID := sess.ID
	if d.store != nil {
		if err := d.store.InsertSession(sess); err != nil {
			return err
		}
	}

	if err := d.scanner.StartStreaming(); err != nil {
		return err
	}

	pumpCtx, cancel := context.WithCancel(context.Background())
	d.sessionID = sessionID
	d.pumpCancel = cancel
	d.pumpDone = make(chan struct{})

	go d.pump(pumpCtx, sessionID, d.pumpDone)

	d.log.Info("stream started", "session", sessionID)
	return nil
}

func (d *Daemon) StopStream(ctx context.Context) error {
	d.mu.Lock()
	cancel := d.pumpCancel
	done := d.pumpDone
	sessionID := d.sessionID
	d.pumpCancel = nil
	d.pumpDone = nil
	d.sessionID = ""
	d.mu.Unlock()

	if cancel == nil {
		return ErrNotStreaming
	}

	d.scanner.RequestStop()
	cancel()
	<-done

	if err := d.scanner.StopStreaming(); err != nil {
		d.log.Warn("stop streaming command failed", "error", err)
	}

	if d.store != nil && sessionID != "" {
		if err := d.store.FinishSession(sessionID); err != nil {
			d.log.Warn("failed to finish session", "session", sessionID, "error", err)
		}
	}

	d.log.Info("stream stopped", "session", sessionID)
	return nil
}

func (d *Daemon) pump(ctx context.Context, sessionID string, done chan struct{}) {
	defer close(done)

	for {
		frame, err := d.scanner.GetFrame(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, bk5000.ErrStreamStopped) {
				return
			}
			d.log.Error("frame pump failed", "error", err)
			d.teardownStream(sessionID)
			return
		}

		d.framesSeen.Add(1)
		d.lastSeq.Store(frame.Seq)
		d.history.Add(frame.Seq, frame)

		if d.recorder != nil {
			d.recorder.Enqueue(sessionID, frame)
		}
	}
}

// teardownStream clears the stream bookkeeping after the pump dies on
// its own, typically because the scanner dropped the connection.
// Without it Status would keep reporting a stream that no longer
// exists and StartStream would refuse to start a new one.
func (d *Daemon) teardownStream(sessionID string) {
	d.mu.Lock()
	if d.sessionID != sessionID {
		// A concurrent StopStream already took ownership.
		d.mu.Unlock()
		return
	}
	cancel := d.pumpCancel
	d.pumpCancel = nil
	d.pumpDone = nil
	d.sessionID = ""
	d.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	if err := d.scanner.StopStreaming(); err != nil {
		d.log.Warn("stop streaming command failed, closing scanner connection", "error", err)
		d.scanner.Close()
		d.mu.Lock()
		d.connected = false
		d.mu.Unlock()
	}

	if d.store != nil {
		if err := d.store.FinishSession(sessionID); err != nil {
			d.log.Warn("failed to finish session", "session", sessionID, "error", err)
		}
	}

	d.log.Warn("stream torn down after pump failure", "session", sessionID)
}

func (d *Daemon) Snapshot(ctx context.Context, params control.SnapshotParams) (*control.SnapshotResult, error) {
	seq := d.lastSeq.Load()
	if seq == 0 {
		return nil, ErrNoFrames
	}

	frame, ok := d.history.Get(seq)
	if !ok {
		return nil, ErrNoFrames
	}

	path := params.Path
	if path == "" {
		path = filepath.Join(d.cfg.Record.Root, fmt.Sprintf("snapshot_%08d.pgm", seq))
	}

	if err := record.WritePGM(path, frame.Pixels, frame.Width, frame.Height); err != nil {
		return nil, err
	}

	return &control.SnapshotResult{
		Path:   path,
		Seq:    frame.Seq,
		Width:  frame.Width,
		Height: frame.Height,
	}, nil
}

func (d *Daemon) Sessions(ctx context.Context) (*control.SessionListResult, error) {
	if d.store == nil {
		return &control.SessionListResult{}, nil
	}

	sessions, err := d.store.ListSessions()
	if err != nil {
		return nil, err
	}
	return &control.SessionListResult{Sessions: sessions}, nil
}

// Frames enumerates the recorded frame files on disk, alongside the
// indexed count for one session so gaps left by a crash show up.
func (d *Daemon) Frames(ctx context.Context, params control.FramesParams) (*control.FramesResult, error) {
	result := &control.FramesResult{Session: params.Session}
	if d.store == nil {
		return result, nil
	}

	files, err := record.ListFrameFiles(d.cfg.Record.Root, params.Session)
	if err != nil {
		return nil, err
	}
	result.Files = files

	if params.Session != "" {
		indexed, err := d.store.CountFrames(params.Session)
		if err != nil {
			return nil, err
		}
		result.Indexed = indexed
	}
	return result, nil
}
