// Package bk5000 implements the TCP interface to the BK5000
// ultrasound scanner: command framing, streaming control and image
// frame extraction per BK doc PS12640-44.
package bk5000

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/scikit-surgery/sksurgerybk/internal/logger"
)

var (
	ErrNotConnected   = errors.New("scanner not connected")
	ErrCircuitOpen    = errors.New("scanner connect suppressed by circuit breaker")
	ErrNoWindowSize   = errors.New("window size not known, query it before streaming")
	ErrStreamStopped  = errors.New("streaming stop requested")
	ErrShortSend      = errors.New("short write sending command")
	ErrOversizedReply = errors.New("response larger than expected")
)

// Client speaks the BK5000 OEM protocol over a single TCP connection.
// It is not safe for concurrent use by multiple goroutines; the daemon
// serialises access to it.
type Client struct {
	cfg     Config
	breaker *CircuitBreaker
	log     *slog.Logger

	mu   sync.Mutex
	conn net.Conn
	buf  []byte

	width  int
	height int
	pixels int

	streaming     atomic.Bool
	stopRequested atomic.Bool
	seq           atomic.Uint64

	// last response payload, terminators stripped
	data []byte
}

func New(cfg Config) *Client {
	return &Client{
		cfg:     cfg,
		breaker: NewCircuitBreaker(DefaultCircuitConfig()),
		log:     logger.ForComponent("bk5000"),
	}
}

// Connect dials the scanner. Attempts are gated by the circuit
// breaker so repeated failures back off.
func (c *Client) Connect(ctx context.Context, address string, port int) error {
	if !c.breaker.Allow() {
		return ErrCircuitOpen
	}

	dialer := net.Dialer{Timeout: c.cfg.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(address, strconv.Itoa(port)))
	if err != nil {
		c.breaker.RecordFailure()
		return fmt.Errorf("connect to %s:%d: %w", address, port, err)
	}
	c.breaker.RecordSuccess()

	c.mu.Lock()
	c.conn = conn
	c.buf = c.buf[:0]
	c.mu.Unlock()

	c.log.Info("connected to scanner", "address", address, "port", port)
	return nil
}

// Close tears the connection down. Safe to call when already closed.
func (c *Client) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	c.streaming.Store(false)

	if conn == nil {
		return nil
	}
	c.log.Info("closing scanner connection")
	return conn.Close()
}

func (c *Client) connection() (net.Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil, ErrNotConnected
	}
	return c.conn, nil
}

// SendCommand frames a command and writes it, verifying the whole
// message went out.
func (c *Client) SendCommand(msg string) error {
	conn, err := c.connection()
	if err != nil {
		return err
	}

	framed := frameCommand(msg)
	c.log.Debug("sending command", "message", msg, "size", len(framed))

	if err := conn.SetWriteDeadline(time.Now().Add(c.cfg.Timeout)); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}

	n, err := conn.Write(framed)
	if err != nil {
		return fmt.Errorf("send command %q: %w", msg, err)
	}
	if n != len(framed) {
		return fmt.Errorf("send command %q: %w: %d of %d bytes", msg, ErrShortSend, n, len(framed))
	}
	return nil
}

// ReceiveResponse reads one framed response of at most expected bytes
// of payload and strips the terminators. The payload is retained for
// Data.
func (c *Client) ReceiveResponse(expected int) ([]byte, error) {
	conn, err := c.connection()
	if err != nil {
		return nil, err
	}

	if err := conn.SetReadDeadline(time.Now().Add(c.cfg.Timeout)); err != nil {
		return nil, fmt.Errorf("set read deadline: %w", err)
	}

	raw := make([]byte, expected+2)
	n, err := conn.Read(raw)
	if err != nil {
		return nil, fmt.Errorf("receive response: %w", err)
	}
	if n < 2 {
		return nil, fmt.Errorf("receive response: %d bytes is too short to be framed", n)
	}

	payload := raw[1 : n-1]
	if len(payload) > expected {
		return nil, fmt.Errorf("receive response: %w: %d > %d bytes", ErrOversizedReply, len(payload), expected)
	}

	c.data = payload
	return payload, nil
}

// Data returns the payload of the most recent response.
func (c *Client) Data() []byte {
	return c.data
}

// QueryWinSize asks the scanner for the ultrasound window dimensions
// and stores them for frame extraction.
func (c *Client) QueryWinSize() error {
	if err := c.SendCommand("QUERY:US_WIN_SIZE;"); err != nil {
		return err
	}

	payload, err := c.ReceiveResponse(25)
	if err != nil {
		return err
	}

	text, err := decodeText(payload)
	if err != nil {
		return err
	}

	width, height, err := parseWinSize(text)
	if err != nil {
		return err
	}

	c.width = width
	c.height = height
	c.pixels = width * height
	c.log.Info("scanner window size", "width", width, "height", height)
	return nil
}

// WindowSize returns the queried window dimensions, zero before
// QueryWinSize succeeds.
func (c *Client) WindowSize() (int, int) {
	return c.width, c.height
}

// StartStreaming asks the scanner to begin grabbing frames at the
// configured rate.
func (c *Client) StartStreaming() error {
	msg := fmt.Sprintf("QUERY:GRAB_FRAME \"ON\",%d;", c.cfg.FramesPerSecond)
	if err := c.SendCommand(msg); err != nil {
		return err
	}
	if _, err := c.ReceiveResponse(c.cfg.PacketSize); err != nil {
		return err
	}

	c.streaming.Store(true)
	c.stopRequested.Store(false)
	c.log.Info("streaming started", "fps", c.cfg.FramesPerSecond)
	return nil
}

// StopStreaming asks the scanner to stop grabbing frames.
func (c *Client) StopStreaming() error {
	msg := fmt.Sprintf("QUERY:GRAB_FRAME \"OFF\",%d;", c.cfg.FramesPerSecond)
	if err := c.SendCommand(msg); err != nil {
		return err
	}
	if _, err := c.ReceiveResponse(c.cfg.PacketSize); err != nil {
		return err
	}

	c.streaming.Store(false)
	c.stopRequested.Store(false)
	c.log.Info("streaming stopped")
	return nil
}

func (c *Client) IsStreaming() bool {
	return c.streaming.Load()
}

// RequestStop flags the frame pump to stop after the frame in flight.
func (c *Client) RequestStop() {
	c.stopRequested.Store(true)
}

func (c *Client) StopRequested() bool {
	return c.stopRequested.Load()
}

// GetFrame blocks until the next complete frame arrives on the
// stream. The context bounds the overall wait; individual reads use
// the configured timeout.
func (c *Client) GetFrame(ctx context.Context) (*Frame, error) {
	if c.pixels == 0 {
		return nil, ErrNoWindowSize
	}

	conn, err := c.connection()
	if err != nil {
		return nil, err
	}

	// Smallest possible complete image message: pixels plus header
	// and terminators.
	minimum := c.pixels + 22

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if c.stopRequested.Load() {
			return nil, ErrStreamStopped
		}

		for len(c.buf) < minimum {
			if err := c.fill(conn, minimum-len(c.buf)); err != nil {
				return nil, err
			}
		}

		img, drop, err := scanFrame(c.buf, c.pixels)
		if drop > 0 {
			c.buf = c.buf[drop:]
		}
		if err != nil {
			c.log.Warn("discarded malformed frame", "error", err)
			continue
		}
		if img != nil {
			frame := &Frame{
				Width:      c.width,
				Height:     c.height,
				Pixels:     img,
				Seq:        c.seq.Add(1),
				CapturedAt: time.Now().UTC(),
			}
			return frame, nil
		}

		if drop == 0 {
			// Message still incoming, keep reading.
			if err := c.fill(conn, c.cfg.PacketSize); err != nil {
				return nil, err
			}
		}
	}
}

func (c *Client) fill(conn net.Conn, max int) error {
	if err := conn.SetReadDeadline(time.Now().Add(c.cfg.Timeout)); err != nil {
		return fmt.Errorf("set read deadline: %w", err)
	}

	chunk := make([]byte, max)
	n, err := conn.Read(chunk)
	if err != nil {
		return fmt.Errorf("read stream: %w", err)
	}
	c.buf = append(c.buf, chunk[:n]...)
	return nil
}
