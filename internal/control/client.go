package control

import (
	"context"
	"fmt"
	"io"
	"net"

	"github.com/sourcegraph/jsonrpc2"
)

// Client is the CLI side of the control socket.
type Client struct {
	rpc *jsonrpc2.Conn
}

// Dial connects to the daemon's unix control socket.
func Dial(ctx context.Context, socketPath string) (*Client, error) {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("dial control socket: %w", err)
	}
	return NewClient(ctx, conn), nil
}

// NewClient wraps an established connection. Useful for tests that
// run over a pipe instead of a socket.
func NewClient(ctx context.Context, conn io.ReadWriteCloser) *Client {
	stream := jsonrpc2.NewBufferedStream(conn, jsonrpc2.PlainObjectCodec{})
	return &Client{
		rpc: jsonrpc2.NewConn(ctx, stream, noopHandler{}),
	}
}

type noopHandler struct{}

func (noopHandler) Handle(context.Context, *jsonrpc2.Conn, *jsonrpc2.Request) {}

func (c *Client) Close() error {
	return c.rpc.Close()
}

func (c *Client) Status(ctx context.Context) (*StatusResult, error) {
	var result StatusResult
	if err := c.rpc.Call(ctx, MethodStatus, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) Connect(ctx context.Context, params ConnectParams) error {
	var result okResult
	return c.rpc.Call(ctx, MethodConnect, params, &result)
}

func (c *Client) Disconnect(ctx context.Context) error {
	var result okResult
	return c.rpc.Call(ctx, MethodDisconnect, nil, &result)
}

func (c *Client) StartStream(ctx context.Context) error {
	var result okResult
	return c.rpc.Call(ctx, MethodStart, nil, &result)
}

func (c *Client) StopStream(ctx context.Context) error {
	var result okResult
	return c.rpc.Call(ctx, MethodStop, nil, &result)
}

func (c *Client) Snapshot(ctx context.Context, params SnapshotParams) (*SnapshotResult, error) {
	var result SnapshotResult
	if err := c.rpc.Call(ctx, MethodSnapshot, params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) Sessions(ctx context.Context) (*SessionListResult, error) {
	var result SessionListResult
	if err := c.rpc.Call(ctx, MethodSessions, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) Frames(ctx context.Context, params FramesParams) (*FramesResult, error) {
	var result FramesResult
	if err := c.rpc.Call(ctx, MethodFrames, params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
