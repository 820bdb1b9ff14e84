package control

import (
	"context"
	"encoding/json"
	"fmt"
	"net"

	"github.com/sourcegraph/jsonrpc2"

	"github.com/scikit-surgery/sksurgerybk/internal/logger"
)

// Backend is what the daemon exposes over the control socket.
type Backend interface {
	Status(ctx context.Context) (*StatusResult, error)
	Connect(ctx context.Context, params ConnectParams) error
	Disconnect(ctx context.Context) error
	StartStream(ctx context.Context) error
	StopStream(ctx context.Context) error
	Snapshot(ctx context.Context, params SnapshotParams) (*SnapshotResult, error)
	Sessions(ctx context.Context) (*SessionListResult, error)
	Frames(ctx context.Context, params FramesParams) (*FramesResult, error)
}

type Server struct {
	backend Backend
}

func NewServer(backend Backend) *Server {
	return &Server{backend: backend}
}

// Serve speaks JSON-RPC on one accepted connection until the peer
// hangs up or the context is cancelled.
func (s *Server) Serve(ctx context.Context, conn net.Conn) {
	log := logger.ForComponent("control")

	stream := jsonrpc2.NewBufferedStream(conn, jsonrpc2.PlainObjectCodec{})
	rpc := jsonrpc2.NewConn(ctx, stream, jsonrpc2.HandlerWithError(s.handle))

	select {
	case <-ctx.Done():
		rpc.Close()
	case <-rpc.DisconnectNotify():
	}

	log.Debug("control connection closed")
}

func (s *Server) handle(ctx context.Context, _ *jsonrpc2.Conn, req *jsonrpc2.Request) (interface{}, error) {
	switch req.Method {
	case MethodStatus:
		return s.backend.Status(ctx)

	case MethodConnect:
		var params ConnectParams
		if err := unmarshalParams(req, &params); err != nil {
			return nil, err
		}
		return okResult{}, s.backend.Connect(ctx, params)

	case MethodDisconnect:
		return okResult{}, s.backend.Disconnect(ctx)

	case MethodStart:
		return okResult{}, s.backend.StartStream(ctx)

	case MethodStop:
		return okResult{}, s.backend.StopStream(ctx)

	case MethodSnapshot:
		var params SnapshotParams
		if err := unmarshalParams(req, &params); err != nil {
			return nil, err
		}
		return s.backend.Snapshot(ctx, params)

	case MethodSessions:
		return s.backend.Sessions(ctx)

	case MethodFrames:
		var params FramesParams
		if err := unmarshalParams(req, &params); err != nil {
			return nil, err
		}
		return s.backend.Frames(ctx, params)

	default:
		return nil, &jsonrpc2.Error{
			Code:    jsonrpc2.CodeMethodNotFound,
			Message: fmt.Sprintf("unknown method %q", req.Method),
		}
	}
}

type okResult struct{}

func unmarshalParams(req *jsonrpc2.Request, out interface{}) error {
	if req.Params == nil {
		return nil
	}
	if err := json.Unmarshal(*req.Params, out); err != nil {
		return &jsonrpc2.Error{
			Code:    jsonrpc2.CodeInvalidParams,
			Message: fmt.Sprintf("invalid params for %s: %v", req.Method, err),
		}
	}
	return nil
}
