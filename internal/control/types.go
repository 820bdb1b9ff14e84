// Package control defines the JSON-RPC control protocol between the
// CLI and the daemon that owns the scanner connection.
package control

import "github.com/scikit-surgery/sksurgerybk/internal/record"

const (
	MethodStatus     = "daemon.status"
	MethodConnect    = "scanner.connect"
	MethodDisconnect = "scanner.disconnect"
	MethodStart      = "stream.start"
	MethodStop       = "stream.stop"
	MethodSnapshot   = "frame.snapshot"
	MethodSessions   = "session.list"
	MethodFrames     = "session.frames"
)

type ConnectParams struct {
	Address string `json:"address,omitempty"`
	Port    int    `json:"port,omitempty"`
}

type StatusResult struct {
	Connected     bool   `json:"connected"`
	Streaming     bool   `json:"streaming"`
	Width         int    `json:"width"`
	Height        int    `json:"height"`
	FramesSeen    uint64 `json:"frames_seen"`
	FramesDropped int64  `json:"frames_dropped"`
	Session       string `json:"session,omitempty"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

type SnapshotParams struct {
	Path string `json:"path"`
}

type SnapshotResult struct {
	Path   string `json:"path"`
	Seq    uint64 `json:"seq"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

type SessionListResult struct {
	Sessions []record.Session `json:"sessions"`
}

// FramesParams selects the frame files of one session, or of all
// sessions when empty.
type FramesParams struct {
	Session string `json:"session,omitempty"`
}

// FramesResult pairs the on-disk frame files with the indexed count,
// so recordings interrupted mid-write are visible as a mismatch.
type FramesResult struct {
	Session string   `json:"session,omitempty"`
	Indexed int64    `json:"indexed"`
	Files   []string `json:"files"`
}
