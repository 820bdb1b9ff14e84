package record

import (
	"time"

	"github.com/google/uuid"
)

// Session groups the frames captured between one stream start and
// stop.
type Session struct {
	ID         string     `json:"id"`
	Address    string     `json:"address"`
	Width      int        `json:"width"`
	Height     int        `json:"height"`
	FPS        int        `json:"fps"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	FrameCount int64      `json:"frame_count"`
}

// NewSession builds a session row with a fresh unique ID, started
// now. Every capture path mints its ID here so session IDs look the
// same no matter how the stream was driven.
func NewSession(address string, width, height, fps int) *Session {
	return &Session{
		ID:        uuid.NewString(),
		Address:   address,
		Width:     width,
		Height:    height,
		FPS:       fps,
		StartedAt: time.Now().UTC(),
	}
}

// FrameMeta is the stored metadata for one recorded frame; pixels
// live on disk as PGM files.
type FrameMeta struct {
	SessionID  string    `json:"session_id"`
	Seq        uint64    `json:"seq"`
	Path       string    `json:"path"`
	Bytes      int       `json:"bytes"`
	CapturedAt time.Time `json:"captured_at"`
}
