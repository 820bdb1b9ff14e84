package bk5000

import "time"

type Config struct {
	// Timeout applies to connect and to each socket read/write.
	Timeout time.Duration

	// FramesPerSecond is sent with GRAB_FRAME on/off queries.
	FramesPerSecond int

	// PacketSize is the read chunk used while hunting for a frame
	// terminator.
	PacketSize int
}

func DefaultConfig() Config {
	return Config{
		Timeout:         5 * time.Second,
		FramesPerSecond: 25,
		PacketSize:      1024,
	}
}
