package bk5000

import (
	"bytes"
	"fmt"
	"time"
)

// Frame is one decoded grayscale ultrasound image.
type Frame struct {
	Width      int
	Height     int
	Pixels     []byte
	Seq        uint64
	CapturedAt time.Time
}

var grabFrameMarker = []byte("DATA:GRAB_FRAME")

// findUnescaped returns the index of the first occurrence of want at
// or after start that is not preceded by the escape byte, or -1.
func findUnescaped(buf []byte, start int, want byte) int {
	for i := start; i < len(buf); i++ {
		if buf[i] != want {
			continue
		}
		if i == start || buf[i-1] != escByte {
			return i
		}
	}
	return -1
}

// unescape restores escaped control bytes in an image payload: each
// escape byte followed by a flipped control byte is collapsed into the
// original control byte.
func unescape(data []byte) []byte {
	out := make([]byte, 0, len(data))
	for i := 0; i < len(data); i++ {
		if data[i] == escByte && i+1 < len(data) && isFlippedControl(data[i+1]) {
			out = append(out, data[i+1]^0xFF)
			i++
			continue
		}
		out = append(out, data[i])
	}
	return out
}

// scanFrame searches buf for a complete GRAB_FRAME message.
//
// It returns the decoded pixel payload (nil unless a full image was
// found), the number of bytes to drop from the front of the buffer,
// and an error for payloads shorter than a full image.
//
// Outcomes mirror the scanner's stream behaviour:
//   - no start byte: the buffer holds junk, drop all of it
//   - start but no end: the message is still incoming, drop nothing
//   - a complete non-image message: drop it
//   - a complete image message: decode it and drop it
func scanFrame(buf []byte, pixels int) ([]byte, int, error) {
	start := findUnescaped(buf, 0, msgStart)
	if start < 0 {
		return nil, len(buf), nil
	}

	end := findUnescaped(buf, start, msgEnd)
	if end <= start {
		return nil, 0, nil
	}

	if !bytes.Contains(buf[start:end], grabFrameMarker) {
		return nil, end + 1, nil
	}

	// Layout after the marker: '#', one ASCII digit giving the
	// length of the data-size field, that field, a 4-byte timestamp,
	// then the escaped pixel data. One byte sits between the image
	// and the end terminator.
	hash := bytes.IndexByte(buf[start:end], '#')
	if hash < 0 {
		return nil, end + 1, fmt.Errorf("image message without size marker")
	}

	sizeDigit := start + hash + 1
	if sizeDigit >= end || buf[sizeDigit] < '0' || buf[sizeDigit] > '9' {
		return nil, end + 1, fmt.Errorf("truncated image header")
	}

	imgStart := sizeDigit + 1 + 4 + int(buf[sizeDigit]-'0')
	imgEnd := end - 2
	if imgStart > imgEnd {
		return nil, end + 1, fmt.Errorf("image header overruns message")
	}

	img := unescape(buf[imgStart : imgEnd+1])
	if len(img) < pixels {
		return nil, end + 1, fmt.Errorf("short image payload: %d of %d pixels", len(img), pixels)
	}

	return img[:pixels], end + 1, nil
}
