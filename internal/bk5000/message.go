package bk5000

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

// Wire framing per BK doc PS12640-44: every message travels as
// 0x01 <text> 0x04. Inside image payloads any control byte is escaped
// as 0x1B followed by its ones' complement.
const (
	msgStart byte = 0x01
	msgEnd   byte = 0x04
	escByte  byte = 0x1B
)

var controlBytes = []byte{msgStart, msgEnd, escByte}

func isFlippedControl(b byte) bool {
	for _, c := range controlBytes {
		if b == c^0xFF {
			return true
		}
	}
	return false
}

// frameCommand wraps a command in the start/end terminators.
func frameCommand(msg string) []byte {
	out := make([]byte, 0, len(msg)+2)
	out = append(out, msgStart)
	out = append(out, msg...)
	out = append(out, msgEnd)
	return out
}

// decodeText converts response bytes to a string. The OEM interface is
// 8-bit ISO 8859-1, not UTF-8.
func decodeText(data []byte) (string, error) {
	out, _, err := transform.Bytes(charmap.ISO8859_1.NewDecoder(), data)
	if err != nil {
		return "", fmt.Errorf("decode response text: %w", err)
	}
	return string(out), nil
}

// parseWinSize extracts width and height from a message of the form
// "DATA:US_WIN_SIZE 640,480;".
func parseWinSize(msg string) (int, int, error) {
	fields := strings.Fields(msg)
	if len(fields) == 0 {
		return 0, 0, fmt.Errorf("empty window size message")
	}

	dims := strings.Split(strings.TrimSuffix(fields[len(fields)-1], ";"), ",")
	if len(dims) != 2 {
		return 0, 0, fmt.Errorf("malformed window size message: %q", msg)
	}

	width, err := strconv.Atoi(dims[0])
	if err != nil {
		return 0, 0, fmt.Errorf("malformed window width in %q: %w", msg, err)
	}

	height, err := strconv.Atoi(dims[1])
	if err != nil {
		return 0, 0, fmt.Errorf("malformed window height in %q: %w", msg, err)
	}

	if width <= 0 || height <= 0 {
		return 0, 0, fmt.Errorf("non-positive window size %dx%d", width, height)
	}

	return width, height, nil
}
