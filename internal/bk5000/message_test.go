package bk5000

import (
	"bytes"
	"testing"
)

func TestFrameCommand(t *testing.T) {
	framed := frameCommand("QUERY:US_WIN_SIZE;")

	if framed[0] != 0x01 {
		t.Errorf("expected start terminator 0x01, got 0x%02x", framed[0])
	}
	if framed[len(framed)-1] != 0x04 {
		t.Errorf("expected end terminator 0x04, got 0x%02x", framed[len(framed)-1])
	}
	if !bytes.Equal(framed[1:len(framed)-1], []byte("QUERY:US_WIN_SIZE;")) {
		t.Errorf("payload corrupted: %q", framed)
	}
	if len(framed) != len("QUERY:US_WIN_SIZE;")+2 {
		t.Errorf("unexpected framed length %d", len(framed))
	}
}

func TestParseWinSize(t *testing.T) {
	width, height, err := parseWinSize("DATA:US_WIN_SIZE 640,480;")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if width != 640 || height != 480 {
		t.Errorf("expected 640x480, got %dx%d", width, height)
	}
}

func TestParseWinSizeMalformed(t *testing.T) {
	cases := []string{
		"",
		"DATA:US_WIN_SIZE;",
		"DATA:US_WIN_SIZE 640;",
		"DATA:US_WIN_SIZE x,y;",
		"DATA:US_WIN_SIZE 0,480;",
		"DATA:US_WIN_SIZE 640,-1;",
	}

	for _, msg := range cases {
		if _, _, err := parseWinSize(msg); err == nil {
			t.Errorf("expected error for %q", msg)
		}
	}
}

func TestDecodeText(t *testing.T) {
	// 0xB5 is micro sign in ISO 8859-1.
	text, err := decodeText([]byte{'D', 'A', 'T', 'A', ' ', 0xB5})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "DATA µ" {
		t.Errorf("unexpected decoded text %q", text)
	}
}

func TestIsFlippedControl(t *testing.T) {
	for _, b := range []byte{0xFE, 0xFB, 0xE4} {
		if !isFlippedControl(b) {
			t.Errorf("0x%02x should be a flipped control byte", b)
		}
	}
	for _, b := range []byte{0x00, 0x01, 0x04, 0x1B, 0xFF} {
		if isFlippedControl(b) {
			t.Errorf("0x%02x should not be a flipped control byte", b)
		}
	}
}
