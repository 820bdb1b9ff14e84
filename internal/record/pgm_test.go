package record

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestEncodePGM(t *testing.T) {
	pixels := []byte{0, 64, 128, 255, 1, 2}

	data, err := EncodePGM(pixels, 3, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !bytes.HasPrefix(data, []byte("P5\n3 2\n255\n")) {
		t.Errorf("unexpected header: %q", data[:11])
	}
	if !bytes.HasSuffix(data, pixels) {
		t.Error("pixel payload missing from encoded image")
	}
}

func TestEncodePGMRejectsBadSizes(t *testing.T) {
	if _, err := EncodePGM([]byte{1, 2, 3}, 2, 2); err == nil {
		t.Error("expected error for pixel count mismatch")
	}
	if _, err := EncodePGM(nil, 0, 2); err == nil {
		t.Error("expected error for zero width")
	}
}

func TestWritePGMAndListFrameFiles(t *testing.T) {
	root := t.TempDir()

	for seq := uint64(1); seq <= 2; seq++ {
		path := FramePath(root, "sess-1", seq)
		if err := WritePGM(path, []byte{1, 2, 3, 4}, 2, 2); err != nil {
			t.Fatalf("write frame %d failed: %v", seq, err)
		}
	}
	if err := WritePGM(FramePath(root, "sess-2", 1), []byte{9, 9, 9, 9}, 2, 2); err != nil {
		t.Fatalf("write frame failed: %v", err)
	}

	// Decoy that must not be matched.
	if err := os.WriteFile(filepath.Join(root, "notes.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	all, err := ListFrameFiles(root, "")
	if err != nil {
		t.Fatalf("list all failed: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("expected 3 frame files, got %d: %v", len(all), all)
	}

	one, err := ListFrameFiles(root, "sess-1")
	if err != nil {
		t.Fatalf("list session failed: %v", err)
	}
	if len(one) != 2 {
		t.Errorf("expected 2 frame files for sess-1, got %d: %v", len(one), one)
	}
}
