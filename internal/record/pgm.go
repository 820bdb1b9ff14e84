package record

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
)

// EncodePGM renders grayscale pixels as a binary PGM (P5) image,
// which every scientific imaging tool can open.
func EncodePGM(pixels []byte, width, height int) ([]byte, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid image size %dx%d", width, height)
	}
	if len(pixels) != width*height {
		return nil, fmt.Errorf("pixel count %d does not match %dx%d", len(pixels), width, height)
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "P5\n%d %d\n255\n", width, height)
	buf.Write(pixels)
	return buf.Bytes(), nil
}

// WritePGM writes pixels to path as a PGM file, creating parent
// directories as needed.
func WritePGM(path string, pixels []byte, width, height int) error {
	data, err := EncodePGM(pixels, width, height)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create frame dir: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// FramePath returns the on-disk location of one recorded frame.
func FramePath(root, sessionID string, seq uint64) string {
	return filepath.Join(root, sessionID, fmt.Sprintf("frame_%08d.pgm", seq))
}

// ListFrameFiles enumerates recorded frame files under root, for all
// sessions or a single one.
func ListFrameFiles(root, sessionID string) ([]string, error) {
	pattern := filepath.Join(root, "**", "frame_*.pgm")
	if sessionID != "" {
		pattern = filepath.Join(root, sessionID, "frame_*.pgm")
	}

	matches, err := doublestar.FilepathGlob(pattern)
	if err != nil {
		return nil, fmt.Errorf("list frame files: %w", err)
	}

	sort.Strings(matches)
	return matches, nil
}
