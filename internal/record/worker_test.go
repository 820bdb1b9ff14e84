package record

import (
	"bytes"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/scikit-surgery/sksurgerybk/internal/bk5000"
	"github.com/scikit-surgery/sksurgerybk/internal/logger"
)

func testFrame(seq uint64) *bk5000.Frame {
	return &bk5000.Frame{
		Width:      2,
		Height:     2,
		Pixels:     []byte{10, 20, 30, 40},
		Seq:        seq,
		CapturedAt: time.Now().UTC(),
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestRecorderWritesFrames(t *testing.T) {
	store := newTestStore(t)
	root := t.TempDir()

	if err := store.InsertSession(testSession("a")); err != nil {
		t.Fatalf("insert session failed: %v", err)
	}

	rec := NewRecorder(store, DefaultRecorderConfig(root))
	rec.Start()
	defer rec.Stop()

	for seq := uint64(1); seq <= 5; seq++ {
		if !rec.Enqueue("a", testFrame(seq)) {
			t.Fatalf("enqueue of frame %d refused", seq)
		}
	}

	waitFor(t, "frames to be written", func() bool {
		return rec.Stats().Written == 5
	})

	count, err := store.CountFrames("a")
	if err != nil {
		t.Fatalf("count frames failed: %v", err)
	}
	if count != 5 {
		t.Errorf("expected 5 indexed frames, got %d", count)
	}

	if _, err := os.Stat(FramePath(root, "a", 3)); err != nil {
		t.Errorf("expected frame file on disk: %v", err)
	}
}

func TestRecorderDropsWhenQueueFull(t *testing.T) {
	store := newTestStore(t)

	cfg := DefaultRecorderConfig(t.TempDir())
	cfg.QueueSize = 1

	// Not started, so the queue never drains.
	rec := NewRecorder(store, cfg)

	if !rec.Enqueue("a", testFrame(1)) {
		t.Fatal("first enqueue should fit")
	}
	if rec.Enqueue("a", testFrame(2)) {
		t.Error("second enqueue should be dropped")
	}
	if rec.Stats().Dropped != 1 {
		t.Errorf("expected 1 dropped frame, got %d", rec.Stats().Dropped)
	}
}

func TestRecorderLogsWithConfiguredHandler(t *testing.T) {
	var buf bytes.Buffer
	logCfg := logger.DefaultConfig()
	logCfg.Level = slog.LevelDebug
	logCfg.Output = &buf
	logger.Init(logCfg)
	t.Cleanup(func() { logger.Init(logger.DefaultConfig()) })

	rec := NewRecorder(newTestStore(t), DefaultRecorderConfig(t.TempDir()))
	rec.Start()
	rec.Stop()

	out := buf.String()
	if !strings.Contains(out, "recorder started") || !strings.Contains(out, "component=recorder") {
		t.Errorf("recorder logs did not reach the configured handler: %q", out)
	}
}

func TestRecorderDrainsOnStop(t *testing.T) {
	store := newTestStore(t)
	root := t.TempDir()

	if err := store.InsertSession(testSession("a")); err != nil {
		t.Fatalf("insert session failed: %v", err)
	}

	rec := NewRecorder(store, DefaultRecorderConfig(root))

	for seq := uint64(1); seq <= 3; seq++ {
		rec.Enqueue("a", testFrame(seq))
	}

	rec.Start()
	rec.Stop()

	if got := rec.Stats().Written; got != 3 {
		t.Errorf("expected queued frames flushed on stop, written = %d", got)
	}
}
