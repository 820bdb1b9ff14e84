package record

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/scikit-surgery/sksurgerybk/internal/bk5000"
	"github.com/scikit-surgery/sksurgerybk/internal/logger"
)

type RecorderConfig struct {
	Root      string
	QueueSize int
}

func DefaultRecorderConfig(root string) RecorderConfig {
	return RecorderConfig{
		Root:      root,
		QueueSize: 256,
	}
}

type RecorderStats struct {
	Written   int64
	Failed    int64
	Dropped   int64
	IsRunning bool
	StartedAt time.Time
}

type frameJob struct {
	sessionID string
	frame     *bk5000.Frame
}

// Recorder writes frames behind the pump so a slow disk never stalls
// frame grabbing. When the queue is full the frame is dropped and
// counted, not blocked on.
type Recorder struct {
	store  *Store
	config RecorderConfig
	log    *slog.Logger

	queue chan frameJob

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	written atomic.Int64
	failed  atomic.Int64
	dropped atomic.Int64

	running   atomic.Bool
	startedAt time.Time
}

func NewRecorder(store *Store, config RecorderConfig) *Recorder {
	ctx, cancel := context.WithCancel(context.Background())

	return &Recorder{
		store:  store,
		config: config,
		log:    logger.ForComponent("recorder"),
		queue:  make(chan frameJob, config.QueueSize),
		ctx:    ctx,
		cancel: cancel,
	}
}

func (r *Recorder) Start() {
	r.running.Store(true)
	r.startedAt = time.Now()

	r.log.Info("recorder started", "root", r.config.Root)

	r.wg.Add(1)
	go r.worker()
}

func (r *Recorder) Stop() {
	r.log.Info("recorder stopping")

	r.cancel()
	r.wg.Wait()
	r.running.Store(false)

	r.log.Info("recorder stopped", "written", r.written.Load(), "dropped", r.dropped.Load())
}

// Enqueue hands a frame to the write-behind worker. Returns false
// when the queue is full and the frame was dropped.
func (r *Recorder) Enqueue(sessionID string, frame *bk5000.Frame) bool {
	select {
	case r.queue <- frameJob{sessionID: sessionID, frame: frame}:
		return true
	default:
		r.dropped.Add(1)
		r.log.Warn("frame dropped, recorder queue full", "session", sessionID, "seq", frame.Seq)
		return false
	}
}

func (r *Recorder) worker() {
	defer r.wg.Done()

	for {
		select {
		case <-r.ctx.Done():
			// Drain whatever is still queued before exiting.
			for {
				select {
				case job := <-r.queue:
					r.write(job)
				default:
					return
				}
			}

		case job := <-r.queue:
			r.write(job)
		}
	}
}

func (r *Recorder) write(job frameJob) {
	frame := job.frame
	path := FramePath(r.config.Root, job.sessionID, frame.Seq)

	if err := WritePGM(path, frame.Pixels, frame.Width, frame.Height); err != nil {
		r.failed.Add(1)
		r.log.Error("failed to write frame", "path", path, "error", err)
		return
	}

	meta := &FrameMeta{
		SessionID:  job.sessionID,
		Seq:        frame.Seq,
		Path:       path,
		Bytes:      len(frame.Pixels),
		CapturedAt: frame.CapturedAt,
	}
	if err := r.store.InsertFrame(meta); err != nil {
		r.failed.Add(1)
		r.log.Error("failed to index frame", "path", path, "error", err)
		return
	}

	r.written.Add(1)
}

func (r *Recorder) Stats() RecorderStats {
	return RecorderStats{
		Written:   r.written.Load(),
		Failed:    r.failed.Load(),
		Dropped:   r.dropped.Load(),
		IsRunning: r.running.Load(),
		StartedAt: r.startedAt,
	}
}
