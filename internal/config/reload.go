package config

import (
	"log/slog"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/scikit-surgery/sksurgerybk/internal/logger"
)

// ReloadFunc receives the freshly loaded config after the file on
// disk changed.
type ReloadFunc func(*Config)

// Watcher reloads the config file when it changes. Editors tend to
// fire several events per save, so changes are debounced.
type Watcher struct {
	path      string
	fw        *fsnotify.Watcher
	apply     ReloadFunc
	log       *slog.Logger
	debounce  time.Duration
	timer     *time.Timer
	timerMu   sync.Mutex
	closeOnce sync.Once
	done      chan struct{}
}

// WatchFile starts watching path and calls apply with a re-loaded
// config after each change settles.
func WatchFile(path string, apply ReloadFunc) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		path:     path,
		fw:       fw,
		apply:    apply,
		log:      logger.ForComponent("config"),
		debounce: 300 * time.Millisecond,
		done:     make(chan struct{}),
	}

	if err := fw.Add(path); err != nil {
		fw.Close()
		return nil, err
	}

	go w.run()

	w.log.Info("watching config file", "path", path)
	return w, nil
}

func (w *Watcher) run() {
	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if event.Name != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.scheduleReload()

		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			w.log.Warn("config watch error", "error", err)
		}
	}
}

func (w *Watcher) scheduleReload() {
	w.timerMu.Lock()
	defer w.timerMu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.reload)
}

func (w *Watcher) reload() {
	cfg := Load()
	if err := cfg.MergeFile(w.path); err != nil {
		w.log.Warn("config reload failed, keeping previous config", "error", err)
		return
	}
	cfg.Path = w.path

	w.log.Info("config reloaded", "path", w.path)
	w.apply(cfg)
}

func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)

		w.timerMu.Lock()
		if w.timer != nil {
			w.timer.Stop()
		}
		w.timerMu.Unlock()

		err = w.fw.Close()
	})
	return err
}
