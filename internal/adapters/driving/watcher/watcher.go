// Package watcher rebuilds the index when the watched corpus changes on disk.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Pg1910/clinical-rag/internal/logger"
)

// DefaultDebounce is the quiet period after the last change before a rebuild.
const DefaultDebounce = 500 * time.Millisecond

// RebuildFunc re-ingests the corpus and saves a new index generation.
type RebuildFunc func(ctx context.Context) error

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets the quiet period before a rebuild.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithOnRebuild registers a callback invoked after every rebuild attempt.
func WithOnRebuild(fn func(err error)) Option {
	return func(w *Watcher) {
		w.onRebuild = fn
	}
}

// Watcher watches a corpus file or directory and triggers debounced rebuilds.
// A single file is watched through its parent directory so that editors
// which replace the file on save are still observed.
type Watcher struct {
	path      string
	dir       string
	file      string
	debounce  time.Duration
	rebuild   RebuildFunc
	onRebuild func(err error)

	mu     sync.Mutex
	closed bool
	fsw    *fsnotify.Watcher
}

// New creates a watcher for path.
func New(path string, rebuild RebuildFunc, opts ...Option) *Watcher {
	w := &Watcher{
		path:     path,
		debounce: DefaultDebounce,
		rebuild:  rebuild,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run watches until ctx is cancelled. Rebuild failures are logged and do
// not stop the watch.
func (w *Watcher) Run(ctx context.Context) error {
	info, err := os.Stat(w.path)
	if err != nil {
		return fmt.Errorf("watch path error: %w", err)
	}
	if info.IsDir() {
		w.dir, w.file = w.path, ""
	} else {
		w.dir, w.file = filepath.Dir(w.path), filepath.Base(w.path)
	}

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return errors.New("watcher is closed")
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		w.mu.Unlock()
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := fsw.Add(w.dir); err != nil {
		w.mu.Unlock()
		fsw.Close()
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}
	w.fsw = fsw
	w.mu.Unlock()
	defer w.Close()

	logger.Info("watching %s for changes", w.path)

	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if !w.handleFsEvent(event) {
				continue
			}
			logger.Debug("change detected: %s %s", event.Op, event.Name)
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watch error: %v", err)
		case <-fire:
			fire = nil
			w.runRebuild(ctx)
		}
	}
}

func (w *Watcher) runRebuild(ctx context.Context) {
	start := time.Now()
	err := w.rebuild(ctx)
	if err != nil {
		logger.Warn("rebuild failed: %v", err)
	} else {
		logger.Info("rebuilt index in %s", time.Since(start).Round(time.Millisecond))
	}
	if w.onRebuild != nil {
		w.onRebuild(err)
	}
}

// handleFsEvent reports whether an event should trigger a rebuild.
// Chmod-only events, hidden files, directories and files other than the
// watched one are ignored.
func (w *Watcher) handleFsEvent(event fsnotify.Event) bool {
	if !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Write) &&
		!event.Op.Has(fsnotify.Remove) && !event.Op.Has(fsnotify.Rename) {
		return false
	}

	base := filepath.Base(event.Name)
	if strings.HasPrefix(base, ".") || strings.HasSuffix(base, "~") {
		return false
	}
	if w.file != "" {
		return base == w.file
	}

	if event.Op.Has(fsnotify.Create) || event.Op.Has(fsnotify.Write) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			return false
		}
	}
	return true
}

// Close stops the watch. It is safe to call more than once.
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.closed = true
	if w.fsw == nil {
		return nil
	}
	err := w.fsw.Close()
	w.fsw = nil
	return err
}
