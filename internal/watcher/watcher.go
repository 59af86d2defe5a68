// Package watcher reports settled file drops below the intake directories.
package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher monitors directory trees with fsnotify. A file is reported once
// its size and modification time stop changing for SettleDelay.
type Watcher struct {
	logger  *slog.Logger
	opts    Options
	watcher *fsnotify.Watcher

	mu      sync.Mutex
	roots   []string
	known   map[string]bool
	pending map[string]*pendingEvent

	events   chan Event
	errors   chan error
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// pendingEvent tracks a file that may still be changing
type pendingEvent struct {
	size    int64
	modTime time.Time
	timer   *time.Timer
}

// New creates a watcher. Nothing is watched until Watch is called.
func New(logger *slog.Logger, opts Options) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	opts.setDefaults()

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &Watcher{
		logger:  logger,
		opts:    opts,
		watcher: fw,
		known:   make(map[string]bool),
		pending: make(map[string]*pendingEvent),
		events:  make(chan Event, 100),
		errors:  make(chan error, 10),
		done:    make(chan struct{}),
	}, nil
}

// Watch adds a directory tree. Files already present are remembered so a
// later change to them is reported as modified.
func (w *Watcher) Watch(root string) error {
	root = filepath.Clean(root)
	info, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("failed to stat path: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("watch %s: not a directory", root)
	}

	w.mu.Lock()
	w.roots = append(w.roots, root)
	w.mu.Unlock()

	return w.watchDir(root, true)
}

// watchDir recursively watches a directory. With remember set, the files
// found are recorded as known.
func (w *Watcher) watchDir(path string, remember bool) error {
	return filepath.Walk(path, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			w.logger.Warn("failed to access path", "path", p, "error", err)
			return nil
		}

		if w.ignored(p) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if !info.IsDir() {
			if !remember {
				return nil
			}
			w.mu.Lock()
			w.known[p] = true
			w.mu.Unlock()
			return nil
		}

		if err := w.watcher.Add(p); err != nil {
			w.logger.Error("failed to add watch", "path", p, "error", err)
			return nil
		}

		w.logger.Debug("added watch", "path", p)
		return nil
	})
}

// ignored evaluates the ignore rules relative to the root owning path.
func (w *Watcher) ignored(path string) bool {
	w.mu.Lock()
	roots := w.roots
	w.mu.Unlock()

	for _, root := range roots {
		if path == root {
			return false
		}
		if strings.HasPrefix(path, root+string(filepath.Separator)) {
			rel, err := filepath.Rel(root, path)
			if err != nil {
				return false
			}
			return w.opts.shouldIgnore(rel)
		}
	}
	return w.opts.shouldIgnore(filepath.Base(path))
}

// Start processes events until ctx is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.wg.Add(1)
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-w.done:
			return nil
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			w.handle(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			select {
			case w.errors <- err:
			default:
				w.logger.Warn("dropping watcher error", "error", err)
			}
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	path := event.Name
	if w.ignored(path) {
		return
	}

	if event.Op&fsnotify.Create != 0 {
		info, err := os.Stat(path)
		if err == nil && info.IsDir() {
			// Files copied in together with the directory never produce
			// their own create events.
			_ = w.watchDir(path, false)
			w.settleTree(path)
			return
		}
	}

	if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
		w.mu.Lock()
		if p, ok := w.pending[path]; ok {
			p.timer.Stop()
			delete(w.pending, path)
		}
		delete(w.known, path)
		w.mu.Unlock()
		w.emit(Event{Type: EventRemoved, Path: path})
		return
	}

	if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
		w.startSettling(path)
	}
}

func (w *Watcher) settleTree(dir string) {
	_ = filepath.Walk(dir, func(p string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() || w.ignored(p) {
			return nil
		}
		w.startSettling(p)
		return nil
	})
}

// startSettling begins or restarts the settle timer for path.
func (w *Watcher) startSettling(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if p, ok := w.pending[path]; ok {
		p.timer.Stop()
	}

	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		delete(w.pending, path)
		return
	}

	p := &pendingEvent{size: info.Size(), modTime: info.ModTime()}
	p.timer = time.AfterFunc(w.opts.SettleDelay, func() { w.checkSettled(path) })
	w.pending[path] = p
}

// checkSettled emits the event once the file stopped changing.
func (w *Watcher) checkSettled(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	select {
	case <-w.done:
		return
	default:
	}

	p, ok := w.pending[path]
	if !ok {
		return
	}

	info, err := os.Stat(path)
	if err != nil {
		delete(w.pending, path)
		return
	}

	if info.Size() != p.size || !info.ModTime().Equal(p.modTime) {
		p.size = info.Size()
		p.modTime = info.ModTime()
		p.timer = time.AfterFunc(w.opts.SettleDelay, func() { w.checkSettled(path) })
		return
	}

	delete(w.pending, path)
	typ := EventAdded
	if w.known[path] {
		typ = EventModified
	}
	w.known[path] = true

	w.emit(Event{Type: typ, Path: path, Size: info.Size(), ModTime: info.ModTime()})
}

func (w *Watcher) emit(event Event) {
	select {
	case w.events <- event:
	case <-w.done:
	}
}

// Events returns the channel of settled events. It is closed by Stop.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Errors returns the channel of backend errors. It is closed by Stop.
func (w *Watcher) Errors() <-chan error {
	return w.errors
}

// Stop stops the watcher and releases resources. Safe to call twice.
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.done)

		w.mu.Lock()
		for _, p := range w.pending {
			p.timer.Stop()
		}
		clear(w.pending)
		w.mu.Unlock()

		err = w.watcher.Close()
		w.wg.Wait()

		close(w.events)
		close(w.errors)
	})
	return err
}
