// Package watcher monitors the import directory for dropped EPUB files.
// Files are reported only after they settle: a copy in progress keeps
// resetting the timer until its size and mtime stop changing.
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

// DefaultSettleDelay is how long a file must stay unchanged before it is
// considered fully written.
const DefaultSettleDelay = 2 * time.Second

// FileFunc is called with the path of each settled EPUB file.
type FileFunc func(ctx context.Context, path string) error

// pendingFile tracks a file that may still be changing.
type pendingFile struct {
	size    int64
	modTime time.Time
	timer   *time.Timer
}

// Watcher watches a single import directory.
type Watcher struct {
	dir         string
	settleDelay time.Duration
	onFile      FileFunc
	logger      *slog.Logger

	fsw     *fsnotify.Watcher
	pending map[string]*pendingFile
	mu      sync.Mutex

	ctx  context.Context
	done chan struct{}
	wg   sync.WaitGroup

	stopOnce sync.Once
}

// New creates a watcher for the given import directory. The directory is
// created if it does not exist.
func New(dir string, onFile FileFunc, logger *slog.Logger) (*Watcher, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create import dir: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watch import dir: %w", err)
	}

	return &Watcher{
		dir:         dir,
		settleDelay: DefaultSettleDelay,
		onFile:      onFile,
		logger:      logger,
		fsw:         fsw,
		pending:     make(map[string]*pendingFile),
		done:        make(chan struct{}),
	}, nil
}

// Start begins processing events and picks up files already sitting in
// the import directory. Blocks until the context is cancelled.
func (w *Watcher) Start(ctx context.Context) error {
	w.ctx = ctx

	w.scanExisting()

	w.wg.Add(1)
	go w.processEvents(ctx)

	<-ctx.Done()
	return nil
}

// Stop closes the watcher and cancels pending timers.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)

		w.mu.Lock()
		for _, pending := range w.pending {
			pending.timer.Stop()
		}
		clear(w.pending)
		w.mu.Unlock()

		w.fsw.Close()
		w.wg.Wait()
	})
}

// scanExisting queues every EPUB already present in the import directory.
// Files dropped while the server was down still get imported.
func (w *Watcher) scanExisting() {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		w.logger.Warn("cannot scan import dir", "dir", w.dir, "error", err)
		return
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(w.dir, entry.Name())
		if isEPUB(path) {
			w.startSettling(path)
		}
	}
}

func (w *Watcher) processEvents(ctx context.Context) {
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("import watcher error", "error", err)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	path := event.Name

	if event.Op&fsnotify.Remove != 0 {
		w.cancelPending(path)
		return
	}

	if event.Op&(fsnotify.Write|fsnotify.Create) != 0 && isEPUB(path) {
		w.startSettling(path)
	}
}

// startSettling begins or restarts the settle timer for a file.
func (w *Watcher) startSettling(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if pending, exists := w.pending[path]; exists {
		pending.timer.Stop()
	}

	info, err := os.Stat(path)
	if err != nil {
		delete(w.pending, path)
		return
	}
	if info.IsDir() {
		return
	}

	pending := &pendingFile{
		size:    info.Size(),
		modTime: info.ModTime(),
	}
	pending.timer = time.AfterFunc(w.settleDelay, func() {
		w.checkSettled(path)
	})
	w.pending[path] = pending
}

// checkSettled fires the callback once a file stops changing.
func (w *Watcher) checkSettled(path string) {
	w.mu.Lock()

	pending, exists := w.pending[path]
	if !exists {
		w.mu.Unlock()
		return
	}

	info, err := os.Stat(path)
	if err != nil {
		// File disappeared while settling.
		delete(w.pending, path)
		w.mu.Unlock()
		return
	}

	if info.Size() != pending.size || !info.ModTime().Equal(pending.modTime) {
		// Still being written, restart the timer.
		pending.size = info.Size()
		pending.modTime = info.ModTime()
		pending.timer = time.AfterFunc(w.settleDelay, func() {
			w.checkSettled(path)
		})
		w.mu.Unlock()
		return
	}

	delete(w.pending, path)
	w.mu.Unlock()

	ctx := w.ctx
	if ctx == nil {
		ctx = context.Background()
	}

	w.logger.Info("import file settled", "path", path)
	if err := w.onFile(ctx, path); err != nil {
		w.logger.Warn("import from watch dir failed", "path", path, "error", err)
	}
}

func (w *Watcher) cancelPending(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if pending, exists := w.pending[path]; exists {
		pending.timer.Stop()
		delete(w.pending, path)
	}
}

func isEPUB(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".epub")
}
