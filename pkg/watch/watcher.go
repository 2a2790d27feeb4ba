// Package watch re-runs analysis when Lua scripts change on disk.
package watch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/fsnotify/fsnotify"

	"github.com/panbanda/luafix/pkg/config"
)

// DefaultDebounce is how long a file must stay unchanged before its callback
// runs.
const DefaultDebounce = 500 * time.Millisecond

// Callback is called once per changed file after the debounce period.
type Callback func(ctx context.Context, path string)

// Watcher monitors a tree for Lua changes and triggers analysis.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	config    *config.Config
	debounce  time.Duration
	path      string
	callback  Callback
	out       io.Writer
	logger    *slog.Logger

	mu      sync.Mutex
	pending map[string]time.Time
	running sync.WaitGroup
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithOutput sets where change banners are written. Defaults to stdout.
func WithOutput(w io.Writer) Option {
	return func(wt *Watcher) {
		wt.out = w
	}
}

// WithLogger sets the diagnostic logger.
func WithLogger(l *slog.Logger) Option {
	return func(wt *Watcher) {
		if l != nil {
			wt.logger = l
		}
	}
}

// NewWatcher creates a new file watcher. A debounce <= 0 uses
// DefaultDebounce.
func NewWatcher(path string, cfg *config.Config, debounce time.Duration, opts ...Option) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	w := &Watcher{
		fsWatcher: fsWatcher,
		config:    cfg,
		debounce:  debounce,
		path:      path,
		out:       os.Stdout,
		logger:    slog.New(slog.DiscardHandler),
		pending:   make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// SetCallback sets the function to call when a file changes.
func (w *Watcher) SetCallback(cb Callback) {
	w.callback = cb
}

// addTree watches dir and every directory below it that is not excluded.
func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			w.logger.Debug("watch walk error", "path", path, "error", err)
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && w.skipDir(d.Name()) {
			return filepath.SkipDir
		}
		return w.fsWatcher.Add(path)
	})
}

func (w *Watcher) skipDir(name string) bool {
	for _, excluded := range w.config.Exclude.Dirs {
		if name == excluded {
			return true
		}
	}
	return false
}

// Start watches until ctx is cancelled. Callbacks still running when it
// returns are waited for.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.addTree(w.path); err != nil {
		return fmt.Errorf("watch %s: %w", w.path, err)
	}

	cyan := color.New(color.FgCyan)
	cyan.Fprintf(w.out, "Watching for changes in %s...\n", w.path)
	cyan.Fprintln(w.out, "Press Ctrl+C to stop")
	fmt.Fprintln(w.out)

	go w.processDebounced(ctx)
	defer w.running.Wait()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", "error", err)
		}
	}
}

// IsScript reports whether path names a Lua script that should be analyzed.
func IsScript(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".lua")
}

// handleEvent processes a filesystem event.
func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
		return
	}
	path := event.Name

	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			if !w.skipDir(info.Name()) {
				if err := w.addTree(path); err != nil {
					w.logger.Debug("watch new directory failed", "path", path, "error", err)
				}
			}
			return
		}
	}

	if !IsScript(path) || w.config.ShouldExclude(path) {
		return
	}

	w.mu.Lock()
	w.pending[path] = time.Now()
	w.mu.Unlock()
}

// processDebounced processes pending changes after debounce period.
func (w *Watcher) processDebounced(ctx context.Context) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.processPending(ctx)
		}
	}
}

// processPending runs the callback for files that have been stable for the
// debounce period.
func (w *Watcher) processPending(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := time.Now()
	for path, lastMod := range w.pending {
		if now.Sub(lastMod) < w.debounce {
			continue
		}
		delete(w.pending, path)
		if w.callback != nil {
			w.running.Add(1)
			go w.runCallback(ctx, path)
		}
	}
}

// runCallback executes the callback for a changed file.
func (w *Watcher) runCallback(ctx context.Context, path string) {
	defer w.running.Done()
	relPath, err := filepath.Rel(w.path, path)
	if err != nil {
		relPath = path
	}

	color.New(color.FgYellow).Fprintf(w.out, "\nFile changed: %s\n", relPath)
	fmt.Fprintln(w.out, strings.Repeat("-", 40))

	w.callback(ctx, path)

	fmt.Fprintln(w.out)
}

// Stop stops the watcher.
func (w *Watcher) Stop() error {
	return w.fsWatcher.Close()
}

// WatchedDirs returns the directories being watched.
func (w *Watcher) WatchedDirs() []string {
	return w.fsWatcher.WatchList()
}
