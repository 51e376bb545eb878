// Package watcher observes the vault for markdown changes and triggers
// index refreshes. Events are debounced so an editor saving several
// files produces a single trigger.
package watcher

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/vaultsearch/vaultsearch/internal/errors"
)

// DefaultDebounce is the quiet window before a trigger fires.
const DefaultDebounce = 2 * time.Second

// Watcher watches a vault root recursively and calls a trigger after
// markdown activity settles.
type Watcher struct {
	root        string
	excludeDirs map[string]struct{}
	debounce    time.Duration
	trigger     func()
	logger      *slog.Logger

	fsw *fsnotify.Watcher

	mu    sync.Mutex
	timer *time.Timer
}

// New creates a watcher for root. trigger runs on the watcher's
// goroutine after each debounced burst of changes.
func New(root string, excludeDirs []string, debounce time.Duration, trigger func(), logger *slog.Logger) (*Watcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(errors.KindInternal, "create file watcher", err)
	}
	excluded := make(map[string]struct{}, len(excludeDirs))
	for _, d := range excludeDirs {
		excluded[d] = struct{}{}
	}
	return &Watcher{
		root:        root,
		excludeDirs: excluded,
		debounce:    debounce,
		trigger:     trigger,
		logger:      logger,
		fsw:         fsw,
	}, nil
}

// Run watches until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	if err := w.addRecursive(w.root); err != nil {
		_ = w.fsw.Close()
		return err
	}
	defer func() {
		_ = w.fsw.Close()
		w.stopTimer()
	}()

	w.logger.Debug("watching vault", "root", w.root)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", "error", err)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if w.excludedPath(event.Name) {
		return
	}

	// New directories must be added to the watch before files inside
	// them produce events.
	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			_ = w.addRecursive(event.Name)
			w.scheduleTrigger()
			return
		}
	}

	if !strings.EqualFold(filepath.Ext(event.Name), ".md") {
		return
	}
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}
	w.scheduleTrigger()
}

// scheduleTrigger resets the debounce timer.
func (w *Watcher) scheduleTrigger() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.trigger)
}

func (w *Watcher) stopTimer() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
}

// addRecursive registers path and every directory under it. Non-directory
// paths are ignored.
func (w *Watcher) addRecursive(path string) error {
	return filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if _, skip := w.excludeDirs[d.Name()]; skip && p != path {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(p); err != nil {
			w.logger.Warn("cannot watch directory", "path", p, "error", err)
		}
		return nil
	})
}

// excludedPath reports whether any path element is an excluded
// directory name.
func (w *Watcher) excludedPath(path string) bool {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return false
	}
	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		if _, skip := w.excludeDirs[part]; skip {
			return true
		}
	}
	return false
}
