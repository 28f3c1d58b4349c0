// Package watch delivers debounced change notifications for a fixed set
// of files. Parent directories are watched rather than the files
// themselves, so targets that do not exist yet, or are replaced by
// rename, still produce events.
package watch

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

const (
	defaultDebounce = 2 * time.Second
	flushTick       = 50 * time.Millisecond
)

// Watcher watches a set of files and fires a callback after changes
// settle. Bursts of events against the same path collapse into one call.
type Watcher struct {
	watcher  *fsnotify.Watcher
	logger   zerolog.Logger
	debounce time.Duration
	targets  map[string]struct{}

	mu      sync.Mutex
	running bool
	stopped bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// New creates a watcher for the given files. Empty entries are dropped
// and paths are cleaned before matching.
func New(paths []string, debounce time.Duration, logger zerolog.Logger) (*Watcher, error) {
	if debounce <= 0 {
		debounce = defaultDebounce
	}

	targets := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		if p == "" {
			continue
		}
		targets[filepath.Clean(p)] = struct{}{}
	}
	if len(targets) == 0 {
		return nil, fmt.Errorf("no paths to watch")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}

	return &Watcher{
		watcher:  watcher,
		logger:   logger,
		debounce: debounce,
		targets:  targets,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Run watches until the context is cancelled or Stop is called. onChange
// receives the changed path once the path has been quiet for the
// debounce interval. Run is single-shot; create a new Watcher to watch
// again after it returns.
func (w *Watcher) Run(ctx context.Context, onChange func(path string)) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("watcher already running")
	}
	w.running = true
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
		close(w.doneCh)
	}()

	if err := w.addParents(); err != nil {
		return err
	}

	w.logger.Info().
		Int("paths", len(w.targets)).
		Dur("debounce", w.debounce).
		Msg("file watcher started")

	pending := make(map[string]time.Time)
	ticker := time.NewTicker(flushTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info().Msg("file watcher stopped")
			return nil

		case <-w.stopCh:
			w.logger.Info().Msg("file watcher stopped")
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}

			path, match := w.match(event)
			if !match {
				continue
			}

			w.logger.Debug().
				Str("path", path).
				Str("op", event.Op.String()).
				Msg("file event")

			pending[path] = time.Now()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			w.logger.Error().Err(err).Msg("file watcher error")

		case now := <-ticker.C:
			for path, last := range pending {
				if now.Sub(last) >= w.debounce {
					delete(pending, path)
					onChange(path)
				}
			}
		}
	}
}

// Stop stops the watcher, waits for Run to return, and releases the
// underlying watch descriptors. Safe to call more than once, and
// whether or not Run ever started.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return nil
	}
	w.stopped = true
	running := w.running
	w.mu.Unlock()

	if running {
		close(w.stopCh)
		<-w.doneCh
	}

	if err := w.watcher.Close(); err != nil {
		return fmt.Errorf("closing watcher: %w", err)
	}
	return nil
}

// addParents registers the parent directory of every target. Missing
// directories are logged and skipped so one absent probe path does not
// disable the rest.
func (w *Watcher) addParents() error {
	dirs := make(map[string]struct{}, len(w.targets))
	for path := range w.targets {
		dirs[filepath.Dir(path)] = struct{}{}
	}

	added := 0
	for dir := range dirs {
		if err := w.watcher.Add(dir); err != nil {
			w.logger.Warn().Err(err).Str("dir", dir).Msg("cannot watch directory")
			continue
		}
		added++
	}
	if added == 0 {
		return fmt.Errorf("no watchable directories")
	}
	return nil
}

// match reports whether an event concerns one of the watched files.
// Pure chmod events never trigger a refresh.
func (w *Watcher) match(event fsnotify.Event) (string, bool) {
	if event.Op == fsnotify.Chmod {
		return "", false
	}

	path := filepath.Clean(event.Name)
	if _, ok := w.targets[path]; !ok {
		return "", false
	}
	return path, true
}
