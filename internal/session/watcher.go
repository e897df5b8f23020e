package session

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultWatchDebounce = 500 * time.Millisecond

// Watcher reports token changes made to a session file by other processes
type Watcher struct {
	mu sync.Mutex

	store         *FileStore
	fsWatcher     *fsnotify.Watcher
	debounceDelay time.Duration
	debounceTimer *time.Timer

	reloadChan chan struct{}
	done       chan struct{}

	onChange  func(token string)
	lastToken string
}

// Watch calls onChange with the new token (empty after logout) whenever the
// session file changes. It returns once the watch is established and stops
// when ctx is done. Wait blocks until the watch goroutine exits.
func (f *FileStore) Watch(ctx context.Context, debounce time.Duration, onChange func(token string)) (*Watcher, error) {
	if debounce <= 0 {
		debounce = defaultWatchDebounce
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	// The directory is watched rather than the file so that atomic
	// replacements and first-time creation are seen.
	if err := fsWatcher.Add(dir); err != nil {
		_ = fsWatcher.Close()
		return nil, fmt.Errorf("failed to watch directory %s: %w", dir, err)
	}

	w := &Watcher{
		store:         f,
		fsWatcher:     fsWatcher,
		debounceDelay: debounce,
		reloadChan:    make(chan struct{}, 1),
		done:          make(chan struct{}),
		onChange:      onChange,
	}
	w.lastToken, _ = f.Token()

	go w.watchLoop(ctx)

	f.logger.Info("Session file watcher started", "path", f.path, "debounce_delay", debounce)
	return w, nil
}

// Wait blocks until the watcher has stopped
func (w *Watcher) Wait() {
	<-w.done
}

func (w *Watcher) watchLoop(ctx context.Context) {
	defer close(w.done)
	defer w.stop()

	for {
		select {
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if w.shouldProcessEvent(event) {
				w.scheduleReload()
			}

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.store.logger.LogError(err, "Session file watcher error")

		case <-w.reloadChan:
			w.reload()

		case <-ctx.Done():
			return
		}
	}
}

func (w *Watcher) shouldProcessEvent(event fsnotify.Event) bool {
	if filepath.Base(event.Name) != filepath.Base(w.store.path) {
		return false
	}
	return event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) != 0
}

func (w *Watcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}

	w.debounceTimer = time.AfterFunc(w.debounceDelay, func() {
		select {
		case w.reloadChan <- struct{}{}:
		default:
		}
	})
}

func (w *Watcher) reload() {
	token, err := w.store.Token()
	if err != nil && err != ErrNoSession {
		w.store.logger.LogError(err, "Failed to reload session file")
		return
	}
	if token == w.lastToken {
		return
	}

	w.lastToken = token
	w.store.logger.Info("Session changed on disk", "signed_in", token != "")
	if w.onChange != nil {
		w.onChange(token)
	}
}

func (w *Watcher) stop() {
	w.mu.Lock()
	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.mu.Unlock()

	if err := w.fsWatcher.Close(); err != nil {
		w.store.logger.LogError(err, "Failed to close session file watcher")
	}
	w.store.logger.Info("Session file watcher stopped")
}
