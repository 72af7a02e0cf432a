package cache

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/stitionai/devika-go/internal/logging"
)

// DebounceDelay is the default delay for debouncing file system events.
const DebounceDelay = 100 * time.Millisecond

// Watcher monitors the snapshot file for external changes and notifies
// subscribers. The parent directory is watched rather than the file
// itself because atomic writes replace the inode on every flush.
//
// All public methods are safe for concurrent use.
type Watcher struct {
	watcher *fsnotify.Watcher
	path    string

	mu   sync.Mutex
	subs []func()

	debounceDelay time.Duration
	debounceTimer *time.Timer
	debounceMu    sync.Mutex

	done    chan struct{}
	stopped chan struct{}
}

// NewWatcher creates a watcher for the snapshot file at path.
// Call Start() to begin watching and Close() when done.
func NewWatcher(path string) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, err
	}

	return &Watcher{
		watcher:       fw,
		path:          path,
		debounceDelay: DebounceDelay,
		done:          make(chan struct{}),
		stopped:       make(chan struct{}),
	}, nil
}

// SetDebounceDelay sets the debounce delay for batching rapid changes.
// Must be called before Start().
func (w *Watcher) SetDebounceDelay(d time.Duration) {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()
	w.debounceDelay = d
}

// Subscribe registers a callback fired after the snapshot file changes.
func (w *Watcher) Subscribe(fn func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.subs = append(w.subs, fn)
}

// Start begins the event processing loop.
func (w *Watcher) Start() {
	go w.eventLoop()
}

// Close stops the watcher and releases resources. After Close returns,
// no more notifications are delivered.
func (w *Watcher) Close() error {
	close(w.done)
	err := w.watcher.Close()
	<-w.stopped
	return err
}

func (w *Watcher) eventLoop() {
	defer close(w.stopped)
	log := logging.Cache()

	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			log.Debug("snapshot file changed", "op", event.Op.String())
			w.scheduleNotify()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Warn("snapshot watcher error", "error", err)
		}
	}
}

// scheduleNotify arms (or re-arms) the debounce timer.
func (w *Watcher) scheduleNotify() {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()

	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceTimer = time.AfterFunc(w.debounceDelay, w.notify)
}

func (w *Watcher) notify() {
	w.mu.Lock()
	subs := append([]func(){}, w.subs...)
	w.mu.Unlock()

	for _, fn := range subs {
		fn()
	}
}
