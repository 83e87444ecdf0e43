package config

import (
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

// debounceWindow is how long the watcher waits for the file to go quiet
// before re-reading it. Grounded on the teacher's watcher debounce timer.
const debounceWindow = 150 * time.Millisecond

// Watcher observes a config file for changes and republishes a Store on
// every content change, debounced and deduplicated by content hash.
type Watcher struct {
	path     string
	store    *Store
	onReload func(*Snapshot)

	mu         sync.Mutex
	timer      *time.Timer
	lastHash   string
	fsWatcher  *fsnotify.Watcher
	stopCh     chan struct{}
}

// NewWatcher creates a Watcher for path, publishing reloads into store and
// invoking onReload (typically the router's update hook) after each
// successful reload but before publish.
func NewWatcher(path string, store *Store, onReload func(*Snapshot)) *Watcher {
	return &Watcher{path: path, store: store, onReload: onReload, stopCh: make(chan struct{})}
}

// Start begins watching. It computes the initial content hash from the
// config file's current bytes on disk so the first observed write doesn't
// trigger a redundant reload if the content is unchanged.
func (w *Watcher) Start() error {
	data, err := os.ReadFile(w.path)
	if err == nil {
		w.lastHash = Hash(data)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.fsWatcher = fw
	if err := fw.Add(w.path); err != nil {
		fw.Close()
		return err
	}

	go w.loop()
	return nil
}

// Stop terminates the watcher goroutine and releases the fsnotify handle.
func (w *Watcher) Stop() {
	close(w.stopCh)
	if w.fsWatcher != nil {
		w.fsWatcher.Close()
	}
}

func (w *Watcher) loop() {
	for {
		select {
		case ev, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				w.scheduleReload()
			}
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			log.Warnf("config watcher: fsnotify error: %v", err)
		case <-w.stopCh:
			return
		}
	}
}

// scheduleReload resets a debounce timer; repeated bursts of events collapse
// into one reload once the file goes quiet for debounceWindow.
func (w *Watcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(debounceWindow, w.reload)
}

func (w *Watcher) reload() {
	data, err := os.ReadFile(w.path)
	if err != nil {
		log.Warnf("config watcher: read %s failed: %v", w.path, err)
		return
	}

	hash := Hash(data)
	w.mu.Lock()
	if hash == w.lastHash {
		w.mu.Unlock()
		return
	}
	w.mu.Unlock()

	snap, err := LoadBytes(data)
	if err != nil {
		logLoadFailure(w.path, err)
		return
	}

	w.mu.Lock()
	w.lastHash = hash
	w.mu.Unlock()

	if w.onReload != nil {
		w.onReload(snap)
	}
	w.store.Publish(snap)
	log.Infof("config watcher: reloaded %s", w.path)
}
