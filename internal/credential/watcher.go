package credential

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/formzs/poe-to-gpt/pkg/logging"
)

// DefaultDebounceInterval is how long the watcher waits after the last file
// event before reporting. A rename-based write produces several events.
const DefaultDebounceInterval = 200 * time.Millisecond

// Watcher reports changes to a FileStore's credential document made by other
// processes, such as `poeadmin logout` run in a second terminal.
type Watcher struct {
	mu sync.Mutex

	store    *FileStore
	onChange func(present bool)
	debounce time.Duration

	fsWatcher *fsnotify.Watcher
	stopCh    chan struct{}
	running   bool

	debounceMu    sync.Mutex
	debounceTimer *time.Timer
}

// NewWatcher creates a watcher for store. onChange receives whether a
// credential is present after the change settled.
func NewWatcher(store *FileStore, onChange func(present bool)) *Watcher {
	return &Watcher{
		store:    store,
		onChange: onChange,
		debounce: DefaultDebounceInterval,
	}
}

// Start begins watching the credential directory.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return nil
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fsWatcher.Add(w.store.Dir()); err != nil {
		fsWatcher.Close()
		return err
	}

	w.fsWatcher = fsWatcher
	w.stopCh = make(chan struct{})
	w.running = true

	go w.processEvents(fsWatcher.Events, fsWatcher.Errors, w.stopCh)

	logging.Debug("Credential", "Watching %s for credential changes", w.store.Dir())
	return nil
}

// Stop ends watching. It is safe to call more than once.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return
	}
	w.running = false
	close(w.stopCh)
	w.fsWatcher.Close()

	w.debounceMu.Lock()
	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceMu.Unlock()
}

func (w *Watcher) processEvents(eventsCh <-chan fsnotify.Event, errorsCh <-chan error, stopCh <-chan struct{}) {
	for {
		select {
		case <-stopCh:
			return

		case event, ok := <-eventsCh:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != FileName {
				continue
			}
			w.triggerDebounced()

		case err, ok := <-errorsCh:
			if !ok {
				return
			}
			logging.Error("Credential", err, "fsnotify error")
		}
	}
}

func (w *Watcher) triggerDebounced() {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()

	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceTimer = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		running := w.running
		w.mu.Unlock()

		if !running || w.onChange == nil {
			return
		}
		_, present := w.store.Get()
		w.onChange(present)
	})
}
