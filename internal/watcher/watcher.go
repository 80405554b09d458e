// Package watcher observes the sync folder for filesystem changes and
// classifies each change against the state store: new file, new version,
// rename, move, or no-op.
//
// The watcher publishes events on a bounded channel and the engine consumes
// them in a single loop, so classification for a path always completes
// before the next event on that path is examined.
package watcher

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/permadrive/permadrive/internal/cryptox"
)

// EventOp represents the type of file system operation.
type EventOp int

const (
	// OpCreate indicates a new file or folder appeared.
	OpCreate EventOp = iota
	// OpModify indicates an existing file was written.
	OpModify
	// OpRemove indicates a file or folder disappeared.
	OpRemove
)

// String returns a human-readable representation of the operation.
func (op EventOp) String() string {
	switch op {
	case OpCreate:
		return "create"
	case OpModify:
		return "modify"
	case OpRemove:
		return "remove"
	default:
		return "unknown"
	}
}

// Event is one filesystem change inside the sync folder.
type Event struct {
	// Path is the absolute path that changed.
	Path string
	// Op is the operation that occurred.
	Op EventOp
	// IsDir reports whether the path is (or was) a directory.
	IsDir bool
}

// lockFilePrefix marks transient editor lock files that must never sync.
const lockFilePrefix = "~$"

// Watcher watches the sync folder tree recursively. New subdirectories are
// added to the watch set as they appear.
type Watcher struct {
	root    string
	watcher *fsnotify.Watcher
	events  chan Event
	errors  chan error
	done    chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// New creates a Watcher for the sync folder root. The watcher must be
// started with Start() before it emits events.
func New(root string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	return &Watcher{
		root:    root,
		watcher: fsw,
		events:  make(chan Event, 256),
		errors:  make(chan error, 10),
		done:    make(chan struct{}),
	}, nil
}

// Start begins watching the sync folder and every directory under it.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return fmt.Errorf("watcher already running")
	}

	err := filepath.WalkDir(w.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if err := w.watcher.Add(path); err != nil {
				return fmt.Errorf("failed to watch %s: %w", path, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	w.running = true
	w.wg.Add(1)
	go w.processEvents()
	return nil
}

// Stop stops watching and closes the event channels. It blocks until the
// processing goroutine has exited.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	w.mu.Unlock()

	close(w.done)
	if err := w.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	w.wg.Wait()

	close(w.events)
	close(w.errors)
	return nil
}

// Events returns the channel of filesystem events. Closed on Stop.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Errors returns the channel of watch errors. Closed on Stop.
func (w *Watcher) Errors() <-chan error {
	return w.errors
}

func (w *Watcher) processEvents() {
	defer w.wg.Done()

	for {
		select {
		case <-w.done:
			return

		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if out, ok := w.convertEvent(ev); ok {
				// New directories join the watch set so their
				// children are seen too.
				if out.Op == OpCreate && out.IsDir {
					if err := w.watcher.Add(out.Path); err != nil {
						w.reportError(fmt.Errorf("failed to watch new directory %s: %w", out.Path, err))
					}
				}
				select {
				case w.events <- out:
				case <-w.done:
					return
				}
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.reportError(err)
		}
	}
}

func (w *Watcher) reportError(err error) {
	select {
	case w.errors <- err:
	case <-w.done:
	}
}

// convertEvent maps an fsnotify event to an Event, filtering paths that
// must never be classified.
func (w *Watcher) convertEvent(ev fsnotify.Event) (Event, bool) {
	name := filepath.Base(ev.Name)

	// Encrypted siblings and editor lock files never sync.
	if strings.HasSuffix(ev.Name, cryptox.EncSuffix) || strings.HasPrefix(name, lockFilePrefix) {
		return Event{}, false
	}

	var op EventOp
	switch {
	case ev.Has(fsnotify.Create):
		op = OpCreate
	case ev.Has(fsnotify.Write):
		op = OpModify
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		// A rename emits Remove for the old path; the new path arrives
		// as its own Create event.
		op = OpRemove
	default:
		// Chmod and friends.
		return Event{}, false
	}

	isDir := false
	if op != OpRemove {
		info, err := os.Stat(ev.Name)
		if err != nil {
			// Gone already; the removal event will follow.
			return Event{}, false
		}
		isDir = info.IsDir()
	}

	return Event{Path: ev.Name, Op: op, IsDir: isDir}, true
}
