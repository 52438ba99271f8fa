// Package files watches directory trees and reports file operations as
// fileOp events.
package files

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/actionsum/nudge/internal/models"
)

// Op is a file operation kind.
type Op int

const (
	Created Op = iota
	Written
	Removed
	Renamed
)

func (op Op) String() string {
	switch op {
	case Created:
		return "created"
	case Written:
		return "written"
	case Removed:
		return "removed"
	case Renamed:
		return "renamed"
	default:
		return "unknown"
	}
}

// DefaultDebounceDelay coalesces editor save bursts into one write.
const DefaultDebounceDelay = 500 * time.Millisecond

// EventSink receives file events.
type EventSink interface {
	Append(models.BehaviorEvent)
}

// Watcher watches a set of roots recursively. Hidden files and directories
// are ignored.
type Watcher struct {
	watcher *fsnotify.Watcher
	sink    EventSink
	roots   []string
	done    chan struct{}
	wg      sync.WaitGroup

	mu            sync.Mutex
	debounceDelay time.Duration
	debounceMap   map[string]*time.Timer
	closed        bool
}

// NewWatcher starts watching roots. A leading ~ expands to the home
// directory; missing roots are skipped.
func NewWatcher(roots []string, sink EventSink) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	w := &Watcher{
		watcher:       fsw,
		sink:          sink,
		done:          make(chan struct{}),
		debounceDelay: DefaultDebounceDelay,
		debounceMap:   make(map[string]*time.Timer),
	}

	for _, root := range roots {
		root, err = expandHome(root)
		if err != nil {
			fsw.Close()
			return nil, err
		}
		if err := w.addRecursive(root); err != nil {
			fsw.Close()
			return nil, fmt.Errorf("failed to watch %s: %w", root, err)
		}
		w.roots = append(w.roots, root)
	}

	w.wg.Add(1)
	go w.processEvents()

	return w, nil
}

func expandHome(dir string) (string, error) {
	if strings.HasPrefix(dir, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dir = filepath.Join(home, dir[1:])
	}
	return filepath.Clean(dir), nil
}

func hidden(path string) bool {
	return strings.HasPrefix(filepath.Base(path), ".")
}

func (w *Watcher) addRecursive(dir string) error {
	return filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) || os.IsPermission(err) {
				return nil
			}
			return err
		}
		if !info.IsDir() {
			return nil
		}
		if path != dir && hidden(path) {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil && !os.IsPermission(err) {
			return err
		}
		return nil
	})
}

func (w *Watcher) processEvents() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("File watcher error: %v", err)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	path := event.Name
	if hidden(path) {
		return
	}

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			if err := w.addRecursive(path); err != nil {
				log.Printf("Failed to watch new directory %s: %v", path, err)
			}
			return
		}
	}

	var op Op
	switch {
	case event.Has(fsnotify.Create):
		op = Created
	case event.Has(fsnotify.Write):
		op = Written
	case event.Has(fsnotify.Remove):
		op = Removed
	case event.Has(fsnotify.Rename):
		op = Renamed
	default:
		return
	}

	if op == Written {
		w.debounce(path)
		return
	}
	w.emit(path, op)
}

func (w *Watcher) debounce(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return
	}
	if timer, exists := w.debounceMap[path]; exists {
		timer.Stop()
	}
	w.debounceMap[path] = time.AfterFunc(w.debounceDelay, func() {
		w.mu.Lock()
		closed := w.closed
		delete(w.debounceMap, path)
		w.mu.Unlock()

		if !closed {
			w.emit(path, Written)
		}
	})
}

func (w *Watcher) emit(path string, op Op) {
	w.sink.Append(models.BehaviorEvent{
		Timestamp: time.Now(),
		Kind:      models.KindFileOp,
		Detail:    op.String() + " " + path,
		Context:   filepath.Base(filepath.Dir(path)),
	})
}

// Roots returns the expanded root directories.
func (w *Watcher) Roots() []string {
	return w.roots
}

// SetDebounceDelay must be called before events arrive.
func (w *Watcher) SetDebounceDelay(delay time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.debounceDelay = delay
}

// Close stops the watcher and drops pending writes.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	for _, timer := range w.debounceMap {
		timer.Stop()
	}
	w.debounceMap = nil
	w.mu.Unlock()

	close(w.done)
	err := w.watcher.Close()
	w.wg.Wait()
	return err
}
