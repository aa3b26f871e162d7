package local

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/gobwas/glob"
)

// fsWatcher is the part of fsnotify the ingress watcher uses.
type fsWatcher interface {
	Add(path string) error
	Close() error
	Events() <-chan fsEvent
	Errors() <-chan error
}

type fsEvent struct {
	Name string
	Op   fsnotify.Op
}

// fsnotifyWatcher adapts fsnotify.Watcher to fsWatcher.
type fsnotifyWatcher struct {
	watcher *fsnotify.Watcher
	events  chan fsEvent
	errors  chan error
	done    chan struct{}
	once    sync.Once
}

func newFSWatcher() (fsWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	fw := &fsnotifyWatcher{
		watcher: w,
		events:  make(chan fsEvent),
		errors:  make(chan error),
		done:    make(chan struct{}),
	}

	go func() {
		defer close(fw.events)
		for {
			select {
			case event, ok := <-w.Events:
				if !ok {
					return
				}
				select {
				case fw.events <- fsEvent{Name: event.Name, Op: event.Op}:
				case <-fw.done:
					return
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				select {
				case fw.errors <- err:
				case <-fw.done:
					return
				}
			}
		}
	}()

	return fw, nil
}

func (w *fsnotifyWatcher) Add(path string) error {
	return w.watcher.Add(path)
}

func (w *fsnotifyWatcher) Close() error {
	w.once.Do(func() { close(w.done) })
	return w.watcher.Close()
}

func (w *fsnotifyWatcher) Events() <-chan fsEvent {
	return w.events
}

func (w *fsnotifyWatcher) Errors() <-chan error {
	return w.errors
}

// Watcher reports files under a directory once they stop changing. It is
// the ingress used by the watch command.
type Watcher struct {
	dir       string
	pattern   glob.Glob
	recursive bool
	settle    time.Duration
	logger    *slog.Logger

	newWatcher func() (fsWatcher, error)
	now        func() time.Time
}

// WatchOption configures a Watcher.
type WatchOption func(*Watcher) error

// WithPattern only reports files whose base name matches the glob pattern.
func WithPattern(pattern string) WatchOption {
	return func(w *Watcher) error {
		if pattern == "" {
			w.pattern = nil
			return nil
		}
		g, err := glob.Compile(pattern)
		if err != nil {
			return err
		}
		w.pattern = g
		return nil
	}
}

// WithRecursive watches subdirectories, including ones created later.
func WithRecursive(recursive bool) WatchOption {
	return func(w *Watcher) error {
		w.recursive = recursive
		return nil
	}
}

// WithSettle sets how long a file must stay unchanged before it is reported.
func WithSettle(d time.Duration) WatchOption {
	return func(w *Watcher) error {
		if d > 0 {
			w.settle = d
		}
		return nil
	}
}

// WithWatchLogger sets the logger for watcher errors.
func WithWatchLogger(logger *slog.Logger) WatchOption {
	return func(w *Watcher) error {
		w.logger = logger
		return nil
	}
}

// NewWatcher creates a watcher for dir.
func NewWatcher(dir string, opts ...WatchOption) (*Watcher, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		dir:        abs,
		settle:     500 * time.Millisecond,
		logger:     slog.Default(),
		newWatcher: newFSWatcher,
		now:        time.Now,
	}
	for _, opt := range opts {
		if err := opt(w); err != nil {
			return nil, err
		}
	}
	return w, nil
}

// Watch blocks until ctx is done, calling fn with the path of every file
// that was created or written and then left alone for the settle period.
func (w *Watcher) Watch(ctx context.Context, fn func(path string)) error {
	fw, err := w.newWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	if err := w.add(fw, w.dir); err != nil {
		return err
	}

	pending := make(map[string]time.Time)
	tick := time.NewTicker(w.settle / 2)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fw.Events():
			if !ok {
				return errors.New("watcher closed")
			}
			w.handle(fw, event, pending)

		case err, ok := <-fw.Errors():
			if !ok {
				return errors.New("watcher closed")
			}
			w.logger.Warn("watch error", "dir", w.dir, "error", err)

		case <-tick.C:
			now := w.now()
			for path, last := range pending {
				if now.Sub(last) >= w.settle {
					delete(pending, path)
					fn(path)
				}
			}
		}
	}
}

func (w *Watcher) handle(fw fsWatcher, event fsEvent, pending map[string]time.Time) {
	switch {
	case event.Op.Has(fsnotify.Remove), event.Op.Has(fsnotify.Rename):
		delete(pending, event.Name)
		return
	case !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Write):
		return
	}

	info, err := os.Stat(event.Name)
	if err != nil {
		return
	}
	if info.IsDir() {
		if w.recursive && event.Op.Has(fsnotify.Create) {
			if err := w.add(fw, event.Name); err != nil {
				w.logger.Warn("watch subdirectory", "dir", event.Name, "error", err)
			}
		}
		return
	}
	if !w.matches(event.Name) {
		return
	}
	pending[event.Name] = w.now()
}

func (w *Watcher) matches(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return false
	}
	return w.pattern == nil || w.pattern.Match(base)
}

// add watches dir and, when recursive, every directory below it.
func (w *Watcher) add(fw fsWatcher, dir string) error {
	if !w.recursive {
		return fw.Add(dir)
	}
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			return fw.Add(path)
		}
		return nil
	})
}
