// Package watch abstracts filesystem change notification behind a narrow
// interface with an fsnotify backend and a polling fallback.
package watch

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Event is one change under a watched directory tree. Err is set when the
// backend failed to deliver events; consumers should treat it as "anything
// may have changed".
type Event struct {
	Path string
	Err  error
}

// Subscription is a live watch on one directory tree.
type Subscription interface {
	Events() <-chan Event
	Close() error
}

// Factory creates watches on directory trees.
type Factory interface {
	Watch(dir string) (Subscription, error)
}

// NewFactory returns the native fsnotify backend, falling back to polling
// if fsnotify cannot be initialised on this platform.
func NewFactory() Factory {
	probe, err := fsnotify.NewWatcher()
	if err != nil {
		return NewPollFactory(0)
	}
	probe.Close()
	return notifyFactory{}
}

type notifyFactory struct{}

func (notifyFactory) Watch(dir string) (Subscription, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	if err := addTree(fsw, dir); err != nil {
		fsw.Close()
		return nil, err
	}

	sub := &notifySub{fsw: fsw, events: make(chan Event, 64)}
	go sub.run()
	return sub, nil
}

// addTree registers dir and every subdirectory with the watcher. Individual
// inaccessible directories are skipped rather than failing the whole watch.
func addTree(fsw *fsnotify.Watcher, dir string) error {
	if err := fsw.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil || !d.IsDir() || path == dir {
			return nil
		}
		if err := fsw.Add(path); err != nil {
			return nil
		}
		return nil
	})
}

type notifySub struct {
	fsw    *fsnotify.Watcher
	events chan Event
}

func (s *notifySub) Events() <-chan Event { return s.events }

func (s *notifySub) Close() error {
	return s.fsw.Close()
}

func (s *notifySub) run() {
	defer close(s.events)
	for {
		select {
		case evt, ok := <-s.fsw.Events:
			if !ok {
				return
			}
			// Newly created directories must be registered so recursive
			// watching extends to them.
			if evt.Has(fsnotify.Create) {
				if info, err := os.Stat(evt.Name); err == nil && info.IsDir() {
					s.fsw.Add(evt.Name)
				}
			}
			s.deliver(Event{Path: evt.Name})
		case err, ok := <-s.fsw.Errors:
			if !ok {
				return
			}
			s.deliver(Event{Err: err})
		}
	}
}

// deliver never blocks; when the consumer lags, events are dropped. That is
// acceptable because consumers only invalidate on any event.
func (s *notifySub) deliver(evt Event) {
	select {
	case s.events <- evt:
	default:
	}
}
