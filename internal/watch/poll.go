package watch

import (
	"os"
	"path/filepath"
	"time"
)

// PollFactory watches by periodically rescanning the tree and comparing
// modification times. It is used where fsnotify is unavailable and in
// tests that need deterministic delivery.
type PollFactory struct {
	interval time.Duration
}

// NewPollFactory creates a polling factory. A zero interval defaults to
// five seconds.
func NewPollFactory(interval time.Duration) *PollFactory {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &PollFactory{interval: interval}
}

func (f *PollFactory) Watch(dir string) (Subscription, error) {
	sub := &pollSub{
		dir:      dir,
		interval: f.interval,
		events:   make(chan Event, 64),
		done:     make(chan struct{}),
	}
	sub.state = scan(dir)
	go sub.run()
	return sub, nil
}

type pollSub struct {
	dir      string
	interval time.Duration
	state    map[string]int64
	events   chan Event
	done     chan struct{}
}

func (s *pollSub) Events() <-chan Event { return s.events }

func (s *pollSub) Close() error {
	close(s.done)
	return nil
}

func (s *pollSub) run() {
	defer close(s.events)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			next := scan(s.dir)
			for _, changed := range changes(s.state, next) {
				select {
				case s.events <- Event{Path: changed}:
				default:
				}
			}
			s.state = next
		}
	}
}

// scan records the mtime of every entry under dir.
func scan(dir string) map[string]int64 {
	state := make(map[string]int64)
	filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if info, err := d.Info(); err == nil {
			state[path] = info.ModTime().UnixNano()
		}
		return nil
	})
	return state
}

// changes returns paths created, modified or deleted between two scans.
func changes(prev, next map[string]int64) []string {
	var out []string
	for path, mtime := range next {
		if old, ok := prev[path]; !ok || old != mtime {
			out = append(out, path)
		}
	}
	for path := range prev {
		if _, ok := next[path]; !ok {
			out = append(out, path)
		}
	}
	return out
}
