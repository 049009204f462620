// Package watch implements the compiler's `-watch` mode: rebuild a single
// source file every time it changes on disk. It wraps fsnotify the same
// way the teacher's virtual filesystem watcher does
// (internal/runtime/vfs/watch_fsnotify.go), scoped down to one file
// instead of a whole tree.
package watch

import (
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watcher watches the directory containing a single source file and
// reports writes to that file specifically; fsnotify only supports
// watching directories, so filtering to the one path of interest happens
// on the event stream.
type Watcher struct {
	w    *fsnotify.Watcher
	path string
}

// New starts watching the directory containing path.
func New(path string) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		w.Close()
		return nil, err
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		w.Close()
		return nil, err
	}
	return &Watcher{w: w, path: abs}, nil
}

// Run blocks, calling rebuild once immediately and then again every time
// the watched file is written or recreated, until rebuild returns false
// or the watcher hits a fatal error.
func (watcher *Watcher) Run(rebuild func() bool) error {
	if !rebuild() {
		return nil
	}
	for {
		select {
		case ev, ok := <-watcher.w.Events:
			if !ok {
				return nil
			}
			evAbs, err := filepath.Abs(ev.Name)
			if err != nil || evAbs != watcher.path {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if !rebuild() {
				return nil
			}
		case err, ok := <-watcher.w.Errors:
			if !ok {
				return nil
			}
			return err
		}
	}
}

func (watcher *Watcher) Close() error { return watcher.w.Close() }
