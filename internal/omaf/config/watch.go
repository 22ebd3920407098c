package config

import (
	"log/slog"

	"github.com/fsnotify/fsnotify"

	"github.com/alxayo/omaf-creator/internal/logger"
)

// Watcher reloads a pipeline configuration file whenever it changes on
// disk, watching the file's directory for write/create events rather than
// polling.
type Watcher struct {
	path string
	fsw  *fsnotify.Watcher
	log  *slog.Logger
	done chan struct{}
}

// WatchFile starts watching path's containing directory (watching the
// directory, not the file itself, survives editors that replace the file
// via rename-on-save rather than an in-place write) and calls onChange
// with the freshly parsed Pipeline every time path is written or
// recreated. onChange is called once immediately with the current
// contents before WatchFile returns, and again on every later event; err is
// set instead of p when a reload fails to parse.
func WatchFile(path string, onChange func(p *Pipeline, err error)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{path: path, fsw: fsw, log: logger.Logger().With("component", "config.Watcher", "path", path), done: make(chan struct{})}

	dir := dirOf(path)
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, err
	}

	if p, err := LoadFile(path); err != nil {
		onChange(nil, err)
	} else {
		onChange(p, nil)
	}

	go w.loop(onChange)
	return w, nil
}

func (w *Watcher) loop(onChange func(*Pipeline, error)) {
	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if ev.Name != w.path {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			p, err := LoadFile(w.path)
			if err != nil {
				w.log.Warn("reload failed", "error", err)
				onChange(nil, err)
				continue
			}
			w.log.Info("reloaded")
			onChange(p, nil)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Warn("watch error", "error", err)
		case <-w.done:
			return
		}
	}
}

// Close stops the watcher and releases its underlying inotify/kqueue
// handle.
func (w *Watcher) Close() error {
	close(w.done)
	return w.fsw.Close()
}

func dirOf(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[:i]
		}
	}
	return "."
}
