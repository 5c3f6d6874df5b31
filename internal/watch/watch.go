// Package watch reports changes to a single file, such as a gesture library
// edited by hand while the server runs.
package watch

import (
	"context"
	"errors"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ayusman/mudra/internal/logging"
)

// DefaultDebounce is used when File is given a non-positive debounce.
const DefaultDebounce = 250 * time.Millisecond

// ErrNoPath is returned when no file is given.
var ErrNoPath = errors.New("no file to watch")

// File calls fn after path is written or created, once
// per burst of events no closer than debounce apart. The parent directory is
// watched so editors that replace the file are followed. File blocks until ctx
// is done and then returns nil.
func File(ctx context.Context, path string, debounce time.Duration, fn func()) error {
	if path == "" {
		return ErrNoPath
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return err
	}

	logger := logging.FromContext(ctx).With("path", abs)
	logger.Debugw("watching file")

	timer := time.NewTimer(debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs || !relevant(ev.Op) {
				continue
			}
			timer.Reset(debounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warnw("watch error", "error", err)

		case <-timer.C:
			fn()
		}
	}
}

func relevant(op fsnotify.Op) bool {
	return op.Has(fsnotify.Write) || op.Has(fsnotify.Create)
}
