package tail

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// fallbackInterval bounds how long a watch waits for events before letting
// the tailer re-check the file anyway. Writes can be missed around renames
// and rotation.
var fallbackInterval = time.Second

// watch wakes a tailer when its file is written to, using an fsnotify
// watcher over the file's directory.
type watch struct {
	w    *fsnotify.Watcher
	path string
	log  *zap.Logger
}

// tryWatch attempts to watch the directory containing path. It returns nil
// if the watcher cannot be set up so the caller can fall back to polling.
func tryWatch(path string, log *zap.Logger) *watch {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		log.Warn("not watching, falling back to polling", zap.Error(err))
		return nil
	}

	if err := w.Add(filepath.Dir(path)); err != nil {
		w.Close()
		log.Warn("cannot watch dir, falling back to polling",
			zap.String("dir", filepath.Dir(path)), zap.Error(err))
		return nil
	}

	return &watch{w: w, path: path, log: log}
}

// wait blocks until the watched file changes or the fallback interval
// elapses. It returns an error only when ctx is canceled.
func (w *watch) wait(ctx context.Context) error {
	timer := time.NewTimer(fallbackInterval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-timer.C:
			return nil

		case err := <-w.w.Errors:
			w.log.Warn("inotify error", zap.Error(err))

		case evt := <-w.w.Events:
			if evt.Name != w.path {
				continue
			}
			if evt.Op.Has(fsnotify.Write) || evt.Op.Has(fsnotify.Create) {
				return nil
			}
		}
	}
}

func (w *watch) Close() error {
	return w.w.Close()
}
