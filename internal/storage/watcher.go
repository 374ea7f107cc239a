package storage

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Change kinds reported by Watch.
const (
	ChangeUpdated = "updated"
	ChangeDeleted = "deleted"
)

const watchDebounce = 150 * time.Millisecond

// ChangeCallback is called once per user after a burst of external changes
// to that user's document settles.
type ChangeCallback func(kind string, user string)

// Watch observes the FS documents directory until ctx is cancelled and
// reports documents changed by something other than this provider (another
// process, a manual edit, a sync tool). Writes made through f.Save are not
// reported.
func Watch(ctx context.Context, f *FS, logger *slog.Logger, cb ChangeCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(f.root); err != nil {
		return err
	}
	logger.Info("watcher: started", slog.String("root", f.root))

	pending := make(map[string]struct{})
	var flushTimer *time.Timer
	var flushCh <-chan time.Time

	schedule := func(user string) {
		pending[user] = struct{}{}
		if flushTimer == nil {
			flushTimer = time.NewTimer(watchDebounce)
			flushCh = flushTimer.C
		} else {
			flushTimer.Reset(watchDebounce)
		}
	}

	flush := func() {
		for user := range pending {
			delete(pending, user)
			path, err := f.docPath(user)
			if err != nil {
				continue
			}
			data, readErr := os.ReadFile(path)
			switch {
			case errors.Is(readErr, os.ErrNotExist):
				logger.Debug("watcher: document removed", slog.String("user", user))
				if cb != nil {
					cb(ChangeDeleted, user)
				}
			case readErr != nil:
				logger.Warn("watcher: read failed", slog.String("user", user), slog.String("error", readErr.Error()))
			case f.writtenByUs(user, data):
				// Our own Save; already announced by the writer.
			default:
				logger.Debug("watcher: external change", slog.String("user", user))
				if cb != nil {
					cb(ChangeUpdated, user)
				}
			}
		}
	}

	for {
		select {
		case <-ctx.Done():
			if flushTimer != nil {
				flushTimer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-flushCh:
			flush()

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if user := f.userFromPath(ev.Name); user != "" {
				schedule(user)
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}
