package templates

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

const reloadDelay = 200 * time.Millisecond

// Watch reloads the user template directory whenever a .yaml file in it
// changes, until ctx is cancelled. Bursts of events are debounced into a
// single reload. onReload, if non-nil, runs after each reload.
func (c *Catalogue) Watch(ctx context.Context, logger *slog.Logger, onReload func()) error {
	if c.dir == "" {
		<-ctx.Done()
		return nil
	}
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(c.dir); err != nil {
		return err
	}
	logger.Info("templates: watching", slog.String("dir", c.dir))

	var timer *time.Timer
	var timerCh <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			logger.Info("templates: watcher stopped")
			return nil

		case <-timerCh:
			timerCh = nil
			c.Reload(logger)
			if onReload != nil {
				onReload()
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !strings.HasSuffix(filepath.Base(ev.Name), ".yaml") {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(reloadDelay)
			} else {
				timer.Reset(reloadDelay)
			}
			timerCh = timer.C

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("templates: watcher error", slog.String("error", watchErr.Error()))
		}
	}
}
