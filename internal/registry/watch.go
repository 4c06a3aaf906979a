package registry

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watch reloads the catalog whenever the override file changes on disk.
// Editors running against a stale catalog pick up new section rules
// without a restart. Returns a stop function; onReload (optional) runs
// after every successful reload.
func (r *Registry) Watch(ctx context.Context, path string, logger *zap.Logger, onReload func()) (func(), error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// Watch the directory: editors replace files on save, which drops
	// a watch on the file itself.
	if err := watcher.Add(filepath.Dir(absPath)); err != nil {
		watcher.Close()
		return nil, err
	}

	watchCtx, cancel := context.WithCancel(ctx)
	go func() {
		var debounce *time.Timer
		for {
			select {
			case <-watchCtx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				if name, _ := filepath.Abs(event.Name); name != absPath {
					continue
				}
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(500*time.Millisecond, func() {
					if err := r.LoadFile(absPath); err != nil {
						logger.Warn("catalog reload failed", zap.String("path", absPath), zap.Error(err))
						return
					}
					logger.Info("catalog reloaded", zap.String("path", absPath))
					if onReload != nil {
						onReload()
					}
				})
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("catalog watcher error", zap.Error(err))
			}
		}
	}()

	stop := func() {
		cancel()
		watcher.Close()
	}
	return stop, nil
}
