package config

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"vaultredact/observability"
)

// WatchFile invokes onChange with the file's contents whenever it is written
// or replaced, until ctx is cancelled. The parent directory is watched so
// atomic rename-into-place updates are seen too.
func WatchFile(ctx context.Context, path string, log observability.Logger, onChange func([]byte)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return err
	}
	target := filepath.Clean(path)

	go func() {
		defer watcher.Close()
		// Editors often fire several events per save; debounce.
		var pending *time.Timer
		fire := func() {
			data, err := os.ReadFile(target)
			if err != nil {
				log.Warn("reload skipped, file unreadable",
					observability.String("path", target),
					observability.Error("error", err))
				return
			}
			onChange(data)
		}
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				if pending != nil {
					pending.Stop()
				}
				pending = time.AfterFunc(200*time.Millisecond, fire)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warn("file watcher error", observability.Error("error", err))
			}
		}
	}()
	return nil
}
