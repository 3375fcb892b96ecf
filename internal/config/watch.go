package config

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// reloadDebounce batches the burst of events editors produce on save.
const reloadDebounce = 200 * time.Millisecond

// Watch reloads the settings file at path whenever it changes and passes every valid
// configuration to onChange. Invalid files are logged and skipped. The watch ends
// when ctx is cancelled.
func Watch(ctx context.Context, path string, lookup func(string) (string, bool), onChange func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	// Watch the directory: editors often replace the file instead of writing it.
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		watcher.Close()
		return err
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return err
	}

	go func() {
		defer watcher.Close()

		timer := time.NewTimer(reloadDebounce)
		timer.Stop()
		defer timer.Stop()

		for {
			select {
			case <-ctx.Done():
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(path) {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
					continue
				}
				timer.Reset(reloadDebounce)

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warn().Err(err).Str("path", path).Msg("Settings watcher error")

			case <-timer.C:
				cfg, err := LoadFile(path, lookup)
				if err != nil {
					log.Warn().Err(err).Str("path", path).Msg("Ignoring invalid settings change")
					continue
				}
				log.Info().Str("path", path).Msg("Settings reloaded")
				onChange(cfg)
			}
		}
	}()

	return nil
}
