package config

import (
	"context"
	"log"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const reloadDebounce = 200 * time.Millisecond

// Watch reloads the config file at path whenever it changes and hands the
// new configuration to onChange. Invalid files are logged and skipped.
// Watch blocks until ctx is cancelled.
func Watch(ctx context.Context, path string, onChange func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// Editors often replace the file, so watch the directory rather than
	// the file itself.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return err
	}

	target := filepath.Clean(path)
	var pending <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				pending = time.After(reloadDebounce)
			}

		case <-pending:
			pending = nil
			cfg, err := Load(path)
			if err != nil {
				log.Printf("Config reload failed: %v", err)
				continue
			}
			if err := cfg.Validate(); err != nil {
				log.Printf("Ignoring invalid config %s: %v", path, err)
				continue
			}
			log.Printf("Config reloaded from %s", path)
			onChange(cfg)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Printf("Config watcher error: %v", err)
		}
	}
}
