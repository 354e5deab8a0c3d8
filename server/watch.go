package server

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// WatchConfig reloads the config file at path whenever it changes and
// delivers each valid result on the returned channel. Invalid files are
// logged and skipped. The channel is closed when ctx is done.
//
// The parent directory is watched rather than the file so that editors
// that replace the file by rename are seen.
func WatchConfig(ctx context.Context, path string) (<-chan Config, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(path), err)
	}

	ch := make(chan Config, 1)
	go func() {
		defer close(ch)
		defer watcher.Close()

		baseName := filepath.Base(path)
		for {
			select {
			case <-ctx.Done():
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(event.Name) != baseName {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}

				cfg, err := LoadConfig(path)
				if err != nil {
					slog.Warn("ignoring config change", slog.String("path", path), slog.Any("error", err))
					continue
				}

				// Keep only the newest config if the reader is behind.
				select {
				case <-ch:
				default:
				}
				select {
				case ch <- cfg:
				case <-ctx.Done():
					return
				}

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Warn("config watcher error", slog.Any("error", err))
			}
		}
	}()

	return ch, nil
}
