package config

import (
	"context"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// WatchSources reloads the sources file on every write and passes the result
// to onChange. A file that fails to load is logged and the previous sources
// stay active. Runs until ctx is cancelled.
func WatchSources(ctx context.Context, path string, log *zap.Logger, onChange func(*SourcesFile)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		return err
	}

	log.Info("Watching sources file", zap.String("path", path))

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			// editors often save via rename, so Create counts too
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			file, err := LoadSources(path)
			if err != nil {
				log.Error("Sources reload failed, keeping previous sources",
					zap.String("path", path),
					zap.Error(err))
				continue
			}

			log.Info("Sources reloaded",
				zap.String("path", path),
				zap.Int("source_count", len(file.Sources)))
			onChange(file)

			_ = watcher.Add(path)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Error("Sources watcher error", zap.Error(err))
		}
	}
}
