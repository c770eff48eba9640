package keyset

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// WatchFile refreshes r whenever the file at path is written, created or
// renamed into place. It watches the parent directory so atomic
// write-and-rename updates are observed. WatchFile blocks until ctx is done.
func WatchFile(ctx context.Context, path string, r Refresher, log *slog.Logger) error {
	if log == nil {
		log = slog.Default()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve jwks path: %w", err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()

	if err := w.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}
	log.InfoContext(ctx, "keyset.watch.start", slog.String("path", abs))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if err := r.Refresh(ctx); err != nil {
				log.WarnContext(ctx, "keyset.watch.refresh.fail", slog.String("err", err.Error()))
				continue
			}
			log.InfoContext(ctx, "keyset.watch.refresh.ok", slog.String("op", ev.Op.String()))
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.WarnContext(ctx, "keyset.watch.err", slog.String("err", err.Error()))
		}
	}
}
