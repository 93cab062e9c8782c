// Package watch reloads the catalog when its document is edited on disk.
package watch

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/example/anime-bot/services/bot/internal/catalog"
)

type Source interface {
	LoadCatalogIfChanged(ctx context.Context) (*catalog.Snapshot, bool, error)
}

type Target interface {
	Replace(snap *catalog.Snapshot)
}

// CatalogWatcher watches the directory holding the catalog document, since
// saves replace the file by rename.
type CatalogWatcher struct {
	Path     string
	Source   Source
	Target   Target
	Debounce time.Duration
	Log      *zap.Logger
}

func (w *CatalogWatcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	dir, name := filepath.Split(w.Path)
	if dir == "" {
		dir = "."
	}
	if err := watcher.Add(dir); err != nil {
		return err
	}
	debounce := w.Debounce
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	w.Log.Info("catalog watcher started", zap.String("path", w.Path))

	timer := time.NewTimer(debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != name || !event.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
				continue
			}
			timer.Reset(debounce)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.Log.Warn("catalog watcher error", zap.Error(err))
		case <-timer.C:
			w.reload(ctx)
		}
	}
}

func (w *CatalogWatcher) reload(ctx context.Context) {
	snap, changed, err := w.Source.LoadCatalogIfChanged(ctx)
	if err != nil {
		w.Log.Warn("catalog reload failed", zap.Error(err))
		return
	}
	if !changed {
		return
	}
	w.Target.Replace(snap)
	w.Log.Info("catalog reloaded", zap.Int("titles", snap.Len()))
}
