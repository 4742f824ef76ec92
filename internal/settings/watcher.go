// ABOUTME: fsnotify watcher that invalidates the cached settings document on disk changes
// ABOUTME: Watches the parent directory so editor rename-and-replace saves are seen

package settings

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watcher invalidates a Store whenever its file changes.
type Watcher struct {
	store   *Store
	watcher *fsnotify.Watcher
	name    string
	logger  *slog.Logger
}

// NewWatcher starts watching the directory containing the store's file.
func NewWatcher(store *Store, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating settings watcher: %w", err)
	}
	dir := filepath.Dir(store.Path())
	if err := fw.Add(dir); err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("watching %s: %w", dir, err)
	}
	return &Watcher{
		store:   store,
		watcher: fw,
		name:    filepath.Base(store.Path()),
		logger:  logger.With("component", "settings-watcher"),
	}, nil
}

// Run processes file events until ctx is canceled or Close is called.
func (w *Watcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) != w.name {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) || ev.Has(fsnotify.Remove) {
				w.logger.Debug("settings file changed", "op", ev.Op.String())
				w.store.Invalidate()
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("settings watcher error", "error", err)
		}
	}
}

// Close stops watching. Safe to call once Run has returned or is running.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
