package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads the provider when rule documents change on disk.
// Events are debounced so an editor save burst triggers one reload.
type Watcher struct {
	provider *Provider
	dir      string
	debounce time.Duration
	fsw      *fsnotify.Watcher
	logger   *slog.Logger

	// OnSwap, when set, runs after every successful reload.
	OnSwap func(c *Catalogue)
}

// NewWatcher watches dir and its immediate subdirectories.
func NewWatcher(provider *Provider, dir string, logger *slog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	subdirs, _ := filepath.Glob(filepath.Join(dir, "*"))
	for _, sub := range subdirs {
		// non-directories are rejected by fsnotify; ignore
		_ = fsw.Add(sub)
	}
	return &Watcher{
		provider: provider,
		dir:      dir,
		debounce: 250 * time.Millisecond,
		fsw:      fsw,
		logger:   logger,
	}, nil
}

// Run blocks until ctx is cancelled, reloading on relevant changes.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsw.Close()

	var timer *time.Timer
	fire := make(chan struct{}, 1)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if !relevant(event) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("catalogue watcher error", "error", err)
		case <-fire:
			c, err := w.provider.Reload()
			if err != nil {
				// keep serving the previous snapshot
				w.logger.Error("catalogue reload failed", "dir", w.dir, "error", err)
				continue
			}
			w.logger.Info("catalogue reloaded", "version", c.Version(), "rules", c.Len())
			if w.OnSwap != nil {
				w.OnSwap(c)
			}
		}
	}
}

func relevant(event fsnotify.Event) bool {
	if !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Write) &&
		!event.Op.Has(fsnotify.Remove) && !event.Op.Has(fsnotify.Rename) {
		return false
	}
	ext := filepath.Ext(event.Name)
	return ext == ".yaml" || ext == ".yml"
}
