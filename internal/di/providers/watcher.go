package providers

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/samber/do/v2"

	"github.com/inkwellapp/inkwell-server/internal/config"
	"github.com/inkwellapp/inkwell-server/internal/logger"
	"github.com/inkwellapp/inkwell-server/internal/service"
	"github.com/inkwellapp/inkwell-server/internal/watcher"
)

// ImportWatcherHandle wraps the import watcher with lifecycle management.
// Service is nil when no import directory is configured.
type ImportWatcherHandle struct {
	*watcher.Watcher
	cancel context.CancelFunc
}

// Shutdown implements do.Shutdownable.
func (h *ImportWatcherHandle) Shutdown() error {
	if h.Watcher == nil {
		return nil
	}
	h.cancel()
	h.Stop()
	return nil
}

// ProvideImportWatcher provides the import-directory watcher. Settled
// EPUB files are imported and then removed from the watch directory, so a
// file is never imported twice.
func ProvideImportWatcher(i do.Injector) (*ImportWatcherHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	library := do.MustInvoke[*service.LibraryService](i)

	if cfg.Import.WatchPath == "" {
		log.Info("Import watcher disabled - no import path configured")
		return &ImportWatcherHandle{}, nil
	}

	onFile := func(ctx context.Context, path string) error {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read import file: %w", err)
		}
		if _, err := library.Import(ctx, filepath.Base(path), data); err != nil {
			return err
		}
		if err := os.Remove(path); err != nil {
			log.Warn("imported file could not be removed from watch dir",
				"path", path,
				"error", err,
			)
		}
		return nil
	}

	w, err := watcher.New(cfg.Import.WatchPath, onFile, log.Logger)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		if err := w.Start(ctx); err != nil {
			log.Warn("import watcher stopped", "error", err)
		}
	}()

	log.Info("Import watcher started", "path", cfg.Import.WatchPath)

	return &ImportWatcherHandle{Watcher: w, cancel: cancel}, nil
}
