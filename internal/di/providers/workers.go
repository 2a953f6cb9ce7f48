package providers

import (
	"github.com/samber/do/v2"

	"github.com/inkwellapp/inkwell-server/internal/config"
	"github.com/inkwellapp/inkwell-server/internal/logger"
	"github.com/inkwellapp/inkwell-server/internal/worker"
)

// WorkerPoolHandle wraps the worker pool with shutdown capability.
type WorkerPoolHandle struct {
	*worker.Pool
}

// Shutdown implements do.Shutdownable.
func (h *WorkerPoolHandle) Shutdown() error {
	h.Stop()
	return nil
}

// ProvideWorkerPool provides the background worker pool shared by
// metadata extraction and in-book search.
func ProvideWorkerPool(i do.Injector) (*WorkerPoolHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	pool := worker.NewPool(cfg.Index.Workers, log)
	log.Info("Worker pool started", "workers", cfg.Index.Workers)

	return &WorkerPoolHandle{Pool: pool}, nil
}
