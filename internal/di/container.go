// Package di provides dependency injection configuration for the Inkwell server.
package di

import (
	"github.com/samber/do/v2"

	"github.com/inkwellapp/inkwell-server/internal/config"
	"github.com/inkwellapp/inkwell-server/internal/di/providers"
	"github.com/inkwellapp/inkwell-server/internal/logger"
	"github.com/inkwellapp/inkwell-server/internal/service"
)

// NewContainer creates and configures the DI container with all providers.
func NewContainer() *do.RootScope {
	injector := do.New()

	// Core infrastructure
	do.Provide(injector, providers.ProvideConfig)
	do.Provide(injector, providers.ProvideLogger)

	// Database layer
	do.Provide(injector, providers.ProvideStore)

	// Workers
	do.Provide(injector, providers.ProvideWorkerPool)

	// Event broadcasting
	do.Provide(injector, providers.ProvideSSEManager)

	// Business services
	do.Provide(injector, providers.ProvideLibraryService)
	do.Provide(injector, providers.ProvideContentIndexer)
	do.Provide(injector, providers.ProvideIndexService)
	do.Provide(injector, providers.ProvideSearchService)

	// Import watcher
	do.Provide(injector, providers.ProvideImportWatcher)

	// Server
	do.Provide(injector, providers.ProvideHTTPServer)

	return injector
}

// Bootstrap initializes all services and returns once the server is
// running. This triggers lazy initialization of every provider.
func Bootstrap(injector *do.RootScope) error {
	_ = do.MustInvoke[*config.Config](injector)
	_ = do.MustInvoke[*logger.Logger](injector)
	_ = do.MustInvoke[*providers.StoreHandle](injector)
	_ = do.MustInvoke[*providers.WorkerPoolHandle](injector)
	_ = do.MustInvoke[*providers.SSEManagerHandle](injector)

	_ = do.MustInvoke[*service.LibraryService](injector)
	_ = do.MustInvoke[*service.IndexService](injector)
	_ = do.MustInvoke[*service.SearchService](injector)

	_ = do.MustInvoke[*providers.ImportWatcherHandle](injector)
	_ = do.MustInvoke[*providers.HTTPServerHandle](injector)

	// Retry pending extractions and reconcile indexes with the library.
	providers.RunStartupTasks(injector)

	return nil
}
