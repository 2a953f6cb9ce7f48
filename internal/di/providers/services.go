package providers

import (
	"context"

	"github.com/samber/do/v2"

	"github.com/inkwellapp/inkwell-server/internal/config"
	"github.com/inkwellapp/inkwell-server/internal/contentindex"
	"github.com/inkwellapp/inkwell-server/internal/logger"
	"github.com/inkwellapp/inkwell-server/internal/searchindex"
	"github.com/inkwellapp/inkwell-server/internal/service"
)

// ProvideLibraryService provides the library service.
func ProvideLibraryService(i do.Injector) (*service.LibraryService, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	poolHandle := do.MustInvoke[*WorkerPoolHandle](i)
	sseHandle := do.MustInvoke[*SSEManagerHandle](i)

	return service.NewLibraryService(storeHandle.Store, poolHandle.Pool, sseHandle.Manager, cfg.LibraryPath(), log.Logger), nil
}

// ProvideContentIndexer provides the single content indexer shared by the
// index and search services. One instance means the on-demand per-book
// indexing done during in-book search and the debounced batch rebuild
// serialize their manifest updates instead of interleaving read-modify-writes.
func ProvideContentIndexer(i do.Injector) (*contentindex.Indexer, error) {
	log := do.MustInvoke[*logger.Logger](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	library := do.MustInvoke[*service.LibraryService](i)

	return contentindex.NewIndexer(storeHandle.Store, library.PayloadLoader(), log), nil
}

// ProvideIndexService provides the index service wired to the library's
// payload loader and the change debouncer.
func ProvideIndexService(i do.Injector) (*service.IndexService, error) {
	log := do.MustInvoke[*logger.Logger](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	library := do.MustInvoke[*service.LibraryService](i)
	sseHandle := do.MustInvoke[*SSEManagerHandle](i)
	indexer := do.MustInvoke[*contentindex.Indexer](i)

	builder := searchindex.NewBuilder(storeHandle.Store, log)

	index := service.NewIndexService(storeHandle.Store, indexer, builder, sseHandle.Manager, log.Logger)
	library.SetOnChange(index.NotifyChange)

	return index, nil
}

// ProvideSearchService provides the search service.
func ProvideSearchService(i do.Injector) (*service.SearchService, error) {
	log := do.MustInvoke[*logger.Logger](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	poolHandle := do.MustInvoke[*WorkerPoolHandle](i)
	indexer := do.MustInvoke[*contentindex.Indexer](i)

	return service.NewSearchService(storeHandle.Store, poolHandle.Pool, indexer, log.Logger), nil
}

// RunStartupTasks retries pending metadata extractions and reconciles the
// indexes with the library. Called once after bootstrap.
func RunStartupTasks(i do.Injector) {
	log := do.MustInvoke[*logger.Logger](i)
	library := do.MustInvoke[*service.LibraryService](i)
	index := do.MustInvoke[*service.IndexService](i)

	ctx := context.Background()
	if err := library.Backfill(ctx); err != nil {
		log.Warn("metadata backfill failed", "error", err)
	}
	go func() {
		if err := index.Rebuild(ctx); err != nil {
			log.Warn("startup index rebuild failed", "error", err)
		}
	}()
}
