package providers

import (
	"io"
	"testing"

	"github.com/samber/do/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkwellapp/inkwell-server/internal/config"
	"github.com/inkwellapp/inkwell-server/internal/contentindex"
	"github.com/inkwellapp/inkwell-server/internal/logger"
	"github.com/inkwellapp/inkwell-server/internal/service"
	"github.com/inkwellapp/inkwell-server/internal/sse"
	"github.com/inkwellapp/inkwell-server/internal/store"
	"github.com/inkwellapp/inkwell-server/internal/worker"
)

// The index and search services must resolve to the same content indexer
// so on-demand indexing and batch rebuilds serialize manifest updates.
func TestServicesShareOneContentIndexer(t *testing.T) {
	st, err := store.NewInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	log := logger.New(logger.Config{Writer: io.Discard, Format: "json"})
	pool := worker.NewPool(1, log)
	t.Cleanup(pool.Stop)

	injector := do.New()
	do.ProvideValue(injector, &config.Config{Data: config.DataConfig{BasePath: t.TempDir()}})
	do.ProvideValue(injector, log)
	do.ProvideValue(injector, &StoreHandle{Store: st})
	do.ProvideValue(injector, &WorkerPoolHandle{Pool: pool})
	do.ProvideValue(injector, &SSEManagerHandle{Manager: sse.NewManager(log.Logger)})
	do.Provide(injector, ProvideLibraryService)
	do.Provide(injector, ProvideContentIndexer)
	do.Provide(injector, ProvideIndexService)
	do.Provide(injector, ProvideSearchService)

	index := do.MustInvoke[*service.IndexService](injector)
	t.Cleanup(index.Stop)
	_ = do.MustInvoke[*service.SearchService](injector)

	first := do.MustInvoke[*contentindex.Indexer](injector)
	second := do.MustInvoke[*contentindex.Indexer](injector)
	assert.Same(t, first, second)
}
