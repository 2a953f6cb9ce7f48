package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/inkwellapp/inkwell-server/internal/contentindex"
	"github.com/inkwellapp/inkwell-server/internal/searchindex"
	"github.com/inkwellapp/inkwell-server/internal/sse"
	"github.com/inkwellapp/inkwell-server/internal/store"
)

// rebuildDebounce is how long the index service waits after the last
// library change before rebuilding. Bursts of imports coalesce into a
// single rebuild.
const rebuildDebounce = 3 * time.Second

// IndexService keeps the derived indexes consistent with the library.
// Rebuilds are generation-stamped: starting a new rebuild cancels the one
// in flight through the indexer's polled cancellation check, so a stale
// batch never overwrites fresher state.
type IndexService struct {
	store   *store.Store
	indexer *contentindex.Indexer
	builder *searchindex.Builder
	events  EventEmitter
	logger  *slog.Logger

	generation atomic.Int64

	mu    sync.Mutex
	timer *time.Timer
}

// NewIndexService creates the index service.
func NewIndexService(st *store.Store, indexer *contentindex.Indexer, builder *searchindex.Builder, events EventEmitter, logger *slog.Logger) *IndexService {
	if events == nil {
		events = NewNoopEmitter()
	}
	return &IndexService{
		store:   st,
		indexer: indexer,
		builder: builder,
		events:  events,
		logger:  logger,
	}
}

// Rebuild reconciles both indexes with the current library: the content
// index is pruned and incrementally rebuilt, then the search snapshot is
// refreshed. Safe to call concurrently; a later call cancels an earlier
// one mid-batch.
func (s *IndexService) Rebuild(ctx context.Context) error {
	gen := s.generation.Add(1)
	cancelled := func() bool {
		return s.generation.Load() != gen || ctx.Err() != nil
	}

	books, err := s.store.ListBooks(ctx)
	if err != nil {
		return fmt.Errorf("list books: %w", err)
	}

	start := time.Now()
	s.events.Emit(sse.NewRebuildStartedEvent())
	if err := s.indexer.IndexBatch(ctx, books, cancelled); err != nil {
		return fmt.Errorf("content index batch: %w", err)
	}
	if cancelled() {
		s.logger.Debug("index rebuild superseded", "generation", gen)
		return nil
	}

	if _, err := s.builder.Rebuild(ctx, books); err != nil {
		return fmt.Errorf("search snapshot rebuild: %w", err)
	}

	s.logger.Info("index rebuild complete",
		"books", len(books),
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	s.events.Emit(sse.NewRebuildCompletedEvent(len(books), time.Since(start).Round(time.Millisecond)))
	return nil
}

// NotifyChange schedules a rebuild after a quiet period. Wired as the
// library service's change callback.
func (s *IndexService) NotifyChange() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(rebuildDebounce, func() {
		if err := s.Rebuild(context.Background()); err != nil {
			s.logger.Warn("background index rebuild failed", "error", err)
		}
	})
}

// Stop cancels any pending debounced rebuild and supersedes a running one.
func (s *IndexService) Stop() {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()
	s.generation.Add(1)
}
