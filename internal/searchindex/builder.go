package searchindex

import (
	"context"
	"fmt"
	"time"

	"github.com/inkwellapp/inkwell-server/internal/domain"
	"github.com/inkwellapp/inkwell-server/internal/logger"
)

// Store persists the aggregate snapshot. Get returns (nil, nil) when
// absent; implementations report schema-version mismatches as absent.
type Store interface {
	GetSearchSnapshot(ctx context.Context) (*Snapshot, error)
	PutSearchSnapshot(ctx context.Context, snapshot *Snapshot) error
}

// Builder maintains the search index snapshot against the book collection.
type Builder struct {
	store  Store
	logger *logger.Logger
}

// NewBuilder creates a search index builder.
func NewBuilder(store Store, logger *logger.Logger) *Builder {
	return &Builder{store: store, logger: logger}
}

// Rebuild reconciles the snapshot with the current book collection.
// Records whose content signature is unchanged are reused as-is; only
// diverged records are rebuilt. The snapshot is persisted when any record
// changed or the set of book ids differs from the previous snapshot
// (which covers deletions). An empty collection persists as an empty
// snapshot.
func (b *Builder) Rebuild(ctx context.Context, books []*domain.Book) (*Snapshot, error) {
	previous, err := b.store.GetSearchSnapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("load search snapshot: %w", err)
	}
	// The very first rebuild persists even when the library is empty, so
	// an empty snapshot exists from then on.
	firstBuild := previous == nil
	if firstBuild {
		previous = NewSnapshot()
	}

	now := time.Now()
	next := NewSnapshot()
	next.UpdatedAt = previous.UpdatedAt

	changed := false
	rebuilt := 0
	for _, book := range books {
		if book.InTrash() {
			continue
		}
		signature := ContentSignature(book)
		if prev, ok := previous.Records[book.ID]; ok && prev.Signature == signature {
			next.Records[book.ID] = prev
			continue
		}
		next.Records[book.ID] = buildRecord(book, signature, now)
		rebuilt++
		changed = true
	}

	if firstBuild || len(next.Records) != len(previous.Records) {
		changed = true
	}

	if changed {
		next.UpdatedAt = now
		if err := b.store.PutSearchSnapshot(ctx, next); err != nil {
			return nil, fmt.Errorf("persist search snapshot: %w", err)
		}
		b.logger.Debug("search snapshot rebuilt",
			"records", len(next.Records),
			"rebuilt", rebuilt,
		)
	}

	return next, nil
}
