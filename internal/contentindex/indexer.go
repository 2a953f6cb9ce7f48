package contentindex

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/inkwellapp/inkwell-server/internal/domain"
	"github.com/inkwellapp/inkwell-server/internal/epub"
	"github.com/inkwellapp/inkwell-server/internal/logger"
	"github.com/inkwellapp/inkwell-server/internal/normalize"
)

// Store is the persistence the indexer needs. Loads return (nil, nil) for
// absent values; implementations also report schema-version mismatches as
// absent.
type Store interface {
	GetContentRecord(ctx context.Context, bookID string) (*Record, error)
	PutContentRecord(ctx context.Context, record *Record) error
	DeleteContentRecord(ctx context.Context, bookID string) error
	GetContentManifest(ctx context.Context) (*Manifest, error)
	PutContentManifest(ctx context.Context, manifest *Manifest) error
}

// PayloadLoader fetches a book's raw EPUB bytes.
type PayloadLoader func(ctx context.Context, book *domain.Book) ([]byte, error)

// CancelFunc is a polled cooperative cancellation check. It is queried
// before each unit of work; once it returns true no further writes occur.
type CancelFunc func() bool

// NeverCancel is the no-op cancellation check.
func NeverCancel() bool { return false }

// Indexer builds per-book content index records and keeps the manifest
// consistent with the library.
//
// Batches are serialized: the manifest is read-modify-write state, and both
// the debounced background rebuild and on-demand indexing during in-book
// search go through the same instance.
type Indexer struct {
	store  Store
	load   PayloadLoader
	logger *logger.Logger

	mu sync.Mutex
}

// NewIndexer creates a content indexer.
func NewIndexer(store Store, load PayloadLoader, logger *logger.Logger) *Indexer {
	return &Indexer{store: store, load: load, logger: logger}
}

// IndexBatch reconciles the content index with the given book collection.
// Manifest entries for books that are gone or trashed are pruned first,
// then each remaining book needing a rebuild is indexed sequentially, with
// the manifest persisted after every successful book so a crash mid-batch
// loses at most one book's progress.
//
// A single book's parse failure is logged and skipped; storage failures
// abort the batch and propagate.
func (ix *Indexer) IndexBatch(ctx context.Context, books []*domain.Book, cancel CancelFunc) error {
	if cancel == nil {
		cancel = NeverCancel
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	manifest, err := ix.store.GetContentManifest(ctx)
	if err != nil {
		return fmt.Errorf("load content manifest: %w", err)
	}
	if manifest == nil {
		manifest = NewManifest()
	}

	active := make(map[string]*domain.Book, len(books))
	for _, book := range books {
		if !book.InTrash() {
			active[book.ID] = book
		}
	}

	// Prune entries for books no longer in the active library.
	pruned := false
	for bookID := range manifest.Books {
		if _, ok := active[bookID]; ok {
			continue
		}
		if cancel() {
			return nil
		}
		if err := ix.store.DeleteContentRecord(ctx, bookID); err != nil {
			return fmt.Errorf("delete stale content record %s: %w", bookID, err)
		}
		delete(manifest.Books, bookID)
		pruned = true
	}
	if pruned {
		if cancel() {
			return nil
		}
		if err := ix.store.PutContentManifest(ctx, manifest); err != nil {
			return fmt.Errorf("persist content manifest: %w", err)
		}
	}

	// Index each book whose payload signature diverged from the manifest.
	for _, book := range books {
		if book.InTrash() {
			continue
		}
		if cancel() {
			return nil
		}
		if err := ix.indexLocked(ctx, book, manifest); err != nil {
			return err
		}
	}

	return nil
}

// IndexBook indexes a single book if its signature diverged from the
// manifest. Used for on-demand indexing during in-book search; unlike
// IndexBatch it leaves the rest of the manifest untouched.
func (ix *Indexer) IndexBook(ctx context.Context, book *domain.Book) error {
	if book.InTrash() {
		return nil
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	manifest, err := ix.store.GetContentManifest(ctx)
	if err != nil {
		return fmt.Errorf("load content manifest: %w", err)
	}
	if manifest == nil {
		manifest = NewManifest()
	}

	return ix.indexLocked(ctx, book, manifest)
}

// indexLocked rebuilds one book's record when its signature diverged from
// the manifest, persisting the record and then the manifest entry. A parse
// failure is logged and skipped; storage failures propagate. Callers hold
// ix.mu.
func (ix *Indexer) indexLocked(ctx context.Context, book *domain.Book, manifest *Manifest) error {
	signature := Signature(book.Payload)
	if entry, ok := manifest.Books[book.ID]; ok && entry.Signature == signature {
		return nil
	}

	record, err := ix.buildRecord(ctx, book, signature)
	if err != nil {
		ix.logger.Warn("content indexing failed for book, skipping",
			"book_id", book.ID,
			"title", book.Title,
			"error", err,
		)
		return nil
	}

	if err := ix.store.PutContentRecord(ctx, record); err != nil {
		return fmt.Errorf("persist content record %s: %w", book.ID, err)
	}
	manifest.Books[book.ID] = ManifestEntry{
		Signature:    signature,
		SectionCount: len(record.Sections),
		UpdatedAt:    record.BuiltAt,
	}
	if err := ix.store.PutContentManifest(ctx, manifest); err != nil {
		return fmt.Errorf("persist content manifest: %w", err)
	}

	ix.logger.Debug("indexed book content",
		"book_id", book.ID,
		"sections", len(record.Sections),
	)
	return nil
}

// buildRecord opens the book's EPUB and extracts one section per linear
// spine item. Every loaded section is unloaded again even on error, and
// the document model is released on all paths.
func (ix *Indexer) buildRecord(ctx context.Context, book *domain.Book, signature string) (*Record, error) {
	payload, err := ix.load(ctx, book)
	if err != nil {
		return nil, fmt.Errorf("load payload: %w", err)
	}

	doc, err := epub.OpenDocument(payload)
	if err != nil {
		return nil, fmt.Errorf("open document: %w", err)
	}
	defer doc.Close()

	toc, err := doc.Navigation()
	if err != nil {
		// A broken TOC costs chapter labels, not the index.
		ix.logger.Debug("navigation load failed", "book_id", book.ID, "error", err)
		toc = nil
	}

	record := &Record{
		Version:   SchemaVersion,
		BookID:    book.ID,
		Signature: signature,
		BuiltAt:   time.Now(),
	}

	for i, item := range doc.Spine() {
		if !item.Linear {
			continue
		}
		text := extractSectionText(item)
		if text == "" {
			continue
		}
		href := epub.NormalizeHref(item.Href)
		sectionID := item.ID
		if sectionID == "" {
			sectionID = fmt.Sprintf("section-%d", i)
		}
		record.Sections = append(record.Sections, Section{
			ID:           sectionID,
			Href:         href,
			ChapterLabel: chapterLabel(toc, href),
			Preview:      makePreview(text),
			Text:         text,
		})
	}

	return record, nil
}

// extractSectionText loads a spine item, extracts its normalized body
// text, and always unloads it again.
func extractSectionText(item *epub.SpineItem) string {
	defer item.Unload()
	content, err := item.Load()
	if err != nil {
		return ""
	}
	return normalize.SearchText(epub.ExtractText(content))
}

// chapterLabel resolves a section's chapter label by finding a TOC entry
// whose normalized href substring-matches the section href in either
// direction. Approximate on aliased paths, kept behind this function so a
// stricter path-equivalence check can be swapped in without touching
// callers.
func chapterLabel(toc []epub.TOCEntry, href string) string {
	if href == "" {
		return ""
	}
	for _, entry := range toc {
		if entry.Href == "" {
			continue
		}
		if strings.Contains(entry.Href, href) || strings.Contains(href, entry.Href) {
			return entry.Label
		}
	}
	return ""
}
