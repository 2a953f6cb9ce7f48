// Package service provides the business logic layer for the Inkwell
// library: imports, metadata extraction, annotations, indexing, and search.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/inkwellapp/inkwell-server/internal/domain"
	"github.com/inkwellapp/inkwell-server/internal/epub"
	"github.com/inkwellapp/inkwell-server/internal/errors"
	"github.com/inkwellapp/inkwell-server/internal/genre"
	"github.com/inkwellapp/inkwell-server/internal/id"
	"github.com/inkwellapp/inkwell-server/internal/media/covers"
	"github.com/inkwellapp/inkwell-server/internal/normalize"
	"github.com/inkwellapp/inkwell-server/internal/sse"
	"github.com/inkwellapp/inkwell-server/internal/store"
	"github.com/inkwellapp/inkwell-server/internal/worker"
)

// KindExtractMetadata is the worker request kind for EPUB metadata
// extraction.
const KindExtractMetadata = "metadata.extract"

// extractTimeout bounds a single background extraction.
const extractTimeout = 2 * time.Minute

// extractPayload is the worker payload for a metadata extraction request.
type extractPayload struct {
	BookID   string
	Filename string
	Data     []byte
}

// LibraryService orchestrates book imports and annotation management.
//
// Imports are two-phase: a placeholder book with filename-derived fields is
// persisted immediately so the shelf shows the book at once, then metadata
// extraction runs on the worker pool and fills the record in when it
// completes. Books whose extraction failed keep MetadataPending so the
// backfill pass can retry them.
type LibraryService struct {
	store      *store.Store
	pool       *worker.Pool
	events     EventEmitter
	logger     *slog.Logger
	libraryDir string

	// onChange is notified after any mutation that affects derived
	// indexes. Wired to the index service's change debouncer.
	onChange func()
}

// NewLibraryService creates a library service and registers its worker
// handler. libraryDir is where imported payload files are stored.
func NewLibraryService(st *store.Store, pool *worker.Pool, events EventEmitter, libraryDir string, logger *slog.Logger) *LibraryService {
	if events == nil {
		events = NewNoopEmitter()
	}
	s := &LibraryService{
		store:      st,
		pool:       pool,
		events:     events,
		logger:     logger,
		libraryDir: libraryDir,
	}
	pool.Register(KindExtractMetadata, s.handleExtract)
	return s
}

// SetOnChange installs the library-change callback. Set once during
// bootstrap, before the server starts accepting requests.
func (s *LibraryService) SetOnChange(fn func()) {
	s.onChange = fn
}

func (s *LibraryService) notifyChange() {
	if s.onChange != nil {
		s.onChange()
	}
}

// Import ingests an EPUB payload. The returned book is the placeholder;
// metadata extraction continues in the background.
func (s *LibraryService) Import(ctx context.Context, filename string, data []byte) (*domain.Book, error) {
	if !strings.EqualFold(filepath.Ext(filename), ".epub") {
		return nil, errors.Validationf("unsupported file type %q, expected .epub", filepath.Ext(filename))
	}
	if len(data) == 0 {
		return nil, errors.Validation("empty payload")
	}

	bookID, err := id.Generate("book")
	if err != nil {
		return nil, fmt.Errorf("generate book id: %w", err)
	}

	path := filepath.Join(s.libraryDir, bookID+".epub")
	if err := os.MkdirAll(s.libraryDir, 0o755); err != nil {
		return nil, fmt.Errorf("create library dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, fmt.Errorf("write payload: %w", err)
	}

	book := &domain.Book{
		Payload: domain.PayloadDescriptor{
			Size:         int64(len(data)),
			LastModified: time.Now().UnixMilli(),
			Name:         filepath.Base(filename),
		},
		Path:            path,
		Title:           titleFromFilename(filename),
		Author:          epub.FallbackAuthor,
		MetadataPending: true,
	}
	book.ID = bookID
	book.InitTimestamps()

	if err := s.store.CreateBook(ctx, book); err != nil {
		return nil, fmt.Errorf("create book: %w", err)
	}

	s.extractAsync(book.ID, filename, data)
	s.events.Emit(sse.NewBookCreatedEvent(book))
	s.notifyChange()

	return book, nil
}

// extractAsync runs metadata extraction on the worker pool and applies the
// result when it arrives. Failures leave the placeholder pending.
func (s *LibraryService) extractAsync(bookID, filename string, data []byte) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), extractTimeout)
		defer cancel()

		resp := s.pool.Do(ctx, worker.Request{
			ID:      bookID,
			Kind:    KindExtractMetadata,
			Payload: extractPayload{BookID: bookID, Filename: filename, Data: data},
		})
		if !resp.OK {
			s.logger.Warn("metadata extraction failed, book left pending",
				"book_id", bookID,
				"error", resp.Error,
			)
			return
		}

		result, ok := resp.Payload.(*epub.Result)
		if !ok {
			s.logger.Error("unexpected extraction payload type", "book_id", bookID)
			return
		}

		if err := s.applyExtraction(ctx, bookID, result); err != nil {
			s.logger.Warn("applying extraction result failed",
				"book_id", bookID,
				"error", err,
			)
			return
		}
		s.notifyChange()
	}()
}

// handleExtract is the worker handler for metadata extraction.
func (s *LibraryService) handleExtract(_ context.Context, payload any) (any, error) {
	p, ok := payload.(extractPayload)
	if !ok {
		return nil, fmt.Errorf("unexpected payload type %T", payload)
	}
	return epub.Extract(p.Data, p.Filename)
}

// applyExtraction fills a placeholder book with an extraction result.
func (s *LibraryService) applyExtraction(ctx context.Context, bookID string, result *epub.Result) error {
	book, err := s.store.GetBook(ctx, bookID)
	if err != nil {
		return err
	}

	book.Title = result.Metadata.Title
	book.Author = result.Metadata.Author
	book.Language = normalize.LanguageCode(result.Metadata.Language)
	book.Publisher = result.Metadata.Publisher
	book.PublishDate = result.Metadata.Date
	book.Identifier = result.Metadata.Identifier
	book.Subjects = result.Metadata.Subjects
	book.Genre = result.Genre
	book.GenreSlug = genre.Slugify(result.Genre)
	book.EstimatedPages = result.EstimatedPages
	book.Cover = covers.Process(result.Cover)
	book.MetadataPending = false
	book.Touch()

	if err := s.store.UpdateBook(ctx, book); err != nil {
		return err
	}

	s.logger.Info("book metadata populated",
		"book_id", book.ID,
		"title", book.Title,
		"author", book.Author,
	)
	s.events.Emit(sse.NewBookUpdatedEvent(book))
	return nil
}

// Backfill retries metadata extraction for every book still pending.
// Runs at startup so books whose import crashed mid-extraction recover.
func (s *LibraryService) Backfill(ctx context.Context) error {
	books, err := s.store.ListBooks(ctx)
	if err != nil {
		return fmt.Errorf("list books: %w", err)
	}

	retried := 0
	for _, book := range books {
		if !book.MetadataPending || book.InTrash() {
			continue
		}
		data, err := os.ReadFile(book.Path)
		if err != nil {
			s.logger.Warn("backfill cannot read payload",
				"book_id", book.ID,
				"path", book.Path,
				"error", err,
			)
			continue
		}
		s.extractAsync(book.ID, book.Payload.Name, data)
		retried++
	}

	if retried > 0 {
		s.logger.Info("metadata backfill scheduled", "books", retried)
	}
	return nil
}

// GetBook retrieves a book by ID.
func (s *LibraryService) GetBook(ctx context.Context, bookID string) (*domain.Book, error) {
	return s.store.GetBook(ctx, bookID)
}

// ListBooks returns the active shelf, trashed books excluded.
func (s *LibraryService) ListBooks(ctx context.Context) ([]*domain.Book, error) {
	books, err := s.store.ListBooks(ctx)
	if err != nil {
		return nil, err
	}
	active := books[:0]
	for _, book := range books {
		if !book.InTrash() {
			active = append(active, book)
		}
	}
	return active, nil
}

// ListTrash returns the trashed books.
func (s *LibraryService) ListTrash(ctx context.Context) ([]*domain.Book, error) {
	books, err := s.store.ListBooks(ctx)
	if err != nil {
		return nil, err
	}
	var trashed []*domain.Book
	for _, book := range books {
		if book.InTrash() {
			trashed = append(trashed, book)
		}
	}
	return trashed, nil
}

// TrashBook soft-deletes a book. Its derived index records are pruned on
// the next rebuild.
func (s *LibraryService) TrashBook(ctx context.Context, bookID string) (*domain.Book, error) {
	book, err := s.store.GetBook(ctx, bookID)
	if err != nil {
		return nil, err
	}
	if book.InTrash() {
		return book, nil
	}
	book.MarkDeleted()
	if err := s.store.UpdateBook(ctx, book); err != nil {
		return nil, err
	}
	s.events.Emit(sse.NewBookTrashedEvent(book))
	s.notifyChange()
	return book, nil
}

// RestoreBook clears a book's soft-delete marker.
func (s *LibraryService) RestoreBook(ctx context.Context, bookID string) (*domain.Book, error) {
	book, err := s.store.GetBook(ctx, bookID)
	if err != nil {
		return nil, err
	}
	if !book.InTrash() {
		return book, nil
	}
	book.Restore()
	if err := s.store.UpdateBook(ctx, book); err != nil {
		return nil, err
	}
	s.events.Emit(sse.NewBookRestoredEvent(book))
	s.notifyChange()
	return book, nil
}

// PurgeBook permanently removes a book record and its payload file.
func (s *LibraryService) PurgeBook(ctx context.Context, bookID string) error {
	book, err := s.store.GetBook(ctx, bookID)
	if err != nil {
		return err
	}
	if err := s.store.DeleteBook(ctx, bookID); err != nil {
		return err
	}
	if book.Path != "" {
		if err := os.Remove(book.Path); err != nil && !os.IsNotExist(err) {
			s.logger.Warn("purged book payload could not be removed",
				"book_id", bookID,
				"path", book.Path,
				"error", err,
			)
		}
	}
	s.events.Emit(sse.NewBookDeletedEvent(bookID))
	s.notifyChange()
	return nil
}

// UpdateProgress records a reading position in [0, 1].
func (s *LibraryService) UpdateProgress(ctx context.Context, bookID string, progress float64) (*domain.Book, error) {
	if progress < 0 || progress > 1 {
		return nil, errors.Validationf("progress %v out of range [0, 1]", progress)
	}
	book, err := s.store.GetBook(ctx, bookID)
	if err != nil {
		return nil, err
	}
	book.Progress = progress
	book.Touch()
	if err := s.store.UpdateBook(ctx, book); err != nil {
		return nil, err
	}
	s.events.Emit(sse.NewBookUpdatedEvent(book))
	return book, nil
}

// SetFavorite toggles the favorite flag.
func (s *LibraryService) SetFavorite(ctx context.Context, bookID string, favorite bool) (*domain.Book, error) {
	book, err := s.store.GetBook(ctx, bookID)
	if err != nil {
		return nil, err
	}
	book.Favorite = favorite
	book.Touch()
	if err := s.store.UpdateBook(ctx, book); err != nil {
		return nil, err
	}
	s.events.Emit(sse.NewBookUpdatedEvent(book))
	return book, nil
}

// PayloadLoader returns a loader that reads a book's EPUB bytes from its
// stored payload path. Wired into the content indexer.
func (s *LibraryService) PayloadLoader() func(ctx context.Context, book *domain.Book) ([]byte, error) {
	return func(_ context.Context, book *domain.Book) ([]byte, error) {
		return os.ReadFile(book.Path)
	}
}

// titleFromFilename derives a provisional title for the placeholder book.
func titleFromFilename(filename string) string {
	base := filepath.Base(strings.ReplaceAll(filename, "\\", "/"))
	return strings.TrimSuffix(base, filepath.Ext(base))
}
