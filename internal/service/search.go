package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/inkwellapp/inkwell-server/internal/contentindex"
	"github.com/inkwellapp/inkwell-server/internal/errors"
	"github.com/inkwellapp/inkwell-server/internal/normalize"
	"github.com/inkwellapp/inkwell-server/internal/searchindex"
	"github.com/inkwellapp/inkwell-server/internal/store"
	"github.com/inkwellapp/inkwell-server/internal/worker"
)

// KindContentSearch is the worker request kind for in-book content search.
const KindContentSearch = "content.search"

// contentSearchPayload is the worker payload for an in-book search.
type contentSearchPayload struct {
	BookID     string
	Query      string
	MaxResults int
}

// BookHit is a cross-book search hit on a book's metadata.
type BookHit struct {
	BookID string `json:"book_id"`
	Title  string `json:"title"`
	Author string `json:"author"`
	Offset int    `json:"offset"`
}

// AnnotationHit is a cross-book search hit on a highlight, note, or
// bookmark.
type AnnotationHit struct {
	BookID    string `json:"book_id"`
	BookTitle string `json:"book_title"`
	ID        string `json:"id"`
	Locator   string `json:"locator"`
	Text      string `json:"text"`
	Offset    int    `json:"offset"`
}

// SearchResults groups cross-book hits by category. Each category is
// ranked by earliest first-occurrence offset and independently bounded.
type SearchResults struct {
	Query      string          `json:"query"`
	Books      []BookHit       `json:"books,omitempty"`
	Highlights []AnnotationHit `json:"highlights,omitempty"`
	Notes      []AnnotationHit `json:"notes,omitempty"`
	Bookmarks  []AnnotationHit `json:"bookmarks,omitempty"`
}

// SearchService answers cross-book queries from the persisted snapshot and
// in-book content queries through the worker pool.
type SearchService struct {
	store   *store.Store
	pool    *worker.Pool
	indexer *contentindex.Indexer
	logger  *slog.Logger
}

// NewSearchService creates a search service and registers its worker
// handler.
func NewSearchService(st *store.Store, pool *worker.Pool, indexer *contentindex.Indexer, logger *slog.Logger) *SearchService {
	s := &SearchService{
		store:   st,
		pool:    pool,
		indexer: indexer,
		logger:  logger,
	}
	pool.Register(KindContentSearch, s.handleContentSearch)
	return s
}

// Search runs a cross-book query against the search snapshot. Results are
// categorized into books, highlights, notes, and bookmarks; every category
// is ranked by first-occurrence offset and capped at maxResults.
func (s *SearchService) Search(ctx context.Context, query string, maxResults int) (*SearchResults, error) {
	if maxResults <= 0 {
		maxResults = contentindex.DefaultMaxResults
	}

	needle := normalize.SearchText(query)
	results := &SearchResults{Query: query}
	if needle == "" {
		return results, nil
	}

	snapshot, err := s.store.GetSearchSnapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("load search snapshot: %w", err)
	}
	if snapshot == nil {
		return results, nil
	}

	titles, authors, err := s.bookDisplayFields(ctx)
	if err != nil {
		return nil, err
	}

	// Deterministic tie order: walk records sorted by book id.
	bookIDs := make([]string, 0, len(snapshot.Records))
	for bookID := range snapshot.Records {
		bookIDs = append(bookIDs, bookID)
	}
	sort.Strings(bookIDs)

	for _, bookID := range bookIDs {
		record := snapshot.Records[bookID]
		if offset := strings.Index(record.MetadataText, needle); offset >= 0 {
			results.Books = append(results.Books, BookHit{
				BookID: bookID,
				Title:  titles[bookID],
				Author: authors[bookID],
				Offset: offset,
			})
		}
		results.Highlights = appendAnnotationHits(results.Highlights, bookID, titles[bookID], record.Highlights, needle)
		results.Notes = appendAnnotationHits(results.Notes, bookID, titles[bookID], record.Notes, needle)
		results.Bookmarks = appendAnnotationHits(results.Bookmarks, bookID, titles[bookID], record.Bookmarks, needle)
	}

	sort.SliceStable(results.Books, func(i, j int) bool {
		return results.Books[i].Offset < results.Books[j].Offset
	})
	results.Books = capBookHits(results.Books, maxResults)
	results.Highlights = rankAnnotationHits(results.Highlights, maxResults)
	results.Notes = rankAnnotationHits(results.Notes, maxResults)
	results.Bookmarks = rankAnnotationHits(results.Bookmarks, maxResults)

	return results, nil
}

// SearchBook runs an in-book content query through the worker pool. The
// request id is fresh per call so the caller can discriminate stale
// responses when queries overlap.
func (s *SearchService) SearchBook(ctx context.Context, bookID, query string, maxResults int) (string, []contentindex.Candidate, error) {
	requestID := uuid.NewString()

	resp := s.pool.Do(ctx, worker.Request{
		ID:   requestID,
		Kind: KindContentSearch,
		Payload: contentSearchPayload{
			BookID:     bookID,
			Query:      query,
			MaxResults: maxResults,
		},
	})
	if !resp.OK {
		return requestID, nil, errors.Internal(resp.Error)
	}

	candidates, _ := resp.Payload.([]contentindex.Candidate)
	return requestID, candidates, nil
}

// handleContentSearch is the worker handler for in-book search. A missing
// content record is built on demand before matching.
func (s *SearchService) handleContentSearch(ctx context.Context, payload any) (any, error) {
	p, ok := payload.(contentSearchPayload)
	if !ok {
		return nil, fmt.Errorf("unexpected payload type %T", payload)
	}

	record, err := s.store.GetContentRecord(ctx, p.BookID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		book, err := s.store.GetBook(ctx, p.BookID)
		if err != nil {
			return nil, err
		}
		if err := s.indexer.IndexBook(ctx, book); err != nil {
			return nil, err
		}
		record, err = s.store.GetContentRecord(ctx, p.BookID)
		if err != nil {
			return nil, err
		}
		if record == nil {
			return nil, errors.NotFoundf("no content index for book %s", p.BookID)
		}
	}

	return contentindex.Match(record.Sections, p.Query, p.MaxResults), nil
}

// bookDisplayFields maps book ids to titles and authors for hit display.
func (s *SearchService) bookDisplayFields(ctx context.Context) (titles, authors map[string]string, err error) {
	books, err := s.store.ListBooks(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("list books: %w", err)
	}
	titles = make(map[string]string, len(books))
	authors = make(map[string]string, len(books))
	for _, book := range books {
		titles[book.ID] = book.Title
		authors[book.ID] = book.Author
	}
	return titles, authors, nil
}

func appendAnnotationHits(hits []AnnotationHit, bookID, bookTitle string, entries []searchindex.Entry, needle string) []AnnotationHit {
	for _, entry := range entries {
		offset := strings.Index(entry.NormalizedText, needle)
		if offset < 0 {
			continue
		}
		hits = append(hits, AnnotationHit{
			BookID:    bookID,
			BookTitle: bookTitle,
			ID:        entry.ID,
			Locator:   entry.Locator,
			Text:      entry.RawText,
			Offset:    offset,
		})
	}
	return hits
}

func rankAnnotationHits(hits []AnnotationHit, maxResults int) []AnnotationHit {
	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Offset < hits[j].Offset
	})
	if len(hits) > maxResults {
		hits = hits[:maxResults]
	}
	return hits
}

func capBookHits(hits []BookHit, maxResults int) []BookHit {
	if len(hits) > maxResults {
		hits = hits[:maxResults]
	}
	return hits
}
