package service

import (
	"context"
	"fmt"
	"time"

	"github.com/inkwellapp/inkwell-server/internal/domain"
	"github.com/inkwellapp/inkwell-server/internal/errors"
	"github.com/inkwellapp/inkwell-server/internal/id"
	"github.com/inkwellapp/inkwell-server/internal/sse"
)

// Annotation operations. All of them are read-modify-write against the
// owning book record; the store is single-writer so no finer locking is
// needed.

// AddHighlight appends a highlight to a book.
func (s *LibraryService) AddHighlight(ctx context.Context, bookID, locator, text, note, color string) (*domain.Highlight, error) {
	if locator == "" {
		return nil, errors.Validation("highlight locator is required")
	}
	if text == "" {
		return nil, errors.Validation("highlight text is required")
	}

	book, err := s.store.GetBook(ctx, bookID)
	if err != nil {
		return nil, err
	}

	highlightID, err := id.Generate("hl")
	if err != nil {
		return nil, fmt.Errorf("generate highlight id: %w", err)
	}

	highlight := domain.Highlight{
		ID:        highlightID,
		Locator:   locator,
		Text:      text,
		Note:      note,
		Color:     color,
		CreatedAt: time.Now(),
	}
	book.Highlights = append(book.Highlights, highlight)
	book.Touch()

	if err := s.store.UpdateBook(ctx, book); err != nil {
		return nil, err
	}
	s.events.Emit(sse.NewBookUpdatedEvent(book))
	s.notifyChange()
	return &highlight, nil
}

// UpdateHighlightNote sets or clears the note attached to a highlight.
func (s *LibraryService) UpdateHighlightNote(ctx context.Context, bookID, highlightID, note string) (*domain.Highlight, error) {
	book, err := s.store.GetBook(ctx, bookID)
	if err != nil {
		return nil, err
	}

	highlight := book.GetHighlight(highlightID)
	if highlight == nil {
		return nil, errors.NotFoundf("highlight %s not found", highlightID)
	}
	highlight.Note = note
	book.Touch()

	if err := s.store.UpdateBook(ctx, book); err != nil {
		return nil, err
	}
	s.events.Emit(sse.NewBookUpdatedEvent(book))
	s.notifyChange()
	return highlight, nil
}

// RemoveHighlight deletes a highlight (and its note) from a book.
func (s *LibraryService) RemoveHighlight(ctx context.Context, bookID, highlightID string) error {
	book, err := s.store.GetBook(ctx, bookID)
	if err != nil {
		return err
	}
	if !book.RemoveHighlight(highlightID) {
		return errors.NotFoundf("highlight %s not found", highlightID)
	}
	book.Touch()

	if err := s.store.UpdateBook(ctx, book); err != nil {
		return err
	}
	s.events.Emit(sse.NewBookUpdatedEvent(book))
	s.notifyChange()
	return nil
}

// AddBookmark appends a bookmark to a book.
func (s *LibraryService) AddBookmark(ctx context.Context, bookID, locator, label string) (*domain.Bookmark, error) {
	if locator == "" {
		return nil, errors.Validation("bookmark locator is required")
	}

	book, err := s.store.GetBook(ctx, bookID)
	if err != nil {
		return nil, err
	}

	bookmarkID, err := id.Generate("bm")
	if err != nil {
		return nil, fmt.Errorf("generate bookmark id: %w", err)
	}

	bookmark := domain.Bookmark{
		ID:        bookmarkID,
		Locator:   locator,
		Label:     label,
		CreatedAt: time.Now(),
	}
	book.Bookmarks = append(book.Bookmarks, bookmark)
	book.Touch()

	if err := s.store.UpdateBook(ctx, book); err != nil {
		return nil, err
	}
	s.events.Emit(sse.NewBookUpdatedEvent(book))
	s.notifyChange()
	return &bookmark, nil
}

// RemoveBookmark deletes a bookmark from a book.
func (s *LibraryService) RemoveBookmark(ctx context.Context, bookID, bookmarkID string) error {
	book, err := s.store.GetBook(ctx, bookID)
	if err != nil {
		return err
	}
	if !book.RemoveBookmark(bookmarkID) {
		return errors.NotFoundf("bookmark %s not found", bookmarkID)
	}
	book.Touch()

	if err := s.store.UpdateBook(ctx, book); err != nil {
		return err
	}
	s.events.Emit(sse.NewBookUpdatedEvent(book))
	s.notifyChange()
	return nil
}
