package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/inkwellapp/inkwell-server/internal/genre"
	"github.com/inkwellapp/inkwell-server/internal/http/response"
	"github.com/inkwellapp/inkwell-server/internal/store"
)

// HighlightCreateRequest creates a highlight on a book.
type HighlightCreateRequest struct {
	Locator string `json:"locator" validate:"required,locator"`
	Text    string `json:"text" validate:"required,max=4096"`
	Note    string `json:"note" validate:"max=4096"`
	Color   string `json:"color" validate:"omitempty,oneof=yellow green blue pink"`
}

// HighlightNoteRequest sets or clears a highlight's note.
type HighlightNoteRequest struct {
	Note string `json:"note" validate:"max=4096"`
}

// BookmarkCreateRequest creates a bookmark on a book.
type BookmarkCreateRequest struct {
	Locator string `json:"locator" validate:"required,locator"`
	Label   string `json:"label" validate:"max=512"`
}

// ProgressRequest records a reading position.
// Pointer so 0.0 (back to the start) is distinguishable from absent.
type ProgressRequest struct {
	Progress *float64 `json:"progress" validate:"required,gte=0,lte=1"`
}

// FavoriteRequest toggles the favorite flag.
type FavoriteRequest struct {
	Favorite bool `json:"favorite"`
}

// handleImportBook ingests an uploaded EPUB. The response carries the
// placeholder book; metadata fills in asynchronously.
func (s *Server) handleImportBook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := r.ParseMultipartForm(maxImportSize); err != nil {
		response.BadRequest(w, "Invalid multipart upload", s.logger)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		response.BadRequest(w, "Missing file field", s.logger)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxImportSize+1))
	if err != nil {
		response.InternalError(w, "Failed to read upload", s.logger)
		return
	}
	if len(data) > maxImportSize {
		response.Error(w, http.StatusRequestEntityTooLarge, "File too large", s.logger)
		return
	}

	book, err := s.library.Import(ctx, header.Filename, data)
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}

	response.Created(w, book, s.logger)
}

// handleListBooks returns the active shelf, optionally narrowed to one
// genre via ?genre=<slug>.
func (s *Server) handleListBooks(w http.ResponseWriter, r *http.Request) {
	books, err := s.library.ListBooks(r.Context())
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}
	if q := r.URL.Query().Get("genre"); q != "" {
		slug := genre.Slugify(q)
		filtered := books[:0]
		for _, book := range books {
			if book.GenreSlug == slug {
				filtered = append(filtered, book)
			}
		}
		books = filtered
	}
	response.Success(w, books, s.logger)
}

// handleListTrash returns soft-deleted books.
func (s *Server) handleListTrash(w http.ResponseWriter, r *http.Request) {
	books, err := s.library.ListTrash(r.Context())
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}
	response.Success(w, books, s.logger)
}

// handleGetBook returns a single book.
func (s *Server) handleGetBook(w http.ResponseWriter, r *http.Request) {
	book, err := s.library.GetBook(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, store.ErrBookNotFound) {
			response.NotFound(w, "Book not found", s.logger)
			return
		}
		response.HandleError(w, err, s.logger)
		return
	}
	response.Success(w, book, s.logger)
}

// handleTrashBook soft-deletes a book.
func (s *Server) handleTrashBook(w http.ResponseWriter, r *http.Request) {
	book, err := s.library.TrashBook(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, store.ErrBookNotFound) {
			response.NotFound(w, "Book not found", s.logger)
			return
		}
		response.HandleError(w, err, s.logger)
		return
	}
	response.Success(w, book, s.logger)
}

// handleRestoreBook clears a book's soft-delete marker.
func (s *Server) handleRestoreBook(w http.ResponseWriter, r *http.Request) {
	book, err := s.library.RestoreBook(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, store.ErrBookNotFound) {
			response.NotFound(w, "Book not found", s.logger)
			return
		}
		response.HandleError(w, err, s.logger)
		return
	}
	response.Success(w, book, s.logger)
}

// handlePurgeBook permanently removes a book and its payload.
func (s *Server) handlePurgeBook(w http.ResponseWriter, r *http.Request) {
	if err := s.library.PurgeBook(r.Context(), chi.URLParam(r, "id")); err != nil {
		if errors.Is(err, store.ErrBookNotFound) {
			response.NotFound(w, "Book not found", s.logger)
			return
		}
		response.HandleError(w, err, s.logger)
		return
	}
	response.NoContent(w)
}

// handleUpdateProgress records a reading position.
func (s *Server) handleUpdateProgress(w http.ResponseWriter, r *http.Request) {
	var req ProgressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request body", s.logger)
		return
	}
	if err := s.validator.Validate(req); err != nil {
		response.HandleError(w, err, s.logger)
		return
	}

	book, err := s.library.UpdateProgress(r.Context(), chi.URLParam(r, "id"), *req.Progress)
	if err != nil {
		if errors.Is(err, store.ErrBookNotFound) {
			response.NotFound(w, "Book not found", s.logger)
			return
		}
		response.HandleError(w, err, s.logger)
		return
	}
	response.Success(w, book, s.logger)
}

// handleSetFavorite toggles the favorite flag.
func (s *Server) handleSetFavorite(w http.ResponseWriter, r *http.Request) {
	var req FavoriteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request body", s.logger)
		return
	}

	book, err := s.library.SetFavorite(r.Context(), chi.URLParam(r, "id"), req.Favorite)
	if err != nil {
		if errors.Is(err, store.ErrBookNotFound) {
			response.NotFound(w, "Book not found", s.logger)
			return
		}
		response.HandleError(w, err, s.logger)
		return
	}
	response.Success(w, book, s.logger)
}

// handleAddHighlight appends a highlight to a book.
func (s *Server) handleAddHighlight(w http.ResponseWriter, r *http.Request) {
	var req HighlightCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request body", s.logger)
		return
	}
	if err := s.validator.Validate(req); err != nil {
		response.HandleError(w, err, s.logger)
		return
	}

	highlight, err := s.library.AddHighlight(r.Context(), chi.URLParam(r, "id"), req.Locator, req.Text, req.Note, req.Color)
	if err != nil {
		if errors.Is(err, store.ErrBookNotFound) {
			response.NotFound(w, "Book not found", s.logger)
			return
		}
		response.HandleError(w, err, s.logger)
		return
	}
	response.Created(w, highlight, s.logger)
}

// handleUpdateHighlightNote sets or clears a highlight's note.
func (s *Server) handleUpdateHighlightNote(w http.ResponseWriter, r *http.Request) {
	var req HighlightNoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request body", s.logger)
		return
	}
	if err := s.validator.Validate(req); err != nil {
		response.HandleError(w, err, s.logger)
		return
	}

	highlight, err := s.library.UpdateHighlightNote(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "highlightID"), req.Note)
	if err != nil {
		if errors.Is(err, store.ErrBookNotFound) {
			response.NotFound(w, "Book not found", s.logger)
			return
		}
		response.HandleError(w, err, s.logger)
		return
	}
	response.Success(w, highlight, s.logger)
}

// handleRemoveHighlight deletes a highlight.
func (s *Server) handleRemoveHighlight(w http.ResponseWriter, r *http.Request) {
	err := s.library.RemoveHighlight(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "highlightID"))
	if err != nil {
		if errors.Is(err, store.ErrBookNotFound) {
			response.NotFound(w, "Book not found", s.logger)
			return
		}
		response.HandleError(w, err, s.logger)
		return
	}
	response.NoContent(w)
}

// handleAddBookmark appends a bookmark to a book.
func (s *Server) handleAddBookmark(w http.ResponseWriter, r *http.Request) {
	var req BookmarkCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request body", s.logger)
		return
	}
	if err := s.validator.Validate(req); err != nil {
		response.HandleError(w, err, s.logger)
		return
	}

	bookmark, err := s.library.AddBookmark(r.Context(), chi.URLParam(r, "id"), req.Locator, req.Label)
	if err != nil {
		if errors.Is(err, store.ErrBookNotFound) {
			response.NotFound(w, "Book not found", s.logger)
			return
		}
		response.HandleError(w, err, s.logger)
		return
	}
	response.Created(w, bookmark, s.logger)
}

// handleRemoveBookmark deletes a bookmark.
func (s *Server) handleRemoveBookmark(w http.ResponseWriter, r *http.Request) {
	err := s.library.RemoveBookmark(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "bookmarkID"))
	if err != nil {
		if errors.Is(err, store.ErrBookNotFound) {
			response.NotFound(w, "Book not found", s.logger)
			return
		}
		response.HandleError(w, err, s.logger)
		return
	}
	response.NoContent(w)
}
