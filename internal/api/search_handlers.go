package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/inkwellapp/inkwell-server/internal/http/response"
	"github.com/inkwellapp/inkwell-server/internal/store"
)

// BookSearchResponse is the envelope payload for an in-book search. The
// request id lets a client with overlapping queries keep only the answer
// to its latest one.
type BookSearchResponse struct {
	RequestID string `json:"request_id"`
	Query     string `json:"query"`
	Results   any    `json:"results"`
}

// handleSearch runs a cross-book query against the search snapshot.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		response.BadRequest(w, "Missing query parameter q", s.logger)
		return
	}

	results, err := s.search.Search(r.Context(), query, parseLimit(r))
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}
	response.Success(w, results, s.logger)
}

// handleSearchBook runs an in-book content search through the worker pool.
func (s *Server) handleSearchBook(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		response.BadRequest(w, "Missing query parameter q", s.logger)
		return
	}

	requestID, candidates, err := s.search.SearchBook(r.Context(), chi.URLParam(r, "id"), query, parseLimit(r))
	if err != nil {
		if errors.Is(err, store.ErrBookNotFound) {
			response.NotFound(w, "Book not found", s.logger)
			return
		}
		response.HandleError(w, err, s.logger)
		return
	}

	response.Success(w, BookSearchResponse{
		RequestID: requestID,
		Query:     query,
		Results:   candidates,
	}, s.logger)
}

// handleRebuildIndex triggers a full index reconciliation in the
// background and returns immediately.
func (s *Server) handleRebuildIndex(w http.ResponseWriter, r *http.Request) {
	// Detached from the request context: the rebuild outlives the response.
	go func() {
		if err := s.index.Rebuild(context.Background()); err != nil {
			s.logger.Warn("requested index rebuild failed", "error", err)
		}
	}()
	response.JSON(w, http.StatusAccepted, map[string]string{"status": "rebuild started"}, s.logger)
}

// parseLimit reads the optional limit query parameter. Zero means the
// default cap.
func parseLimit(r *http.Request) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return 0
	}
	return limit
}
