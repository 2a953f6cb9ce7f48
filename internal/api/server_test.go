package api

import (
	"archive/zip"
	"bytes"
	"context"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"encoding/json"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkwellapp/inkwell-server/internal/contentindex"
	"github.com/inkwellapp/inkwell-server/internal/domain"
	"github.com/inkwellapp/inkwell-server/internal/logger"
	"github.com/inkwellapp/inkwell-server/internal/searchindex"
	"github.com/inkwellapp/inkwell-server/internal/service"
	"github.com/inkwellapp/inkwell-server/internal/sse"
	"github.com/inkwellapp/inkwell-server/internal/store"
	"github.com/inkwellapp/inkwell-server/internal/worker"
)

type testServer struct {
	server *Server
	store  *store.Store
	index  *service.IndexService
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	st, err := store.NewInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	slogger := slog.New(slog.NewTextHandler(io.Discard, nil))
	plogger := logger.New(logger.Config{Writer: io.Discard, Format: "json"})

	pool := worker.NewPool(2, plogger)
	t.Cleanup(pool.Stop)

	library := service.NewLibraryService(st, pool, nil, t.TempDir(), slogger)
	indexer := contentindex.NewIndexer(st, library.PayloadLoader(), plogger)
	builder := searchindex.NewBuilder(st, plogger)
	index := service.NewIndexService(st, indexer, builder, nil, slogger)
	t.Cleanup(index.Stop)
	search := service.NewSearchService(st, pool, indexer, slogger)
	events := sse.NewManager(slogger)

	server := NewServer(st, library, index, search, events, slogger)
	t.Cleanup(server.Close)

	return &testServer{server: server, store: st, index: index}
}

func (ts *testServer) do(t *testing.T, method, path string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	ts.server.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) doJSON(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	return ts.do(t, method, path, strings.NewReader(body), "application/json")
}

type envelope[T any] struct {
	Data    T      `json:"data"`
	Error   string `json:"error"`
	Code    string `json:"code"`
	Success bool   `json:"success"`
}

func decodeEnvelope[T any](t *testing.T, rec *httptest.ResponseRecorder) envelope[T] {
	t.Helper()
	var env envelope[T]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

// importBook uploads the shared EPUB fixture and returns the placeholder id.
func (ts *testServer) importBook(t *testing.T, filename string, payload []byte) string {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write(payload)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	rec := ts.do(t, http.MethodPost, "/api/v1/books", &buf, mw.FormDataContentType())
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	env := decodeEnvelope[*domain.Book](t, rec)
	require.True(t, env.Success)
	require.NotEmpty(t, env.Data.ID)
	return env.Data.ID
}

// waitBook polls the store until the book's metadata extraction completes.
func (ts *testServer) waitBook(t *testing.T, bookID string) *domain.Book {
	t.Helper()
	var book *domain.Book
	require.Eventually(t, func() bool {
		b, err := ts.store.GetBook(context.Background(), bookID)
		if err != nil || b.MetadataPending {
			return false
		}
		book = b
		return true
	}, 5*time.Second, 25*time.Millisecond)
	return book
}

func TestHealthCheck(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/health", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	env := decodeEnvelope[HealthResponse](t, rec)
	assert.Equal(t, "degraded", env.Data.Status)
	assert.Equal(t, "healthy", env.Data.Components["database"].Status)
	assert.Equal(t, "degraded", env.Data.Components["search"].Status)

	// Once a snapshot exists the server reports healthy.
	seedServerBook(t, ts.store, "book-1", "Dune")
	require.NoError(t, ts.index.Rebuild(context.Background()))

	rec = ts.do(t, http.MethodGet, "/health", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	env = decodeEnvelope[HealthResponse](t, rec)
	assert.Equal(t, "healthy", env.Data.Status)
}

func seedServerBook(t *testing.T, st *store.Store, id, title string) {
	t.Helper()
	book := &domain.Book{Title: title, Author: "Unknown Author"}
	book.ID = id
	book.InitTimestamps()
	require.NoError(t, st.CreateBook(context.Background(), book))
}

func TestImportAndGetBook(t *testing.T) {
	ts := newTestServer(t)

	bookID := ts.importBook(t, "left-hand.epub", serverEPUB(t))
	book := ts.waitBook(t, bookID)
	assert.Equal(t, "The Left Hand of Darkness", book.Title)

	rec := ts.do(t, http.MethodGet, "/api/v1/books/"+bookID, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	env := decodeEnvelope[*domain.Book](t, rec)
	assert.Equal(t, "The Left Hand of Darkness", env.Data.Title)
	assert.Equal(t, "Ursula K. Le Guin", env.Data.Author)
}

func TestListBooksGenreFilter(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	scifi := &domain.Book{Title: "Dune", Author: "Frank Herbert", Genre: "Science Fiction", GenreSlug: "science-fiction"}
	scifi.ID = "book-1"
	scifi.InitTimestamps()
	require.NoError(t, ts.store.CreateBook(ctx, scifi))

	horror := &domain.Book{Title: "The Haunting of Hill House", Author: "Shirley Jackson", Genre: "Horror", GenreSlug: "horror"}
	horror.ID = "book-2"
	horror.InitTimestamps()
	require.NoError(t, ts.store.CreateBook(ctx, horror))

	// The filter takes the label or its slug form.
	rec := ts.do(t, http.MethodGet, "/api/v1/books?genre=Science+Fiction", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	env := decodeEnvelope[[]*domain.Book](t, rec)
	require.Len(t, env.Data, 1)
	assert.Equal(t, "Dune", env.Data[0].Title)

	rec = ts.do(t, http.MethodGet, "/api/v1/books?genre=horror", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	env = decodeEnvelope[[]*domain.Book](t, rec)
	require.Len(t, env.Data, 1)
	assert.Equal(t, "The Haunting of Hill House", env.Data[0].Title)

	rec = ts.do(t, http.MethodGet, "/api/v1/books?genre=western", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	env = decodeEnvelope[[]*domain.Book](t, rec)
	assert.Empty(t, env.Data)
}

func TestImportRejectsMissingFile(t *testing.T) {
	ts := newTestServer(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("name", "no file here"))
	require.NoError(t, mw.Close())

	rec := ts.do(t, http.MethodPost, "/api/v1/books", &buf, mw.FormDataContentType())
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetBookNotFound(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/v1/books/ghost", nil, "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	env := decodeEnvelope[any](t, rec)
	assert.False(t, env.Success)
	assert.Equal(t, "Book not found", env.Error)
}

func TestTrashRestorePurgeFlow(t *testing.T) {
	ts := newTestServer(t)
	bookID := ts.importBook(t, "book.epub", serverEPUB(t))
	ts.waitBook(t, bookID)

	rec := ts.do(t, http.MethodDelete, "/api/v1/books/"+bookID, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/v1/books", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeEnvelope[[]*domain.Book](t, rec).Data)

	rec = ts.do(t, http.MethodGet, "/api/v1/books/trash", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeEnvelope[[]*domain.Book](t, rec).Data, 1)

	rec = ts.do(t, http.MethodPost, "/api/v1/books/"+bookID+"/restore", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodDelete, "/api/v1/books/"+bookID+"/purge", nil, "")
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/v1/books/"+bookID, nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateProgress(t *testing.T) {
	ts := newTestServer(t)
	bookID := ts.importBook(t, "book.epub", serverEPUB(t))
	ts.waitBook(t, bookID)

	rec := ts.doJSON(t, http.MethodPatch, "/api/v1/books/"+bookID+"/progress", `{"progress": 0.25}`)
	require.Equal(t, http.StatusOK, rec.Code)
	env := decodeEnvelope[*domain.Book](t, rec)
	assert.InDelta(t, 0.25, env.Data.Progress, 1e-9)

	// progress: 0 is a valid position, not a missing field... but an
	// absent field is rejected.
	rec = ts.doJSON(t, http.MethodPatch, "/api/v1/books/"+bookID+"/progress", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.doJSON(t, http.MethodPatch, "/api/v1/books/"+bookID+"/progress", `{"progress": 1.5}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.doJSON(t, http.MethodPatch, "/api/v1/books/"+bookID+"/progress", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFavoriteToggle(t *testing.T) {
	ts := newTestServer(t)
	bookID := ts.importBook(t, "book.epub", serverEPUB(t))
	ts.waitBook(t, bookID)

	rec := ts.doJSON(t, http.MethodPut, "/api/v1/books/"+bookID+"/favorite", `{"favorite": true}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeEnvelope[*domain.Book](t, rec).Data.Favorite)

	rec = ts.doJSON(t, http.MethodPut, "/api/v1/books/"+bookID+"/favorite", `{"favorite": false}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decodeEnvelope[*domain.Book](t, rec).Data.Favorite)
}

func TestHighlightLifecycle(t *testing.T) {
	ts := newTestServer(t)
	bookID := ts.importBook(t, "book.epub", serverEPUB(t))
	ts.waitBook(t, bookID)

	rec := ts.doJSON(t, http.MethodPost, "/api/v1/books/"+bookID+"/highlights",
		`{"locator": "epubcfi(/6/4!/4/2)", "text": "the king was pregnant", "color": "yellow"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	highlight := decodeEnvelope[*domain.Highlight](t, rec).Data
	require.NotEmpty(t, highlight.ID)

	// Color outside the palette is rejected.
	rec = ts.doJSON(t, http.MethodPost, "/api/v1/books/"+bookID+"/highlights",
		`{"locator": "epubcfi(/6/4)", "text": "x", "color": "chartreuse"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.doJSON(t, http.MethodPatch, "/api/v1/books/"+bookID+"/highlights/"+highlight.ID,
		`{"note": "gethenian biology"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "gethenian biology", decodeEnvelope[*domain.Highlight](t, rec).Data.Note)

	rec = ts.do(t, http.MethodDelete, "/api/v1/books/"+bookID+"/highlights/"+highlight.ID, nil, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = ts.do(t, http.MethodDelete, "/api/v1/books/"+bookID+"/highlights/"+highlight.ID, nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBookmarkLifecycle(t *testing.T) {
	ts := newTestServer(t)
	bookID := ts.importBook(t, "book.epub", serverEPUB(t))
	ts.waitBook(t, bookID)

	rec := ts.doJSON(t, http.MethodPost, "/api/v1/books/"+bookID+"/bookmarks",
		`{"locator": "epubcfi(/6/8!/4/2)", "label": "chapter two"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	bookmark := decodeEnvelope[*domain.Bookmark](t, rec).Data
	require.NotEmpty(t, bookmark.ID)

	rec = ts.doJSON(t, http.MethodPost, "/api/v1/books/"+bookID+"/bookmarks", `{"label": "no locator"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodDelete, "/api/v1/books/"+bookID+"/bookmarks/"+bookmark.ID, nil, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestCrossBookSearch(t *testing.T) {
	ts := newTestServer(t)
	bookID := ts.importBook(t, "left-hand.epub", serverEPUB(t))
	ts.waitBook(t, bookID)
	require.NoError(t, ts.index.Rebuild(context.Background()))

	rec := ts.do(t, http.MethodGet, "/api/v1/search?q=darkness", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	results := decodeEnvelope[*service.SearchResults](t, rec).Data
	require.Len(t, results.Books, 1)
	assert.Equal(t, bookID, results.Books[0].BookID)

	rec = ts.do(t, http.MethodGet, "/api/v1/search", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestInBookSearch(t *testing.T) {
	ts := newTestServer(t)
	bookID := ts.importBook(t, "left-hand.epub", serverEPUB(t))
	ts.waitBook(t, bookID)

	rec := ts.do(t, http.MethodGet, "/api/v1/books/"+bookID+"/search?q=pregnant", nil, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	type inBookResults struct {
		RequestID string                   `json:"request_id"`
		Query     string                   `json:"query"`
		Results   []contentindex.Candidate `json:"results"`
	}
	data := decodeEnvelope[inBookResults](t, rec).Data
	assert.NotEmpty(t, data.RequestID)
	assert.Equal(t, "pregnant", data.Query)
	require.Len(t, data.Results, 1)
	assert.Contains(t, data.Results[0].Preview, "king was pregnant")

	rec = ts.do(t, http.MethodGet, "/api/v1/books/"+bookID+"/search", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRebuildIndexAccepted(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/v1/index/rebuild", nil, "")
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestExportEndpoint(t *testing.T) {
	ts := newTestServer(t)
	bookID := ts.importBook(t, "book.epub", serverEPUB(t))
	ts.waitBook(t, bookID)

	rec := ts.do(t, http.MethodGet, "/api/v1/export", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/zip", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "attachment")

	zr, err := zip.NewReader(bytes.NewReader(rec.Body.Bytes()), int64(rec.Body.Len()))
	require.NoError(t, err)
	names := make(map[string]bool, len(zr.File))
	for _, f := range zr.File {
		names[f.Name] = true
	}
	assert.True(t, names["entities/books.jsonl"])
	assert.True(t, names["manifest.json"])
	assert.True(t, names["payloads/"+bookID+".epub"])
}

// serverEPUB builds a minimal two-chapter EPUB for upload tests.
func serverEPUB(t *testing.T) []byte {
	t.Helper()
	files := map[string]string{
		"META-INF/container.xml": `<container><rootfiles>
  <rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/>
</rootfiles></container>`,
		"OEBPS/content.opf": `<package version="3.0">
  <metadata>
    <dc:title>The Left Hand of Darkness</dc:title>
    <dc:creator>Ursula K. Le Guin</dc:creator>
    <dc:language>en</dc:language>
    <dc:subject>Science Fiction</dc:subject>
  </metadata>
  <manifest>
    <item id="ch1" href="ch1.xhtml" media-type="application/xhtml+xml"/>
    <item id="ch2" href="ch2.xhtml" media-type="application/xhtml+xml"/>
  </manifest>
  <spine>
    <itemref idref="ch1"/>
    <itemref idref="ch2"/>
  </spine>
</package>`,
		"OEBPS/ch1.xhtml": `<html><body><p>The king was pregnant.</p></body></html>`,
		"OEBPS/ch2.xhtml": `<html><body><p>Light is the left hand of darkness.</p></body></html>`,
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestRateLimitKicksIn(t *testing.T) {
	ts := newTestServer(t)

	tooMany := 0
	for i := 0; i < 60; i++ {
		rec := ts.do(t, http.MethodGet, "/health", nil, "")
		if rec.Code == http.StatusTooManyRequests {
			tooMany++
		}
	}
	assert.Positive(t, tooMany)
}
