package service

import (
	"archive/zip"
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkwellapp/inkwell-server/internal/domain"
	apperrors "github.com/inkwellapp/inkwell-server/internal/errors"
	"github.com/inkwellapp/inkwell-server/internal/logger"
	"github.com/inkwellapp/inkwell-server/internal/sse"
	"github.com/inkwellapp/inkwell-server/internal/store"
	"github.com/inkwellapp/inkwell-server/internal/worker"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func poolLogger() *logger.Logger {
	return logger.New(logger.Config{Writer: io.Discard, Format: "json"})
}

// captureEmitter records emitted events for assertions.
type captureEmitter struct {
	mu     sync.Mutex
	events []sse.Event
}

func (c *captureEmitter) Emit(event any) {
	if evt, ok := event.(sse.Event); ok {
		c.mu.Lock()
		c.events = append(c.events, evt)
		c.mu.Unlock()
	}
}

func (c *captureEmitter) types() []sse.EventType {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]sse.EventType, len(c.events))
	for i, e := range c.events {
		out[i] = e.Type
	}
	return out
}

func testEPUB(t *testing.T) []byte {
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

func newTestLibrary(t *testing.T, events EventEmitter) (*LibraryService, *store.Store) {
	t.Helper()
	st, err := store.NewInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	pool := worker.NewPool(2, poolLogger())
	t.Cleanup(pool.Stop)

	library := NewLibraryService(st, pool, events, t.TempDir(), discardLogger())
	return library, st
}

func waitForMetadata(t *testing.T, st *store.Store, bookID string) *domain.Book {
	t.Helper()
	var book *domain.Book
	require.Eventually(t, func() bool {
		b, err := st.GetBook(context.Background(), bookID)
		if err != nil || b.MetadataPending {
			return false
		}
		book = b
		return true
	}, 5*time.Second, 10*time.Millisecond, "metadata extraction never completed")
	return book
}

func TestImportCreatesPlaceholderThenExtracts(t *testing.T) {
	library, st := newTestLibrary(t, nil)
	ctx := context.Background()

	payload := testEPUB(t)
	placeholder, err := library.Import(ctx, "left-hand.epub", payload)
	require.NoError(t, err)

	// The placeholder is visible immediately, with filename-derived fields.
	assert.True(t, placeholder.MetadataPending)
	assert.Equal(t, "left-hand", placeholder.Title)
	assert.Equal(t, int64(len(payload)), placeholder.Payload.Size)
	assert.FileExists(t, placeholder.Path)

	// Extraction fills the record in.
	book := waitForMetadata(t, st, placeholder.ID)
	assert.Equal(t, "The Left Hand of Darkness", book.Title)
	assert.Equal(t, "Ursula K. Le Guin", book.Author)
	assert.Equal(t, "Science Fiction", book.Genre)
	assert.Equal(t, "science-fiction", book.GenreSlug)
	require.NotNil(t, book.EstimatedPages)
	assert.Equal(t, 16, *book.EstimatedPages)
}

func TestImportRejectsBadInput(t *testing.T) {
	library, _ := newTestLibrary(t, nil)
	ctx := context.Background()

	_, err := library.Import(ctx, "notes.txt", []byte("hello"))
	var appErr *apperrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.CodeValidation, appErr.Code)

	_, err = library.Import(ctx, "empty.epub", nil)
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.CodeValidation, appErr.Code)
}

func TestImportUnparsablePayloadStaysPending(t *testing.T) {
	library, st := newTestLibrary(t, nil)
	ctx := context.Background()

	placeholder, err := library.Import(ctx, "broken.epub", []byte("not a zip"))
	require.NoError(t, err)

	// Extraction fails in the background; the placeholder keeps its
	// pending flag so backfill can retry.
	time.Sleep(100 * time.Millisecond)
	book, err := st.GetBook(ctx, placeholder.ID)
	require.NoError(t, err)
	assert.True(t, book.MetadataPending)
	assert.Equal(t, "broken", book.Title)
}

func TestTrashRestorePurge(t *testing.T) {
	library, st := newTestLibrary(t, nil)
	ctx := context.Background()

	placeholder, err := library.Import(ctx, "book.epub", testEPUB(t))
	require.NoError(t, err)
	bookID := placeholder.ID
	waitForMetadata(t, st, bookID)

	trashed, err := library.TrashBook(ctx, bookID)
	require.NoError(t, err)
	assert.True(t, trashed.InTrash())

	active, err := library.ListBooks(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)

	trash, err := library.ListTrash(ctx)
	require.NoError(t, err)
	require.Len(t, trash, 1)

	restored, err := library.RestoreBook(ctx, bookID)
	require.NoError(t, err)
	assert.False(t, restored.InTrash())

	path := restored.Path
	require.NoError(t, library.PurgeBook(ctx, bookID))
	_, err = st.GetBook(ctx, bookID)
	assert.ErrorIs(t, err, store.ErrBookNotFound)
	assert.NoFileExists(t, path)
}

func TestTrashIsIdempotent(t *testing.T) {
	library, st := newTestLibrary(t, nil)
	ctx := context.Background()

	placeholder, err := library.Import(ctx, "book.epub", testEPUB(t))
	require.NoError(t, err)
	waitForMetadata(t, st, placeholder.ID)

	_, err = library.TrashBook(ctx, placeholder.ID)
	require.NoError(t, err)
	again, err := library.TrashBook(ctx, placeholder.ID)
	require.NoError(t, err)
	assert.True(t, again.InTrash())
}

func TestUpdateProgressBounds(t *testing.T) {
	library, st := newTestLibrary(t, nil)
	ctx := context.Background()

	placeholder, err := library.Import(ctx, "book.epub", testEPUB(t))
	require.NoError(t, err)
	waitForMetadata(t, st, placeholder.ID)

	book, err := library.UpdateProgress(ctx, placeholder.ID, 0.42)
	require.NoError(t, err)
	assert.InDelta(t, 0.42, book.Progress, 1e-9)

	_, err = library.UpdateProgress(ctx, placeholder.ID, 1.5)
	var appErr *apperrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.CodeValidation, appErr.Code)

	_, err = library.UpdateProgress(ctx, placeholder.ID, -0.1)
	require.Error(t, err)
}

func TestAnnotations(t *testing.T) {
	library, st := newTestLibrary(t, nil)
	ctx := context.Background()

	placeholder, err := library.Import(ctx, "book.epub", testEPUB(t))
	require.NoError(t, err)
	bookID := placeholder.ID
	waitForMetadata(t, st, bookID)

	hl, err := library.AddHighlight(ctx, bookID, "epubcfi(/6/4!/4/2)", "The king was pregnant", "", "yellow")
	require.NoError(t, err)
	assert.NotEmpty(t, hl.ID)

	hl, err = library.UpdateHighlightNote(ctx, bookID, hl.ID, "gethenian biology")
	require.NoError(t, err)
	assert.Equal(t, "gethenian biology", hl.Note)

	bm, err := library.AddBookmark(ctx, bookID, "epubcfi(/6/8!/4/2)", "chapter two")
	require.NoError(t, err)

	book, err := st.GetBook(ctx, bookID)
	require.NoError(t, err)
	assert.Len(t, book.Highlights, 1)
	assert.Len(t, book.Bookmarks, 1)

	require.NoError(t, library.RemoveHighlight(ctx, bookID, hl.ID))
	require.NoError(t, library.RemoveBookmark(ctx, bookID, bm.ID))

	book, err = st.GetBook(ctx, bookID)
	require.NoError(t, err)
	assert.Empty(t, book.Highlights)
	assert.Empty(t, book.Bookmarks)
}

func TestAnnotationValidation(t *testing.T) {
	library, st := newTestLibrary(t, nil)
	ctx := context.Background()

	placeholder, err := library.Import(ctx, "book.epub", testEPUB(t))
	require.NoError(t, err)
	waitForMetadata(t, st, placeholder.ID)

	_, err = library.AddHighlight(ctx, placeholder.ID, "", "text", "", "")
	require.Error(t, err)
	_, err = library.AddHighlight(ctx, placeholder.ID, "loc", "", "", "")
	require.Error(t, err)
	_, err = library.AddBookmark(ctx, placeholder.ID, "", "label")
	require.Error(t, err)

	_, err = library.UpdateHighlightNote(ctx, placeholder.ID, "hl-missing", "note")
	var appErr *apperrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.CodeNotFound, appErr.Code)
}

func TestBackfillRetriesPending(t *testing.T) {
	library, st := newTestLibrary(t, nil)
	ctx := context.Background()

	// A book whose original extraction never completed: pending flag set,
	// payload on disk.
	dir := t.TempDir()
	path := filepath.Join(dir, "stuck.epub")
	require.NoError(t, os.WriteFile(path, testEPUB(t), 0o644))

	book := &domain.Book{
		Path:            path,
		Title:           "stuck",
		Author:          "Unknown Author",
		MetadataPending: true,
		Payload:         domain.PayloadDescriptor{Size: 1, LastModified: 1, Name: "stuck.epub"},
	}
	book.ID = "book-stuck"
	book.InitTimestamps()
	require.NoError(t, st.CreateBook(ctx, book))

	require.NoError(t, library.Backfill(ctx))

	recovered := waitForMetadata(t, st, "book-stuck")
	assert.Equal(t, "The Left Hand of Darkness", recovered.Title)
}

func TestLifecycleEventsEmitted(t *testing.T) {
	emitter := &captureEmitter{}
	library, st := newTestLibrary(t, emitter)
	ctx := context.Background()

	placeholder, err := library.Import(ctx, "book.epub", testEPUB(t))
	require.NoError(t, err)
	waitForMetadata(t, st, placeholder.ID)

	_, err = library.TrashBook(ctx, placeholder.ID)
	require.NoError(t, err)
	_, err = library.RestoreBook(ctx, placeholder.ID)
	require.NoError(t, err)
	require.NoError(t, library.PurgeBook(ctx, placeholder.ID))

	types := emitter.types()
	assert.Contains(t, types, sse.EventBookCreated)
	assert.Contains(t, types, sse.EventBookUpdated)
	assert.Contains(t, types, sse.EventBookTrashed)
	assert.Contains(t, types, sse.EventBookRestored)
	assert.Contains(t, types, sse.EventBookDeleted)
}
