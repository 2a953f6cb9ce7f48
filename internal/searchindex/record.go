// Package searchindex maintains the aggregate searchable snapshot over
// book metadata, highlights, notes, and bookmarks. Records are reused
// across rebuilds while their content signatures hold, so a single edited
// book never invalidates the rest of the snapshot.
package searchindex

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/inkwellapp/inkwell-server/internal/domain"
	"github.com/inkwellapp/inkwell-server/internal/normalize"
)

// SchemaVersion gates persisted snapshot structures. A mismatch is treated
// as absent, never partially trusted.
const SchemaVersion = 1

// Entry is one searchable annotation: a highlight, a note, or a bookmark.
type Entry struct {
	ID             string `json:"id"`
	Locator        string `json:"locator"`
	RawText        string `json:"raw_text"`
	NormalizedText string `json:"normalized_text"`
}

// Record is the searchable projection of one book.
type Record struct {
	Version      int       `json:"version"`
	BookID       string    `json:"book_id"`
	MetadataText string    `json:"metadata_text"`
	FullText     string    `json:"full_text"` // metadata + every annotation, for single-field search
	Highlights   []Entry   `json:"highlights,omitempty"`
	Notes        []Entry   `json:"notes,omitempty"`
	Bookmarks    []Entry   `json:"bookmarks,omitempty"`
	Signature    string    `json:"signature"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Snapshot is the persisted aggregate search index.
type Snapshot struct {
	Version   int                `json:"version"`
	UpdatedAt time.Time          `json:"updated_at"`
	Records   map[string]*Record `json:"records"`
}

// NewSnapshot returns an empty snapshot at the current schema version.
func NewSnapshot() *Snapshot {
	return &Snapshot{
		Version: SchemaVersion,
		Records: make(map[string]*Record),
	}
}

// metadataText builds the normalized metadata search field.
func metadataText(book *domain.Book) string {
	return normalize.SearchText(strings.Join([]string{
		book.Title, book.Author, book.Language, book.Genre,
	}, " "))
}

// ContentSignature computes a deterministic hash over everything a book's
// search record derives from: normalized metadata plus ordered
// (locator, normalized text) pairs for highlights, notes, and bookmarks.
// Pure; identical inputs always hash identically.
func ContentSignature(book *domain.Book) string {
	h := sha256.New()
	fmt.Fprintf(h, "meta\x00%s\x00", metadataText(book))
	for _, hl := range book.Highlights {
		fmt.Fprintf(h, "hl\x00%s\x00%s\x00", hl.Locator, normalize.AnnotationText(hl.Text))
		if hl.Note != "" {
			fmt.Fprintf(h, "note\x00%s\x00%s\x00", hl.Locator, normalize.AnnotationText(hl.Note))
		}
	}
	for _, bm := range book.Bookmarks {
		fmt.Fprintf(h, "bm\x00%s\x00%s\x00", bm.Locator, normalize.AnnotationText(bm.Label))
	}
	sum := h.Sum(nil)
	return hex.EncodeToString(sum[:16])
}

// buildRecord constructs a fresh search record for a book.
func buildRecord(book *domain.Book, signature string, now time.Time) *Record {
	record := &Record{
		Version:      SchemaVersion,
		BookID:       book.ID,
		MetadataText: metadataText(book),
		Signature:    signature,
		UpdatedAt:    now,
	}

	for _, hl := range book.Highlights {
		record.Highlights = append(record.Highlights, Entry{
			ID:             hl.ID,
			Locator:        hl.Locator,
			RawText:        hl.Text,
			NormalizedText: normalize.AnnotationText(hl.Text),
		})
		if hl.Note != "" {
			record.Notes = append(record.Notes, Entry{
				ID:             hl.ID,
				Locator:        hl.Locator,
				RawText:        hl.Note,
				NormalizedText: normalize.AnnotationText(hl.Note),
			})
		}
	}
	for _, bm := range book.Bookmarks {
		record.Bookmarks = append(record.Bookmarks, Entry{
			ID:             bm.ID,
			Locator:        bm.Locator,
			RawText:        bm.Label,
			NormalizedText: normalize.AnnotationText(bm.Label),
		})
	}

	var sb strings.Builder
	sb.WriteString(record.MetadataText)
	for _, group := range [][]Entry{record.Highlights, record.Notes, record.Bookmarks} {
		for _, e := range group {
			if e.NormalizedText != "" {
				sb.WriteByte(' ')
				sb.WriteString(e.NormalizedText)
			}
		}
	}
	record.FullText = sb.String()

	return record
}
