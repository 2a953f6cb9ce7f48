package contentindex

import (
	"time"
	"unicode/utf8"
)

// SchemaVersion gates persisted content index structures. A persisted
// record or manifest carrying a different version is treated as absent,
// forcing a rebuild; stale shapes are never partially trusted.
const SchemaVersion = 1

// previewLength bounds the preview prefix carried by each section.
const previewLength = 200

// Section is one spine item's extracted text within a content index
// record.
type Section struct {
	ID           string `json:"id"`
	Href         string `json:"href"` // normalized: fragment and query stripped
	ChapterLabel string `json:"chapter_label,omitempty"`
	Preview      string `json:"preview"`
	Text         string `json:"text"` // normalized full text, search-ready
}

// Record is the persisted content index for a single book. Its Signature
// must equal the current signature of the source book's payload
// descriptor, or the record is stale.
type Record struct {
	Version   int       `json:"version"`
	BookID    string    `json:"book_id"`
	Signature string    `json:"signature"`
	BuiltAt   time.Time `json:"built_at"`
	Sections  []Section `json:"sections"`
}

// ManifestEntry summarizes one indexed book inside the manifest.
type ManifestEntry struct {
	Signature    string    `json:"signature"`
	SectionCount int       `json:"section_count"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Manifest is the persisted capacity/freshness summary over all indexed
// books. Its keys are exactly the set of non-deleted books that have been
// successfully indexed; entries for books gone from the library are
// pruned. The authoritative per-book content lives in the Record.
type Manifest struct {
	Version int                      `json:"version"`
	Books   map[string]ManifestEntry `json:"books"`
}

// NewManifest returns an empty manifest at the current schema version.
func NewManifest() *Manifest {
	return &Manifest{
		Version: SchemaVersion,
		Books:   make(map[string]ManifestEntry),
	}
}

// makePreview returns a bounded prefix of normalized text, cut at a rune
// boundary.
func makePreview(text string) string {
	if len(text) <= previewLength {
		return text
	}
	cut := previewLength
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}
