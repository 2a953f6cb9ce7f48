// Package domain contains the core business entities for the Inkwell EPUB library.
package domain

// PayloadDescriptor describes a book's binary EPUB payload without its
// content. Size, modification time, and name are the observable inputs for
// change-detection signatures; the bytes themselves are never hashed.
type PayloadDescriptor struct {
	Size         int64  `json:"size"`
	LastModified int64  `json:"last_modified"` // Unix millis
	Name         string `json:"name"`
}

// Book represents an EPUB in the library.
type Book struct {
	Syncable
	Payload        PayloadDescriptor `json:"payload"`
	Path           string            `json:"path"`
	Title          string            `json:"title"`
	Author         string            `json:"author"`
	Language       string            `json:"language,omitempty"`
	Publisher      string            `json:"publisher,omitempty"`
	PublishDate    string            `json:"publish_date,omitempty"`
	Identifier     string            `json:"identifier,omitempty"`
	Genre          string            `json:"genre,omitempty"`
	GenreSlug      string            `json:"genre_slug,omitempty"`
	Subjects       []string          `json:"subjects,omitempty"`
	EstimatedPages *int              `json:"estimated_pages,omitempty"`
	Cover          *CoverImage       `json:"cover,omitempty"`
	Favorite       bool              `json:"favorite,omitempty"`
	Progress       float64           `json:"progress,omitempty"` // 0..1 reading position
	Highlights     []Highlight       `json:"highlights,omitempty"`
	Bookmarks      []Bookmark        `json:"bookmarks,omitempty"`

	// MetadataPending is true while the import placeholder has not yet been
	// replaced by an extraction result. Books whose extraction failed keep
	// this flag so a backfill pass can retry them.
	MetadataPending bool `json:"metadata_pending,omitempty"`
}

// CoverImage is an embeddable cover payload with display hints.
type CoverImage struct {
	// Data is a data: URI (base64-encoded image) suitable for direct
	// embedding in an <img> tag.
	Data     string `json:"data"`
	MimeType string `json:"mime_type,omitempty"`
	Width    int    `json:"width,omitempty"`
	Height   int    `json:"height,omitempty"`
	// BlurHash is a compact placeholder rendered while covers load.
	BlurHash string `json:"blur_hash,omitempty"`
}

// InTrash reports whether the book is soft-deleted.
func (b *Book) InTrash() bool {
	return b.IsDeleted()
}

// GetHighlight finds a highlight by ID.
func (b *Book) GetHighlight(id string) *Highlight {
	for i := range b.Highlights {
		if b.Highlights[i].ID == id {
			return &b.Highlights[i]
		}
	}
	return nil
}

// RemoveHighlight removes a highlight by ID. Returns true if one was removed.
func (b *Book) RemoveHighlight(id string) bool {
	for i := range b.Highlights {
		if b.Highlights[i].ID == id {
			b.Highlights = append(b.Highlights[:i], b.Highlights[i+1:]...)
			return true
		}
	}
	return false
}

// RemoveBookmark removes a bookmark by ID. Returns true if one was removed.
func (b *Book) RemoveBookmark(id string) bool {
	for i := range b.Bookmarks {
		if b.Bookmarks[i].ID == id {
			b.Bookmarks = append(b.Bookmarks[:i], b.Bookmarks[i+1:]...)
			return true
		}
	}
	return false
}
