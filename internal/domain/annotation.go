package domain

import "time"

// Highlight represents a user's saved excerpt from a book. The locator is an
// EPUB CFI (or viewer-native position string) resolved by the external
// reader; the server treats it as opaque.
type Highlight struct {
	ID        string    `json:"id"`
	Locator   string    `json:"locator"`
	Text      string    `json:"text"`
	Note      string    `json:"note,omitempty"`
	Color     string    `json:"color,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Bookmark marks a reading position within a book.
type Bookmark struct {
	ID        string    `json:"id"`
	Locator   string    `json:"locator"`
	Label     string    `json:"label,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
