package epub

import (
	"fmt"
	"sync"
)

// Document is the structural document model over an open EPUB: the ordered
// spine with per-item load/unload lifecycle, and lazily loaded navigation.
// It deliberately exposes no rendering; the content indexer walks it to
// extract plain text.
//
// Callers own the lifecycle: every Load must be paired with Unload, and
// Close releases the whole instance. One open Document at a time bounds
// peak memory during batch indexing.
type Document struct {
	archive *Archive
	pkg     *packageDoc
	spine   []*SpineItem

	navOnce sync.Once
	nav     []TOCEntry
	navErr  error

	closed bool
}

// SpineItem is one entry in the linear reading order.
type SpineItem struct {
	ID     string
	Href   string // resolved against the OPF directory
	Linear bool

	doc     *Document
	content []byte
	loaded  bool
}

// TOCEntry is one flattened (href, label) pair from the navigation
// document. Hrefs are normalized (fragment and query stripped).
type TOCEntry struct {
	Href  string
	Label string
}

// OpenDocument opens an EPUB payload as a Document. The returned value is
// ready once OpenDocument returns; container or package-document problems
// surface here, not later.
func OpenDocument(data []byte) (*Document, error) {
	archive, err := NewArchive(data)
	if err != nil {
		return nil, err
	}

	pkg, err := locatePackageDoc(archive)
	if err != nil {
		return nil, fmt.Errorf("open document: %w", err)
	}

	d := &Document{archive: archive, pkg: pkg}

	itemsByID := make(map[string]manifestItem)
	for _, item := range pkg.manifestItems() {
		itemsByID[item.ID] = item
	}

	for _, ref := range pkg.spineRefs() {
		item, ok := itemsByID[ref.IDRef]
		if !ok || item.Href == "" {
			continue // dangling idref, skip
		}
		d.spine = append(d.spine, &SpineItem{
			ID:     item.ID,
			Href:   pkg.resolveHref(item.Href),
			Linear: ref.Linear,
			doc:    d,
		})
	}

	return d, nil
}

// Spine returns the spine items in reading order.
func (d *Document) Spine() []*SpineItem {
	return d.spine
}

// Navigation returns the flattened table of contents, loading it on first
// use. Books without any navigation document get an empty TOC, not an
// error.
func (d *Document) Navigation() ([]TOCEntry, error) {
	d.navOnce.Do(func() {
		d.nav, d.navErr = loadNavigation(d.archive, d.pkg)
	})
	return d.nav, d.navErr
}

// Close releases the document. Load/Unload calls after Close are invalid.
func (d *Document) Close() {
	for _, item := range d.spine {
		item.Unload()
	}
	d.spine = nil
	d.archive = nil
	d.closed = true
}

// Load reads the item's content from the archive. The content stays cached
// on the item until Unload.
func (s *SpineItem) Load() ([]byte, error) {
	if s.loaded {
		return s.content, nil
	}
	if s.doc == nil || s.doc.closed {
		return nil, fmt.Errorf("load %s: document closed", s.Href)
	}
	data, err := s.doc.archive.ReadBytes(s.Href)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", s.Href, err)
	}
	s.content = data
	s.loaded = true
	return data, nil
}

// Unload drops the item's cached content. Safe to call repeatedly and on
// items that never loaded.
func (s *SpineItem) Unload() {
	s.content = nil
	s.loaded = false
}
