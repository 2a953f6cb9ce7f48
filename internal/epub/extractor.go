package epub

import (
	"path"
	"strings"

	"github.com/inkwellapp/inkwell-server/internal/errors"
	"github.com/inkwellapp/inkwell-server/internal/genre"
)

// FallbackAuthor is used when the package document carries no creator tag.
const FallbackAuthor = "Unknown Author"

// Pages are estimated from structure, not rendered layout: spine items
// average around eight screen-pages, loose content documents around four.
const (
	pagesPerSpineItem  = 8
	pagesPerContentDoc = 4
)

// Metadata holds the bibliographic fields extracted from a package
// document.
type Metadata struct {
	Title      string   `json:"title"`
	Author     string   `json:"author"`
	Language   string   `json:"language,omitempty"`
	Publisher  string   `json:"publisher,omitempty"`
	Date       string   `json:"date,omitempty"`
	Identifier string   `json:"identifier,omitempty"`
	Subjects   []string `json:"subjects,omitempty"`
	Types      []string `json:"types,omitempty"`
}

// CoverData is a located and decoded cover image, ready for the media
// pipeline to turn into an embeddable payload.
type CoverData struct {
	Data      []byte
	MediaType string
	Href      string
}

// Result is the transient outcome of a metadata extraction. It is consumed
// to populate a Book and then discarded.
type Result struct {
	Metadata       Metadata
	EstimatedPages *int
	Genre          string
	Cover          *CoverData
}

// Extract parses an EPUB payload and produces bibliographic metadata, a
// page estimate, a classified genre, and the cover image if one can be
// resolved. Parse failures on the container or package document surface as
// typed errors; a missing or unreadable cover never does.
func Extract(data []byte, filename string) (*Result, error) {
	archive, err := NewArchive(data)
	if err != nil {
		return nil, errors.MalformedContainer("payload is not a readable EPUB archive").WithCause(err)
	}

	if !archive.Has(containerPath) {
		return nil, errors.MalformedContainer("META-INF/container.xml is missing")
	}

	pkg, err := locatePackageDoc(archive)
	if err != nil {
		return nil, errors.MissingPackageDocument("package document could not be located").WithCause(err)
	}

	result := &Result{
		Metadata: Metadata{
			Title:      firstTag(pkg.raw, "title"),
			Author:     firstTag(pkg.raw, "creator"),
			Language:   firstTag(pkg.raw, "language"),
			Publisher:  firstTag(pkg.raw, "publisher"),
			Date:       firstTag(pkg.raw, "date"),
			Identifier: firstTag(pkg.raw, "identifier"),
			Subjects:   allTags(pkg.raw, "subject"),
			Types:      allTags(pkg.raw, "type"),
		},
	}

	if result.Metadata.Title == "" {
		result.Metadata.Title = titleFromFilename(filename)
	}
	if result.Metadata.Author == "" {
		result.Metadata.Author = FallbackAuthor
	}

	result.EstimatedPages = estimatePages(pkg)
	result.Genre = genre.Classify(append(result.Metadata.Subjects, result.Metadata.Types...)...)
	result.Cover = resolveCover(archive, pkg)

	return result, nil
}

// estimatePages estimates a page count from the package document. Returns
// nil (absent, not zero) when there is no structural signal at all.
func estimatePages(pkg *packageDoc) *int {
	if n := pkg.spineCount(); n > 0 {
		pages := n * pagesPerSpineItem
		return &pages
	}
	if n := pkg.contentDocCount(); n > 0 {
		pages := n * pagesPerContentDoc
		return &pages
	}
	return nil
}

// resolveCover locates the cover image. An item with the cover-image
// property wins; otherwise a <meta name="cover"> reference is followed to
// the item with that ID. Any failure along the way yields a nil cover,
// never an error.
func resolveCover(archive *Archive, pkg *packageDoc) *CoverData {
	items := pkg.manifestItems()

	var candidate *manifestItem
	for i := range items {
		if hasProperty(items[i].Properties, "cover-image") {
			candidate = &items[i]
			break
		}
	}

	if candidate == nil {
		if coverID := pkg.metaContent("cover"); coverID != "" {
			for i := range items {
				if items[i].ID == coverID {
					candidate = &items[i]
					break
				}
			}
		}
	}

	if candidate == nil || candidate.Href == "" {
		return nil
	}

	href := pkg.resolveHref(candidate.Href)
	data, err := archive.ReadBytes(href)
	if err != nil {
		return nil
	}

	return &CoverData{
		Data:      data,
		MediaType: coverMediaType(candidate.MediaType, href),
		Href:      href,
	}
}

func hasProperty(properties, want string) bool {
	for _, p := range strings.Fields(properties) {
		if strings.EqualFold(p, want) {
			return true
		}
	}
	return false
}

// coverMediaType returns the declared media type, falling back to the file
// extension.
func coverMediaType(declared, href string) string {
	if declared != "" {
		return declared
	}
	switch strings.ToLower(path.Ext(href)) {
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	case ".svg":
		return "image/svg+xml"
	default:
		return "image/jpeg"
	}
}

// titleFromFilename strips the extension from a display filename.
func titleFromFilename(filename string) string {
	base := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	return strings.TrimSuffix(base, path.Ext(base))
}
