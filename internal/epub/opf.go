package epub

import (
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"
	"sync"

	"github.com/inkwellapp/inkwell-server/internal/normalize"
)

// The package document is scanned with regular expressions rather than a
// full XML DOM. Observed producer output is flat enough that tag scanning
// is reliable, and it keeps extraction cheap for worker-side use. The
// contract is: first-match priority, the five standard XML entities
// decoded, whitespace collapsed.

const containerPath = "META-INF/container.xml"

var (
	fullPathAttr = regexp.MustCompile(`(?is)<rootfile\b[^>]*?full-path\s*=\s*["']([^"']+)["']`)
	itemrefTag   = regexp.MustCompile(`(?i)<itemref\b[^>]*>`)
	itemTag      = regexp.MustCompile(`(?i)<item\b[^>]*>`)
	metaTag      = regexp.MustCompile(`(?i)<meta\b[^>]*/?>`)
	attrPattern  = regexp.MustCompile(`(?i)([a-zA-Z:_-]+)\s*=\s*["']([^"']*)["']`)
)

// tagPatterns caches compiled per-tag regexps; the same handful of Dublin
// Core names is scanned for every import.
var tagPatterns sync.Map

func tagPattern(name string) *regexp.Regexp {
	if re, ok := tagPatterns.Load(name); ok {
		return re.(*regexp.Regexp)
	}
	quoted := regexp.QuoteMeta(name)
	// Optional dc: prefix, optional attributes, non-greedy body.
	re := regexp.MustCompile(`(?is)<(?:dc:)?` + quoted + `(?:\s[^>]*)?>(.*?)</(?:dc:)?` + quoted + `\s*>`)
	tagPatterns.Store(name, re)
	return re
}

// firstTag extracts the text content of the first occurrence of a tag,
// entity-decoded and whitespace-collapsed.
func firstTag(doc, name string) string {
	m := tagPattern(name).FindStringSubmatch(doc)
	if m == nil {
		return ""
	}
	return normalize.TagText(m[1])
}

// allTags extracts the text content of every occurrence of a tag.
func allTags(doc, name string) []string {
	var out []string
	for _, m := range tagPattern(name).FindAllStringSubmatch(doc, -1) {
		if text := normalize.TagText(m[1]); text != "" {
			out = append(out, text)
		}
	}
	return out
}

// tagAttrs parses the attributes of a single opening tag.
func tagAttrs(tag string) map[string]string {
	attrs := make(map[string]string)
	for _, m := range attrPattern.FindAllStringSubmatch(tag, -1) {
		attrs[strings.ToLower(m[1])] = normalize.DecodeEntities(m[2])
	}
	return attrs
}

// manifestItem is one <item> from the OPF manifest.
type manifestItem struct {
	ID         string
	Href       string
	MediaType  string
	Properties string
}

// packageDoc holds the raw OPF text plus its location inside the archive,
// which anchors relative href resolution.
type packageDoc struct {
	raw  string
	path string
}

// locatePackageDoc reads container.xml and loads the OPF it points at.
// A missing or unreadable container is a MalformedContainer condition; a
// container that points nowhere readable is MissingPackageDocument. The
// error discrimination happens in the extractor, which owns the typed
// error taxonomy.
func locatePackageDoc(a *Archive) (*packageDoc, error) {
	container, err := a.ReadText(containerPath)
	if err != nil {
		return nil, fmt.Errorf("read container: %w", err)
	}

	m := fullPathAttr.FindStringSubmatch(container)
	if m == nil {
		return nil, fmt.Errorf("container has no rootfile full-path: %w", ErrEntryNotFound)
	}
	opfPath := strings.TrimSpace(m[1])

	raw, err := a.ReadText(opfPath)
	if err != nil {
		return nil, fmt.Errorf("read package document %q: %w", opfPath, err)
	}

	return &packageDoc{raw: raw, path: opfPath}, nil
}

// spineCount returns the number of itemref elements in the spine.
func (p *packageDoc) spineCount() int {
	return len(itemrefTag.FindAllString(p.raw, -1))
}

// spineRefs returns the spine itemrefs in document order.
// linear defaults to true; only an explicit linear="no" marks an item
// non-linear.
func (p *packageDoc) spineRefs() []struct {
	IDRef  string
	Linear bool
} {
	var refs []struct {
		IDRef  string
		Linear bool
	}
	for _, tag := range itemrefTag.FindAllString(p.raw, -1) {
		attrs := tagAttrs(tag)
		idref := attrs["idref"]
		if idref == "" {
			continue
		}
		refs = append(refs, struct {
			IDRef  string
			Linear bool
		}{IDRef: idref, Linear: !strings.EqualFold(attrs["linear"], "no")})
	}
	return refs
}

// manifestItems returns every manifest <item>.
func (p *packageDoc) manifestItems() []manifestItem {
	var items []manifestItem
	for _, tag := range itemTag.FindAllString(p.raw, -1) {
		attrs := tagAttrs(tag)
		if attrs["href"] == "" && attrs["id"] == "" {
			continue
		}
		items = append(items, manifestItem{
			ID:         attrs["id"],
			Href:       attrs["href"],
			MediaType:  attrs["media-type"],
			Properties: attrs["properties"],
		})
	}
	return items
}

// metaContent returns the content attribute of a <meta name=...> element.
func (p *packageDoc) metaContent(name string) string {
	for _, tag := range metaTag.FindAllString(p.raw, -1) {
		attrs := tagAttrs(tag)
		if strings.EqualFold(attrs["name"], name) {
			return attrs["content"]
		}
	}
	return ""
}

// contentDocCount counts manifest entries that look like XHTML content
// documents. Used as the page-estimate fallback when the spine is empty.
func (p *packageDoc) contentDocCount() int {
	count := 0
	for _, item := range p.manifestItems() {
		href := strings.ToLower(item.Href)
		if strings.HasSuffix(href, ".xhtml") || strings.HasSuffix(href, ".html") ||
			strings.HasSuffix(href, ".htm") || strings.HasSuffix(href, ".xhtm") {
			count++
		}
	}
	return count
}

// resolveHref resolves a manifest href against the package document's own
// directory, handling ./.. segments. Absolute URLs pass through untouched.
func (p *packageDoc) resolveHref(href string) string {
	if href == "" {
		return ""
	}
	if u, err := url.Parse(href); err == nil && u.Scheme != "" {
		return href
	}
	// Hrefs are URL-encoded in the manifest but stored raw in the archive.
	if decoded, err := url.QueryUnescape(href); err == nil {
		href = decoded
	}
	if strings.HasPrefix(href, "/") {
		return path.Clean(strings.TrimPrefix(href, "/"))
	}
	base := path.Dir(p.path)
	if base == "." {
		return path.Clean(href)
	}
	return path.Join(base, href)
}

// NormalizeHref strips the fragment and query from an href and cleans it.
// TOC entries and spine items are compared in this form.
func NormalizeHref(href string) string {
	if i := strings.IndexAny(href, "#?"); i >= 0 {
		href = href[:i]
	}
	href = strings.TrimPrefix(href, "/")
	if href == "" {
		return ""
	}
	return path.Clean(href)
}
