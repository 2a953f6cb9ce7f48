package epub

import (
	"bytes"
	"encoding/xml"
	"strings"

	"golang.org/x/net/html"

	"github.com/inkwellapp/inkwell-server/internal/normalize"
)

// loadNavigation parses the table of contents from either an EPUB 3 nav
// document or an EPUB 2 NCX, flattening nested entries depth-first into a
// flat (href, label) list. Books with neither get an empty TOC.
func loadNavigation(archive *Archive, pkg *packageDoc) ([]TOCEntry, error) {
	items := pkg.manifestItems()

	// EPUB 3 nav document first.
	for _, item := range items {
		if hasProperty(item.Properties, "nav") {
			content, err := archive.ReadBytes(pkg.resolveHref(item.Href))
			if err != nil {
				break
			}
			if entries := parseNavDoc(content, pkg); entries != nil {
				return entries, nil
			}
			break
		}
	}

	// Fall back to EPUB 2 NCX.
	for _, item := range items {
		if item.MediaType == "application/x-dtbncx+xml" {
			content, err := archive.ReadBytes(pkg.resolveHref(item.Href))
			if err != nil {
				break
			}
			if entries := parseNCX(content, pkg); entries != nil {
				return entries, nil
			}
			break
		}
	}

	return []TOCEntry{}, nil
}

// parseNavDoc extracts TOC entries from an EPUB 3 nav document: the <nav>
// element typed "toc", anchors collected depth-first.
func parseNavDoc(content []byte, pkg *packageDoc) []TOCEntry {
	doc, err := html.Parse(bytes.NewReader(content))
	if err != nil {
		return nil
	}

	var findNav func(*html.Node) *html.Node
	findNav = func(n *html.Node) *html.Node {
		if n.Type == html.ElementNode && n.Data == "nav" {
			for _, attr := range n.Attr {
				if (attr.Key == "epub:type" || attr.Key == "type") && strings.Contains(attr.Val, "toc") {
					return n
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if found := findNav(c); found != nil {
				return found
			}
		}
		return nil
	}

	nav := findNav(doc)
	if nav == nil {
		return nil
	}

	var entries []TOCEntry
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			var href string
			for _, attr := range n.Attr {
				if attr.Key == "href" {
					href = attr.Val
					break
				}
			}
			label := normalize.CollapseWhitespace(nodeText(n))
			if href != "" && label != "" {
				entries = append(entries, TOCEntry{
					Href:  NormalizeHref(pkg.resolveHref(href)),
					Label: label,
				})
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(nav)

	return entries
}

// ncxDocument mirrors the EPUB 2 NCX structure.
type ncxDocument struct {
	XMLName xml.Name      `xml:"ncx"`
	NavMap  []ncxNavPoint `xml:"navMap>navPoint"`
}

type ncxNavPoint struct {
	Label    string        `xml:"navLabel>text"`
	Content  ncxContent    `xml:"content"`
	Children []ncxNavPoint `xml:"navPoint"`
}

type ncxContent struct {
	Src string `xml:"src,attr"`
}

// parseNCX extracts TOC entries from an NCX document, flattening nested
// navPoints depth-first.
func parseNCX(content []byte, pkg *packageDoc) []TOCEntry {
	var ncx ncxDocument
	if err := xml.Unmarshal(content, &ncx); err != nil {
		return nil
	}

	var entries []TOCEntry
	var flatten func(points []ncxNavPoint)
	flatten = func(points []ncxNavPoint) {
		for _, p := range points {
			label := normalize.CollapseWhitespace(p.Label)
			if p.Content.Src != "" && label != "" {
				entries = append(entries, TOCEntry{
					Href:  NormalizeHref(pkg.resolveHref(p.Content.Src)),
					Label: label,
				})
			}
			flatten(p.Children)
		}
	}
	flatten(ncx.NavMap)

	return entries
}
