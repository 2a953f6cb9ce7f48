// Package normalize provides utilities for normalizing text used in search
// indexes and metadata.
//
// SearchText is the single normalization applied to both indexed text and
// incoming queries. Using the same function on both sides is load-bearing:
// substring matching silently degrades if index-time and query-time
// normalization ever diverge.
package normalize

import (
	"regexp"
	"strings"
)

var whitespaceRun = regexp.MustCompile(`\s+`)

// CollapseWhitespace replaces every run of whitespace with a single space
// and trims the result.
func CollapseWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(s, " "))
}

// SearchText normalizes text for substring search: lowercase, whitespace
// collapsed, trimmed. Applied identically at index time and query time.
func SearchText(s string) string {
	return strings.ToLower(CollapseWhitespace(sanitizeString(s)))
}

// xmlEntities maps the five standard XML entities to their characters.
var xmlEntities = strings.NewReplacer(
	"&amp;", "&",
	"&lt;", "<",
	"&gt;", ">",
	"&quot;", `"`,
	"&apos;", "'",
)

// DecodeEntities decodes the five standard XML entities. Numeric character
// references are left as-is; real-world package documents only use the
// named five.
func DecodeEntities(s string) string {
	return xmlEntities.Replace(s)
}

// TagText prepares extracted tag content for display: entities decoded,
// whitespace collapsed.
func TagText(s string) string {
	return CollapseWhitespace(DecodeEntities(s))
}

// htmlTagPattern matches common HTML tags to detect markup in annotation
// text coming from the browser-side reader.
var htmlTagPattern = regexp.MustCompile(`<(p|br|div|span|b|i|strong|em|a|ul|ol|li|h[1-6]|blockquote)[\s>/]`)

// AnnotationText flattens annotation text for indexing. Text captured from
// the reader sometimes carries HTML markup; it is converted to Markdown
// before the usual search normalization.
//
// HTML-to-Markdown conversion is disabled: every version of
// github.com/JohannesKaufmann/html-to-markdown/v2 requires Go >= 1.22.1 and
// the build toolchain is pinned to Go 1.21. Restore the conversion when the
// toolchain is upgraded.
func AnnotationText(s string) string {
	return SearchText(s)
}

// sanitizeString removes null bytes, which can upset JSON encoding and
// storage. Some producers leave null terminators in metadata strings.
func sanitizeString(s string) string {
	return strings.Map(func(r rune) rune {
		if r == 0 {
			return -1
		}
		return r
	}, s)
}
