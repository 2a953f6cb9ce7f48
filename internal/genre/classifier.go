// Package genre provides genre classification and slug normalization for
// imported books.
package genre

import (
	"strings"
	"unicode"

	"github.com/inkwellapp/inkwell-server/internal/normalize"
)

// rule maps keyword needles to a canonical genre label.
type rule struct {
	label    string
	keywords []string
}

// classifierRules are checked in order; the first matching rule wins.
// Order matters: "Historical Fiction" must resolve to Historical before the
// generic Fiction rule gets a chance, and "history" must not shadow
// "historical".
//
//nolint:gochecknoglobals // Static classification table
var classifierRules = []rule{
	{"Science Fiction", []string{"science fiction", "sci-fi", "sci fi", "scifi"}},
	{"Fantasy", []string{"fantasy"}},
	{"Horror", []string{"horror"}},
	{"Thriller", []string{"thriller", "suspense"}},
	{"Mystery", []string{"mystery", "detective"}},
	{"Romance", []string{"romance", "romantic"}},
	{"Classic", []string{"classic"}},
	{"Historical", []string{"historical"}},
	{"Poetry", []string{"poetry", "poems"}},
	{"Drama", []string{"drama"}},
	{"Biography", []string{"biography", "memoir", "autobiography"}},
	{"History", []string{"history"}},
	{"Philosophy", []string{"philosophy"}},
	{"Nonfiction", []string{"nonfiction", "non-fiction", "non fiction"}},
	{"Fiction", []string{"fiction", "novel"}},
}

// Classify derives a normalized genre label from subject/type tags found in
// a package document. Each raw value may carry several candidates separated
// by comma, semicolon, pipe, or slash; candidates are tested in order
// against the classifier rules. If nothing matches, the first candidate is
// title-cased as-is.
func Classify(raws ...string) string {
	candidates := splitCandidates(raws)
	if len(candidates) == 0 {
		return ""
	}

	for _, candidate := range candidates {
		lower := strings.ToLower(candidate)
		for _, r := range classifierRules {
			for _, kw := range r.keywords {
				if strings.Contains(lower, kw) {
					return r.label
				}
			}
		}
	}

	return TitleCase(candidates[0])
}

// splitCandidates flattens raw tag values into trimmed candidate tokens.
func splitCandidates(raws []string) []string {
	var out []string
	for _, raw := range raws {
		for _, part := range strings.FieldsFunc(raw, func(r rune) bool {
			return r == ',' || r == ';' || r == '|' || r == '/'
		}) {
			if part = normalize.CollapseWhitespace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// TitleCase title-cases a free-text genre token. Short all-caps words
// (three characters or fewer) are kept intact so acronyms like "YA" and
// "SF" survive.
func TitleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		if len(w) <= 3 && w == strings.ToUpper(w) && strings.ContainsFunc(w, unicode.IsLetter) {
			continue
		}
		runes := []rune(strings.ToLower(w))
		runes[0] = unicode.ToUpper(runes[0])
		words[i] = string(runes)
	}
	return strings.Join(words, " ")
}
