package contentindex

import (
	"sort"
	"strings"

	"github.com/inkwellapp/inkwell-server/internal/normalize"
)

// DefaultMaxResults bounds candidate lists when the caller does not ask
// for a specific cap.
const DefaultMaxResults = 12

// Candidate is one in-book search hit. It carries only the public-facing
// section fields; the full section text never crosses the worker boundary.
type Candidate struct {
	SectionID    string `json:"section_id"`
	Href         string `json:"href"`
	ChapterLabel string `json:"chapter_label,omitempty"`
	Preview      string `json:"preview"`
	Offset       int    `json:"offset"`
}

// Match searches sections for a query substring and returns candidates
// ranked by earliest first-occurrence offset, earliest first. Ties keep
// input order. The query is normalized with the exact function applied to
// section text at index time; results silently degrade if the two sides
// ever normalize differently.
func Match(sections []Section, query string, maxResults int) []Candidate {
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}

	needle := normalize.SearchText(query)
	if needle == "" {
		return nil
	}

	var candidates []Candidate
	for _, section := range sections {
		offset := strings.Index(section.Text, needle)
		if offset < 0 {
			continue
		}
		candidates = append(candidates, Candidate{
			SectionID:    section.ID,
			Href:         section.Href,
			ChapterLabel: section.ChapterLabel,
			Preview:      section.Preview,
			Offset:       offset,
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Offset < candidates[j].Offset
	})

	if len(candidates) > maxResults {
		candidates = candidates[:maxResults]
	}
	return candidates
}
