package genre

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Slugify converts a genre label into the URL-safe form the shelf filter
// matches against: "Science Fiction" -> "science-fiction",
// "Sci-Fi/Fantasy" -> "sci-fi-fantasy". Labels are decomposed with NFKD
// first so accented letters keep their base form instead of vanishing.
func Slugify(label string) string {
	var b strings.Builder
	b.Grow(len(label))

	pendingHyphen := false
	for _, r := range norm.NFKD.String(label) {
		switch {
		case r >= 'A' && r <= 'Z':
			r += 'a' - 'A'
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
		case r > unicode.MaxASCII:
			// Combining marks and other non-ASCII leftovers are dropped
			// without forcing a separator.
			continue
		default:
			// Runs of punctuation and whitespace collapse into a single
			// hyphen, and only between kept characters.
			if b.Len() > 0 {
				pendingHyphen = true
			}
			continue
		}

		if pendingHyphen {
			b.WriteByte('-')
			pendingHyphen = false
		}
		b.WriteRune(r)
	}

	return b.String()
}
