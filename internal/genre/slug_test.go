package genre

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSlugify(t *testing.T) {
	tests := []struct {
		label string
		want  string
	}{
		{"Science Fiction", "science-fiction"},
		{"Sci-Fi/Fantasy", "sci-fi-fantasy"},
		{"Historical", "historical"},
		{"Littérature Française", "litterature-francaise"},
		{"  Mystery & Detective  ", "mystery-detective"},
		{"---Drama---", "drama"},
		{"YA", "ya"},
		{"1920s Pulp", "1920s-pulp"},
		{"", ""},
		{"!!!", ""},
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			assert.Equal(t, tt.want, Slugify(tt.label))
		})
	}
}
