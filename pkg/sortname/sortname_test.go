package sortname

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTitle(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in  string
		out string
	}{
		{"The Hobbit", "Hobbit, The"},
		{"a tale of two cities", "tale of two cities, a"},
		{"An American Tragedy", "American Tragedy, An"},
		{"Theory of Everything", "Theory of Everything"},
		{"The", "The"},
		{"  Dune  ", "Dune"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.out, Title(tt.in), tt.in)
	}
}

func TestAuthor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in  string
		out string
	}{
		{"Stephen King", "King, Stephen"},
		{"Ursula K. Le Guin", "Guin, Ursula K. Le"},
		{"Ludwig van Beethoven", "Beethoven, Ludwig van"},
		{"Dr. Sarah Connor", "Connor, Sarah"},
		{"Jane Doe PhD", "Doe, Jane"},
		{"Martin Luther King, Jr.", "King, Martin Luther, Jr."},
		{"Homer", "Homer"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.out, Author(tt.in), tt.in)
	}
}

func TestAuthors(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Pratchett, Terry & Gaiman, Neil", Authors([]string{"Terry Pratchett", "Neil Gaiman"}))
	assert.Empty(t, Authors(nil))
}
