package scraper

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"smart quotes", "“Hello” it’s", "\"Hello\" it's"},
		{"dashes", "2024–2025 — remote", "2024-2025 - remote"},
		{"nbsp and runs of spaces", "a\u00a0 b   c\t\td", "a b c d"},
		{"bullets", "• first\n  ▪ second", "- first\n- second"},
		{"blank lines collapse", "one\n\n\n\n\ntwo", "one\n\ntwo"},
		{"crlf", "one\r\ntwo", "one\ntwo"},
		{"trims", "  \n padded \n ", "padded"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanText(tt.in))
		})
	}
}

func TestBlockTextKeepsStructure(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(
		`<div id="x"><p>Intro   text</p><ul><li>One</li><li>Two</li></ul><script>var a;</script></div>`))
	require.NoError(t, err)

	got := blockText(doc.Find("#x"))
	assert.Equal(t, "Intro text\n\n- One\n- Two", got)
}

func TestTruncateCountsRunes(t *testing.T) {
	assert.Equal(t, "héll", Truncate("héllo", 4))
	assert.Equal(t, "short", Truncate("short", 10))
	assert.Equal(t, "unbounded", Truncate("unbounded", 0))
}
