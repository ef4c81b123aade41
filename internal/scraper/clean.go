package scraper

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

var (
	typographyReplacer = strings.NewReplacer(
		"\u2018", "'", "\u2019", "'", "\u201a", "'", "\u2032", "'",
		"\u201c", "\"", "\u201d", "\"", "\u201e", "\"", "\u2033", "\"",
		"\u2013", "-", "\u2014", "-", "\u2212", "-",
		"\u00a0", " ", "\u2002", " ", "\u2003", " ", "\u2009", " ",
		"\u2026", "...",
		"\u200b", "", "\ufeff", "",
		"\r\n", "\n", "\r", "\n",
	)
	bulletPattern        = regexp.MustCompile(`(?m)^[ \t]*[\x{2022}\x{25e6}\x{25aa}\x{25ab}\x{25cf}\x{25cb}\x{25a0}\x{25a1}\x{00b7}\x{2023}\x{2043}\x{2219}*][ \t]*`)
	inlineSpacePattern   = regexp.MustCompile(`[ \t\f\v]+`)
	blankLinesPattern    = regexp.MustCompile(`\n{3,}`)
	anyWhitespacePattern = regexp.MustCompile(`\s+`)
)

// blockElements start a new line when flattening a DOM subtree
var blockElements = map[string]bool{
	"address": true, "article": true, "aside": true, "blockquote": true,
	"br": true, "dd": true, "div": true, "dl": true, "dt": true,
	"footer": true, "h1": true, "h2": true, "h3": true, "h4": true,
	"h5": true, "h6": true, "header": true, "hr": true, "li": true,
	"main": true, "ol": true, "p": true, "pre": true, "section": true,
	"table": true, "tr": true, "ul": true,
}

// CleanText normalizes typography, bullets and whitespace.
func CleanText(s string) string {
	s = typographyReplacer.Replace(s)
	s = bulletPattern.ReplaceAllString(s, "- ")
	s = inlineSpacePattern.ReplaceAllString(s, " ")

	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	s = strings.Join(lines, "\n")
	s = blankLinesPattern.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// inlineText is the single-line text of a selection
func inlineText(sel *goquery.Selection) string {
	return CleanText(anyWhitespacePattern.ReplaceAllString(sel.Text(), " "))
}

// blockText flattens a selection to text, keeping paragraph and list
// structure as line breaks.
func blockText(sel *goquery.Selection) string {
	var b strings.Builder

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			b.WriteString(anyWhitespacePattern.ReplaceAllString(n.Data, " "))
		case html.ElementNode:
			switch n.Data {
			case "script", "style", "noscript", "template":
				return
			case "li":
				b.WriteString("\n• ")
			default:
				if blockElements[n.Data] {
					b.WriteString("\n")
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode && blockElements[n.Data] && n.Data != "li" {
			b.WriteString("\n")
		}
	}

	for _, n := range sel.Nodes {
		walk(n)
	}
	return CleanText(b.String())
}

// Truncate cuts s to at most max runes
func Truncate(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:max]))
}

// runeLen counts characters rather than bytes
func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}
