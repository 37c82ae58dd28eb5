package scraper

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

const (
	// MaxTextChars bounds extracted page text.
	MaxTextChars = 15000
	// MinTextChars is the shortest text still treated as content.
	MinTextChars = 50
	// TruncationMarker is appended when text is cut at MaxTextChars.
	TruncationMarker = "\n... [truncated]"
)

// strippedTags never carry listing content.
var strippedTags = "script, style, noscript, nav, header, footer, iframe, svg, template"

// ExtractText strips non-content nodes from an HTML document and returns its
// visible text, one line per text node.
func ExtractText(body []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("scraper: parse html: %w", err)
	}
	doc.Find(strippedTags).Remove()

	var lines []string
	var walk func(*goquery.Selection)
	walk = func(s *goquery.Selection) {
		s.Contents().Each(func(_ int, n *goquery.Selection) {
			node := n.Get(0)
			switch node.Type {
			case html.TextNode:
				if line := strings.Join(strings.Fields(node.Data), " "); line != "" {
					lines = append(lines, line)
				}
			case html.ElementNode:
				walk(n)
			}
		})
	}
	walk(doc.Selection)

	return strings.Join(lines, "\n"), nil
}

// Bound trims text and applies the length limits. ok is false when the text is
// too short to be content.
func Bound(text string) (string, bool) {
	text = strings.TrimSpace(text)
	if len([]rune(text)) < MinTextChars {
		return "", false
	}
	if r := []rune(text); len(r) > MaxTextChars {
		text = string(r[:MaxTextChars]) + TruncationMarker
	}
	return text, true
}
