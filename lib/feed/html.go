package feed

import (
	"regexp"
	"strings"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
)

var (
	whitespace = regexp.MustCompile(`\s+`)
)

// StripHTML returns the visible text of an HTML fragment. Text nodes are
// joined with spaces, so "<b>a</b><i>b</i>" becomes "a b" rather than "ab".
func StripHTML(fragment string) string {
	if strings.TrimSpace(fragment) == "" {
		return ""
	}
	doc, err := htmlquery.Parse(strings.NewReader(fragment))
	if err != nil {
		return compactWhitespace(fragment)
	}
	return collectText(doc)
}

func collectText(n *html.Node) string {
	nodes := htmlquery.Find(n, "//text()[not(ancestor::script) and not(ancestor::style)]")
	parts := make([]string, 0, len(nodes))
	for _, t := range nodes {
		parts = append(parts, t.Data)
	}
	return compactWhitespace(strings.Join(parts, " "))
}

func compactWhitespace(s string) string {
	s = whitespace.ReplaceAllString(s, " ")
	s = strings.Trim(s, " ")
	return s
}
