// Package render holds text helpers shared by sender modules: HTML to plain
// text conversion and splitting long messages into sendable chunks.
package render

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

var blockTags = map[string]bool{
	"p": true, "div": true, "br": true, "li": true, "ul": true, "ol": true, "tr": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"section": true, "article": true, "blockquote": true, "table": true,
}

// Text converts an HTML fragment to plain text. Block elements become line
// breaks and list items get a bullet. Plain text input is returned cleaned.
func Text(fragment string) string {
	if !strings.ContainsAny(fragment, "<&") {
		return Clean(fragment)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return Clean(fragment)
	}
	doc.Find("script, style").Remove()

	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			b.WriteString(n.Data)
			return
		case html.ElementNode:
			if n.Data == "li" {
				b.WriteString("\n• ")
			} else if blockTags[n.Data] {
				b.WriteString("\n")
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode && blockTags[n.Data] && n.Data != "br" && n.Data != "li" {
			b.WriteString("\n")
		}
	}
	for _, n := range doc.Find("body").Nodes {
		walk(n)
	}
	return Clean(b.String())
}

var (
	indentRun = regexp.MustCompile(`\n[ \t]+`)
	blankRun  = regexp.MustCompile(`\n{3,}`)
	spaceRun  = regexp.MustCompile(`[ \t]{2,}`)
)

// Clean trims, removes indentation after line breaks and collapses runs of
// blank lines to one.
func Clean(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = indentRun.ReplaceAllString(s, "\n")
	s = spaceRun.ReplaceAllString(s, " ")
	s = blankRun.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// Split splits s into chunks of at most limit runes. It prefers newline
// boundaries and, when htmlMode is set, avoids cutting inside a tag.
func Split(s string, limit int, htmlMode bool) []string {
	if limit <= 0 {
		return []string{s}
	}
	rs := []rune(s)
	if len(rs) <= limit {
		return []string{s}
	}

	out := make([]string, 0, (len(rs)+limit-1)/limit)
	start := 0
	for start < len(rs) {
		end := min(start+limit, len(rs))

		if end < len(rs) {
			cut := -1
			for i := end - 1; i > start; i-- {
				if rs[i] == '\n' && i-start >= limit/3 {
					cut = i + 1
					break
				}
			}
			if cut == -1 {
				for i := end - 1; i > start; i-- {
					if rs[i] == ' ' && i-start >= limit/2 {
						cut = i + 1
						break
					}
				}
			}
			if cut != -1 {
				end = cut
			}
		}

		if htmlMode && end < len(rs) {
			lastOpen, lastClose := -1, -1
			for i := start; i < end; i++ {
				switch rs[i] {
				case '<':
					lastOpen = i
				case '>':
					lastClose = i
				}
			}
			if lastOpen > lastClose && lastOpen > start+1 {
				end = lastOpen
			}
		}

		chunk := strings.TrimRight(string(rs[start:end]), "\n ")
		if chunk != "" {
			out = append(out, chunk)
		}
		start = end
		for start < len(rs) && (rs[start] == '\n' || rs[start] == ' ') {
			start++
		}
	}
	return out
}
