// Package markup turns rendered page markup into plain text blocks.
package markup

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Document is parsed page markup
type Document struct {
	doc *goquery.Document
}

// Parse reads html into a Document. Script, style and template contents are
// dropped so they never show up as text.
func Parse(markup string) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("failed to parse markup: %w", err)
	}
	doc.Find("script, style, noscript, template").Remove()
	return &Document{doc: doc}, nil
}

// Count returns the number of elements matching selector
func (d *Document) Count(selector string) int {
	return d.doc.Find(selector).Length()
}

// Blocks returns the text of every element matching selector, in document
// order. Nested matches are reported once, as part of their outermost match.
func (d *Document) Blocks(selector string) []string {
	sel := d.doc.Find(selector)
	blocks := make([]string, 0, sel.Length())
	sel.Each(func(_ int, s *goquery.Selection) {
		if s.ParentsFiltered(selector).Length() > 0 {
			return
		}
		if text := Text(s.Nodes...); text != "" {
			blocks = append(blocks, text)
		}
	})
	return blocks
}

// Text returns the text of the whole document
func (d *Document) Text() string {
	return Text(d.doc.Nodes...)
}

var (
	innerSpaces   = regexp.MustCompile(`[ \t\f\r\x{a0}]+`)
	blankLines    = regexp.MustCompile(`\n\s*\n+`)
	blockElements = map[string]bool{
		"address": true, "article": true, "aside": true, "blockquote": true,
		"br": true, "dd": true, "div": true, "dl": true, "dt": true,
		"figcaption": true, "footer": true, "h1": true, "h2": true, "h3": true,
		"h4": true, "h5": true, "h6": true, "header": true, "hr": true,
		"li": true, "main": true, "nav": true, "ol": true, "p": true,
		"pre": true, "section": true, "table": true, "td": true, "th": true,
		"tr": true, "ul": true,
	}
)

// Text renders nodes as plain text. Block elements start new lines so that
// words from neighbouring blocks never run together.
func Text(nodes ...*html.Node) string {
	var b strings.Builder
	for _, n := range nodes {
		writeText(&b, n)
	}
	return normalize(b.String())
}

func writeText(b *strings.Builder, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		b.WriteString(n.Data)
		return
	case html.ElementNode:
		if n.Data == "img" {
			for _, a := range n.Attr {
				if a.Key == "alt" && a.Val != "" {
					b.WriteString(" " + a.Val + " ")
				}
			}
			return
		}
	case html.CommentNode:
		return
	}

	block := n.Type == html.ElementNode && blockElements[n.Data]
	if block {
		b.WriteByte('\n')
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		writeText(b, c)
	}
	if block {
		b.WriteByte('\n')
	}
}

func normalize(s string) string {
	s = innerSpaces.ReplaceAllString(s, " ")
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	s = strings.Join(lines, "\n")
	return strings.TrimSpace(blankLines.ReplaceAllString(s, "\n"))
}
