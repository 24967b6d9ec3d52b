package sandbox

import (
	"fmt"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// DOM is the document tree of one instance. The tree itself is only touched
// on the instance loop; the change log may be read from anywhere.
type DOM struct {
	doc     *goquery.Document
	source  string
	changes []DOMChange
	mu      sync.RWMutex
}

// inlineScript is one <script> element without a src attribute
type inlineScript struct {
	index int
	code  string
	line  int // zero-based line of the first code line in the source document
}

// ParseDOM builds the document tree for source
func ParseDOM(source string) (*DOM, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(source))
	if err != nil {
		return nil, fmt.Errorf("failed to parse document: %w", err)
	}
	return &DOM{doc: doc, source: source}, nil
}

// Document returns the underlying goquery document
func (d *DOM) Document() *goquery.Document {
	return d.doc
}

// HTML renders the current tree
func (d *DOM) HTML() (string, error) {
	return d.doc.Html()
}

// Find returns the nodes matching selector in document order. Invalid
// selectors match nothing.
func (d *DOM) Find(selector string) []*html.Node {
	return d.doc.Find(selector).Nodes
}

// GetChanges returns accumulated DOM changes
func (d *DOM) GetChanges() []DOMChange {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]DOMChange{}, d.changes...)
}

// RecordChange adds a DOM change
func (d *DOM) RecordChange(change DOMChange) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.changes = append(d.changes, change)
}

// scripts collects inline scripts in document order, remembering where each
// one starts so reported line numbers match the document
func (d *DOM) scripts() []inlineScript {
	var (
		out  []inlineScript
		from int
	)
	d.doc.Find("script").Each(func(i int, s *goquery.Selection) {
		if _, external := s.Attr("src"); external {
			return
		}
		if kind, ok := s.Attr("type"); ok && !isJavaScriptType(kind) {
			return
		}

		code := s.Text()
		line := 0
		if code != "" {
			if idx := strings.Index(d.source[from:], code); idx >= 0 {
				line = strings.Count(d.source[:from+idx], "\n")
				from += idx + len(code)
			}
		}
		out = append(out, inlineScript{index: len(out), code: code, line: line})
	})
	return out
}

func isJavaScriptType(kind string) bool {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", "text/javascript", "application/javascript", "module":
		return true
	}
	return false
}

// newElementNode creates a detached element
func newElementNode(tag string) *html.Node {
	tag = strings.ToLower(strings.TrimSpace(tag))
	return &html.Node{
		Type:     html.ElementNode,
		Data:     tag,
		DataAtom: atom.Lookup([]byte(tag)),
	}
}

// selection wraps a single node for goquery manipulation
func selection(n *html.Node) *goquery.Selection {
	return goquery.NewDocumentFromNode(n).Selection
}

// describe renders a short human-readable handle for change records
func describe(n *html.Node) string {
	if n == nil {
		return ""
	}
	if n.Type == html.DocumentNode {
		return "document"
	}
	s := selection(n)
	label := n.Data
	if v, ok := s.Attr("id"); ok && v != "" {
		return label + "#" + v
	}
	if v, ok := s.Attr("class"); ok && v != "" {
		return label + "." + strings.Join(strings.Fields(v), ".")
	}
	return label
}

// elementChildren returns the element children of n
func elementChildren(n *html.Node) []*html.Node {
	var out []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			out = append(out, c)
		}
	}
	return out
}

func attrValue(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == name {
			return a.Val
		}
	}
	return ""
}

// detach removes n from its parent, if any
func detach(n *html.Node) {
	if n.Parent != nil {
		n.Parent.RemoveChild(n)
	}
}

// parseStyle splits an inline style attribute into ordered declarations
func parseStyle(attr string) [][2]string {
	var decls [][2]string
	for _, part := range strings.Split(attr, ";") {
		name, value, ok := strings.Cut(part, ":")
		if !ok {
			continue
		}
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		decls = append(decls, [2]string{strings.ToLower(name), strings.TrimSpace(value)})
	}
	return decls
}

func formatStyle(decls [][2]string) string {
	parts := make([]string, 0, len(decls))
	for _, d := range decls {
		parts = append(parts, d[0]+": "+d[1])
	}
	if len(parts) == 0 {
		return ""
	}
	return strings.Join(parts, "; ") + ";"
}

// cssName converts a camelCase style property to its CSS name
func cssName(prop string) string {
	if strings.Contains(prop, "-") {
		return strings.ToLower(prop)
	}
	var b strings.Builder
	for _, r := range prop {
		if r >= 'A' && r <= 'Z' {
			b.WriteByte('-')
			b.WriteRune(r + ('a' - 'A'))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
