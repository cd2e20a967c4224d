// Package document exposes parsed HTML as a small queryable capability:
// selector lookups that return zero-or-more nodes, optional first matches,
// trimmed text, attributes, and absolute links. It is backed by goquery so
// callers never touch the DOM library directly.
package document

import (
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Node is a queryable element (or the document root).
type Node interface {
	// Find returns every descendant matching selector, in document order.
	Find(selector string) []Node
	// First returns the first descendant matching selector, if any.
	First(selector string) (Node, bool)
	// Text returns the node's text content with surrounding space trimmed.
	Text() string
	// Attr returns the named attribute of the node.
	Attr(name string) (string, bool)
	// AbsoluteLinks returns the resolved targets of every anchor under the
	// node, in document order, duplicates included.
	AbsoluteLinks() []string
}

// Document is a parsed page that knows its own location.
type Document interface {
	Node
	Location() string
}

type page struct {
	node
	location string
}

type node struct {
	sel  *goquery.Selection
	base *url.URL
}

// Parse reads HTML from r without executing scripts. location is the URL the
// content was retrieved from; it may be empty for local files. A <base href>
// element in the content takes precedence when resolving relative links.
func Parse(r io.Reader, location string) (Document, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	base, err := resolveBase(doc, location)
	if err != nil {
		return nil, err
	}
	return &page{
		node:     node{sel: doc.Selection, base: base},
		location: location,
	}, nil
}

// ParseString is Parse over an in-memory string.
func ParseString(html, location string) (Document, error) {
	return Parse(strings.NewReader(html), location)
}

func resolveBase(doc *goquery.Document, location string) (*url.URL, error) {
	var base *url.URL
	if location != "" {
		parsed, err := url.Parse(location)
		if err != nil {
			return nil, fmt.Errorf("parse location %q: %w", location, err)
		}
		base = parsed
	}
	href, ok := doc.Find("head base[href]").First().Attr("href")
	if !ok || strings.TrimSpace(href) == "" {
		return base, nil
	}
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return base, nil
	}
	if base == nil {
		return ref, nil
	}
	return base.ResolveReference(ref), nil
}

func (p *page) Location() string {
	return p.location
}

func (n node) Find(selector string) []Node {
	matches := n.sel.Find(selector)
	out := make([]Node, 0, matches.Length())
	matches.Each(func(_ int, s *goquery.Selection) {
		out = append(out, node{sel: s, base: n.base})
	})
	return out
}

func (n node) First(selector string) (Node, bool) {
	match := n.sel.Find(selector).First()
	if match.Length() == 0 {
		return nil, false
	}
	return node{sel: match, base: n.base}, true
}

func (n node) Text() string {
	return strings.TrimSpace(n.sel.Text())
}

func (n node) Attr(name string) (string, bool) {
	return n.sel.Attr(name)
}

func (n node) AbsoluteLinks() []string {
	var links []string
	n.sel.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		if link, ok := absolute(n.base, href); ok {
			links = append(links, link)
		}
	})
	return links
}

// absolute resolves href against base. Fragment-only and non-navigational
// schemes are dropped, and fragments are removed from the result.
func absolute(base *url.URL, href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return "", false
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	switch strings.ToLower(ref.Scheme) {
	case "javascript", "mailto", "tel", "data":
		return "", false
	}
	resolved := ref
	if base != nil {
		resolved = base.ResolveReference(ref)
	}
	if !resolved.IsAbs() {
		return "", false
	}
	resolved.Fragment = ""
	resolved.RawFragment = ""
	return resolved.String(), true
}
