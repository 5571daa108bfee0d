// Package markup parses HTML fragments into a queryable node tree.
//
// Queries are keyed on class markers: a space-separated list of class names
// that must all be present on an element, e.g. "fwb fcg".
package markup

import (
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// ErrParse is returned when markup cannot be tokenized into a tree.
var ErrParse = errors.New("markup parse failed")

// Node is one element (or the document root) of a parsed tree.
type Node struct {
	sel *goquery.Selection
}

// Parse parses an HTML document or fragment.
func Parse(s string) (*Node, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParse, err)
	}
	return &Node{sel: doc.Selection}, nil
}

// Selector converts a class marker into a CSS selector.
func Selector(marker string) string {
	fields := strings.Fields(marker)
	if len(fields) == 0 {
		return ""
	}
	return "." + strings.Join(fields, ".")
}

func wrap(sel *goquery.Selection) *Node {
	if sel == nil || sel.Length() == 0 {
		return nil
	}
	return &Node{sel: sel.First()}
}

// ByClass returns every descendant matching marker, in document order.
func (n *Node) ByClass(marker string) []*Node {
	sel := Selector(marker)
	if sel == "" {
		return nil
	}
	var out []*Node
	n.sel.Find(sel).Each(func(_ int, s *goquery.Selection) {
		out = append(out, &Node{sel: s})
	})
	return out
}

// FirstByClass returns the first descendant matching marker, or nil.
func (n *Node) FirstByClass(marker string) *Node {
	sel := Selector(marker)
	if sel == "" {
		return nil
	}
	return wrap(n.sel.Find(sel))
}

// First returns the first descendant element with the given tag, or nil.
func (n *Node) First(tag string) *Node {
	return wrap(n.sel.Find(tag))
}

// All returns every descendant element with the given tag.
func (n *Node) All(tag string) []*Node {
	var out []*Node
	n.sel.Find(tag).Each(func(_ int, s *goquery.Selection) {
		out = append(out, &Node{sel: s})
	})
	return out
}

// ByID returns the element with the given id attribute, or nil.
func (n *Node) ByID(id string) *Node {
	var found *Node
	n.sel.Find("[id]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if v, _ := s.Attr("id"); v == id {
			found = &Node{sel: s}
			return false
		}
		return true
	})
	return found
}

// Children returns the direct element children in document order.
func (n *Node) Children() []*Node {
	var out []*Node
	n.sel.Children().Each(func(_ int, s *goquery.Selection) {
		out = append(out, &Node{sel: s})
	})
	return out
}

// Closest returns the nearest ancestor-or-self with the given tag, or nil.
func (n *Node) Closest(tag string) *Node {
	return wrap(n.sel.Closest(tag))
}

// Tag returns the lower-case element name.
func (n *Node) Tag() string {
	return goquery.NodeName(n.sel)
}

// Attr returns the value of an attribute and whether it is present.
func (n *Node) Attr(key string) (string, bool) {
	return n.sel.Attr(key)
}

// Text returns the concatenated text of all descendants.
func (n *Node) Text() string {
	return n.sel.Text()
}

// Comments returns the payload of every comment carried directly inside a
// tag element. The site hides pre-rendered markup this way.
func (n *Node) Comments(tag string) []string {
	var out []string
	n.sel.Find(tag).Each(func(_ int, s *goquery.Selection) {
		for _, node := range s.Nodes {
			for c := node.FirstChild; c != nil; c = c.NextSibling {
				if c.Type == html.CommentNode {
					out = append(out, c.Data)
				}
			}
		}
	})
	return out
}

// RawText returns the text of every tag element, e.g. the body of each
// <script>. Scripts carry their content as a single raw text node.
func (n *Node) RawText(tag string) []string {
	var out []string
	n.sel.Find(tag).Each(func(_ int, s *goquery.Selection) {
		out = append(out, s.Text())
	})
	return out
}

// RemoveClass detaches every descendant matching marker from the tree.
// It returns how many elements were removed.
func (n *Node) RemoveClass(marker string) int {
	sel := Selector(marker)
	if sel == "" {
		return 0
	}
	matched := n.sel.Find(sel)
	count := matched.Length()
	matched.Remove()
	return count
}
