// Package dom is a small headless DOM over golang.org/x/net/html trees:
// queries, attribute and form-value access, and node-keyed event listeners.
package dom

import (
	"bytes"
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Document is a parsed HTML page.
type Document struct {
	Root *html.Node
}

// NewDocument parses markup as a full document.
func NewDocument(markup string) (*Document, error) {
	root, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	return &Document{Root: root}, nil
}

// Body returns the body element.
func (d *Document) Body() *html.Node {
	if found := First(d.Root, func(n *html.Node) bool { return n.DataAtom == atom.Body }); found != nil {
		return found
	}
	return d.Root
}

func (d *Document) GetElementByID(id string) *html.Node { return GetElementByID(d.Root, id) }

func (d *Document) QueryAll(pred func(*html.Node) bool) []*html.Node {
	return QueryAll(d.Root, pred)
}

func (d *Document) QueryByAttr(key, value string) []*html.Node {
	return QueryByAttr(d.Root, key, value)
}

// Contains reports whether n is attached to this document.
func (d *Document) Contains(n *html.Node) bool { return Contains(d.Root, n) }

func (d *Document) Render() string { return Render(d.Root) }

// ParseFragment parses markup in a body context and returns its top-level nodes.
func ParseFragment(markup string) ([]*html.Node, error) {
	context := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(markup), context)
	if err != nil {
		return nil, fmt.Errorf("parse fragment: %w", err)
	}
	return nodes, nil
}

// ParseElement parses markup and returns its first element.
func ParseElement(markup string) (*html.Node, error) {
	nodes, err := ParseFragment(markup)
	if err != nil {
		return nil, err
	}
	for _, n := range nodes {
		if n.Type == html.ElementNode {
			return n, nil
		}
	}
	return nil, fmt.Errorf("parse fragment: no element in markup")
}

// QueryAll returns every element under root (root included) matching pred,
// in document order.
func QueryAll(root *html.Node, pred func(*html.Node) bool) []*html.Node {
	var out []*html.Node
	walk(root, func(n *html.Node) bool {
		if n.Type == html.ElementNode && pred(n) {
			out = append(out, n)
		}
		return true
	})
	return out
}

// First returns the first element under root matching pred.
func First(root *html.Node, pred func(*html.Node) bool) *html.Node {
	var found *html.Node
	walk(root, func(n *html.Node) bool {
		if n.Type == html.ElementNode && pred(n) {
			found = n
			return false
		}
		return true
	})
	return found
}

func GetElementByID(root *html.Node, id string) *html.Node {
	if id == "" {
		return nil
	}
	return First(root, func(n *html.Node) bool {
		v, ok := Attr(n, "id")
		return ok && v == id
	})
}

func QueryByAttr(root *html.Node, key, value string) []*html.Node {
	return QueryAll(root, func(n *html.Node) bool {
		v, ok := Attr(n, key)
		return ok && v == value
	})
}

// walk visits root and its descendants depth-first; visit returning false stops.
func walk(root *html.Node, visit func(*html.Node) bool) bool {
	if root == nil {
		return true
	}
	if !visit(root) {
		return false
	}
	for c := root.FirstChild; c != nil; {
		next := c.NextSibling
		if !walk(c, visit) {
			return false
		}
		c = next
	}
	return true
}

// Contains reports whether n is root or one of its descendants.
func Contains(root, n *html.Node) bool {
	for p := n; p != nil; p = p.Parent {
		if p == root {
			return true
		}
	}
	return false
}

// Detach removes n from its parent. Detaching a parentless node is a no-op.
func Detach(n *html.Node) {
	if n != nil && n.Parent != nil {
		n.Parent.RemoveChild(n)
	}
}

// InsertBefore moves n under parent before ref, or to the end when ref is nil.
func InsertBefore(parent, n, ref *html.Node) {
	if ref == n {
		return
	}
	Detach(n)
	parent.InsertBefore(n, ref)
}

// ElementChildren returns the direct element children of n.
func ElementChildren(n *html.Node) []*html.Node {
	var out []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			out = append(out, c)
		}
	}
	return out
}

// Render serializes n and its subtree.
func Render(n *html.Node) string {
	if n == nil {
		return ""
	}
	var buf bytes.Buffer
	_ = html.Render(&buf, n)
	return buf.String()
}

// RenderChildren serializes the children of n without n itself.
func RenderChildren(n *html.Node) string {
	var buf bytes.Buffer
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		_ = html.Render(&buf, c)
	}
	return buf.String()
}

// CloneTree deep-copies n into a parentless tree.
func CloneTree(n *html.Node) *html.Node {
	c := &html.Node{
		Type:      n.Type,
		DataAtom:  n.DataAtom,
		Data:      n.Data,
		Namespace: n.Namespace,
		Attr:      append([]html.Attribute(nil), n.Attr...),
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		c.AppendChild(CloneTree(child))
	}
	return c
}
