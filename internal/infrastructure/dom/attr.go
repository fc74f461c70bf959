package dom

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

func Attr(n *html.Node, key string) (string, bool) {
	if n == nil {
		return "", false
	}
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

// AttrOr returns the attribute value or fallback.
func AttrOr(n *html.Node, key, fallback string) string {
	if v, ok := Attr(n, key); ok {
		return v
	}
	return fallback
}

func SetAttr(n *html.Node, key, value string) {
	for i, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			n.Attr[i].Val = value
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: value})
}

func RemoveAttr(n *html.Node, key string) {
	kept := n.Attr[:0]
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			continue
		}
		kept = append(kept, a)
	}
	n.Attr = kept
}

// Classes returns the class tokens of n.
func Classes(n *html.Node) []string {
	v, _ := Attr(n, "class")
	return strings.Fields(v)
}

func HasClass(n *html.Node, class string) bool {
	for _, c := range Classes(n) {
		if c == class {
			return true
		}
	}
	return false
}

func AddClass(n *html.Node, class string) {
	if HasClass(n, class) {
		return
	}
	SetAttr(n, "class", strings.TrimSpace(strings.Join(append(Classes(n), class), " ")))
}

func RemoveClass(n *html.Node, class string) {
	var kept []string
	for _, c := range Classes(n) {
		if c != class {
			kept = append(kept, c)
		}
	}
	if len(kept) == 0 {
		RemoveAttr(n, "class")
		return
	}
	SetAttr(n, "class", strings.Join(kept, " "))
}

// Text returns the concatenated text content of n.
func Text(n *html.Node) string {
	var b strings.Builder
	walk(n, func(c *html.Node) bool {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
		return true
	})
	return b.String()
}

// SetText replaces the children of n with a single text node.
func SetText(n *html.Node, text string) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		n.RemoveChild(c)
		c = next
	}
	n.AppendChild(&html.Node{Type: html.TextNode, Data: text})
}

// IsContentEditable reports whether n carries contenteditable="" or "true".
func IsContentEditable(n *html.Node) bool {
	v, ok := Attr(n, "contenteditable")
	return ok && (v == "" || strings.EqualFold(v, "true"))
}

// IsFormControl reports whether n accepts user input.
func IsFormControl(n *html.Node) bool {
	if n == nil || n.Type != html.ElementNode {
		return false
	}
	switch n.DataAtom {
	case atom.Input, atom.Textarea, atom.Select:
		return true
	}
	return IsContentEditable(n)
}

func isCheckable(n *html.Node) bool {
	t := strings.ToLower(AttrOr(n, "type", "text"))
	return n.DataAtom == atom.Input && (t == "checkbox" || t == "radio")
}

// Value reads the current value of a form control, or the text of any other
// element.
func Value(n *html.Node) string {
	switch n.DataAtom {
	case atom.Input:
		if isCheckable(n) {
			_, checked := Attr(n, "checked")
			if checked {
				return "true"
			}
			return "false"
		}
		return AttrOr(n, "value", "")
	case atom.Select:
		options := QueryAll(n, func(o *html.Node) bool { return o.DataAtom == atom.Option })
		for _, o := range options {
			if _, selected := Attr(o, "selected"); selected {
				return optionValue(o)
			}
		}
		if len(options) > 0 {
			return optionValue(options[0])
		}
		return ""
	default:
		return Text(n)
	}
}

// SetValue writes a value into a form control, or the text of any other element.
func SetValue(n *html.Node, value string) {
	switch n.DataAtom {
	case atom.Input:
		if isCheckable(n) {
			if value == "true" || value == "on" || value == "1" {
				SetAttr(n, "checked", "")
			} else {
				RemoveAttr(n, "checked")
			}
			return
		}
		SetAttr(n, "value", value)
	case atom.Select:
		for _, o := range QueryAll(n, func(o *html.Node) bool { return o.DataAtom == atom.Option }) {
			if optionValue(o) == value {
				SetAttr(o, "selected", "")
			} else {
				RemoveAttr(o, "selected")
			}
		}
	default:
		SetText(n, value)
	}
}

func optionValue(o *html.Node) string {
	if v, ok := Attr(o, "value"); ok {
		return v
	}
	return strings.TrimSpace(Text(o))
}
