package catalog

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"

	"golang.org/x/net/html/charset"
)

// Node is a single XML element. Only the element name, child elements and
// leading text run are kept.
type Node struct {
	Name     string
	Children []*Node

	text    string
	hasText bool
	closed  bool // leading text run has ended
}

// Text returns the element's leading text run: the character data that
// appears before its first child element. ok is false when the element has
// no such text.
func (n *Node) Text() (text string, ok bool) {
	if n == nil || !n.hasText {
		return "", false
	}
	return n.text, true
}

// Find returns the first element named name beneath n in document order
// (depth-first, pre-order), or nil.
func (n *Node) Find(name string) *Node {
	if n == nil {
		return nil
	}
	for _, child := range n.Children {
		if child.Name == name {
			return child
		}
		if found := child.Find(name); found != nil {
			return found
		}
	}
	return nil
}

// FindAll returns every element named name beneath n in document order.
func (n *Node) FindAll(name string) []*Node {
	var out []*Node
	n.walk(func(child *Node) {
		if child.Name == name {
			out = append(out, child)
		}
	})
	return out
}

func (n *Node) walk(fn func(*Node)) {
	if n == nil {
		return
	}
	for _, child := range n.Children {
		fn(child)
		child.walk(fn)
	}
}

// Parse reads an XML document and returns its root element. Non-UTF-8
// documents are decoded using their declared encoding, and HTML entities
// such as &nbsp; that appear in course descriptions are accepted.
func Parse(r io.Reader) (*Node, error) {
	dec := xml.NewDecoder(r)
	dec.CharsetReader = charset.NewReaderLabel
	dec.Strict = false
	dec.Entity = xml.HTMLEntity

	var root *Node
	var stack []*Node

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("decoding XML: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			node := &Node{Name: t.Name.Local}
			if len(stack) == 0 {
				if root != nil {
					return nil, fmt.Errorf("decoding XML: multiple root elements")
				}
				root = node
			} else {
				parent := stack[len(stack)-1]
				parent.closed = true
				parent.Children = append(parent.Children, node)
			}
			stack = append(stack, node)

		case xml.EndElement:
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}

		case xml.CharData:
			if len(stack) == 0 || len(t) == 0 {
				continue
			}
			cur := stack[len(stack)-1]
			if cur.closed {
				continue
			}
			cur.text += string(t)
			cur.hasText = true
		}
	}

	if root == nil {
		return nil, fmt.Errorf("decoding XML: no root element")
	}
	if len(stack) != 0 {
		return nil, fmt.Errorf("decoding XML: unclosed element %q", stack[len(stack)-1].Name)
	}

	return root, nil
}
