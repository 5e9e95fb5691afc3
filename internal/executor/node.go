// Package executor loads compiled widget modules into a constrained
// Starlark runtime and renders them. The only capabilities a module sees
// are the host render primitives; the dialect itself has no filesystem,
// network, or process access, and module loads are disabled.
package executor

import (
	"fmt"
	"html"
	"strings"

	"go.starlark.net/starlark"
)

type nodeKind int

const (
	kindElement nodeKind = iota
	kindText
	kindFragment
	kindRaw
)

// Attr is one rendered attribute. Order is preserved from the compiled
// module so output stays deterministic.
type Attr struct {
	Key string
	Val string
}

// Node is a rendered output tree node. It is the value the host builtins
// construct and the render function returns.
type Node struct {
	kind     nodeKind
	Tag      string
	Attrs    []Attr
	Children []*Node
	Text     string

	frozen bool
}

// voidElements have no closing tag in serialized HTML.
var voidElements = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true,
	"hr": true, "img": true, "input": true, "link": true, "meta": true,
	"source": true, "track": true, "wbr": true,
}

// WriteHTML serializes the node tree. Text is escaped; raw nodes are not.
func (n *Node) WriteHTML(b *strings.Builder) {
	switch n.kind {
	case kindText:
		b.WriteString(html.EscapeString(n.Text))
	case kindRaw:
		b.WriteString(n.Text)
	case kindFragment:
		for _, child := range n.Children {
			child.WriteHTML(b)
		}
	case kindElement:
		b.WriteString("<")
		b.WriteString(n.Tag)
		for _, attr := range n.Attrs {
			b.WriteString(" ")
			b.WriteString(attr.Key)
			b.WriteString(`="`)
			b.WriteString(html.EscapeString(attr.Val))
			b.WriteString(`"`)
		}
		b.WriteString(">")
		if voidElements[n.Tag] {
			return
		}
		for _, child := range n.Children {
			child.WriteHTML(b)
		}
		b.WriteString("</")
		b.WriteString(n.Tag)
		b.WriteString(">")
	}
}

// HTML returns the serialized form of the tree.
func (n *Node) HTML() string {
	var b strings.Builder
	n.WriteHTML(&b)
	return b.String()
}

// --- starlark.Value interface ---

func (n *Node) String() string {
	switch n.kind {
	case kindText:
		return fmt.Sprintf("<text %q>", n.Text)
	case kindRaw:
		return "<raw>"
	case kindFragment:
		return fmt.Sprintf("<fragment len=%d>", len(n.Children))
	default:
		return fmt.Sprintf("<element %s>", n.Tag)
	}
}

func (n *Node) Type() string { return "render_node" }

func (n *Node) Freeze() {
	if n.frozen {
		return
	}
	n.frozen = true
	for _, child := range n.Children {
		child.Freeze()
	}
}

func (n *Node) Truth() starlark.Bool { return starlark.True }

func (n *Node) Hash() (uint32, error) {
	return 0, fmt.Errorf("unhashable type: render_node")
}
