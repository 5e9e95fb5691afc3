package compiler

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/net/html"

	"github.com/veristat-labs/veristat/pkg/core"
)

// emitModule generates the self-contained Starlark module for a widget. The
// module exports a frontmatter constant and a render(props) function built
// from the host runtime primitives (element, text, fragment, stringify),
// which are supplied by the executor, never inlined here.
//
// Emission is deterministic: identical input trees always produce
// bit-identical module text.
func (c *Context) emitModule(meta *core.WidgetMeta, nodes []*html.Node) (string, error) {
	var b strings.Builder

	fmt.Fprintf(&b, "# widget %s/%s\n\n", c.PluginID, c.WidgetID)

	b.WriteString("frontmatter = ")
	emitMetaLiteral(&b, meta, 0)
	b.WriteString("\n\ndef render(props):\n    return fragment([\n")

	for _, n := range nodes {
		if err := emitNode(&b, n, 2); err != nil {
			return "", err
		}
	}

	b.WriteString("    ])\n")
	return b.String(), nil
}

// emitNode appends the Starlark expression(s) for one markup node as list
// items at the given indent depth. A text node with embedded expressions
// expands into one item per segment.
func emitNode(b *strings.Builder, n *html.Node, depth int) error {
	pad := strings.Repeat("    ", depth)

	switch n.Type {
	case html.TextNode:
		segments, err := splitExpressions(n.Data)
		if err != nil {
			return err
		}
		for _, seg := range segments {
			if seg.isExpr() {
				fmt.Fprintf(b, "%stext(%s),\n", pad, seg.expr)
				continue
			}
			lit := collapseWhitespace(seg.literal)
			if lit == "" {
				continue
			}
			fmt.Fprintf(b, "%stext(%s),\n", pad, quote(lit))
		}
		return nil

	case html.ElementNode:
		fmt.Fprintf(b, "%selement(%s, {", pad, quote(n.Data))
		for i, attr := range n.Attr {
			if i > 0 {
				b.WriteString(", ")
			}
			val, err := emitAttrValue(attr.Val)
			if err != nil {
				return err
			}
			fmt.Fprintf(b, "%s: %s", quote(attr.Key), val)
		}
		if n.FirstChild == nil {
			b.WriteString("}, []),\n")
			return nil
		}
		b.WriteString("}, [\n")
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			if err := emitNode(b, child, depth+1); err != nil {
				return err
			}
		}
		fmt.Fprintf(b, "%s]),\n", pad)
		return nil

	default:
		// Comments, doctypes and the like carry nothing into the render tree.
		return nil
	}
}

// emitAttrValue renders an attribute value as a Starlark string expression.
// Literal-only values become plain strings; values with embedded expressions
// become a concatenation through stringify.
func emitAttrValue(val string) (string, error) {
	if !containsExpression(val) {
		return quote(val), nil
	}

	segments, err := splitExpressions(val)
	if err != nil {
		return "", err
	}

	parts := make([]string, 0, len(segments))
	for _, seg := range segments {
		if seg.isExpr() {
			parts = append(parts, "stringify("+seg.expr+")")
		} else {
			parts = append(parts, quote(seg.literal))
		}
	}
	return strings.Join(parts, " + "), nil
}

// emitMetaLiteral renders the widget metadata as a Starlark dict literal
// with a fixed field order.
func emitMetaLiteral(b *strings.Builder, meta *core.WidgetMeta, depth int) {
	pad := strings.Repeat("    ", depth)
	inner := pad + "    "

	b.WriteString("{\n")
	fmt.Fprintf(b, "%s\"name\": %s,\n", inner, quote(meta.Name))
	fmt.Fprintf(b, "%s\"description\": %s,\n", inner, quote(meta.Description))
	fmt.Fprintf(b, "%s\"dynamicHeight\": %s,\n", inner, starlarkBool(meta.DynamicHeight))

	if meta.WidgetSize != nil {
		fmt.Fprintf(b, "%s\"widgetSize\": {\"minW\": %d, \"minH\": %d, \"maxW\": %d, \"maxH\": %d},\n",
			inner, meta.WidgetSize.MinW, meta.WidgetSize.MinH, meta.WidgetSize.MaxW, meta.WidgetSize.MaxH)
	}

	if len(meta.Properties) > 0 {
		fmt.Fprintf(b, "%s\"properties\": [\n", inner)
		for _, p := range meta.Properties {
			fmt.Fprintf(b, "%s    {\"key\": %s, \"helper\": %s, \"default\": %s},\n",
				inner, quote(p.Key), quote(p.Helper), quote(p.Default))
		}
		fmt.Fprintf(b, "%s],\n", inner)
	}

	if len(meta.Meta) > 0 {
		fmt.Fprintf(b, "%s\"meta\": ", inner)
		emitValueLiteral(b, meta.Meta, depth+1)
		b.WriteString(",\n")
	}

	fmt.Fprintf(b, "%s}", pad)
}

// emitValueLiteral renders an arbitrary YAML-derived value as a Starlark
// literal. Map keys are sorted so emission stays deterministic.
func emitValueLiteral(b *strings.Builder, v any, depth int) {
	pad := strings.Repeat("    ", depth)

	switch val := v.(type) {
	case nil:
		b.WriteString("None")
	case string:
		b.WriteString(quote(val))
	case bool:
		b.WriteString(starlarkBool(val))
	case int:
		fmt.Fprintf(b, "%d", val)
	case int64:
		fmt.Fprintf(b, "%d", val)
	case float64:
		b.WriteString(strconv.FormatFloat(val, 'g', -1, 64))
	case []any:
		b.WriteString("[")
		for i, item := range val {
			if i > 0 {
				b.WriteString(", ")
			}
			emitValueLiteral(b, item, depth)
		}
		b.WriteString("]")
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString("{\n")
		for _, k := range keys {
			fmt.Fprintf(b, "%s    %s: ", pad, quote(k))
			emitValueLiteral(b, val[k], depth+1)
			b.WriteString(",\n")
		}
		fmt.Fprintf(b, "%s}", pad)
	default:
		b.WriteString(quote(fmt.Sprintf("%v", val)))
	}
}

func starlarkBool(v bool) string {
	if v {
		return "True"
	}
	return "False"
}

// quote renders a Go string as a Starlark string literal. Go's double-quoted
// escape set is a subset of Starlark's, so strconv.Quote output is valid.
func quote(s string) string {
	return strconv.Quote(s)
}

// collapseWhitespace folds whitespace runs to single spaces and drops runs
// that make up the entire text, so markup indentation does not leak into the
// render tree.
func collapseWhitespace(s string) string {
	if strings.TrimSpace(s) == "" {
		return ""
	}
	return whitespaceRun.ReplaceAllString(s, " ")
}
