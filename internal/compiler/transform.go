package compiler

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// BoundPropertyAttr is the stable data attribute attached to elements whose
// embedded expressions reference a bound property. It lets post-render
// tooling trace a DOM node back to the logical property that produced it.
const BoundPropertyAttr = "data-bound-property"

// propertyRefPattern matches a bound-property accessor inside an embedded
// expression.
var propertyRefPattern = regexp.MustCompile(`props\.properties\.([A-Za-z_][A-Za-z0-9_]*)`)

// parseBody parses the markup body into a list of top-level nodes. The body
// is parsed as a fragment in a div context so bare text and sibling elements
// are both accepted.
func parseBody(body string) ([]*html.Node, error) {
	context := &html.Node{
		Type:     html.ElementNode,
		Data:     "div",
		DataAtom: atom.Div,
	}
	return html.ParseFragment(strings.NewReader(body), context)
}

// normalizeTables applies the standard table extension: a table whose first
// row consists entirely of header cells gets that row lifted into a
// synthesized thead, so downstream styling and pagination treat headers
// uniformly.
func normalizeTables(nodes []*html.Node) {
	for _, n := range nodes {
		walkElements(n, func(el *html.Node) {
			if el.DataAtom == atom.Table {
				normalizeTable(el)
			}
		})
	}
}

func normalizeTable(table *html.Node) {
	var thead, firstBody *html.Node
	for child := table.FirstChild; child != nil; child = child.NextSibling {
		switch child.DataAtom {
		case atom.Thead:
			thead = child
		case atom.Tbody:
			if firstBody == nil {
				firstBody = child
			}
		}
	}

	if thead != nil || firstBody == nil {
		return
	}

	firstRow := firstElementChild(firstBody, atom.Tr)
	if firstRow == nil || !allHeaderCells(firstRow) {
		return
	}

	firstBody.RemoveChild(firstRow)
	thead = &html.Node{
		Type:     html.ElementNode,
		Data:     "thead",
		DataAtom: atom.Thead,
	}
	thead.AppendChild(firstRow)
	table.InsertBefore(thead, firstBody)
}

func firstElementChild(n *html.Node, a atom.Atom) *html.Node {
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		if child.Type == html.ElementNode && child.DataAtom == a {
			return child
		}
	}
	return nil
}

func allHeaderCells(row *html.Node) bool {
	sawCell := false
	for cell := row.FirstChild; cell != nil; cell = cell.NextSibling {
		if cell.Type != html.ElementNode {
			continue
		}
		if cell.DataAtom != atom.Th {
			return false
		}
		sawCell = true
	}
	return sawCell
}

// injectBindings scans each element for embedded expressions that reference
// a bound-property path, in its own attributes and in its direct text
// children, and attaches the bound-property data attribute naming the first
// referenced property.
func injectBindings(nodes []*html.Node) {
	for _, n := range nodes {
		walkElements(n, func(el *html.Node) {
			if name := referencedProperty(el); name != "" {
				setAttr(el, BoundPropertyAttr, name)
			}
		})
	}
}

func referencedProperty(el *html.Node) string {
	for _, attr := range el.Attr {
		if m := propertyRefPattern.FindStringSubmatch(attr.Val); m != nil {
			return m[1]
		}
	}
	for child := el.FirstChild; child != nil; child = child.NextSibling {
		if child.Type != html.TextNode {
			continue
		}
		if m := propertyRefPattern.FindStringSubmatch(child.Data); m != nil {
			return m[1]
		}
	}
	return ""
}

func setAttr(el *html.Node, key, val string) {
	for i, attr := range el.Attr {
		if attr.Key == key {
			el.Attr[i].Val = val
			return
		}
	}
	el.Attr = append(el.Attr, html.Attribute{Key: key, Val: val})
}

// walkElements visits every element node in the tree rooted at n.
func walkElements(n *html.Node, visit func(*html.Node)) {
	if n.Type == html.ElementNode {
		visit(n)
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		walkElements(child, visit)
	}
}
