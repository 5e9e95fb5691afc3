package executor

import (
	"fmt"

	"go.starlark.net/starlark"
)

// Builtins returns the predeclared globals for widget module execution.
// This is the whole capability set: element, text, fragment, raw, and
// stringify. Nothing ambient is exposed.
func Builtins() starlark.StringDict {
	return starlark.StringDict{
		"element":   starlark.NewBuiltin("element", builtinElement),
		"text":      starlark.NewBuiltin("text", builtinText),
		"fragment":  starlark.NewBuiltin("fragment", builtinFragment),
		"raw":       starlark.NewBuiltin("raw", builtinRaw),
		"stringify": starlark.NewBuiltin("stringify", builtinStringify),
	}
}

// builtinElement implements element(tag, attrs, children).
func builtinElement(_ *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var tag string
	var attrs *starlark.Dict
	var children *starlark.List
	if err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 3, &tag, &attrs, &children); err != nil {
		return nil, err
	}

	node := &Node{kind: kindElement, Tag: tag}

	for _, item := range attrs.Items() {
		key, ok := item[0].(starlark.String)
		if !ok {
			return nil, fmt.Errorf("element: attribute key must be a string, got %s", item[0].Type())
		}
		node.Attrs = append(node.Attrs, Attr{Key: string(key), Val: displayString(item[1])})
	}

	converted, err := childNodes(children)
	if err != nil {
		return nil, fmt.Errorf("element %q: %w", tag, err)
	}
	node.Children = converted

	return node, nil
}

// builtinText implements text(value): a leaf node whose content is the
// stringified value, escaped at serialization time.
func builtinText(_ *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var value starlark.Value
	if err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &value); err != nil {
		return nil, err
	}
	return &Node{kind: kindText, Text: displayString(value)}, nil
}

// builtinFragment implements fragment(children): a tagless grouping node.
func builtinFragment(_ *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var children *starlark.List
	if err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &children); err != nil {
		return nil, err
	}
	converted, err := childNodes(children)
	if err != nil {
		return nil, fmt.Errorf("fragment: %w", err)
	}
	return &Node{kind: kindFragment, Children: converted}, nil
}

// builtinRaw implements raw(html): pre-serialized markup passed through
// without escaping.
func builtinRaw(_ *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var markup string
	if err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &markup); err != nil {
		return nil, err
	}
	return &Node{kind: kindRaw, Text: markup}, nil
}

// builtinStringify implements stringify(value): the string form used for
// attribute interpolation.
func builtinStringify(_ *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var value starlark.Value
	if err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &value); err != nil {
		return nil, err
	}
	return starlark.String(displayString(value)), nil
}

// childNodes converts a children list into nodes. Strings become text
// nodes; None entries are dropped so conditional expressions read cleanly.
func childNodes(children *starlark.List) ([]*Node, error) {
	if children == nil {
		return nil, nil
	}
	nodes := make([]*Node, 0, children.Len())
	for i := 0; i < children.Len(); i++ {
		child := children.Index(i)
		switch v := child.(type) {
		case *Node:
			nodes = append(nodes, v)
		case starlark.String:
			nodes = append(nodes, &Node{kind: kindText, Text: string(v)})
		case starlark.NoneType:
			// skip
		default:
			return nil, fmt.Errorf("child %d: expected render_node, string, or None, got %s", i, child.Type())
		}
	}
	return nodes, nil
}

// displayString converts a value to its rendered string form. Strings keep
// their content (no quoting), None renders empty, everything else uses the
// Starlark display form.
func displayString(v starlark.Value) string {
	switch val := v.(type) {
	case starlark.String:
		return string(val)
	case starlark.NoneType:
		return ""
	default:
		return val.String()
	}
}
