package compiler

import "fmt"

// CompileError represents a failure to compile one widget's template source.
// It is always isolated to the widget that produced it: compilation of one
// widget never aborts compilation of others, and the render stage shows a
// placeholder for the failed slot.
type CompileError struct {
	PluginID string
	WidgetID string
	Line     int
	Message  string
}

func (e *CompileError) Error() string {
	ref := e.PluginID + "/" + e.WidgetID
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d: %s", ref, e.Line, e.Message)
	}
	return fmt.Sprintf("%s: %s", ref, e.Message)
}

// UnknownFieldError reports an unknown frontmatter field.
type UnknownFieldError struct {
	Field string
}

func (e *UnknownFieldError) Error() string {
	return fmt.Sprintf("unknown field %q in frontmatter, use \"meta\" for custom fields", e.Field)
}

// compileErrorf builds a CompileError for the given context.
func (c *Context) errorf(format string, args ...any) *CompileError {
	return &CompileError{
		PluginID: c.PluginID,
		WidgetID: c.WidgetID,
		Message:  fmt.Sprintf(format, args...),
	}
}
