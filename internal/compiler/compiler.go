// Package compiler turns widget template source (YAML frontmatter plus
// markup with embedded expressions) into a self-contained, executable
// Starlark module string. It applies the standard markup transforms and the
// data-binding injector, and inlines small plugin media as data URIs.
//
// Compilation is a pure function of source and plugin context. All failures
// come back as *CompileError; nothing is thrown across the boundary, and a
// failure in one widget never affects another.
package compiler

import (
	"errors"
	"log/slog"
	"regexp"
	"time"

	"github.com/veristat-labs/veristat/pkg/core"
)

var whitespaceRun = regexp.MustCompile(`\s+`)

// Context identifies the widget being compiled and where its plugin keeps
// local assets.
type Context struct {
	PluginID  string
	WidgetID  string
	AssetsDir string
}

// Compiler compiles widget template sources.
type Compiler struct {
	logger *slog.Logger
}

// New creates a Compiler. A nil logger discards output.
func New(logger *slog.Logger) *Compiler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Compiler{logger: logger}
}

// Compile parses the template source, applies the source-to-source
// transforms, and bundles the result into a compiled module.
func (c *Compiler) Compile(source []byte, ctx Context) (*core.CompiledBundle, error) {
	fm, err := ExtractFrontmatter(string(source))
	if err != nil {
		return nil, asCompileError(&ctx, err)
	}

	nodes, err := parseBody(fm.Body)
	if err != nil {
		return nil, ctx.errorf("failed to parse widget markup: %v", err)
	}

	normalizeTables(nodes)
	injectBindings(nodes)

	if err := ctx.inlineMedia(nodes); err != nil {
		return nil, asCompileError(&ctx, err)
	}

	code, err := ctx.emitModule(fm.Meta, nodes)
	if err != nil {
		return nil, asCompileError(&ctx, err)
	}

	c.logger.Debug("compiled widget",
		"plugin_id", ctx.PluginID,
		"widget_id", ctx.WidgetID,
		"code_bytes", len(code))

	return &core.CompiledBundle{
		Key:         core.BundleKey(ctx.PluginID, ctx.WidgetID, source),
		PluginID:    ctx.PluginID,
		WidgetID:    ctx.WidgetID,
		Code:        code,
		Frontmatter: fm.Meta,
		CompiledAt:  time.Now().UTC(),
	}, nil
}

// asCompileError wraps any failure into a CompileError carrying the widget
// context, preserving an already-typed error as is.
func asCompileError(ctx *Context, err error) *CompileError {
	var ce *CompileError
	if errors.As(err, &ce) {
		return ce
	}
	return ctx.errorf("%v", err)
}
