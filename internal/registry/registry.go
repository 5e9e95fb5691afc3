// Package registry provides the plugin registry collaborator: lookup of
// widget template source and declared metadata by plugin and widget id.
// The default implementation reads from the installed-plugins directory.
package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/veristat-labs/veristat/internal/compiler"
	"github.com/veristat-labs/veristat/pkg/core"
)

// Registry supplies widget sources and metadata to the compiler.
type Registry interface {
	// Source returns the raw template source for a widget.
	Source(pluginID, widgetID string) ([]byte, error)

	// Meta returns the widget's declared metadata.
	Meta(pluginID, widgetID string) (*core.WidgetMeta, error)

	// CompileContext returns the compiler context for a widget, including
	// the plugin's assets directory.
	CompileContext(pluginID, widgetID string) compiler.Context
}

// idPattern confines plugin and widget ids to path-safe names.
var idPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// NotFoundError reports a missing plugin or widget.
type NotFoundError struct {
	PluginID string
	WidgetID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("widget %s/%s not found", e.PluginID, e.WidgetID)
}

// FSRegistry reads widgets from a plugins directory laid out as
// <dir>/<pluginID>/widgets/<widgetID>.mdx with optional per-plugin assets
// under <dir>/<pluginID>/assets.
type FSRegistry struct {
	dir string
}

// NewFSRegistry creates a filesystem-backed registry rooted at dir.
func NewFSRegistry(dir string) *FSRegistry {
	return &FSRegistry{dir: dir}
}

// Source returns the raw template source for a widget.
func (r *FSRegistry) Source(pluginID, widgetID string) ([]byte, error) {
	path, err := r.widgetPath(pluginID, widgetID)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path) //nolint:gosec // G304: ids are validated against idPattern
	if os.IsNotExist(err) {
		return nil, &NotFoundError{PluginID: pluginID, WidgetID: widgetID}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read widget source: %w", err)
	}
	return data, nil
}

// Meta returns the widget's declared metadata, parsed from the source
// frontmatter.
func (r *FSRegistry) Meta(pluginID, widgetID string) (*core.WidgetMeta, error) {
	source, err := r.Source(pluginID, widgetID)
	if err != nil {
		return nil, err
	}
	fm, err := compiler.ExtractFrontmatter(string(source))
	if err != nil {
		return nil, fmt.Errorf("widget %s/%s: %w", pluginID, widgetID, err)
	}
	return fm.Meta, nil
}

// CompileContext returns the compiler context for a widget.
func (r *FSRegistry) CompileContext(pluginID, widgetID string) compiler.Context {
	ctx := compiler.Context{PluginID: pluginID, WidgetID: widgetID}
	if idPattern.MatchString(pluginID) {
		assets := filepath.Join(r.dir, pluginID, "assets")
		if info, err := os.Stat(assets); err == nil && info.IsDir() {
			ctx.AssetsDir = assets
		}
	}
	return ctx
}

func (r *FSRegistry) widgetPath(pluginID, widgetID string) (string, error) {
	if !idPattern.MatchString(pluginID) {
		return "", fmt.Errorf("invalid plugin id %q", pluginID)
	}
	if !idPattern.MatchString(widgetID) {
		return "", fmt.Errorf("invalid widget id %q", widgetID)
	}
	return filepath.Join(r.dir, pluginID, "widgets", widgetID+".mdx"), nil
}
