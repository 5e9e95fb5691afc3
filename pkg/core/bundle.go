package core

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// BundleKey computes the content address for a widget's compiled bundle.
// Plugin id, widget id and source bytes all feed the hash, so a change to
// any of them yields a new key; entries are never invalidated in place.
func BundleKey(pluginID, widgetID string, source []byte) string {
	h := sha256.New()
	h.Write([]byte(pluginID))
	h.Write([]byte{0})
	h.Write([]byte(widgetID))
	h.Write([]byte{0})
	h.Write(source)
	return hex.EncodeToString(h.Sum(nil))
}

// CompiledBundle is the executable form of a widget's template source.
// Entries are immutable once written and content-addressed: the same plugin,
// widget and source bytes always map to the same key, so identical source is
// never recompiled.
type CompiledBundle struct {
	// Key is hex(sha256(pluginID, widgetID, source)).
	Key string

	PluginID string
	WidgetID string

	// Code is the compiled module text.
	Code string

	// Frontmatter is the metadata block declared at the top of the widget
	// source.
	Frontmatter *WidgetMeta

	CompiledAt time.Time
}

// WidgetSize constrains a widget's grid placement in the page layout.
type WidgetSize struct {
	MinW int `yaml:"minW" json:"minW" mapstructure:"minW"`
	MinH int `yaml:"minH" json:"minH" mapstructure:"minH"`
	MaxW int `yaml:"maxW" json:"maxW" mapstructure:"maxW"`
	MaxH int `yaml:"maxH" json:"maxH" mapstructure:"maxH"`
}

// WidgetProperty declares one bindable property of a widget.
type WidgetProperty struct {
	Key     string `yaml:"key" json:"key" mapstructure:"key"`
	Helper  string `yaml:"helper" json:"helper" mapstructure:"helper"`
	Default string `yaml:"default" json:"default" mapstructure:"default"`
}

// WidgetMeta is the declared metadata of a widget template.
type WidgetMeta struct {
	Name          string           `yaml:"name" json:"name" mapstructure:"name"`
	Description   string           `yaml:"description" json:"description" mapstructure:"description"`
	WidgetSize    *WidgetSize      `yaml:"widgetSize" json:"widgetSize,omitempty" mapstructure:"widgetSize"`
	Properties    []WidgetProperty `yaml:"properties" json:"properties,omitempty" mapstructure:"properties"`
	DynamicHeight bool             `yaml:"dynamicHeight" json:"dynamicHeight" mapstructure:"dynamicHeight"`
	Meta          map[string]any   `yaml:"meta" json:"meta,omitempty" mapstructure:"meta"`
}

// PropertyDefaults returns the declared default value per property key.
func (m *WidgetMeta) PropertyDefaults() map[string]string {
	if m == nil || len(m.Properties) == 0 {
		return nil
	}
	defaults := make(map[string]string, len(m.Properties))
	for _, p := range m.Properties {
		defaults[p.Key] = p.Default
	}
	return defaults
}
