package compiler

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"gopkg.in/yaml.v3"

	"github.com/veristat-labs/veristat/pkg/core"
)

// FrontmatterResult holds the result of frontmatter extraction.
type FrontmatterResult struct {
	Meta    *core.WidgetMeta
	Body    string // markup after the frontmatter block
	HasYAML bool
}

// frontmatterPattern matches a leading --- ... --- fence.
var frontmatterPattern = regexp.MustCompile(`(?s)^\s*---\s*\n(.*?)\n\s*---\s*\n?`)

// knownFrontmatterFields are the accepted top-level keys. Anything else is
// rejected; widget authors extend via "meta".
var knownFrontmatterFields = map[string]bool{
	"name":          true,
	"description":   true,
	"widgetSize":    true,
	"properties":    true,
	"dynamicHeight": true,
	"meta":          true,
}

// ExtractFrontmatter splits the widget source into its declared metadata and
// the markup body. A source without a frontmatter fence is valid and yields
// empty metadata.
func ExtractFrontmatter(source string) (*FrontmatterResult, error) {
	result := &FrontmatterResult{
		Meta: &core.WidgetMeta{},
		Body: source,
	}

	matches := frontmatterPattern.FindStringSubmatch(source)
	if matches == nil {
		return result, nil
	}

	result.HasYAML = true
	result.Body = strings.TrimPrefix(source, matches[0])

	meta, err := parseFrontmatterYAML(matches[1])
	if err != nil {
		return nil, err
	}

	result.Meta = meta
	return result, nil
}

// parseFrontmatterYAML parses the YAML block with strict field validation,
// then decodes the raw map into the typed metadata.
func parseFrontmatterYAML(yamlContent string) (*core.WidgetMeta, error) {
	var rawMap map[string]any
	if err := yaml.Unmarshal([]byte(yamlContent), &rawMap); err != nil {
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}

	for field := range rawMap {
		if !knownFrontmatterFields[field] {
			return nil, &UnknownFieldError{Field: field}
		}
	}

	var meta core.WidgetMeta
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &meta,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build frontmatter decoder: %w", err)
	}
	if err := decoder.Decode(rawMap); err != nil {
		return nil, fmt.Errorf("failed to decode frontmatter: %w", err)
	}

	for i, p := range meta.Properties {
		if p.Key == "" {
			return nil, fmt.Errorf("frontmatter property %d is missing a key", i)
		}
		if !identPattern.MatchString(p.Key) {
			return nil, fmt.Errorf("frontmatter property key %q is not a valid identifier", p.Key)
		}
	}

	return &meta, nil
}

// identPattern matches property keys usable from props.properties.<name>.
var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
