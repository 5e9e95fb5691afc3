package compiler

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleWidget = `---
name: Fairness Summary
description: Headline fairness scores
properties:
  - key: title
    helper: Heading shown above the table
    default: Overview
dynamicHeight: true
meta:
  category: fairness
---
<h1>{ props.properties.title }</h1>
<table>
  <tr><th>Metric</th><th>Score</th></tr>
  <tr><td>Parity</td><td>{ props.testResults["score"] }</td></tr>
</table>
`

func testContext() Context {
	return Context{PluginID: "fairness", WidgetID: "summary"}
}

func TestCompileProducesModule(t *testing.T) {
	c := New(nil)

	bundle, err := c.Compile([]byte(sampleWidget), testContext())
	require.NoError(t, err)

	assert.Equal(t, "fairness", bundle.PluginID)
	assert.Equal(t, "summary", bundle.WidgetID)
	assert.Len(t, bundle.Key, 64)
	assert.Equal(t, "Fairness Summary", bundle.Frontmatter.Name)
	assert.True(t, bundle.Frontmatter.DynamicHeight)
	require.Len(t, bundle.Frontmatter.Properties, 1)
	assert.Equal(t, "title", bundle.Frontmatter.Properties[0].Key)
	assert.Equal(t, "Overview", bundle.Frontmatter.Properties[0].Default)

	assert.Contains(t, bundle.Code, "def render(props):")
	assert.Contains(t, bundle.Code, "frontmatter = {")
	assert.Contains(t, bundle.Code, `text(props.properties.title)`)
	assert.Contains(t, bundle.Code, `text(props.testResults["score"])`)
}

func TestCompileIsDeterministic(t *testing.T) {
	c := New(nil)

	first, err := c.Compile([]byte(sampleWidget), testContext())
	require.NoError(t, err)
	second, err := c.Compile([]byte(sampleWidget), testContext())
	require.NoError(t, err)

	assert.Equal(t, first.Key, second.Key)
	assert.Equal(t, first.Code, second.Code)
}

func TestCompileKeyChangesWithSource(t *testing.T) {
	c := New(nil)

	first, err := c.Compile([]byte("<p>one</p>"), testContext())
	require.NoError(t, err)
	second, err := c.Compile([]byte("<p>two</p>"), testContext())
	require.NoError(t, err)
	other, err := c.Compile([]byte("<p>one</p>"), Context{PluginID: "fairness", WidgetID: "detail"})
	require.NoError(t, err)

	assert.NotEqual(t, first.Key, second.Key)
	assert.NotEqual(t, first.Key, other.Key)
}

func TestCompileNoFrontmatter(t *testing.T) {
	c := New(nil)

	bundle, err := c.Compile([]byte("<p>plain widget</p>"), testContext())
	require.NoError(t, err)
	assert.Empty(t, bundle.Frontmatter.Name)
	assert.Contains(t, bundle.Code, `text("plain widget")`)
}

func TestCompileNormalizesTableHeaders(t *testing.T) {
	c := New(nil)

	bundle, err := c.Compile([]byte(sampleWidget), testContext())
	require.NoError(t, err)

	// The header row moves into a synthesized thead ahead of the body rows.
	theadAt := strings.Index(bundle.Code, `element("thead"`)
	tbodyAt := strings.Index(bundle.Code, `element("tbody"`)
	require.Greater(t, theadAt, -1)
	require.Greater(t, tbodyAt, -1)
	assert.Less(t, theadAt, tbodyAt)
}

func TestCompileTableWithExplicitTheadUntouched(t *testing.T) {
	c := New(nil)

	source := `<table><thead><tr><th>A</th></tr></thead><tbody><tr><td>1</td></tr></tbody></table>`
	bundle, err := c.Compile([]byte(source), testContext())
	require.NoError(t, err)

	assert.Equal(t, 1, strings.Count(bundle.Code, `element("thead"`))
}

func TestCompileInjectsBoundPropertyAttr(t *testing.T) {
	c := New(nil)

	bundle, err := c.Compile([]byte(sampleWidget), testContext())
	require.NoError(t, err)

	assert.Contains(t, bundle.Code, `"data-bound-property": "title"`)
}

func TestCompileUnknownFrontmatterField(t *testing.T) {
	c := New(nil)

	source := "---\nname: Bad\nbogusField: nope\n---\n<p>x</p>"
	_, err := c.Compile([]byte(source), testContext())
	require.Error(t, err)

	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "fairness", ce.PluginID)
	assert.Contains(t, ce.Message, `unknown field "bogusField"`)
}

func TestCompileInvalidYAMLFrontmatter(t *testing.T) {
	c := New(nil)

	source := "---\nname: [unclosed\n---\n<p>x</p>"
	_, err := c.Compile([]byte(source), testContext())
	require.Error(t, err)

	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	assert.Contains(t, ce.Message, "invalid YAML")
}

func TestCompileInvalidPropertyKey(t *testing.T) {
	c := New(nil)

	source := "---\nproperties:\n  - key: \"not a key\"\n---\n<p>x</p>"
	_, err := c.Compile([]byte(source), testContext())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a valid identifier")
}

func TestCompileUnterminatedExpression(t *testing.T) {
	c := New(nil)

	_, err := c.Compile([]byte("<p>{ props.properties.title</p>"), testContext())
	require.Error(t, err)

	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	assert.Contains(t, ce.Message, "missing closing brace")
}

func TestCompileEmptyExpression(t *testing.T) {
	c := New(nil)

	_, err := c.Compile([]byte("<p>{  }</p>"), testContext())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty expression")
}

func TestCompileInlinesLocalMedia(t *testing.T) {
	assetsDir := t.TempDir()
	payload := []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a}
	require.NoError(t, os.WriteFile(filepath.Join(assetsDir, "logo.png"), payload, 0o644))

	c := New(nil)
	ctx := Context{PluginID: "fairness", WidgetID: "summary", AssetsDir: assetsDir}

	bundle, err := c.Compile([]byte(`<img src="logo.png">`), ctx)
	require.NoError(t, err)

	want := "data:image/png;base64," + base64.StdEncoding.EncodeToString(payload)
	assert.Contains(t, bundle.Code, want)
}

func TestCompileMissingAsset(t *testing.T) {
	c := New(nil)
	ctx := Context{PluginID: "fairness", WidgetID: "summary", AssetsDir: t.TempDir()}

	_, err := c.Compile([]byte(`<img src="missing.png">`), ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `asset "missing.png" not found`)
}

func TestCompileLeavesRemoteMediaAlone(t *testing.T) {
	c := New(nil)

	bundle, err := c.Compile([]byte(`<img src="https://example.com/x.png">`), testContext())
	require.NoError(t, err)
	assert.Contains(t, bundle.Code, `https://example.com/x.png`)
}

func TestSplitExpressions(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []segment
	}{
		{
			name: "literal only",
			text: "plain text",
			want: []segment{{literal: "plain text"}},
		},
		{
			name: "expression only",
			text: "{ props.properties.title }",
			want: []segment{{expr: "props.properties.title"}},
		},
		{
			name: "mixed",
			text: "Score: { props.testResults[\"score\"] }!",
			want: []segment{
				{literal: "Score: "},
				{expr: "props.testResults[\"score\"]"},
				{literal: "!"},
			},
		},
		{
			name: "nested braces",
			text: "{ {\"a\": 1}[\"a\"] }",
			want: []segment{{expr: "{\"a\": 1}[\"a\"]"}},
		},
		{
			name: "brace inside string literal",
			text: "{ \"}\" }",
			want: []segment{{expr: "\"}\""}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := splitExpressions(tt.text)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCollapseWhitespace(t *testing.T) {
	assert.Equal(t, "", collapseWhitespace("  \n\t "))
	assert.Equal(t, "a b", collapseWhitespace("a \n  b"))
}
