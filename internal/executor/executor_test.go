package executor

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veristat-labs/veristat/pkg/core"
)

func bundleWith(code string) *core.CompiledBundle {
	return &core.CompiledBundle{
		Key:      "test-key",
		PluginID: "fairness",
		WidgetID: "summary",
		Code:     code,
		Frontmatter: &core.WidgetMeta{
			Properties: []core.WidgetProperty{
				{Key: "title", Default: "Overview"},
			},
		},
	}
}

func TestExecuteRendersTree(t *testing.T) {
	e := New(nil)

	code := `
def render(props):
    return element("div", {"class": "card"}, [
        element("h1", {}, [text(props.properties.title)]),
        element("span", {}, [text(props.testResults["accuracy"])]),
        text(props.project["name"]),
    ])
`
	out, err := e.Execute(bundleWith(code), Input{
		Properties:  map[string]string{"title": "Scores"},
		TestResults: map[string]any{"accuracy": 0.91},
		Project:     map[string]any{"name": "credit-model"},
	})
	require.NoError(t, err)

	assert.Equal(t,
		`<div class="card"><h1>Scores</h1><span>0.91</span>credit-model</div>`,
		out.HTML)
}

func TestExecuteUsesPropertyDefaults(t *testing.T) {
	e := New(nil)

	code := `
def render(props):
    return text(props.properties.title)
`
	out, err := e.Execute(bundleWith(code), Input{})
	require.NoError(t, err)
	assert.Equal(t, "Overview", out.HTML)
}

func TestExecuteEscapesText(t *testing.T) {
	e := New(nil)

	code := `
def render(props):
    return element("p", {}, [text("<script>alert(1)</script>")])
`
	out, err := e.Execute(bundleWith(code), Input{})
	require.NoError(t, err)
	assert.Equal(t, "<p>&lt;script&gt;alert(1)&lt;/script&gt;</p>", out.HTML)
}

func TestExecuteRawPassesThrough(t *testing.T) {
	e := New(nil)

	code := `
def render(props):
    return fragment([raw("<hr>"), text("after")])
`
	out, err := e.Execute(bundleWith(code), Input{})
	require.NoError(t, err)
	assert.Equal(t, "<hr>after", out.HTML)
}

func TestExecuteStringReturn(t *testing.T) {
	e := New(nil)

	code := `
def render(props):
    return "just text"
`
	out, err := e.Execute(bundleWith(code), Input{})
	require.NoError(t, err)
	assert.Equal(t, "just text", out.HTML)
}

func TestExecuteInputBlockData(t *testing.T) {
	e := New(nil)

	code := `
def render(props):
    return text(props.inputBlockData["threshold"])
`
	out, err := e.Execute(bundleWith(code), Input{
		InputBlockData: map[string]any{"threshold": 42},
	})
	require.NoError(t, err)
	assert.Equal(t, "42", out.HTML)
}

func TestExecuteMissingRenderExport(t *testing.T) {
	e := New(nil)

	_, err := e.Execute(bundleWith(`x = 1`), Input{})
	require.Error(t, err)

	var execErr *ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, "fairness", execErr.PluginID)
	assert.Contains(t, execErr.Message, "does not export a render function")
}

func TestExecuteRenderNotAFunction(t *testing.T) {
	e := New(nil)

	_, err := e.Execute(bundleWith(`render = 7`), Input{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a function")
}

func TestExecuteRuntimeFailureIsolated(t *testing.T) {
	e := New(nil)

	code := `
def render(props):
    return text(props.testResults["no-such-key"])
`
	_, err := e.Execute(bundleWith(code), Input{})
	require.Error(t, err)

	var execErr *ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Contains(t, execErr.Message, "render failed")

	// The executor stays usable after a failed module.
	out, err := e.Execute(bundleWith("def render(props):\n    return text(\"ok\")\n"), Input{})
	require.NoError(t, err)
	assert.Equal(t, "ok", out.HTML)
}

func TestExecuteNoAmbientCapabilities(t *testing.T) {
	e := New(nil)

	// The capability surface is exactly the render primitives; ambient names
	// fail at module load.
	for _, name := range []string{"open", "load_module", "getattr_file"} {
		code := fmt.Sprintf("def render(props):\n    return text(%s(\"x\"))\n", name)
		_, err := e.Execute(bundleWith(code), Input{})
		require.Error(t, err, name)
		assert.Contains(t, err.Error(), "undefined: "+name)
	}
}

func TestExecuteBadReturnType(t *testing.T) {
	e := New(nil)

	_, err := e.Execute(bundleWith("def render(props):\n    return 42\n"), Input{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected a render_node or string")
}

func TestExecuteStepLimit(t *testing.T) {
	e := New(nil)

	code := `
def render(props):
    total = 0
    for i in range(100000000):
        total += i
    return text(total)
`
	_, err := e.Execute(bundleWith(code), Input{})
	require.Error(t, err)

	var execErr *ExecutionError
	require.ErrorAs(t, err, &execErr)
}

func TestExecuteStepLimitIsPerExecution(t *testing.T) {
	e := New(nil)

	// Each run consumes a chunk of steps; pooled thread reuse must not let
	// the counts accumulate into a spurious limit error.
	code := `
def render(props):
    total = 0
    for i in range(500000):
        total += 1
    return text(total)
`
	for i := 0; i < 25; i++ {
		out, err := e.Execute(bundleWith(code), Input{})
		require.NoError(t, err, "execution %d", i)
		assert.Equal(t, "500000", out.HTML)
	}
}

func TestNodeVoidElements(t *testing.T) {
	code := `
def render(props):
    return element("div", {}, [
        element("img", {"src": "x.png"}, []),
        element("br", {}, []),
    ])
`
	out, err := New(nil).Execute(bundleWith(code), Input{})
	require.NoError(t, err)
	assert.Equal(t, `<div><img src="x.png"><br></div>`, out.HTML)
}

func TestChildNodesDropNone(t *testing.T) {
	code := `
def render(props):
    return fragment([
        text("a"),
        None,
        "b",
    ])
`
	out, err := New(nil).Execute(bundleWith(code), Input{})
	require.NoError(t, err)
	assert.Equal(t, "ab", out.HTML)
}
