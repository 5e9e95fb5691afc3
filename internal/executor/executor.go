package executor

import (
	"fmt"
	"log/slog"
	"sync"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
	"go.starlark.net/syntax"

	"github.com/veristat-labs/veristat/pkg/core"
)

// defaultMaxSteps bounds the Starlark interpreter per widget render so a
// misbehaving module cannot stall the render stage.
const defaultMaxSteps = 10_000_000

// ExecutionError represents a runtime failure inside a compiled module. It
// is isolated to one widget: the caller renders a placeholder for the slot
// and continues with the remaining widgets.
type ExecutionError struct {
	PluginID string
	WidgetID string
	Message  string
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("%s/%s: %s", e.PluginID, e.WidgetID, e.Message)
}

// Input carries the data a widget renders from.
type Input struct {
	// Properties are the bound property values, merged over the widget's
	// declared defaults. Exposed as props.properties.<name>.
	Properties map[string]string

	// TestResults maps algorithm id to that task's output payload.
	// Exposed as props.testResults[<algorithmId>].
	TestResults map[string]any

	// Project carries fields of the immutable project snapshot.
	// Exposed as props.project[<field>].
	Project map[string]any

	// InputBlockData is the user-supplied parameter snapshot.
	// Exposed as props.inputBlockData[<key>].
	InputBlockData map[string]any
}

// RenderedOutput is the result of executing a widget module.
type RenderedOutput struct {
	HTML string
}

// Executor runs compiled widget modules. Threads are pooled and reused
// across executions.
type Executor struct {
	pool     *threadPool
	maxSteps uint64
	logger   *slog.Logger
}

// New creates an Executor. A nil logger discards output.
func New(logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Executor{
		pool:     newThreadPool(10),
		maxSteps: defaultMaxSteps,
		logger:   logger,
	}
}

// Execute instantiates the compiled module and invokes its render export
// with the input data. Any failure, from module load through render, comes
// back as *ExecutionError.
func (e *Executor) Execute(b *core.CompiledBundle, input Input) (*RenderedOutput, error) {
	name := b.PluginID + "/" + b.WidgetID

	thread := e.pool.get(name)
	defer e.pool.put(thread)
	// Steps accumulate across reuses, so the limit is relative to the
	// thread's current count.
	thread.SetMaxExecutionSteps(thread.Steps + e.maxSteps)

	globals, err := starlark.ExecFileOptions(&syntax.FileOptions{}, thread, name, b.Code, Builtins())
	if err != nil {
		return nil, e.failure(b, "module load failed: %v", err)
	}

	renderVal, ok := globals["render"]
	if !ok {
		return nil, e.failure(b, "module does not export a render function")
	}
	renderFn, ok := renderVal.(*starlark.Function)
	if !ok {
		return nil, e.failure(b, "render export is %s, not a function", renderVal.Type())
	}

	props, err := buildProps(b, input)
	if err != nil {
		return nil, e.failure(b, "failed to build props: %v", err)
	}

	result, err := starlark.Call(thread, renderFn, starlark.Tuple{props}, nil)
	if err != nil {
		return nil, e.failure(b, "render failed: %v", err)
	}

	node, err := resultNode(result)
	if err != nil {
		return nil, e.failure(b, "%v", err)
	}

	return &RenderedOutput{HTML: node.HTML()}, nil
}

func (e *Executor) failure(b *core.CompiledBundle, format string, args ...any) *ExecutionError {
	execErr := &ExecutionError{
		PluginID: b.PluginID,
		WidgetID: b.WidgetID,
		Message:  fmt.Sprintf(format, args...),
	}
	e.logger.Debug("widget execution failed",
		"plugin_id", b.PluginID,
		"widget_id", b.WidgetID,
		"error", execErr.Message)
	return execErr
}

// buildProps assembles the props value: a struct with properties (struct),
// testResults, project, and inputBlockData (dicts).
func buildProps(b *core.CompiledBundle, input Input) (starlark.Value, error) {
	properties := b.Frontmatter.PropertyDefaults()
	if properties == nil {
		properties = make(map[string]string)
	}
	for k, v := range input.Properties {
		properties[k] = v
	}

	testResults, err := mapToDict(input.TestResults)
	if err != nil {
		return nil, fmt.Errorf("testResults: %w", err)
	}
	project, err := mapToDict(input.Project)
	if err != nil {
		return nil, fmt.Errorf("project: %w", err)
	}
	inputBlockData, err := mapToDict(input.InputBlockData)
	if err != nil {
		return nil, fmt.Errorf("inputBlockData: %w", err)
	}

	return starlarkstruct.FromStringDict(starlark.String("props"), starlark.StringDict{
		"properties":     stringMapToStruct("properties", properties),
		"testResults":    testResults,
		"project":        project,
		"inputBlockData": inputBlockData,
	}), nil
}

// resultNode normalizes the render return value into a node tree.
func resultNode(v starlark.Value) (*Node, error) {
	switch val := v.(type) {
	case *Node:
		return val, nil
	case starlark.String:
		return &Node{kind: kindText, Text: string(val)}, nil
	default:
		return nil, fmt.Errorf("render returned %s, expected a render_node or string", v.Type())
	}
}

// threadPool reuses Starlark threads across executions.
type threadPool struct {
	mu      sync.Mutex
	threads []*starlark.Thread
	maxSize int
}

func newThreadPool(maxSize int) *threadPool {
	if maxSize <= 0 {
		maxSize = 10
	}
	return &threadPool{
		threads: make([]*starlark.Thread, 0, maxSize),
		maxSize: maxSize,
	}
}

// get retrieves a thread from the pool or creates a new one. The thread
// name is used for error reporting.
func (p *threadPool) get(name string) *starlark.Thread {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.threads) > 0 {
		thread := p.threads[len(p.threads)-1]
		p.threads = p.threads[:len(p.threads)-1]
		thread.Name = name
		return thread
	}

	return &starlark.Thread{
		Name: name,
		Print: func(_ *starlark.Thread, _ string) {
			// No-op for widget execution
		},
	}
}

// put returns a thread to the pool for reuse. If the pool is full, the
// thread is discarded.
func (p *threadPool) put(thread *starlark.Thread) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.threads) < p.maxSize {
		thread.Name = ""
		thread.Uncancel()
		p.threads = append(p.threads, thread)
	}
}
