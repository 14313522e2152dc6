package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/MuslimSoftware/LifeOS-sub001/internal/provider"
)

// Tool is a capability the model can invoke by name.
type Tool interface {
	Name() string
	Description() string
	// Parameters is a JSON Schema object describing the arguments.
	Parameters() map[string]any
	Execute(ctx context.Context, args json.RawMessage) (any, error)
}

// ReadOnlyTool is implemented by tools without side effects. Consecutive
// read-only calls in one model turn may run concurrently.
type ReadOnlyTool interface {
	ReadOnly() bool
}

// IsReadOnly reports whether t declares itself free of side effects.
func IsReadOnly(t Tool) bool {
	ro, ok := t.(ReadOnlyTool)
	return ok && ro.ReadOnly()
}

// ToolNotFoundError is returned when no tool is registered under Name.
type ToolNotFoundError struct {
	Name string
}

func (e *ToolNotFoundError) Error() string {
	return fmt.Sprintf("unknown tool: %s", e.Name)
}

// ToolExecutionError wraps a failure raised by a tool.
type ToolExecutionError struct {
	Name  string
	Cause error
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("tool %s failed: %v", e.Name, e.Cause)
}

func (e *ToolExecutionError) Unwrap() error {
	return e.Cause
}

// FuncTool adapts a function into a Tool.
type FuncTool struct {
	ToolName        string
	ToolDescription string
	Schema          map[string]any
	Fn              func(ctx context.Context, args json.RawMessage) (any, error)
	NoSideEffects   bool
}

func (f *FuncTool) Name() string               { return f.ToolName }
func (f *FuncTool) Description() string        { return f.ToolDescription }
func (f *FuncTool) Parameters() map[string]any { return f.Schema }
func (f *FuncTool) ReadOnly() bool             { return f.NoSideEffects }

func (f *FuncTool) Execute(ctx context.Context, args json.RawMessage) (any, error) {
	return f.Fn(ctx, args)
}

// ToolRegistry maps tool names to tools. It is built once at startup and
// read by every run.
type ToolRegistry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewToolRegistry creates a new tool registry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{
		tools: make(map[string]Tool),
	}
}

// Register adds a tool. A tool already registered under the same name is
// replaced, and replaced reports that.
func (tr *ToolRegistry) Register(tool Tool) (replaced bool) {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	_, replaced = tr.tools[tool.Name()]
	tr.tools[tool.Name()] = tool
	return replaced
}

// Unregister removes a tool from the registry.
func (tr *ToolRegistry) Unregister(name string) {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	delete(tr.tools, name)
}

// Get returns a tool by name.
func (tr *ToolRegistry) Get(name string) (Tool, bool) {
	tr.mu.RLock()
	defer tr.mu.RUnlock()

	tool, ok := tr.tools[name]
	return tool, ok
}

// List returns all registered tools sorted by name.
func (tr *ToolRegistry) List() []Tool {
	tr.mu.RLock()
	defer tr.mu.RUnlock()

	tools := make([]Tool, 0, len(tr.tools))
	for _, tool := range tr.tools {
		tools = append(tools, tool)
	}
	sort.Slice(tools, func(i, j int) bool { return tools[i].Name() < tools[j].Name() })
	return tools
}

// Schemas returns the tool descriptions sent to the model, sorted by name.
func (tr *ToolRegistry) Schemas() []provider.ToolSchema {
	tools := tr.List()
	out := make([]provider.ToolSchema, len(tools))
	for i, t := range tools {
		out[i] = provider.ToolSchema{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		}
	}
	return out
}

// Execute runs the named tool.
func (tr *ToolRegistry) Execute(ctx context.Context, name string, args json.RawMessage) (any, error) {
	tool, ok := tr.Get(name)
	if !ok {
		return nil, &ToolNotFoundError{Name: name}
	}

	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}
	result, err := tool.Execute(ctx, args)
	if err != nil {
		return nil, &ToolExecutionError{Name: name, Cause: err}
	}
	return result, nil
}

// Has checks if a tool is registered.
func (tr *ToolRegistry) Has(name string) bool {
	tr.mu.RLock()
	defer tr.mu.RUnlock()

	_, ok := tr.tools[name]
	return ok
}

// Count returns the number of registered tools.
func (tr *ToolRegistry) Count() int {
	tr.mu.RLock()
	defer tr.mu.RUnlock()

	return len(tr.tools)
}
