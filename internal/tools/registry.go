// Package tools implements the tool façade shared by the chat assistant and
// the MCP server: a registry of named tools whose handlers return plain
// line-oriented text intended for consumption by a language model.
package tools

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// JSONSchema describes a tool's input in JSON Schema form. The same schema
// serves both front ends: it marshals directly into the MCP tools/list
// payload and converts into Gemini function declarations.
type JSONSchema struct {
	Type        string                `json:"type"`
	Description string                `json:"description,omitempty"`
	Properties  map[string]JSONSchema `json:"properties,omitempty"`
	Required    []string              `json:"required,omitempty"`
	Items       *JSONSchema           `json:"items,omitempty"`
	Enum        []string              `json:"enum,omitempty"`
}

// Tool is a named tool definition.
type Tool struct {
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	InputSchema JSONSchema `json:"inputSchema"`
}

// Handler executes a tool call. The returned string is the textual result
// fed back to the caller; an error marks a failed execution.
type Handler func(ctx context.Context, args map[string]any) (string, error)

type entry struct {
	tool    Tool
	handler Handler
}

// Registry maps tool names to definitions and handlers.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]entry
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]entry)}
}

// Register adds a tool and its handler. Re-registering a name replaces it.
func (r *Registry) Register(tool Tool, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Name] = entry{tool: tool, handler: handler}
}

// List returns all registered tools sorted by name.
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tools := make([]Tool, 0, len(r.tools))
	for _, e := range r.tools {
		tools = append(tools, e.tool)
	}
	sort.Slice(tools, func(i, j int) bool { return tools[i].Name < tools[j].Name })
	return tools
}

// Get returns a tool definition by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.tools[name]
	return e.tool, ok
}

// Count returns the number of registered tools.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Execute runs the named tool and always returns a textual result, never an
// error. The caller is driving a model conversation loop that expects a
// tool result string for every call, so unknown names and handler failures
// are rendered as text.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) string {
	r.mu.RLock()
	e, ok := r.tools[name]
	r.mu.RUnlock()

	if !ok {
		return fmt.Sprintf("Unknown function %s", name)
	}

	result, err := e.handler(ctx, args)
	if err != nil {
		return fmt.Sprintf("Error executing tool %s: %v", name, err)
	}
	return result
}

// StringArg extracts a non-empty string argument. The second return is
// false when the key is missing, not a string, or empty.
func StringArg(args map[string]any, key string) (string, bool) {
	v, ok := args[key].(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}
