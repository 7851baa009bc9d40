package tools

import (
	"context"
	"fmt"
	"sync"
)

// Tool is the interface every built-in and MCP-wrapped tool satisfies.
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]interface{}
	Execute(ctx context.Context, args map[string]interface{}) *Result
}

// Registry holds the set of tools available to the agent loop for a turn.
// MCP servers add and remove entries at runtime as they connect/reconnect
// (§4.7) from the health-monitor goroutine, while the agent loop and cron
// goroutines concurrently read it every turn; mu guards every access (§5
// "shared resources").
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Add inserts or replaces a tool.
func (r *Registry) Add(tool Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Name()] = tool
}

// Remove drops a tool, used when an MCP server disconnects.
func (r *Registry) Remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
}

// RemovePrefixed drops every tool whose name starts with "<server>_", used
// when an MCP server disconnects and its adapters must be unregistered.
func (r *Registry) RemovePrefixed(prefix string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name := range r.tools {
		if len(name) > len(prefix) && name[:len(prefix)] == prefix {
			delete(r.tools, name)
		}
	}
}

func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[name]
	return ok
}

func (r *Registry) Get(name string) Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

// Definitions returns every registered tool in OpenAI function-calling
// format, suitable for the `tools` field of a chat request (§6).
func (r *Registry) Definitions() []map[string]interface{} {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]map[string]interface{}, 0, len(r.tools))
	for _, t := range r.tools {
		defs = append(defs, map[string]interface{}{
			"type": "function",
			"function": map[string]interface{}{
				"name":        t.Name(),
				"description": t.Description(),
				"parameters":  t.Parameters(),
			},
		})
	}
	return defs
}

// Execute runs a named tool. A missing tool or a panicking tool both surface
// as an IsError Result (§4.6): nothing from tool execution is ever raised as
// a Go error into the agent loop.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]interface{}) (result *Result) {
	r.mu.RLock()
	t, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return ErrorResult(fmt.Sprintf("tool %q not found", name))
	}
	defer func() {
		if rec := recover(); rec != nil {
			result = ErrorResult(fmt.Sprintf("tool %q panicked: %v", name, rec))
		}
	}()
	return t.Execute(ctx, args)
}
