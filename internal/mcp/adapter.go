package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nextlevelbuilder/goclaw/internal/tools"
)

// ToolAdapter exposes one MCP server tool as a tools.Tool, named
// "<server>_<tool>" so names can't collide across servers (§4.7).
type ToolAdapter struct {
	client     *Client
	serverName string
	def        ToolDef
	schema     map[string]interface{}
}

func NewToolAdapter(client *Client, serverName string, def ToolDef) *ToolAdapter {
	schema := map[string]interface{}{"type": "object", "properties": map[string]interface{}{}}
	if len(def.InputSchema) > 0 {
		var parsed map[string]interface{}
		if err := json.Unmarshal(def.InputSchema, &parsed); err == nil {
			schema = parsed
		}
	}
	return &ToolAdapter{client: client, serverName: serverName, def: def, schema: schema}
}

func (a *ToolAdapter) Name() string {
	return a.serverName + "_" + a.def.Name
}

// Description is prefixed with the owning server's name (§4.7:
// `description = "[<server>] <tool.description>"`) so the LLM can see which
// MCP server a tool came from.
func (a *ToolAdapter) Description() string {
	return "[" + a.serverName + "] " + a.def.Description
}

func (a *ToolAdapter) Parameters() map[string]interface{} { return a.schema }

func (a *ToolAdapter) Execute(ctx context.Context, args map[string]interface{}) *tools.Result {
	result, err := a.client.CallTool(ctx, a.serverName, a.def.Name, args)
	if err != nil {
		return tools.ErrorResult(err.Error())
	}
	text := CoerceContent(result.Content)
	if result.IsError {
		return tools.ErrorResult(text)
	}
	return tools.NewResult(text)
}

// CoerceContent flattens an MCP tool-call result's content blocks into the
// single human-readable string the agent loop consumes (§4.7):
// text passes through verbatim, a resource block becomes "[Resource: uri]",
// and an image block becomes "[Image: mimeType, N chars]".
func CoerceContent(blocks []contentBlock) string {
	parts := make([]string, 0, len(blocks))
	for _, b := range blocks {
		switch b.Type {
		case "text":
			parts = append(parts, b.Text)
		case "resource":
			parts = append(parts, fmt.Sprintf("[Resource: %s]", b.URI))
		case "image":
			parts = append(parts, fmt.Sprintf("[Image: %s, %d chars]", b.MimeType, len(b.Data)))
		default:
			parts = append(parts, fmt.Sprintf("[%s]", b.Type))
		}
	}
	return strings.Join(parts, "\n")
}

// ResourceAdapter exposes a single MCP resource as a read-only tool so the
// agent can fetch its content on demand, named "<server>_read_<resource>".
type ResourceAdapter struct {
	client     *Client
	serverName string
	def        ResourceDef
}

func NewResourceAdapter(client *Client, serverName string, def ResourceDef) *ResourceAdapter {
	return &ResourceAdapter{client: client, serverName: serverName, def: def}
}

func (a *ResourceAdapter) Name() string {
	return a.serverName + "_read_" + sanitizeName(a.def.Name)
}

func (a *ResourceAdapter) Description() string {
	return "Read the resource " + a.def.URI
}

func (a *ResourceAdapter) Parameters() map[string]interface{} {
	return map[string]interface{}{"type": "object", "properties": map[string]interface{}{}}
}

func (a *ResourceAdapter) Execute(ctx context.Context, args map[string]interface{}) *tools.Result {
	result, err := a.client.ReadResource(ctx, a.serverName, a.def.URI)
	if err != nil {
		return tools.ErrorResult(err.Error())
	}
	return tools.NewResult(CoerceContent(result.Content))
}

func sanitizeName(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
