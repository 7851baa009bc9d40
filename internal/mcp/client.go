package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// ServerConfig describes one configured MCP server (§3, §4.7).
type ServerConfig struct {
	Name            string
	Transport       string // "stdio" or "sse"
	Enabled         bool
	Command         string
	Args            []string
	Env             map[string]string
	URL             string
	TimeoutSeconds  int
	ReconnectMaxTry int
}

// server bundles a configured server's live transport with its cached
// tool/resource catalogue.
type server struct {
	cfg       ServerConfig
	transport Transport
	tools     []ToolDef
	resources []ResourceDef
}

// ReconnectFunc is invoked after a server reconnects so callers can
// re-register its tools in the shared tool registry.
type ReconnectFunc func(serverName string, tools []ToolDef)

// Client owns every configured MCP server connection: it dials transports,
// caches each server's advertised tools/resources, and guards its server
// map with a mutex; calls themselves run outside that lock (§4.7).
type Client struct {
	mu      sync.Mutex
	servers map[string]*server

	onReconnect ReconnectFunc
}

func NewClient() *Client {
	return &Client{servers: make(map[string]*server)}
}

// SetReconnectHandler installs the callback invoked after a successful
// reconnect (used by health.go).
func (c *Client) SetReconnectHandler(fn ReconnectFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onReconnect = fn
}

// Connect dials the named server's transport, performs the handshake, and
// populates its tool/resource cache. Connecting an already-connected server
// is a no-op.
func (c *Client) Connect(ctx context.Context, cfg ServerConfig) error {
	c.mu.Lock()
	if existing, ok := c.servers[cfg.Name]; ok && existing.transport.IsRunning() {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	transport, err := newTransport(cfg)
	if err != nil {
		return fmt.Errorf("mcp %s: %w", cfg.Name, err)
	}
	if err := transport.Start(ctx); err != nil {
		return fmt.Errorf("mcp %s: start: %w", cfg.Name, err)
	}

	srv := &server{cfg: cfg, transport: transport}
	if err := c.refresh(ctx, srv); err != nil {
		_ = transport.Stop(ctx)
		return fmt.Errorf("mcp %s: %w", cfg.Name, err)
	}

	c.mu.Lock()
	c.servers[cfg.Name] = srv
	c.mu.Unlock()
	return nil
}

func newTransport(cfg ServerConfig) (Transport, error) {
	switch cfg.Transport {
	case "stdio", "":
		return NewStdioTransport(cfg.Command, cfg.Args, cfg.Env)
	case "sse":
		return NewSSETransport(cfg.URL)
	default:
		return nil, fmt.Errorf("unknown transport %q", cfg.Transport)
	}
}

// refresh calls tools/list and resources/list and stores the results on srv.
func (c *Client) refresh(ctx context.Context, srv *server) error {
	toolsRaw, err := srv.transport.Call(ctx, "tools/list", map[string]interface{}{})
	if err != nil {
		return fmt.Errorf("tools/list: %w", err)
	}
	var toolsResult toolsListResult
	if len(toolsRaw) > 0 {
		if err := json.Unmarshal(toolsRaw, &toolsResult); err != nil {
			return fmt.Errorf("tools/list: decode: %w", err)
		}
	}
	srv.tools = toolsResult.Tools

	resourcesRaw, err := srv.transport.Call(ctx, "resources/list", map[string]interface{}{})
	if err == nil && len(resourcesRaw) > 0 {
		var resourcesResult resourcesListResult
		if err := json.Unmarshal(resourcesRaw, &resourcesResult); err == nil {
			srv.resources = resourcesResult.Resources
		}
	}
	return nil
}

// Reconnect tears down and re-dials a server, invoking the reconnect
// callback with its refreshed tool list on success (§4.7 health-check loop).
func (c *Client) Reconnect(ctx context.Context, name string) error {
	c.mu.Lock()
	srv, ok := c.servers[name]
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("mcp %s: not configured", name)
	}

	_ = srv.transport.Stop(ctx)
	if err := c.Connect(ctx, srv.cfg); err != nil {
		return err
	}

	c.mu.Lock()
	refreshed := c.servers[name]
	cb := c.onReconnect
	c.mu.Unlock()
	if cb != nil {
		cb(name, refreshed.tools)
	}
	return nil
}

// Disconnect stops a single server's transport.
func (c *Client) Disconnect(ctx context.Context, name string) error {
	c.mu.Lock()
	srv, ok := c.servers[name]
	delete(c.servers, name)
	c.mu.Unlock()
	if !ok {
		return nil
	}
	return srv.transport.Stop(ctx)
}

// DisconnectAll stops every connected server's transport, used on shutdown.
func (c *Client) DisconnectAll(ctx context.Context) {
	c.mu.Lock()
	servers := c.servers
	c.servers = make(map[string]*server)
	c.mu.Unlock()
	for _, srv := range servers {
		_ = srv.transport.Stop(ctx)
	}
}

// ServerNames returns every connected server's name.
func (c *Client) ServerNames() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	names := make([]string, 0, len(c.servers))
	for name := range c.servers {
		names = append(names, name)
	}
	return names
}

// IsConnected reports whether a server's transport is currently running.
func (c *Client) IsConnected(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	srv, ok := c.servers[name]
	return ok && srv.transport.IsRunning()
}

// ListTools returns the cached tool catalogue for a connected server.
func (c *Client) ListTools(name string) []ToolDef {
	c.mu.Lock()
	defer c.mu.Unlock()
	srv, ok := c.servers[name]
	if !ok {
		return nil
	}
	return srv.tools
}

// ListResources returns the cached resource catalogue for a connected server.
func (c *Client) ListResources(name string) []ResourceDef {
	c.mu.Lock()
	defer c.mu.Unlock()
	srv, ok := c.servers[name]
	if !ok {
		return nil
	}
	return srv.resources
}

// CallTool invokes tools/call on the named server and returns the decoded
// result's content blocks.
func (c *Client) CallTool(ctx context.Context, server string, tool string, args map[string]interface{}) (*toolCallResult, error) {
	c.mu.Lock()
	srv, ok := c.servers[server]
	c.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("mcp server %q not connected", server)
	}

	raw, err := srv.transport.Call(ctx, "tools/call", toolCallParams{Name: tool, Arguments: args})
	if err != nil {
		return nil, err
	}
	var result toolCallResult
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &result); err != nil {
			return nil, fmt.Errorf("tools/call: decode: %w", err)
		}
	}
	return &result, nil
}

// ReadResource invokes resources/read on the named server.
func (c *Client) ReadResource(ctx context.Context, server string, uri string) (*toolCallResult, error) {
	c.mu.Lock()
	srv, ok := c.servers[server]
	c.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("mcp server %q not connected", server)
	}
	raw, err := srv.transport.Call(ctx, "resources/read", map[string]interface{}{"uri": uri})
	if err != nil {
		return nil, err
	}
	var result toolCallResult
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &result); err != nil {
			return nil, fmt.Errorf("resources/read: decode: %w", err)
		}
	}
	return &result, nil
}
