package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/coreagent/runtime/pkg/event"
	"github.com/coreagent/runtime/pkg/tool"
	"github.com/coreagent/runtime/pkg/version"
)

// Client manages MCP SDK sessions for one or more servers and exposes
// each server's tools as tool.Tool implementations a tool.Registry can
// register directly.
type Client struct {
	mu       sync.RWMutex
	sessions map[string]*mcpsdk.ClientSession // serverID -> session
	logger   *slog.Logger
}

// NewClient creates an empty Client.
func NewClient(logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{sessions: make(map[string]*mcpsdk.ClientSession), logger: logger}
}

// Connect establishes a session with serverID over transport.
func (c *Client) Connect(ctx context.Context, serverID string, transport mcpsdk.Transport) error {
	client := mcpsdk.NewClient(&mcpsdk.Implementation{
		Name:    version.AppName,
		Version: version.Version,
	}, nil)

	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return fmt.Errorf("mcp: connect to %q: %w", serverID, err)
	}

	c.mu.Lock()
	c.sessions[serverID] = session
	c.mu.Unlock()
	c.logger.Info("mcp server connected", "server", serverID)
	return nil
}

// Close shuts down every session.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var firstErr error
	for id, session := range c.sessions {
		if err := session.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("mcp: close session %q: %w", id, err)
		}
	}
	c.sessions = make(map[string]*mcpsdk.ClientSession)
	return firstErr
}

// Tools lists every tool on serverID, wrapped as tool.Tool values ready
// for Registry.Register — the tool's advertised Name is
// "serverID.toolName" per NormalizeToolName/SplitToolName's convention.
func (c *Client) Tools(ctx context.Context, serverID string) ([]tool.Tool, error) {
	c.mu.RLock()
	session, ok := c.sessions[serverID]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("mcp: no session for server %q", serverID)
	}

	result, err := session.ListTools(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("mcp: list tools from %q: %w", serverID, err)
	}

	out := make([]tool.Tool, 0, len(result.Tools))
	for _, t := range result.Tools {
		out = append(out, &bridgedTool{
			client:     c,
			serverID:   serverID,
			name:       serverID + "." + t.Name,
			remoteName: t.Name,
			schema:     t,
		})
	}
	return out, nil
}

// bridgedTool adapts one remote MCP tool to tool.Tool.
type bridgedTool struct {
	client     *Client
	serverID   string
	name       string
	remoteName string
	schema     *mcpsdk.Tool
}

func (b *bridgedTool) Name() string        { return b.name }
func (b *bridgedTool) Description() string { return b.schema.Description }

func (b *bridgedTool) SchemaJSON() string {
	raw, err := json.Marshal(b.schema.InputSchema)
	if err != nil {
		return `{"type":"object"}`
	}
	return string(raw)
}

// SecurityRisk defers to the conversation's configured SecurityAnalyzer —
// an MCP tool advertises no risk opinion of its own since it's an
// arbitrary remote capability the runtime cannot introspect.
func (b *bridgedTool) SecurityRisk(map[string]any) event.Risk { return event.RiskUnknown }

func (b *bridgedTool) Execute(ctx context.Context, args map[string]any) (tool.Result, error) {
	b.client.mu.RLock()
	session, ok := b.client.sessions[b.serverID]
	b.client.mu.RUnlock()
	if !ok {
		return tool.Result{}, fmt.Errorf("mcp: no session for server %q", b.serverID)
	}

	result, err := session.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      b.remoteName,
		Arguments: args,
	})
	if err != nil {
		return tool.Result{}, fmt.Errorf("mcp: call %s: %w", b.name, err)
	}

	payload := map[string]any{"content": result.Content}
	return tool.Result{Payload: payload, IsError: result.IsError}, nil
}
