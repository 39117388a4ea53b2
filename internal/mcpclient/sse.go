package mcpclient

import (
	"context"
	"fmt"

	"mcphub/pkg/logging"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
)

// SSESession implements Session over Server-Sent Events.
type SSESession struct {
	baseSession
	url string
}

// NewSSESession creates an SSE-based session for the given endpoint URL.
// The connection is not opened until Initialize.
func NewSSESession(url string) *SSESession {
	return &SSESession{url: url}
}

// Initialize establishes the connection and performs the protocol handshake.
func (c *SSESession) Initialize(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		return nil
	}

	logging.Debug("SSESession", "Creating SSE client for URL: %s", c.url)

	mcpClient, err := client.NewSSEMCPClient(c.url)
	if err != nil {
		return fmt.Errorf("failed to create SSE client: %w", err)
	}

	if err := mcpClient.Start(ctx); err != nil {
		return fmt.Errorf("failed to start SSE transport: %w", err)
	}

	initResult, err := mcpClient.Initialize(ctx, initializeRequest())
	if err != nil {
		mcpClient.Close()
		return fmt.Errorf("failed to initialize MCP protocol: %w", err)
	}

	c.client = mcpClient
	c.connected = true

	logging.Debug("SSESession", "SSE session initialized. Server: %s, Version: %s",
		initResult.ServerInfo.Name, initResult.ServerInfo.Version)

	return nil
}

// Close cleanly shuts down the session.
func (c *SSESession) Close() error {
	return c.closeSession()
}

// ListTools returns all tools advertised by the server.
func (c *SSESession) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	return c.listTools(ctx)
}

// CallTool executes a tool on the server.
func (c *SSESession) CallTool(ctx context.Context, name string, args map[string]interface{}) (*mcp.CallToolResult, error) {
	return c.callTool(ctx, name, args)
}

// Ping checks if the server is responsive.
func (c *SSESession) Ping(ctx context.Context) error {
	return c.ping(ctx)
}
