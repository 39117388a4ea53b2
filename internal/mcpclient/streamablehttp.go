package mcpclient

import (
	"context"
	"fmt"

	"mcphub/pkg/logging"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
)

// StreamableHTTPSession implements Session over streamable HTTP.
type StreamableHTTPSession struct {
	baseSession
	url string
}

// NewStreamableHTTPSession creates a streamable-http session for the
// given endpoint URL. The connection is not opened until Initialize.
func NewStreamableHTTPSession(url string) *StreamableHTTPSession {
	return &StreamableHTTPSession{url: url}
}

// Initialize establishes the connection and performs the protocol handshake.
func (c *StreamableHTTPSession) Initialize(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		return nil
	}

	logging.Debug("StreamableHTTPSession", "Creating StreamableHTTP client for URL: %s", c.url)

	mcpClient, err := client.NewStreamableHttpClient(c.url)
	if err != nil {
		return fmt.Errorf("failed to create StreamableHTTP client: %w", err)
	}

	initResult, err := mcpClient.Initialize(ctx, initializeRequest())
	if err != nil {
		mcpClient.Close()
		return fmt.Errorf("failed to initialize MCP protocol: %w", err)
	}

	c.client = mcpClient
	c.connected = true

	logging.Debug("StreamableHTTPSession", "StreamableHTTP session initialized. Server: %s, Version: %s",
		initResult.ServerInfo.Name, initResult.ServerInfo.Version)

	return nil
}

// Close cleanly shuts down the session.
func (c *StreamableHTTPSession) Close() error {
	return c.closeSession()
}

// ListTools returns all tools advertised by the server.
func (c *StreamableHTTPSession) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	return c.listTools(ctx)
}

// CallTool executes a tool on the server.
func (c *StreamableHTTPSession) CallTool(ctx context.Context, name string, args map[string]interface{}) (*mcp.CallToolResult, error) {
	return c.callTool(ctx, name, args)
}

// Ping checks if the server is responsive.
func (c *StreamableHTTPSession) Ping(ctx context.Context) error {
	return c.ping(ctx)
}
