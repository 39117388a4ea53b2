package mcpclient

import (
	"context"
	"fmt"
	"time"

	"mcphub/pkg/logging"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
)

// StdioSession implements Session by spawning a local command and
// speaking MCP over its stdin/stdout.
type StdioSession struct {
	baseSession
	command string
	args    []string
	env     map[string]string
}

// NewStdioSession creates a stdio-based session. The process is not
// started until Initialize.
func NewStdioSession(command string, args []string, env map[string]string) *StdioSession {
	return &StdioSession{
		command: command,
		args:    args,
		env:     env,
	}
}

// Initialize starts the process and performs the protocol handshake.
func (c *StdioSession) Initialize(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		return nil
	}

	logging.Debug("StdioSession", "Creating stdio client for command: %s %v", c.command, c.args)

	var envStrings []string
	for k, v := range c.env {
		envStrings = append(envStrings, fmt.Sprintf("%s=%s", k, v))
	}

	mcpClient, err := client.NewStdioMCPClient(c.command, envStrings, c.args...)
	if err != nil {
		return fmt.Errorf("failed to create stdio client: %w", err)
	}

	// A stalled child process must not hang registration forever.
	initCtx := ctx
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		initCtx, cancel = context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
	}

	initResult, err := mcpClient.Initialize(initCtx, initializeRequest())
	if err != nil {
		if closeErr := mcpClient.Close(); closeErr != nil {
			logging.Debug("StdioSession", "Error closing failed client for %s: %v", c.command, closeErr)
		}
		return fmt.Errorf("failed to initialize MCP protocol: %w", err)
	}

	c.client = mcpClient
	c.connected = true

	logging.Debug("StdioSession", "Stdio session initialized. Server: %s, Version: %s",
		initResult.ServerInfo.Name, initResult.ServerInfo.Version)

	return nil
}

// Close cleanly shuts down the session and the child process.
func (c *StdioSession) Close() error {
	return c.closeSession()
}

// ListTools returns all tools advertised by the server.
func (c *StdioSession) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	return c.listTools(ctx)
}

// CallTool executes a tool on the server.
func (c *StdioSession) CallTool(ctx context.Context, name string, args map[string]interface{}) (*mcp.CallToolResult, error) {
	return c.callTool(ctx, name, args)
}

// Ping checks if the server is responsive.
func (c *StdioSession) Ping(ctx context.Context) error {
	return c.ping(ctx)
}
