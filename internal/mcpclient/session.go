// Package mcpclient wraps the mcp-go client transports behind the
// Session interface consumed by the registry and dispatcher. A Session
// is one persistent channel to one tool server.
package mcpclient

import (
	"context"
	"fmt"
	"sync"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
)

// protocolVersion is the MCP protocol revision spoken during the
// initialize handshake.
const protocolVersion = "2024-11-05"

// Session defines the transport primitive for one tool server
// connection. All transport types (stdio, SSE, streamable-http)
// implement this interface, enabling polymorphic usage and easier
// testing with fakes.
type Session interface {
	// Initialize establishes the connection and performs the protocol
	// handshake. It is idempotent on an already-connected session.
	Initialize(ctx context.Context) error
	// Close cleanly shuts down the session.
	Close() error
	// ListTools returns all tools advertised by the server.
	ListTools(ctx context.Context) ([]mcp.Tool, error)
	// CallTool executes a tool on the server.
	CallTool(ctx context.Context, name string, args map[string]interface{}) (*mcp.CallToolResult, error)
	// Ping is the liveness probe; it is cheaper than a tool call and
	// carries no arguments.
	Ping(ctx context.Context) error
}

// Compile-time interface compliance checks
var (
	_ Session = (*SSESession)(nil)
	_ Session = (*StreamableHTTPSession)(nil)
	_ Session = (*StdioSession)(nil)
)

// baseSession provides the protocol operations shared by all transport
// types once the underlying mcp-go client is connected.
type baseSession struct {
	client    client.MCPClient
	mu        sync.RWMutex
	connected bool
}

// checkConnected verifies the session is connected. Caller must hold at
// least a read lock on mu.
func (b *baseSession) checkConnected() error {
	if !b.connected || b.client == nil {
		return fmt.Errorf("session not connected")
	}
	return nil
}

func (b *baseSession) closeSession() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.connected || b.client == nil {
		return nil
	}

	err := b.client.Close()
	b.connected = false
	b.client = nil

	return err
}

func (b *baseSession) listTools(ctx context.Context) ([]mcp.Tool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if err := b.checkConnected(); err != nil {
		return nil, err
	}

	result, err := b.client.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("failed to list tools: %w", err)
	}

	return result.Tools, nil
}

func (b *baseSession) callTool(ctx context.Context, name string, args map[string]interface{}) (*mcp.CallToolResult, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if err := b.checkConnected(); err != nil {
		return nil, err
	}

	result, err := b.client.CallTool(ctx, mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to call tool: %w", err)
	}

	return result, nil
}

func (b *baseSession) ping(ctx context.Context) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if err := b.checkConnected(); err != nil {
		return err
	}

	return b.client.Ping(ctx)
}

// initializeRequest builds the handshake request shared by all
// transports.
func initializeRequest() mcp.InitializeRequest {
	return mcp.InitializeRequest{
		Params: struct {
			ProtocolVersion string                 `json:"protocolVersion"`
			Capabilities    mcp.ClientCapabilities `json:"capabilities"`
			ClientInfo      mcp.Implementation     `json:"clientInfo"`
		}{
			ProtocolVersion: protocolVersion,
			ClientInfo: mcp.Implementation{
				Name:    "mcphub",
				Version: "1.0.0",
			},
			Capabilities: mcp.ClientCapabilities{},
		},
	}
}
