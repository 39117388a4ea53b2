// Package llm abstracts the completion capability behind one provider
// interface so the dispatcher never touches vendor SDKs directly. Backends
// are selected by configuration at startup, not by runtime type inspection.
package llm

import (
	"context"
)

// Role identifies who authored a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is one tool invocation requested by the model. Arguments is the
// raw JSON object string as produced by the model.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// Message is one entry of a conversation transcript.
//
// Assistant messages that requested tool calls carry them in ToolCalls so
// providers can echo the request back in follow-up rounds. Tool result
// messages use RoleTool with ToolCallID referencing the originating call.
type Message struct {
	Role       Role
	Content    string
	ToolCalls  []ToolCall
	ToolCallID string
}

// ToolDef describes one callable tool offered to the model. InputSchema is
// a JSON schema object.
type ToolDef struct {
	Name        string
	Description string
	InputSchema map[string]interface{}
}

// Completion is one model response: either a final answer (no tool calls)
// or a set of requested tool calls, optionally accompanied by reasoning
// text.
type Completion struct {
	Content   string
	ToolCalls []ToolCall
}

// Provider is one completion backend.
type Provider interface {
	// Complete sends the conversation and the available tools to the model
	// and returns its response.
	Complete(ctx context.Context, messages []Message, tools []ToolDef) (*Completion, error)
}
