package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"mcphub/pkg/logging"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// anthropicMaxTokens bounds the response size of one completion round.
const anthropicMaxTokens = 4096

// AnthropicProvider talks to the Anthropic messages API.
type AnthropicProvider struct {
	client anthropic.Client
	model  string
}

// NewAnthropicProvider creates an Anthropic-backed provider. baseURL may be
// empty for the official API.
func NewAnthropicProvider(apiKey, model, baseURL string) *AnthropicProvider {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &AnthropicProvider{
		client: anthropic.NewClient(opts...),
		model:  model,
	}
}

// Complete implements Provider.
func (p *AnthropicProvider) Complete(ctx context.Context, messages []Message, tools []ToolDef) (*Completion, error) {
	sdkMessages, systemPrompt, err := toAnthropicMessages(messages)
	if err != nil {
		return nil, err
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		Messages:  sdkMessages,
		MaxTokens: anthropicMaxTokens,
	}
	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{
			{Type: "text", Text: systemPrompt},
		}
	}
	if len(tools) > 0 {
		params.Tools = toAnthropicTools(tools)
	}

	logging.Debug("LLM", "Requesting message completion (model %s, %d messages, %d tools)",
		p.model, len(messages), len(tools))

	result, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic: message completion failed: %w", err)
	}

	completion := &Completion{}
	for _, block := range result.Content {
		switch content := block.AsAny().(type) {
		case anthropic.TextBlock:
			completion.Content += content.Text
		case anthropic.ToolUseBlock:
			argumentsJSON, err := json.Marshal(content.Input)
			if err != nil {
				return nil, fmt.Errorf("anthropic: failed to marshal tool use arguments: %w", err)
			}
			completion.ToolCalls = append(completion.ToolCalls, ToolCall{
				ID:        content.ID,
				Name:      content.Name,
				Arguments: string(argumentsJSON),
			})
		}
	}
	return completion, nil
}

// toAnthropicMessages converts the transcript to SDK message parameters.
// System messages are extracted into the separate system prompt; tool
// results become tool result blocks inside user messages, per the Anthropic
// message format.
func toAnthropicMessages(messages []Message) ([]anthropic.MessageParam, string, error) {
	var out []anthropic.MessageParam
	var systemPrompt string

	for _, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			systemPrompt += msg.Content
		case RoleUser:
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		case RoleAssistant:
			var contents []anthropic.ContentBlockParamUnion
			if msg.Content != "" {
				contents = append(contents, anthropic.NewTextBlock(msg.Content))
			}
			for _, call := range msg.ToolCalls {
				var inputJSON json.RawMessage
				if err := json.Unmarshal([]byte(call.Arguments), &inputJSON); err != nil {
					return nil, "", fmt.Errorf("anthropic: invalid tool call arguments for %s: %w", call.Name, err)
				}
				contents = append(contents, anthropic.NewToolUseBlock(call.ID, inputJSON, call.Name))
			}
			if len(contents) == 0 {
				return nil, "", errors.New("anthropic: empty assistant message")
			}
			out = append(out, anthropic.NewAssistantMessage(contents...))
		case RoleTool:
			out = append(out, anthropic.NewUserMessage(
				anthropic.NewToolResultBlock(msg.ToolCallID, msg.Content, false),
			))
		}
	}
	return out, systemPrompt, nil
}

func toAnthropicTools(tools []ToolDef) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, len(tools))
	for i, tool := range tools {
		var properties map[string]interface{}
		var required []string
		if props, ok := tool.InputSchema["properties"].(map[string]interface{}); ok {
			properties = props
		}
		if req, ok := tool.InputSchema["required"].([]string); ok {
			required = req
		} else if req, ok := tool.InputSchema["required"].([]interface{}); ok {
			for _, name := range req {
				if s, ok := name.(string); ok {
					required = append(required, s)
				}
			}
		}

		inputSchema := anthropic.ToolInputSchemaParam{
			Type:       "object",
			Properties: properties,
		}
		if len(required) > 0 {
			inputSchema.Required = required
		}

		out[i] = anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        tool.Name,
				Description: anthropic.String(tool.Description),
				InputSchema: inputSchema,
			},
		}
	}
	return out
}
