// Package dispatcher drives the multi-round tool-calling conversation
// between the completion capability and the registered services.
package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"mcphub/internal/config"
	"mcphub/internal/llm"
	"mcphub/internal/registry"
	"mcphub/pkg/logging"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"golang.org/x/sync/errgroup"
)

// ErrRoundLimit is returned when a query exceeds the configured maximum
// number of completion rounds. It is the safety valve against a model that
// keeps requesting further tool calls.
var ErrRoundLimit = errors.New("dispatch round limit exceeded")

// Dispatcher routes natural-language queries through the completion
// capability, executing requested tool calls against the owning services.
//
// Each query runs in its own querySession; concurrent queries share nothing
// but the registry. A tool failure is folded into the conversation as an
// error result so the model can retry, pick another tool or explain the
// failure. Only completion failures and the round limit are fatal to a
// query, and neither ever affects the registry or other queries.
type Dispatcher struct {
	registry *registry.ServiceRegistry
	provider llm.Provider
	cfg      config.DispatcherConfig
}

// NewDispatcher creates a dispatcher using the given completion provider.
func NewDispatcher(reg *registry.ServiceRegistry, provider llm.Provider, cfg config.DispatcherConfig) *Dispatcher {
	return &Dispatcher{
		registry: reg,
		provider: provider,
		cfg:      cfg,
	}
}

// querySession is the per-query state: the transcript and the trace
// stream. It lives for exactly one Dispatch call; the query's lifecycle
// (awaiting completion, executing tools, done or failed) is carried by the
// control flow of Dispatch itself.
type querySession struct {
	id       string
	messages []llm.Message
	sink     TraceSink
	emitMu   sync.Mutex
}

// emit serializes delivery so concurrently finishing tool calls never hand
// the sink interleaved events.
func (qs *querySession) emit(event TraceEvent) {
	if qs.sink == nil {
		return
	}
	event.Timestamp = time.Now()
	qs.emitMu.Lock()
	defer qs.emitMu.Unlock()
	qs.sink.Emit(event)
}

// Dispatch answers one query, streaming progress to sink if one is given.
//
// The tool catalog is snapshotted once at the start of the query; services
// that disconnect mid-query surface as per-call errors, not catalog
// changes. Cancelling ctx stops the loop and trace forwarding; an in-flight
// tool call is left to finish on its own and its late result is discarded.
func (d *Dispatcher) Dispatch(ctx context.Context, query string, sink TraceSink) (string, error) {
	qs := &querySession{
		id:   uuid.NewString(),
		sink: sink,
	}

	catalog := registry.BuildCatalog(d.registry.Snapshot())
	tools := toToolDefs(catalog)
	qs.messages = []llm.Message{
		{Role: llm.RoleSystem, Content: systemPrompt(catalog)},
		{Role: llm.RoleUser, Content: query},
	}

	logging.Info("Dispatcher", "Query %s started with %d tools available", qs.id, len(tools))

	for round := 1; round <= d.cfg.MaxRounds; round++ {
		if err := ctx.Err(); err != nil {
			return "", fmt.Errorf("query %s cancelled: %w", qs.id, err)
		}

		logging.Debug("Dispatcher", "Query %s round %d/%d", qs.id, round, d.cfg.MaxRounds)

		completion, err := d.provider.Complete(ctx, qs.messages, tools)
		if err != nil {
			return "", fmt.Errorf("query %s: completion failed: %w", qs.id, err)
		}

		if len(completion.ToolCalls) == 0 {
			logging.Info("Dispatcher", "Query %s answered after %d rounds", qs.id, round)
			return completion.Content, nil
		}

		if completion.Content != "" {
			qs.emit(TraceEvent{
				Type:          TraceThinking,
				CorrelationID: qs.id,
				Text:          completion.Content,
			})
		}
		qs.messages = append(qs.messages, llm.Message{
			Role:      llm.RoleAssistant,
			Content:   completion.Content,
			ToolCalls: completion.ToolCalls,
		})

		results := d.executeRound(ctx, qs, completion.ToolCalls)
		qs.messages = append(qs.messages, results...)
	}

	return "", fmt.Errorf("query %s: %w (max %d rounds)", qs.id, ErrRoundLimit, d.cfg.MaxRounds)
}

// executeRound runs all tool calls of one round concurrently and returns
// their results in request order. Every call produces exactly one result
// message; failures become error results rather than aborting the round.
func (d *Dispatcher) executeRound(ctx context.Context, qs *querySession, calls []llm.ToolCall) []llm.Message {
	results := make([]llm.Message, len(calls))

	var g errgroup.Group
	for i, call := range calls {
		g.Go(func() error {
			correlationID := call.ID
			if correlationID == "" {
				correlationID = uuid.NewString()
			}

			qs.emit(TraceEvent{
				Type:          TraceToolCallStart,
				CorrelationID: correlationID,
				ToolName:      call.Name,
				Arguments:     call.Arguments,
			})

			content, err := d.executeCall(ctx, call)
			complete := TraceEvent{
				Type:          TraceToolCallComplete,
				CorrelationID: correlationID,
				ToolName:      call.Name,
			}
			if err != nil {
				content = fmt.Sprintf("Error: %v", err)
				complete.Error = content
				logging.Warn("Dispatcher", "Query %s tool call %s failed: %v", qs.id, call.Name, err)
			} else {
				complete.Result = content
			}
			qs.emit(complete)

			results[i] = llm.Message{
				Role:       llm.RoleTool,
				Content:    content,
				ToolCallID: call.ID,
			}
			return nil
		})
	}
	g.Wait()

	return results
}

// executeCall resolves and runs one tool call under the configured timeout.
// The transport offers no abort primitive, so on timeout the call is left
// running and its eventual result is discarded.
func (d *Dispatcher) executeCall(ctx context.Context, call llm.ToolCall) (string, error) {
	session, toolName, err := d.registry.SessionForTool(call.Name)
	if err != nil {
		return "", err
	}

	var args map[string]interface{}
	if strings.TrimSpace(call.Arguments) != "" {
		if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
			return "", fmt.Errorf("unable to parse arguments for tool %s: %w", call.Name, err)
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, d.cfg.ToolCallTimeout)
	defer cancel()

	type callResult struct {
		result *mcp.CallToolResult
		err    error
	}
	resultCh := make(chan callResult, 1)
	go func() {
		result, err := session.CallTool(callCtx, toolName, args)
		resultCh <- callResult{result: result, err: err}
	}()

	select {
	case res := <-resultCh:
		if res.err != nil {
			return "", fmt.Errorf("tool %s failed: %w", call.Name, res.err)
		}
		return flattenResult(call.Name, res.result)
	case <-callCtx.Done():
		return "", fmt.Errorf("tool %s timed out after %s: %w", call.Name, d.cfg.ToolCallTimeout, callCtx.Err())
	}
}

// flattenResult extracts the textual payload of a tool result.
func flattenResult(toolName string, result *mcp.CallToolResult) (string, error) {
	if result == nil {
		return "", fmt.Errorf("tool %s returned no result", toolName)
	}

	var parts []string
	for _, content := range result.Content {
		if textContent, ok := content.(mcp.TextContent); ok {
			parts = append(parts, textContent.Text)
		}
	}
	text := strings.Join(parts, "\n")

	if result.IsError {
		if text == "" {
			text = "unknown tool error"
		}
		return "", fmt.Errorf("tool %s reported an error: %s", toolName, text)
	}
	if text == "" {
		return fmt.Sprintf("Tool %s executed, but returned no text content.", toolName), nil
	}
	return text, nil
}

// toToolDefs converts the aggregated catalog to provider tool definitions.
func toToolDefs(catalog []registry.AggregatedTool) []llm.ToolDef {
	defs := make([]llm.ToolDef, len(catalog))
	for i, entry := range catalog {
		schema := map[string]interface{}{"type": "object"}
		if entry.Tool.InputSchema.Type != "" {
			schema["type"] = entry.Tool.InputSchema.Type
		}
		if len(entry.Tool.InputSchema.Properties) > 0 {
			schema["properties"] = entry.Tool.InputSchema.Properties
		}
		if len(entry.Tool.InputSchema.Required) > 0 {
			schema["required"] = entry.Tool.InputSchema.Required
		}
		defs[i] = llm.ToolDef{
			Name:        entry.QualifiedName,
			Description: entry.Tool.Description,
			InputSchema: schema,
		}
	}
	return defs
}
