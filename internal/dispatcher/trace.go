package dispatcher

import (
	"time"
)

// TraceEventType identifies one kind of streamed progress event.
type TraceEventType string

const (
	// TraceThinking carries reasoning text the model produced before
	// requesting tool calls.
	TraceThinking TraceEventType = "thinking"

	// TraceToolCallStart marks the start of one tool execution.
	TraceToolCallStart TraceEventType = "tool_call_start"

	// TraceToolCallComplete marks the end of one tool execution, carrying
	// either the result or an error payload.
	TraceToolCallComplete TraceEventType = "tool_call_complete"
)

// TraceEvent is one unit of streamed progress information for a query.
//
// Events for one query are delivered in causal order: a start always
// precedes its complete, and reasoning precedes the tool calls it requested.
// When calls of one round interleave, consumers must correlate start and
// complete pairs by CorrelationID, never by position.
type TraceEvent struct {
	Type          TraceEventType
	CorrelationID string
	Timestamp     time.Time

	// Text carries the reasoning for thinking events.
	Text string

	// ToolName and Arguments describe the call for tool events.
	ToolName  string
	Arguments string

	// Result and Error carry the outcome of tool_call_complete events.
	// Exactly one of them is set.
	Result string
	Error  string
}

// TraceSink receives the ordered trace event stream of one query. Emit is
// called from the dispatcher's goroutines; implementations that hand events
// to other goroutines must do their own buffering.
type TraceSink interface {
	Emit(event TraceEvent)
}

// TraceSinkFunc adapts a plain function to the TraceSink interface.
type TraceSinkFunc func(TraceEvent)

// Emit implements TraceSink.
func (f TraceSinkFunc) Emit(event TraceEvent) {
	f(event)
}
