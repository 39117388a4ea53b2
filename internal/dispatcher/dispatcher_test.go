package dispatcher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"mcphub/internal/config"
	"mcphub/internal/llm"
	"mcphub/internal/mcpclient"
	"mcphub/internal/registry"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// toolSession fakes one service's session, recording every tool call.
type toolSession struct {
	mu      sync.Mutex
	tools   []mcp.Tool
	results map[string]string
	hang    bool
	calls   []string
}

func (s *toolSession) Initialize(ctx context.Context) error { return nil }
func (s *toolSession) Close() error                         { return nil }
func (s *toolSession) Ping(ctx context.Context) error       { return nil }

func (s *toolSession) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	return s.tools, nil
}

func (s *toolSession) CallTool(ctx context.Context, name string, args map[string]interface{}) (*mcp.CallToolResult, error) {
	s.mu.Lock()
	s.calls = append(s.calls, name)
	hang := s.hang
	result := s.results[name]
	s.mu.Unlock()

	if hang {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: result}},
	}, nil
}

func (s *toolSession) callNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

// scriptedProvider returns canned completions round by round, capturing the
// transcript it was handed each time.
type scriptedProvider struct {
	mu          sync.Mutex
	completions []*llm.Completion
	err         error
	transcripts [][]llm.Message
}

func (p *scriptedProvider) Complete(ctx context.Context, messages []llm.Message, tools []llm.ToolDef) (*llm.Completion, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	p.transcripts = append(p.transcripts, append([]llm.Message(nil), messages...))
	round := len(p.transcripts) - 1
	if round >= len(p.completions) {
		round = len(p.completions) - 1
	}
	return p.completions[round], nil
}

// collectSink gathers the trace stream of one query.
type collectSink struct {
	mu     sync.Mutex
	events []TraceEvent
}

func (c *collectSink) Emit(event TraceEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
}

func (c *collectSink) all() []TraceEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]TraceEvent(nil), c.events...)
}

func registerServices(t *testing.T, sessions map[string]*toolSession) *registry.ServiceRegistry {
	t.Helper()
	reg := registry.NewServiceRegistry(func(svc config.ServiceConfig) (mcpclient.Session, error) {
		return sessions[svc.Name], nil
	})
	for name := range sessions {
		_, err := reg.Register(context.Background(), config.ServiceConfig{
			Name:      name,
			Transport: config.TransportSSE,
			URL:       "http://localhost:8001/" + name,
		})
		require.NoError(t, err)
	}
	return reg
}

func dispatcherConfig() config.DispatcherConfig {
	return config.DispatcherConfig{MaxRounds: 5, ToolCallTimeout: time.Second}
}

func TestDispatch_RoutesToolCallToOwningService(t *testing.T) {
	weather := &toolSession{
		tools:   []mcp.Tool{{Name: "get_weather", Description: "Current weather for a city."}},
		results: map[string]string{"get_weather": "sunny"},
	}
	vehicle := &toolSession{
		tools:   []mcp.Tool{{Name: "set_ac", Description: "Turn the air conditioning on or off."}},
		results: map[string]string{"set_ac": "AC is now on"},
	}
	reg := registerServices(t, map[string]*toolSession{"weather": weather, "vehicle": vehicle})

	provider := &scriptedProvider{completions: []*llm.Completion{
		{ToolCalls: []llm.ToolCall{{ID: "call-1", Name: "vehicle_set_ac", Arguments: `{"state":"on"}`}}},
		{Content: "The AC has been turned on."},
	}}

	d := NewDispatcher(reg, provider, dispatcherConfig())
	answer, err := d.Dispatch(context.Background(), "turn on AC", nil)
	require.NoError(t, err)
	assert.Equal(t, "The AC has been turned on.", answer)

	// Exactly one call, routed to the vehicle service, never to weather.
	assert.Equal(t, []string{"set_ac"}, vehicle.callNames())
	assert.Empty(t, weather.callNames())

	// The tool result was folded into the follow-up round.
	require.Len(t, provider.transcripts, 2)
	last := provider.transcripts[1][len(provider.transcripts[1])-1]
	assert.Equal(t, llm.RoleTool, last.Role)
	assert.Equal(t, "AC is now on", last.Content)
	assert.Equal(t, "call-1", last.ToolCallID)
}

func TestDispatch_DirectAnswerWithoutTools(t *testing.T) {
	reg := registerServices(t, map[string]*toolSession{})
	provider := &scriptedProvider{completions: []*llm.Completion{
		{Content: "Two plus two is four."},
	}}

	d := NewDispatcher(reg, provider, dispatcherConfig())
	answer, err := d.Dispatch(context.Background(), "what is 2+2?", nil)
	require.NoError(t, err)
	assert.Equal(t, "Two plus two is four.", answer)
}

func TestDispatch_RoundLimit(t *testing.T) {
	weather := &toolSession{
		tools:   []mcp.Tool{{Name: "get_weather"}},
		results: map[string]string{"get_weather": "sunny"},
	}
	reg := registerServices(t, map[string]*toolSession{"weather": weather})

	// The model keeps asking for the same tool forever.
	provider := &scriptedProvider{completions: []*llm.Completion{
		{ToolCalls: []llm.ToolCall{{ID: "c", Name: "weather_get_weather", Arguments: "{}"}}},
	}}

	d := NewDispatcher(reg, provider, dispatcherConfig())
	_, err := d.Dispatch(context.Background(), "weather forever", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRoundLimit)
	assert.Len(t, weather.callNames(), 5)
}

func TestDispatch_ToolTimeoutFoldsIntoConversation(t *testing.T) {
	weather := &toolSession{
		tools: []mcp.Tool{{Name: "get_weather"}},
		hang:  true,
	}
	reg := registerServices(t, map[string]*toolSession{"weather": weather})

	provider := &scriptedProvider{completions: []*llm.Completion{
		{ToolCalls: []llm.ToolCall{{ID: "c1", Name: "weather_get_weather", Arguments: "{}"}}},
		{Content: "The weather service is not responding right now."},
	}}

	sink := &collectSink{}
	d := NewDispatcher(reg, provider, config.DispatcherConfig{
		MaxRounds:       5,
		ToolCallTimeout: 20 * time.Millisecond,
	})

	answer, err := d.Dispatch(context.Background(), "weather in Berlin", sink)
	require.NoError(t, err, "a tool timeout must not terminate the dispatcher")
	assert.Equal(t, "The weather service is not responding right now.", answer)

	// The timeout surfaced as an error result in the conversation.
	require.Len(t, provider.transcripts, 2)
	last := provider.transcripts[1][len(provider.transcripts[1])-1]
	assert.Equal(t, llm.RoleTool, last.Role)
	assert.Contains(t, last.Content, "timed out")

	// And as an error payload on the complete event.
	events := sink.all()
	require.Len(t, events, 2)
	assert.Equal(t, TraceToolCallStart, events[0].Type)
	assert.Equal(t, TraceToolCallComplete, events[1].Type)
	assert.Contains(t, events[1].Error, "timed out")
}

func TestDispatch_UnknownToolFoldsIntoConversation(t *testing.T) {
	reg := registerServices(t, map[string]*toolSession{})
	provider := &scriptedProvider{completions: []*llm.Completion{
		{ToolCalls: []llm.ToolCall{{ID: "c1", Name: "nosuch_tool", Arguments: "{}"}}},
		{Content: "I don't have a tool for that."},
	}}

	d := NewDispatcher(reg, provider, dispatcherConfig())
	answer, err := d.Dispatch(context.Background(), "do the impossible", nil)
	require.NoError(t, err)
	assert.Equal(t, "I don't have a tool for that.", answer)

	last := provider.transcripts[1][len(provider.transcripts[1])-1]
	assert.Contains(t, last.Content, "tool not found")
}

func TestDispatch_CompletionFailureIsFatal(t *testing.T) {
	reg := registerServices(t, map[string]*toolSession{})
	provider := &scriptedProvider{err: errors.New("service unavailable")}

	d := NewDispatcher(reg, provider, dispatcherConfig())
	_, err := d.Dispatch(context.Background(), "anything", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "completion failed")
}

func TestDispatch_TraceOrdering(t *testing.T) {
	weather := &toolSession{
		tools:   []mcp.Tool{{Name: "get_weather"}, {Name: "get_forecast"}},
		results: map[string]string{"get_weather": "sunny", "get_forecast": "rain tomorrow"},
	}
	reg := registerServices(t, map[string]*toolSession{"weather": weather})

	provider := &scriptedProvider{completions: []*llm.Completion{
		{
			Content: "I need both current weather and the forecast.",
			ToolCalls: []llm.ToolCall{
				{ID: "c1", Name: "weather_get_weather", Arguments: "{}"},
				{ID: "c2", Name: "weather_get_forecast", Arguments: "{}"},
			},
		},
		{Content: "Sunny today, rain tomorrow."},
	}}

	sink := &collectSink{}
	d := NewDispatcher(reg, provider, dispatcherConfig())
	_, err := d.Dispatch(context.Background(), "weather today and tomorrow", sink)
	require.NoError(t, err)

	events := sink.all()
	require.Len(t, events, 5)

	// Reasoning precedes the tool calls it requested.
	assert.Equal(t, TraceThinking, events[0].Type)

	// Start precedes complete for each correlation id; interleaving across
	// calls is allowed.
	started := map[string]bool{}
	completed := map[string]bool{}
	for _, event := range events[1:] {
		switch event.Type {
		case TraceToolCallStart:
			assert.False(t, started[event.CorrelationID], "duplicate start for %s", event.CorrelationID)
			started[event.CorrelationID] = true
		case TraceToolCallComplete:
			assert.True(t, started[event.CorrelationID], "complete before start for %s", event.CorrelationID)
			assert.False(t, completed[event.CorrelationID], "duplicate complete for %s", event.CorrelationID)
			completed[event.CorrelationID] = true
		}
	}
	assert.Len(t, started, 2)
	assert.Len(t, completed, 2)
}

func TestDispatch_Cancellation(t *testing.T) {
	weather := &toolSession{
		tools: []mcp.Tool{{Name: "get_weather"}},
		hang:  true,
	}
	reg := registerServices(t, map[string]*toolSession{"weather": weather})

	provider := &scriptedProvider{completions: []*llm.Completion{
		{ToolCalls: []llm.ToolCall{{ID: "c1", Name: "weather_get_weather", Arguments: "{}"}}},
	}}

	ctx, cancel := context.WithCancel(context.Background())
	d := NewDispatcher(reg, provider, config.DispatcherConfig{
		MaxRounds:       5,
		ToolCallTimeout: 10 * time.Second,
	})

	done := make(chan error, 1)
	go func() {
		_, err := d.Dispatch(ctx, "weather", nil)
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("dispatch did not stop after cancellation")
	}
}
