package app

import (
	"context"
	"sync"
	"testing"
	"time"

	"mcphub/internal/config"
	"mcphub/internal/dispatcher"
	"mcphub/internal/llm"
	"mcphub/internal/mcpclient"
	"mcphub/internal/registry"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type hubSession struct {
	mu    sync.Mutex
	tools []mcp.Tool
	calls int
}

func (s *hubSession) Initialize(ctx context.Context) error { return nil }
func (s *hubSession) Close() error                         { return nil }
func (s *hubSession) Ping(ctx context.Context) error       { return nil }

func (s *hubSession) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	return s.tools, nil
}

func (s *hubSession) CallTool(ctx context.Context, name string, args map[string]interface{}) (*mcp.CallToolResult, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: "AC is now on"}},
	}, nil
}

type answerProvider struct {
	mu    sync.Mutex
	round int
}

func (p *answerProvider) Complete(ctx context.Context, messages []llm.Message, tools []llm.ToolDef) (*llm.Completion, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.round++
	if p.round == 1 {
		return &llm.Completion{
			ToolCalls: []llm.ToolCall{{ID: "c1", Name: "vehicle_set_ac", Arguments: `{"state":"on"}`}},
		}, nil
	}
	return &llm.Completion{Content: "Done, the AC is on."}, nil
}

func testConfig() config.Config {
	cfg := config.GetDefaultConfig()
	cfg.Health.HeartbeatInterval = 10 * time.Millisecond
	cfg.Health.ReconnectInterval = 10 * time.Millisecond
	cfg.Services = []config.ServiceConfig{
		{Name: "vehicle", Transport: config.TransportSSE, URL: "http://localhost:8002/sse"},
	}
	return cfg
}

func TestApp_EndToEndQuery(t *testing.T) {
	session := &hubSession{tools: []mcp.Tool{{Name: "set_ac"}}}
	hub, err := New(testConfig(), Options{
		Dialer:   func(svc config.ServiceConfig) (mcpclient.Session, error) { return session, nil },
		Provider: &answerProvider{},
	})
	require.NoError(t, err)

	require.NoError(t, hub.Start(context.Background(), ""))
	defer hub.Stop()

	services := hub.ListServices()
	require.Len(t, services, 1)
	assert.Equal(t, "vehicle", services[0].ID)
	assert.Equal(t, registry.StatusConnected, services[0].Status)

	var events []dispatcher.TraceEvent
	var eventsMu sync.Mutex
	sink := dispatcher.TraceSinkFunc(func(event dispatcher.TraceEvent) {
		eventsMu.Lock()
		events = append(events, event)
		eventsMu.Unlock()
	})

	answer, err := hub.SubmitQuery(context.Background(), "turn on AC", sink)
	require.NoError(t, err)
	assert.Equal(t, "Done, the AC is on.", answer)
	assert.Equal(t, 1, session.calls)

	eventsMu.Lock()
	defer eventsMu.Unlock()
	require.Len(t, events, 2)
	assert.Equal(t, dispatcher.TraceToolCallStart, events[0].Type)
	assert.Equal(t, dispatcher.TraceToolCallComplete, events[1].Type)
}

func TestApp_RuntimeRegisterAndUnregister(t *testing.T) {
	session := &hubSession{tools: []mcp.Tool{{Name: "get_weather"}}}
	cfg := testConfig()
	cfg.Services = nil

	hub, err := New(cfg, Options{
		Dialer:   func(svc config.ServiceConfig) (mcpclient.Session, error) { return session, nil },
		Provider: &answerProvider{},
	})
	require.NoError(t, err)
	require.NoError(t, hub.Start(context.Background(), ""))
	defer hub.Stop()

	status, err := hub.RegisterService(context.Background(), config.ServiceConfig{
		Name:      "weather",
		Transport: config.TransportSSE,
		URL:       "http://localhost:8001/sse",
	})
	require.NoError(t, err)
	assert.Equal(t, registry.StatusConnected, status)
	require.Len(t, hub.ListServices(), 1)

	require.NoError(t, hub.UnregisterService("weather"))
	assert.Empty(t, hub.ListServices())

	err = hub.UnregisterService("weather")
	assert.ErrorIs(t, err, registry.ErrNotFound)
}
