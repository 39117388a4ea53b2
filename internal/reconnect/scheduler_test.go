package reconnect

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"mcphub/internal/config"
	"mcphub/internal/mcpclient"
	"mcphub/internal/registry"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSession struct {
	tools []mcp.Tool
}

func (s *stubSession) Initialize(ctx context.Context) error { return nil }
func (s *stubSession) Close() error                         { return nil }

func (s *stubSession) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	return s.tools, nil
}

func (s *stubSession) CallTool(ctx context.Context, name string, args map[string]interface{}) (*mcp.CallToolResult, error) {
	return &mcp.CallToolResult{}, nil
}

func (s *stubSession) Ping(ctx context.Context) error { return nil }

// flakyDialer fails every dial until the failure budget is spent.
type flakyDialer struct {
	mu        sync.Mutex
	failures  int
	dials     int
	nextTools []mcp.Tool
}

func (d *flakyDialer) dial(svc config.ServiceConfig) (mcpclient.Session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if d.dials <= d.failures {
		return nil, errors.New("connection refused")
	}
	return &stubSession{tools: d.nextTools}, nil
}

func (d *flakyDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func TestScheduler_ReconnectsDisconnectedService(t *testing.T) {
	dialer := &flakyDialer{failures: 3, nextTools: []mcp.Tool{{Name: "get_weather"}}}
	reg := registry.NewServiceRegistry(dialer.dial)

	// Initial registration fails, leaving a disconnected record behind.
	_, err := reg.Register(context.Background(), config.ServiceConfig{
		Name:      "weather",
		Transport: config.TransportSSE,
		URL:       "http://localhost:8001/sse",
	})
	require.Error(t, err)

	scheduler := NewScheduler(reg, config.HealthConfig{ReconnectInterval: 10 * time.Millisecond})
	require.NoError(t, scheduler.Start(t.Context()))
	defer scheduler.Stop()

	require.Eventually(t, func() bool {
		snapshot := reg.Snapshot()
		return len(snapshot) == 1 && snapshot[0].Status == registry.StatusConnected
	}, 2*time.Second, 5*time.Millisecond, "service was never reconnected")

	// Ticks before the endpoint came back each count as one retry.
	assert.GreaterOrEqual(t, dialer.dialCount(), 4)

	catalog := registry.BuildCatalog(reg.Snapshot())
	require.Len(t, catalog, 1)
	assert.Equal(t, "weather_get_weather", catalog[0].QualifiedName)
}

func TestScheduler_StopImmediatelyAfterStart(t *testing.T) {
	dialer := &flakyDialer{}
	reg := registry.NewServiceRegistry(dialer.dial)

	// Stop may run before the loop goroutine is first scheduled; it must
	// neither panic nor hang.
	for i := 0; i < 100; i++ {
		scheduler := NewScheduler(reg, config.HealthConfig{ReconnectInterval: time.Minute})
		require.NoError(t, scheduler.Start(context.Background()))
		scheduler.Stop()
	}
}

func TestScheduler_LeavesConnectedServicesAlone(t *testing.T) {
	dialer := &flakyDialer{nextTools: []mcp.Tool{{Name: "set_ac"}}}
	reg := registry.NewServiceRegistry(dialer.dial)

	_, err := reg.Register(context.Background(), config.ServiceConfig{
		Name:      "vehicle",
		Transport: config.TransportSSE,
		URL:       "http://localhost:8002/sse",
	})
	require.NoError(t, err)

	scheduler := NewScheduler(reg, config.HealthConfig{ReconnectInterval: 10 * time.Millisecond})
	require.NoError(t, scheduler.Start(t.Context()))

	time.Sleep(60 * time.Millisecond)
	scheduler.Stop()

	assert.Equal(t, 1, dialer.dialCount(), "a connected service must not be redialed")
}
