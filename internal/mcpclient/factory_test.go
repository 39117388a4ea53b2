package mcpclient

import (
	"testing"

	"mcphub/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSession(t *testing.T) {
	tests := []struct {
		name     string
		svc      config.ServiceConfig
		wantType interface{}
		wantErr  string
	}{
		{
			name:     "sse",
			svc:      config.ServiceConfig{Name: "a", Transport: config.TransportSSE, URL: "http://localhost:8080/sse"},
			wantType: &SSESession{},
		},
		{
			name:     "streamable-http",
			svc:      config.ServiceConfig{Name: "a", Transport: config.TransportStreamableHTTP, URL: "http://localhost:8080/mcp"},
			wantType: &StreamableHTTPSession{},
		},
		{
			name:     "stdio",
			svc:      config.ServiceConfig{Name: "a", Transport: config.TransportStdio, Command: "server", Args: []string{"-v"}},
			wantType: &StdioSession{},
		},
		{
			name:    "sse without url",
			svc:     config.ServiceConfig{Name: "a", Transport: config.TransportSSE},
			wantErr: "requires a url",
		},
		{
			name:    "stdio without command",
			svc:     config.ServiceConfig{Name: "a", Transport: config.TransportStdio},
			wantErr: "requires a command",
		},
		{
			name:    "unsupported",
			svc:     config.ServiceConfig{Name: "a", Transport: "smoke-signals"},
			wantErr: "unsupported transport",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			session, err := NewSession(tt.svc)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.wantType, session)
		})
	}
}
