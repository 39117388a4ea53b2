package mcpclient

import (
	"fmt"

	"mcphub/internal/config"
)

// NewSession creates the appropriate Session implementation for a
// service declaration. The session is not connected until Initialize.
func NewSession(svc config.ServiceConfig) (Session, error) {
	switch svc.Transport {
	case config.TransportSSE:
		if svc.URL == "" {
			return nil, fmt.Errorf("service %s: sse transport requires a url", svc.Name)
		}
		return NewSSESession(svc.URL), nil
	case config.TransportStreamableHTTP:
		if svc.URL == "" {
			return nil, fmt.Errorf("service %s: streamable-http transport requires a url", svc.Name)
		}
		return NewStreamableHTTPSession(svc.URL), nil
	case config.TransportStdio:
		if svc.Command == "" {
			return nil, fmt.Errorf("service %s: stdio transport requires a command", svc.Name)
		}
		return NewStdioSession(svc.Command, svc.Args, svc.Env), nil
	default:
		return nil, fmt.Errorf("service %s: unsupported transport %q", svc.Name, svc.Transport)
	}
}
