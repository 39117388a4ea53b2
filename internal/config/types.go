package config

import "time"

// Transport identifies how a session to a tool server is established.
type Transport string

const (
	// TransportSSE connects over Server-Sent Events.
	TransportSSE Transport = "sse"
	// TransportStreamableHTTP connects over streamable HTTP.
	TransportStreamableHTTP Transport = "streamable-http"
	// TransportStdio spawns a local command and speaks over stdio.
	TransportStdio Transport = "stdio"
)

// Config is the top-level configuration structure for mcphub.
type Config struct {
	Health     HealthConfig     `yaml:"health"`
	Dispatcher DispatcherConfig `yaml:"dispatcher"`
	LLM        LLMConfig        `yaml:"llm"`
	Services   []ServiceConfig  `yaml:"services"`
}

// HealthConfig tunes the probe and reconnection loops. Detection
// sensitivity (heartbeat) and retry aggressiveness (reconnect) are
// configured independently.
type HealthConfig struct {
	// HeartbeatInterval is the pause between probe sweeps.
	HeartbeatInterval time.Duration `yaml:"heartbeatInterval,omitempty"`
	// HeartbeatTimeout is the time budget since the last successful
	// probe after which a service is considered disconnected.
	HeartbeatTimeout time.Duration `yaml:"heartbeatTimeout,omitempty"`
	// ProbeTimeout bounds a single liveness probe.
	ProbeTimeout time.Duration `yaml:"probeTimeout,omitempty"`
	// ReconnectInterval is the pause between reconnection sweeps.
	ReconnectInterval time.Duration `yaml:"reconnectInterval,omitempty"`
}

// DispatcherConfig tunes the query dispatch loop.
type DispatcherConfig struct {
	// MaxRounds caps the number of completion rounds per query.
	MaxRounds int `yaml:"maxRounds,omitempty"`
	// ToolCallTimeout bounds one remote tool execution.
	ToolCallTimeout time.Duration `yaml:"toolCallTimeout,omitempty"`
}

// LLMConfig selects and configures the completion backend.
type LLMConfig struct {
	// Provider is one of "openai", "anthropic", "openai_compatible".
	Provider string `yaml:"provider,omitempty"`
	Model    string `yaml:"model,omitempty"`
	// Token falls back to the provider's conventional environment
	// variable when empty.
	Token string `yaml:"token,omitempty"`
	// BaseURL is required for openai_compatible and optional otherwise.
	BaseURL string `yaml:"baseUrl,omitempty"`
}

// ServiceConfig declares one tool server to register at startup.
type ServiceConfig struct {
	// Name is the service identity. When empty it is derived from the
	// endpoint host.
	Name      string    `yaml:"name,omitempty"`
	Transport Transport `yaml:"transport,omitempty"`
	// URL is the endpoint for sse and streamable-http transports.
	URL string `yaml:"url,omitempty"`
	// Command and Args describe the process for stdio transports.
	Command string            `yaml:"command,omitempty"`
	Args    []string          `yaml:"args,omitempty"`
	Env     map[string]string `yaml:"env,omitempty"`
}

// Endpoint returns the identity-bearing endpoint string for the service:
// the URL for network transports, the command line for stdio.
func (s ServiceConfig) Endpoint() string {
	if s.URL != "" {
		return s.URL
	}
	endpoint := s.Command
	for _, arg := range s.Args {
		endpoint += " " + arg
	}
	return endpoint
}

// GetDefaultConfig returns the default configuration for mcphub.
// The timing defaults follow the conventional 60s/180s heartbeat scheme.
func GetDefaultConfig() Config {
	return Config{
		Health: HealthConfig{
			HeartbeatInterval: 60 * time.Second,
			HeartbeatTimeout:  180 * time.Second,
			ProbeTimeout:      10 * time.Second,
			ReconnectInterval: 60 * time.Second,
		},
		Dispatcher: DispatcherConfig{
			MaxRounds:       25,
			ToolCallTimeout: 30 * time.Second,
		},
		LLM: LLMConfig{
			Provider: "openai",
		},
	}
}
