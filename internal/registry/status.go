package registry

// ServiceStatus describes where a service sits in its connection lifecycle.
//
// Allowed transitions:
//
//	Connecting → Connected | Disconnected
//	Connected  → Degraded | Disconnected
//	Degraded   → Connected | Disconnected
//	Disconnected → ReconnectPending → Connecting
//
// The ReconnectPending → Connecting edge is driven only by the reconnection
// scheduler so that a record never has two connection attempts in flight.
type ServiceStatus string

const (
	// StatusConnecting means a connection attempt is currently in flight.
	StatusConnecting ServiceStatus = "connecting"

	// StatusConnected means the session is live and probes are succeeding.
	StatusConnected ServiceStatus = "connected"

	// StatusDegraded means the session is still held but the most recent
	// probe failed. The service keeps serving tool calls until the
	// heartbeat time budget runs out.
	StatusDegraded ServiceStatus = "degraded"

	// StatusDisconnected means the session has been closed and the service
	// is waiting for the reconnection scheduler to pick it up.
	StatusDisconnected ServiceStatus = "disconnected"

	// StatusReconnectPending means the reconnection scheduler has claimed
	// the service for its next connection attempt.
	StatusReconnectPending ServiceStatus = "reconnect_pending"
)

// String returns the status as a plain string.
func (s ServiceStatus) String() string {
	return string(s)
}

// Healthy reports whether a service in this status holds a live session and
// may serve tool calls.
func (s ServiceStatus) Healthy() bool {
	return s == StatusConnected || s == StatusDegraded
}
