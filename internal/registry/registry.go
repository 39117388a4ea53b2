package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"mcphub/internal/config"
	"mcphub/internal/mcpclient"
	"mcphub/pkg/logging"

	"github.com/mark3labs/mcp-go/mcp"
)

// Sentinel errors returned by registry operations. Callers match them with
// errors.Is.
var (
	// ErrConflict indicates a register call for a service that is already
	// connected to a different endpoint.
	ErrConflict = errors.New("service already registered with a different endpoint")

	// ErrNotFound indicates the requested service is not registered.
	ErrNotFound = errors.New("service not found")

	// ErrToolNotFound indicates no registered service advertises the tool.
	ErrToolNotFound = errors.New("tool not found")

	// ErrServiceUnavailable indicates the service owning the tool is not
	// currently holding a live session.
	ErrServiceUnavailable = errors.New("service unavailable")
)

// Dialer opens an unconnected session for a service declaration. It exists
// as an indirection point so tests can substitute fake sessions.
type Dialer func(svc config.ServiceConfig) (mcpclient.Session, error)

// serviceRecord is the registry-owned state for one service. All fields are
// protected by the registry mutex; the session and tools fields are only
// replaced, never mutated in place, so snapshots can hand out copies safely.
type serviceRecord struct {
	config config.ServiceConfig
	status ServiceStatus

	// session is non-nil exactly while status is Connected or Degraded.
	session mcpclient.Session

	// tools holds the catalog fetched on the last successful connect. It
	// survives a disconnect so tool lookups can distinguish an unavailable
	// owner from an unknown tool.
	tools []mcp.Tool

	lastSuccessAt       time.Time
	lastProbeAt         time.Time
	consecutiveFailures int
}

// ServiceView is an immutable copy of a service record handed to readers.
type ServiceView struct {
	ID                  string
	Transport           config.Transport
	Endpoint            string
	Status              ServiceStatus
	Tools               []mcp.Tool
	LastSuccessAt       time.Time
	LastProbeAt         time.Time
	ConsecutiveFailures int
}

// ProbeTarget pairs a service id with its live session for the health
// monitor. The session reference stays valid even if the registry closes it
// concurrently; a probe against a closed session simply fails.
type ProbeTarget struct {
	ID      string
	Session mcpclient.Session
}

// ServiceRegistry is the authoritative, concurrency-safe map from service
// identity to connection state, session handle and tool catalog.
//
// The registry exclusively owns each record and its session. The health
// monitor, the reconnection scheduler and the register/unregister operations
// are the only writers, and every status/session transition happens inside
// the registry mutex so no reader ever observes a half-applied transition.
// Network I/O (dialing, handshakes, tool listing) always happens outside the
// lock; records in flight are parked in Connecting so concurrent writers
// skip them.
type ServiceRegistry struct {
	mu       sync.RWMutex
	services map[string]*serviceRecord
	dial     Dialer
}

// NewServiceRegistry creates an empty registry. A nil dialer defaults to
// opening real sessions per the service's configured transport.
func NewServiceRegistry(dial Dialer) *ServiceRegistry {
	if dial == nil {
		dial = mcpclient.NewSession
	}
	return &ServiceRegistry{
		services: make(map[string]*serviceRecord),
		dial:     dial,
	}
}

// Register opens a session to the service and records it.
//
// On success the service is Connected with a freshly fetched tool catalog.
// On failure the service is recorded as Disconnected so the reconnection
// scheduler retries it; the error is still returned to the caller.
//
// Registering a service that is already connected to the same endpoint is an
// idempotent no-op. Registering it while connected to a different endpoint
// fails with ErrConflict.
func (r *ServiceRegistry) Register(ctx context.Context, svc config.ServiceConfig) (ServiceStatus, error) {
	r.mu.Lock()
	if existing, ok := r.services[svc.Name]; ok {
		switch {
		case existing.status.Healthy() && existing.config.Endpoint() == svc.Endpoint():
			status := existing.status
			r.mu.Unlock()
			logging.Debug("Registry", "Service %s already connected to %s, register is a no-op", svc.Name, svc.Endpoint())
			return status, nil
		case existing.status.Healthy():
			status := existing.status
			r.mu.Unlock()
			return status, fmt.Errorf("service %s: %w", svc.Name, ErrConflict)
		case existing.status == StatusConnecting || existing.status == StatusReconnectPending:
			status := existing.status
			r.mu.Unlock()
			return status, fmt.Errorf("service %s: connection attempt already in progress", svc.Name)
		}
		// Disconnected records are replaced and re-dialed below.
	}

	rec := &serviceRecord{config: svc, status: StatusConnecting}
	r.services[svc.Name] = rec
	r.mu.Unlock()

	return r.connect(ctx, rec)
}

// connect dials the record's endpoint, performs the handshake, fetches the
// tool catalog and commits the outcome. The record must already be parked in
// Connecting and the registry lock must not be held.
func (r *ServiceRegistry) connect(ctx context.Context, rec *serviceRecord) (ServiceStatus, error) {
	svc := rec.config

	session, err := r.dial(svc)
	var tools []mcp.Tool
	if err == nil {
		if err = session.Initialize(ctx); err == nil {
			tools, err = session.ListTools(ctx)
		}
		if err != nil {
			session.Close()
			session = nil
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.services[svc.Name] != rec {
		// Unregistered while the dial was in flight.
		if session != nil {
			session.Close()
		}
		return StatusDisconnected, fmt.Errorf("service %s: %w", svc.Name, ErrNotFound)
	}

	if err != nil {
		rec.status = StatusDisconnected
		rec.session = nil
		rec.consecutiveFailures++
		logging.Warn("Registry", "Failed to connect service %s at %s: %v", svc.Name, svc.Endpoint(), err)
		return StatusDisconnected, fmt.Errorf("failed to connect service %s: %w", svc.Name, err)
	}

	now := time.Now()
	rec.status = StatusConnected
	rec.session = session
	rec.tools = tools
	rec.lastSuccessAt = now
	rec.lastProbeAt = now
	rec.consecutiveFailures = 0
	logging.Info("Registry", "Service %s connected at %s with %d tools", svc.Name, svc.Endpoint(), len(tools))
	return StatusConnected, nil
}

// Unregister closes the service's session if present and removes the record.
func (r *ServiceRegistry) Unregister(id string) error {
	r.mu.Lock()
	rec, ok := r.services[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("service %s: %w", id, ErrNotFound)
	}
	delete(r.services, id)
	session := rec.session
	rec.session = nil
	rec.status = StatusDisconnected
	r.mu.Unlock()

	if session != nil {
		if err := session.Close(); err != nil {
			logging.Warn("Registry", "Error closing session for %s: %v", id, err)
		}
	}
	logging.Info("Registry", "Service %s unregistered", id)
	return nil
}

// SessionForTool resolves a qualified tool name to the owning service's
// session and the unqualified tool name to invoke on it.
//
// Returns ErrToolNotFound if no service advertises the tool and
// ErrServiceUnavailable if the owner is known but currently disconnected.
func (r *ServiceRegistry) SessionForTool(qualifiedName string) (mcpclient.Session, string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for id, rec := range r.services {
		prefix := id + toolNameSeparator
		if !strings.HasPrefix(qualifiedName, prefix) {
			continue
		}
		toolName := strings.TrimPrefix(qualifiedName, prefix)
		for _, tool := range rec.tools {
			if tool.Name != toolName {
				continue
			}
			if !rec.status.Healthy() || rec.session == nil {
				return nil, "", fmt.Errorf("tool %s: %w", qualifiedName, ErrServiceUnavailable)
			}
			return rec.session, toolName, nil
		}
	}
	return nil, "", fmt.Errorf("tool %s: %w", qualifiedName, ErrToolNotFound)
}

// Snapshot returns a consistent point-in-time copy of all records, sorted by
// service id. Mutating the returned views has no effect on the registry.
func (r *ServiceRegistry) Snapshot() []ServiceView {
	r.mu.RLock()
	defer r.mu.RUnlock()

	views := make([]ServiceView, 0, len(r.services))
	for id, rec := range r.services {
		views = append(views, rec.view(id))
	}
	sort.Slice(views, func(i, j int) bool { return views[i].ID < views[j].ID })
	return views
}

func (rec *serviceRecord) view(id string) ServiceView {
	tools := make([]mcp.Tool, len(rec.tools))
	copy(tools, rec.tools)
	return ServiceView{
		ID:                  id,
		Transport:           rec.config.Transport,
		Endpoint:            rec.config.Endpoint(),
		Status:              rec.status,
		Tools:               tools,
		LastSuccessAt:       rec.lastSuccessAt,
		LastProbeAt:         rec.lastProbeAt,
		ConsecutiveFailures: rec.consecutiveFailures,
	}
}

// ProbeTargets returns the id and session of every service currently holding
// a live session. Services mid-transition are skipped; they will show up
// again once their transition settles.
func (r *ServiceRegistry) ProbeTargets() []ProbeTarget {
	r.mu.RLock()
	defer r.mu.RUnlock()

	targets := make([]ProbeTarget, 0, len(r.services))
	for id, rec := range r.services {
		if rec.status.Healthy() && rec.session != nil {
			targets = append(targets, ProbeTarget{ID: id, Session: rec.session})
		}
	}
	sort.Slice(targets, func(i, j int) bool { return targets[i].ID < targets[j].ID })
	return targets
}

// ReportProbe records the outcome of a liveness probe and applies the
// resulting status transition.
//
// A successful probe resets the failure bookkeeping and restores Degraded
// services to Connected. A failed probe degrades a Connected service
// immediately; the service only drops to Disconnected once the heartbeat
// time budget since the last success has been spent, so one slow probe never
// causes a false disconnect. On disconnect the session is closed and the
// record becomes eligible for reconnection.
func (r *ServiceRegistry) ReportProbe(id string, probeErr error, heartbeatTimeout time.Duration) ServiceStatus {
	r.mu.Lock()
	rec, ok := r.services[id]
	if !ok || !rec.status.Healthy() {
		// Unregistered or already disconnected while the probe was in
		// flight; the outcome no longer matters.
		status := StatusDisconnected
		if ok {
			status = rec.status
		}
		r.mu.Unlock()
		return status
	}

	now := time.Now()
	rec.lastProbeAt = now

	if probeErr == nil {
		if rec.status == StatusDegraded {
			logging.Info("Registry", "Service %s recovered after %d failed probes", id, rec.consecutiveFailures)
		}
		rec.status = StatusConnected
		rec.lastSuccessAt = now
		rec.consecutiveFailures = 0
		r.mu.Unlock()
		return StatusConnected
	}

	rec.consecutiveFailures++
	failures := rec.consecutiveFailures

	if now.Sub(rec.lastSuccessAt) > heartbeatTimeout {
		session := rec.session
		rec.session = nil
		rec.status = StatusDisconnected
		r.mu.Unlock()

		if session != nil {
			session.Close()
		}
		logging.Warn("Registry", "Service %s disconnected after %d failed probes (no success for over %s): %v",
			id, failures, heartbeatTimeout, probeErr)
		return StatusDisconnected
	}

	rec.status = StatusDegraded
	r.mu.Unlock()
	logging.Warn("Registry", "Service %s degraded (%d consecutive probe failures): %v", id, failures, probeErr)
	return StatusDegraded
}

// ClaimReconnects marks every Disconnected service ReconnectPending and
// returns their ids in a stable order. The pending state reserves the record
// so no other path starts a competing connection attempt before the caller
// gets to it.
func (r *ServiceRegistry) ClaimReconnects() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var ids []string
	for id, rec := range r.services {
		if rec.status == StatusDisconnected {
			rec.status = StatusReconnectPending
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Reconnect re-establishes the session for a service previously claimed via
// ClaimReconnects. On success the service is Connected and its tool catalog
// is fully replaced with a fresh listing. On failure the service returns to
// Disconnected so a later scheduler tick retries it.
func (r *ServiceRegistry) Reconnect(ctx context.Context, id string) (ServiceStatus, error) {
	r.mu.Lock()
	rec, ok := r.services[id]
	if !ok {
		r.mu.Unlock()
		return StatusDisconnected, fmt.Errorf("service %s: %w", id, ErrNotFound)
	}
	if rec.status != StatusReconnectPending {
		// Claimed state was lost to a concurrent register or unregister.
		status := rec.status
		r.mu.Unlock()
		return status, nil
	}
	rec.status = StatusConnecting
	r.mu.Unlock()

	return r.connect(ctx, rec)
}

// Close unregisters every service, closing all live sessions. Used on
// shutdown.
func (r *ServiceRegistry) Close() {
	r.mu.Lock()
	records := make(map[string]*serviceRecord, len(r.services))
	for id, rec := range r.services {
		records[id] = rec
	}
	r.services = make(map[string]*serviceRecord)
	r.mu.Unlock()

	for id, rec := range records {
		if rec.session != nil {
			if err := rec.session.Close(); err != nil {
				logging.Warn("Registry", "Error closing session for %s: %v", id, err)
			}
		}
	}
}
