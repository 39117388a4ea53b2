// Package health runs the periodic liveness probing of registered services.
package health

import (
	"context"
	"fmt"
	"sync"
	"time"

	"mcphub/internal/config"
	"mcphub/internal/registry"
	"mcphub/pkg/logging"
)

// Monitor probes every live service on a fixed interval and reports the
// outcomes to the registry, which applies the status transitions.
//
// Probes run concurrently and each one is bounded by the configured probe
// timeout, so a single hung server never stalls the loop or delays the other
// services' probes.
type Monitor struct {
	registry *registry.ServiceRegistry
	cfg      config.HealthConfig

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewMonitor creates a health monitor for the given registry.
func NewMonitor(reg *registry.ServiceRegistry, cfg config.HealthConfig) *Monitor {
	return &Monitor{
		registry: reg,
		cfg:      cfg,
	}
}

// Start launches the probe loop. It returns immediately; probing continues
// until Stop is called or the context is cancelled.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cancel != nil {
		return fmt.Errorf("health monitor already started")
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	m.cancel = cancel
	m.done = done

	go m.run(runCtx, done)

	logging.Info("Health", "Monitor started (interval %s, probe timeout %s, heartbeat timeout %s)",
		m.cfg.HeartbeatInterval, m.cfg.ProbeTimeout, m.cfg.HeartbeatTimeout)
	return nil
}

// Stop halts the probe loop and waits for the current round to finish.
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	done := m.done
	m.cancel = nil
	m.done = nil
	m.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	logging.Info("Health", "Monitor stopped")
}

// run owns done and closes it on exit. The channel is passed in rather than
// read from the struct so a Stop racing the goroutine's first schedule
// cannot observe the field after it was cleared.
func (m *Monitor) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(m.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.probeAll(ctx)
		}
	}
}

// probeAll issues one probe round. It waits for all probes of the round, but
// since every probe is individually time-bounded the wait itself is bounded
// by the probe timeout.
func (m *Monitor) probeAll(ctx context.Context) {
	targets := m.registry.ProbeTargets()
	if len(targets) == 0 {
		return
	}
	logging.Debug("Health", "Probing %d services", len(targets))

	var wg sync.WaitGroup
	for _, target := range targets {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.probe(ctx, target)
		}()
	}
	wg.Wait()
}

// probe runs one bounded liveness check and reports the outcome. The ping
// itself runs in its own goroutine so that a transport that ignores context
// cancellation still cannot hold up the round; its late return is discarded.
func (m *Monitor) probe(ctx context.Context, target registry.ProbeTarget) {
	probeCtx, cancel := context.WithTimeout(ctx, m.cfg.ProbeTimeout)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- target.Session.Ping(probeCtx)
	}()

	var probeErr error
	select {
	case probeErr = <-errCh:
	case <-probeCtx.Done():
		probeErr = fmt.Errorf("probe timed out after %s: %w", m.cfg.ProbeTimeout, probeCtx.Err())
	}

	status := m.registry.ReportProbe(target.ID, probeErr, m.cfg.HeartbeatTimeout)
	logging.Debug("Health", "Probe of %s finished: status=%s err=%v", target.ID, status, probeErr)
}
