// Package reconnect re-establishes sessions for disconnected services.
package reconnect

import (
	"context"
	"fmt"
	"sync"
	"time"

	"mcphub/internal/config"
	"mcphub/internal/registry"
	"mcphub/pkg/logging"

	"golang.org/x/sync/errgroup"
)

// Scheduler periodically retries disconnected services. It runs on its own
// interval, decoupled from the health monitor's, so detection sensitivity
// and retry aggressiveness are tuned independently.
//
// Each tick claims the currently disconnected services and dials them
// concurrently; one slow endpoint never delays the others. The tick itself
// is the retry unit, so there is no extra backoff inside a tick. Retries are
// unbounded; the registry's per-service failure counter is the observability
// signal for endpoints that keep failing.
type Scheduler struct {
	registry *registry.ServiceRegistry
	cfg      config.HealthConfig

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewScheduler creates a reconnection scheduler for the given registry.
func NewScheduler(reg *registry.ServiceRegistry, cfg config.HealthConfig) *Scheduler {
	return &Scheduler{
		registry: reg,
		cfg:      cfg,
	}
}

// Start launches the retry loop. It returns immediately; retries continue
// until Stop is called or the context is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return fmt.Errorf("reconnection scheduler already started")
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done

	go s.run(runCtx, done)

	logging.Info("Reconnect", "Scheduler started (interval %s)", s.cfg.ReconnectInterval)
	return nil
}

// Stop halts the retry loop and waits for the current round to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	done := s.done
	s.cancel = nil
	s.done = nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	logging.Info("Reconnect", "Scheduler stopped")
}

// run owns done and closes it on exit. The channel is passed in rather than
// read from the struct so a Stop racing the goroutine's first schedule
// cannot observe the field after it was cleared.
func (s *Scheduler) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.cfg.ReconnectInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.reconnectAll(ctx)
		}
	}
}

// reconnectAll runs one retry round over all disconnected services.
func (s *Scheduler) reconnectAll(ctx context.Context) {
	ids := s.registry.ClaimReconnects()
	if len(ids) == 0 {
		return
	}
	logging.Info("Reconnect", "Attempting to reconnect %d services", len(ids))

	var g errgroup.Group
	for _, id := range ids {
		g.Go(func() error {
			status, err := s.registry.Reconnect(ctx, id)
			if err != nil {
				logging.Warn("Reconnect", "Reconnect of %s failed, will retry next tick: %v", id, err)
				return nil
			}
			logging.Info("Reconnect", "Service %s reconnected (status %s)", id, status)
			return nil
		})
	}
	g.Wait()
}
