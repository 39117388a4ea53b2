// Package app wires the registry, health monitor, reconnection scheduler
// and dispatcher into one runnable hub and exposes the operations the outer
// transport layer calls.
package app

import (
	"context"
	"fmt"
	"sync"

	"mcphub/internal/config"
	"mcphub/internal/dispatcher"
	"mcphub/internal/health"
	"mcphub/internal/llm"
	"mcphub/internal/reconnect"
	"mcphub/internal/registry"
	"mcphub/pkg/logging"

	"golang.org/x/sync/errgroup"
)

// App owns the long-lived hub components. One App runs per process; queries
// share nothing but the registry.
type App struct {
	cfg config.Config

	registry   *registry.ServiceRegistry
	monitor    *health.Monitor
	scheduler  *reconnect.Scheduler
	dispatcher *dispatcher.Dispatcher

	// watcher is nil unless a config path was given to Start.
	watcher *config.Watcher

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// Options tunes App construction. The zero value uses real sessions and the
// configured completion provider.
type Options struct {
	// Dialer overrides how sessions are opened. Used by tests.
	Dialer registry.Dialer

	// Provider overrides the completion backend. Used by tests.
	Provider llm.Provider
}

// New builds an App from configuration. The completion provider is created
// eagerly so a misconfigured backend fails at startup, not on the first
// query.
func New(cfg config.Config, opts Options) (*App, error) {
	provider := opts.Provider
	if provider == nil {
		var err error
		provider, err = llm.NewProvider(cfg.LLM)
		if err != nil {
			return nil, err
		}
	}

	reg := registry.NewServiceRegistry(opts.Dialer)
	return &App{
		cfg:        cfg,
		registry:   reg,
		monitor:    health.NewMonitor(reg, cfg.Health),
		scheduler:  reconnect.NewScheduler(reg, cfg.Health),
		dispatcher: dispatcher.NewDispatcher(reg, provider, cfg.Dispatcher),
	}, nil
}

// Start registers the declared services and launches the health monitor,
// the reconnection scheduler and, when configPath is non-empty, the config
// watcher that re-syncs declared services on file changes.
//
// A service that cannot be reached at startup is not fatal; it stays
// registered as disconnected and the scheduler keeps retrying it.
func (a *App) Start(ctx context.Context, configPath string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.started {
		return fmt.Errorf("app already started")
	}

	runCtx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	a.done = make(chan struct{})

	var g errgroup.Group
	for _, svc := range a.cfg.Services {
		g.Go(func() error {
			if _, err := a.registry.Register(ctx, svc); err != nil {
				logging.Warn("App", "Initial connect of %s failed, reconnection will retry: %v", svc.Name, err)
			}
			return nil
		})
	}
	g.Wait()

	if err := a.monitor.Start(runCtx); err != nil {
		cancel()
		return err
	}
	if err := a.scheduler.Start(runCtx); err != nil {
		a.monitor.Stop()
		cancel()
		return err
	}

	if configPath != "" {
		a.watcher = config.NewWatcher(configPath, 0)
		reloads, err := a.watcher.Start(runCtx)
		if err != nil {
			logging.Warn("App", "Config watcher disabled: %v", err)
			a.watcher = nil
			close(a.done)
		} else {
			go a.watchReloads(runCtx, reloads)
		}
	} else {
		close(a.done)
	}

	a.started = true
	logging.Info("App", "Hub started with %d declared services", len(a.cfg.Services))
	return nil
}

// Stop shuts down the loops and closes all sessions.
func (a *App) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.started {
		return
	}
	a.started = false

	if a.watcher != nil {
		a.watcher.Stop()
		a.watcher = nil
	}
	a.cancel()
	<-a.done
	a.scheduler.Stop()
	a.monitor.Stop()
	a.registry.Close()
	logging.Info("App", "Hub stopped")
}

// watchReloads applies config file changes to the declared service set.
func (a *App) watchReloads(ctx context.Context, reloads <-chan config.Config) {
	defer close(a.done)
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-reloads:
			if !ok {
				return
			}
			a.syncServices(ctx, cfg.Services)
		}
	}
}

// syncServices reconciles the registry against a freshly loaded service
// list: new or re-declared services are registered, services no longer
// declared are unregistered. Connection state of unchanged services is left
// to the health monitor.
func (a *App) syncServices(ctx context.Context, declared []config.ServiceConfig) {
	logging.Info("App", "Configuration changed, reconciling %d declared services", len(declared))

	declaredSet := make(map[string]config.ServiceConfig, len(declared))
	for _, svc := range declared {
		declaredSet[svc.Name] = svc
	}

	for _, view := range a.registry.Snapshot() {
		svc, stillDeclared := declaredSet[view.ID]
		if !stillDeclared {
			if err := a.registry.Unregister(view.ID); err != nil {
				logging.Warn("App", "Failed to unregister removed service %s: %v", view.ID, err)
			}
			continue
		}
		if svc.Endpoint() != view.Endpoint {
			// Endpoint moved; drop the old session before re-registering.
			if err := a.registry.Unregister(view.ID); err != nil {
				logging.Warn("App", "Failed to unregister moved service %s: %v", view.ID, err)
			}
		}
	}

	var g errgroup.Group
	for _, svc := range declared {
		g.Go(func() error {
			if _, err := a.registry.Register(ctx, svc); err != nil {
				logging.Warn("App", "Reconcile connect of %s failed: %v", svc.Name, err)
			}
			return nil
		})
	}
	g.Wait()
}

// RegisterService adds a service at runtime and connects it.
func (a *App) RegisterService(ctx context.Context, svc config.ServiceConfig) (registry.ServiceStatus, error) {
	return a.registry.Register(ctx, svc)
}

// UnregisterService removes a service and closes its session.
func (a *App) UnregisterService(id string) error {
	return a.registry.Unregister(id)
}

// ListServices returns a point-in-time view of all registered services.
func (a *App) ListServices() []registry.ServiceView {
	return a.registry.Snapshot()
}

// SubmitQuery answers one natural-language query. The optional sink
// receives the ordered trace event stream while the query runs.
func (a *App) SubmitQuery(ctx context.Context, text string, sink dispatcher.TraceSink) (string, error) {
	return a.dispatcher.Dispatch(ctx, text, sink)
}
