package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vietddude/callguard/internal/core/config"
	"github.com/vietddude/callguard/internal/health"
	redisclient "github.com/vietddude/callguard/internal/infra/redis"
	"github.com/vietddude/callguard/internal/infra/transport"
	"github.com/vietddude/callguard/internal/resilience"
	"github.com/vietddude/callguard/internal/resilience/breaker"
)

// App wires the breaker registry, guard, endpoints, probers and the health
// server together and owns their lifecycle.
type App struct {
	cfg          *config.AppConfig
	registry     *breaker.Registry
	guard        *resilience.Guard
	endpoints    map[string]transport.Endpoint
	probers      []*Prober
	healthMon    *health.Monitor
	healthServer *health.Server
	redisClient  *redisclient.Client
	publisher    *snapshotPublisher
	log          *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	group  *errgroup.Group
}

// Option customises NewApp.
type Option func(*App)

// WithLogger sets the application logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *App) { a.log = l }
}

// NewApp creates an App from configuration. Redis is optional: when it is
// not configured or unreachable, breaker snapshots are not published.
func NewApp(cfg *config.AppConfig, opts ...Option) (*App, error) {
	a := &App{
		cfg:       cfg,
		endpoints: make(map[string]transport.Endpoint),
		log:       slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}

	// 1. Redis snapshot publishing
	if cfg.Redis.Enabled() {
		client, err := redisclient.NewClient(cfg.Redis)
		if err != nil {
			a.log.Warn("Failed to connect to Redis, snapshot publishing disabled", "error", err)
		} else {
			a.redisClient = client
			store := redisclient.NewSnapshotStore(client, redisclient.StoreConfig{})
			a.publisher = newSnapshotPublisher(store, a.log)
		}
	}

	// 2. Breakers
	defaults := cfg.Breaker.Thresholds()
	defaults.Logger = a.log
	defaults.OnStateChange = a.onStateChange
	a.registry = breaker.NewRegistry(defaults)

	// 3. Guard
	a.guard = resilience.NewGuard(a.registry, cfg.Retry.Policy(), a.log)

	// 4. Endpoints and probers
	names := make([]string, 0, len(cfg.Endpoints))
	for _, epCfg := range cfg.Endpoints {
		if epCfg.Breaker != nil {
			a.registry.Configure(epCfg.Name, epCfg.Breaker.Thresholds())
		}

		ep, err := NewEndpoint(epCfg)
		if err != nil {
			a.closeEndpoints()
			return nil, fmt.Errorf("endpoint %s: %w", epCfg.Name, err)
		}
		a.endpoints[epCfg.Name] = ep
		names = append(names, epCfg.Name)
	}
	sort.Strings(names)

	a.healthMon = health.NewMonitor(a.registry, names)
	a.healthServer = health.NewServer(a.healthMon, cfg.Server.Port, a.log)

	for _, epCfg := range cfg.Endpoints {
		if epCfg.ProbeInterval > 0 {
			a.probers = append(a.probers, NewProber(a.endpoints[epCfg.Name], a.guard, a.healthMon, epCfg.ProbeInterval, a.log))
		}
	}

	return a, nil
}

// NewEndpoint builds the transport client for one endpoint config.
func NewEndpoint(cfg config.EndpointConfig) (transport.Endpoint, error) {
	switch cfg.Kind {
	case config.KindGRPC:
		return transport.NewGRPCEndpoint(transport.GRPCConfig{
			Name:    cfg.Name,
			Target:  cfg.URL,
			Timeout: cfg.Timeout,
			Service: cfg.Service,
		})
	case config.KindHTTP, "":
		return transport.NewHTTPEndpoint(transport.HTTPConfig{
			Name:       cfg.Name,
			BaseURL:    cfg.URL,
			HealthPath: cfg.HealthPath,
			Timeout:    cfg.Timeout,
			RateLimit:  cfg.RateLimit,
			Burst:      cfg.Burst,
			Headers:    cfg.Headers,
		}), nil
	default:
		return nil, fmt.Errorf("unsupported endpoint kind %q", cfg.Kind)
	}
}

// Guard returns the shared call guard.
func (a *App) Guard() *resilience.Guard {
	return a.guard
}

// Registry returns the breaker registry.
func (a *App) Registry() *breaker.Registry {
	return a.registry
}

// Monitor returns the health monitor.
func (a *App) Monitor() *health.Monitor {
	return a.healthMon
}

// Endpoint returns the named endpoint client.
func (a *App) Endpoint(name string) (transport.Endpoint, bool) {
	ep, ok := a.endpoints[name]
	return ep, ok
}

// Probe runs one guarded health check against the named endpoint and records
// the result.
func (a *App) Probe(ctx context.Context, name string) error {
	ep, ok := a.endpoints[name]
	if !ok {
		return fmt.Errorf("unknown endpoint %q", name)
	}
	return NewProber(ep, a.guard, a.healthMon, 0, a.log).ProbeOnce(ctx)
}

// Start starts the health server, probers and snapshot publisher.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.group != nil {
		return errors.New("app already started")
	}

	ctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	a.cancel = cancel
	a.group = g

	// Start Health Server
	g.Go(func() error {
		if err := a.healthServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("health server: %w", err)
		}
		return nil
	})

	if a.publisher != nil {
		g.Go(func() error {
			a.publisher.Run(gctx)
			return nil
		})
	}

	for _, p := range a.probers {
		a.log.Info("Starting prober", "endpoint", p.Name(), "interval", p.interval)
		g.Go(func() error {
			p.Run(gctx)
			return nil
		})
	}

	return nil
}

// Wait blocks until a background component fails or the app is stopped.
func (a *App) Wait() error {
	a.mu.Lock()
	g := a.group
	a.mu.Unlock()

	if g == nil {
		return nil
	}
	return g.Wait()
}

// Stop stops all components and releases connections.
func (a *App) Stop(ctx context.Context) error {
	a.log.Info("Stopping callguard...")

	a.mu.Lock()
	cancel, g := a.cancel, a.group
	a.mu.Unlock()

	var errs []error

	// Stop Health Server
	if err := a.healthServer.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stop health server: %w", err))
	}
	if cancel != nil {
		cancel()
	}
	if g != nil {
		if err := g.Wait(); err != nil {
			errs = append(errs, err)
		}
	}

	a.closeEndpoints()

	// Close Redis
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.log.Warn("Failed to close Redis", "error", err)
		}
	}

	return errors.Join(errs...)
}

func (a *App) closeEndpoints() {
	for name, ep := range a.endpoints {
		if err := ep.Close(); err != nil {
			a.log.Warn("Failed to close endpoint", "endpoint", name, "error", err)
		}
	}
}

func (a *App) onStateChange(from breaker.State, snap breaker.Snapshot) {
	if a.publisher == nil {
		return
	}
	a.publisher.Enqueue(stateEvent{
		snapshot: snap,
		transition: redisclient.Transition{
			Endpoint: snap.Endpoint,
			From:     from,
			To:       snap.State,
			At:       time.Now(),
		},
	})
}
