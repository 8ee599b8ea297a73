// Package app builds the object graph from a configuration: storage,
// queue, cache, remote store, state, engine, connectivity, scheduler and
// metrics.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/stockpro/internal/cache"
	"github.com/roach88/stockpro/internal/config"
	"github.com/roach88/stockpro/internal/connectivity"
	"github.com/roach88/stockpro/internal/engine"
	"github.com/roach88/stockpro/internal/metrics"
	"github.com/roach88/stockpro/internal/queue"
	"github.com/roach88/stockpro/internal/remote"
	"github.com/roach88/stockpro/internal/remote/postgrest"
	"github.com/roach88/stockpro/internal/scheduler"
	"github.com/roach88/stockpro/internal/state"
	"github.com/roach88/stockpro/internal/store"
)

// ErrNoRemote is returned by operations that need a remote store when
// none is configured.
var ErrNoRemote = errors.New("no remote store configured")

// App is the wired application. Engine, Scheduler and Prober are nil when
// no remote store is configured; everything then stays queued locally.
type App struct {
	Config    config.Config
	KV        store.KV
	Queue     *queue.Queue
	Cache     *cache.Cache
	Remote    remote.Store
	Monitor   *connectivity.Monitor
	Prober    *connectivity.Prober
	State     *state.State
	Engine    *engine.Engine
	Scheduler *scheduler.Scheduler
	Metrics   *metrics.Metrics

	closers []io.Closer
}

// Option overrides a dependency, mostly for tests.
type Option func(*options)

type options struct {
	kv     store.KV
	remote remote.Store
}

// WithKV uses kv instead of opening the configured SQLite database.
func WithKV(kv store.KV) Option {
	return func(o *options) { o.kv = kv }
}

// WithRemote uses r instead of the configured remote store.
func WithRemote(r remote.Store) Option {
	return func(o *options) { o.remote = r }
}

// New wires the application. The caller must Close it.
func New(ctx context.Context, cfg config.Config, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	if cfg.Demo && cfg.Owner == "" {
		cfg.Owner = DemoOwner
	}
	a := &App{Config: cfg, Metrics: metrics.New()}

	a.KV = o.kv
	if a.KV == nil {
		st, err := store.Open(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("open local database: %w", err)
		}
		a.KV = st
		a.closers = append(a.closers, st)
	}

	a.Remote = o.remote
	if a.Remote == nil {
		r, err := newRemote(cfg)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Remote = r
	}

	a.Queue = queue.Open(ctx, a.KV)
	a.Queue.Subscribe(a.Metrics.QueueLength)
	a.Metrics.QueueLength(a.Queue.Len())
	a.Cache = cache.New(a.KV)
	a.Monitor = connectivity.NewMonitor(true)

	a.State = state.New(a.Queue, a.Remote, a.Cache,
		state.WithOwner(cfg.Owner),
		state.WithConnectivity(a.Monitor))

	if a.Remote != nil {
		a.Engine = engine.New(a.Queue, a.Remote, a.State,
			engine.WithOwner(cfg.Owner),
			engine.WithConnectivity(a.Monitor),
			engine.WithObserver(a.Metrics))
		a.Scheduler = scheduler.New(a.Engine, a.Queue, a.Monitor,
			scheduler.WithInterval(cfg.Sync.Interval))
		if p, ok := a.Remote.(remote.Pinger); ok {
			a.Prober = connectivity.NewProber(p, a.Monitor,
				connectivity.WithInterval(cfg.Sync.ProbeInterval),
				connectivity.WithTimeout(cfg.Sync.ProbeTimeout))
		}
	} else {
		a.Monitor.SetOnline(false)
	}

	slog.Debug("application wired",
		"db", cfg.DBPath,
		"remote", remoteKind(a.Remote),
		"owner", cfg.Owner,
		"pending", a.Queue.Len(),
		"ephemeral_queue", a.Queue.Ephemeral())
	return a, nil
}

func newRemote(cfg config.Config) (remote.Store, error) {
	switch {
	case cfg.Demo:
		return NewDemoRemote(cfg.Owner), nil
	case cfg.HasRemote():
		c, err := postgrest.New(cfg.Remote.URL, cfg.Remote.APIKey,
			postgrest.WithOwner(cfg.Owner),
			postgrest.WithTimeout(cfg.Remote.Timeout))
		if err != nil {
			return nil, fmt.Errorf("remote store: %w", err)
		}
		return c, nil
	}
	return nil, nil
}

func remoteKind(r remote.Store) string {
	switch r.(type) {
	case nil:
		return "none"
	case *remote.Memory:
		return "memory"
	case *postgrest.Client:
		return "postgrest"
	}
	return fmt.Sprintf("%T", r)
}

// Load fills the state, probing connectivity first when possible.
func (a *App) Load(ctx context.Context) (state.Source, error) {
	if a.Prober != nil {
		a.Prober.Probe(ctx)
	}
	return a.State.Load(ctx)
}

// Sync probes connectivity and runs one drain pass.
func (a *App) Sync(ctx context.Context) (engine.Report, error) {
	if a.Engine == nil {
		return engine.Report{}, ErrNoRemote
	}
	if a.Prober != nil {
		a.Prober.Probe(ctx)
	}
	return a.Engine.Drain(ctx), nil
}

// Run starts the background machinery and blocks until ctx is done.
func (a *App) Run(ctx context.Context) error {
	if a.Engine == nil {
		return ErrNoRemote
	}

	metricsErr := make(chan error, 1)
	if addr := a.Config.Metrics.Addr; addr != "" {
		go func() { metricsErr <- a.Metrics.Serve(ctx, addr) }()
	} else {
		metricsErr <- nil
	}

	if a.Prober != nil {
		a.Prober.Start(ctx)
		defer a.Prober.Stop()
	}
	a.Scheduler.Start(ctx)
	defer a.Scheduler.Stop()

	select {
	case <-ctx.Done():
	case err := <-metricsErr:
		if err != nil {
			return fmt.Errorf("metrics server: %w", err)
		}
		<-ctx.Done()
	}
	return nil
}

// Close releases the local database.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
