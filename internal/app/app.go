// Package app builds the receivers and senders described by the configuration,
// runs them under one supervisor and owns the two-phase shutdown: receivers
// are stopped first so nothing new is queued, then senders drain their queues.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rcomino/gabriel-messenger/internal/config"
	"github.com/rcomino/gabriel-messenger/internal/eventbus"
	"github.com/rcomino/gabriel-messenger/internal/fetch"
	"github.com/rcomino/gabriel-messenger/internal/metrics"
	"github.com/rcomino/gabriel-messenger/internal/modules"
	"github.com/rcomino/gabriel-messenger/internal/modules/builtin"
	"github.com/rcomino/gabriel-messenger/internal/observability/httpserver"
	"github.com/rcomino/gabriel-messenger/internal/pipeline"
	rtsup "github.com/rcomino/gabriel-messenger/internal/runtime/supervisor"
	"github.com/rcomino/gabriel-messenger/internal/storage"
	"github.com/rcomino/gabriel-messenger/pkg/logx"
)

var (
	// ErrUnknownModule is returned when a configured module has no implementation.
	ErrUnknownModule = modules.ErrUnknownModule
	// ErrInvalidRoute is returned when a routing table entry does not resolve
	// to a configured sender instance and channel.
	ErrInvalidRoute = config.ErrInvalidRoute
)

type Option func(*options)

type options struct {
	registry *modules.Registry
	store    storage.IdentifierStore
	log      logx.Logger
	logs     *logx.Service
	bus      eventbus.Bus
	cfgm     *config.Manager
}

// WithRegistry replaces the built-in module registry.
func WithRegistry(r *modules.Registry) Option { return func(o *options) { o.registry = r } }

// WithStore uses s instead of opening the configured store. The caller keeps
// ownership and closes it.
func WithStore(s storage.IdentifierStore) Option { return func(o *options) { o.store = s } }

func WithLogger(log logx.Logger) Option { return func(o *options) { o.log = log } }

// WithLogService lets config reloads reconfigure logging live.
func WithLogService(s *logx.Service) Option { return func(o *options) { o.logs = s } }

func WithEventBus(b eventbus.Bus) Option { return func(o *options) { o.bus = b } }

// WithConfigManager enables hot reload: the manager is watched and its
// updates are applied while the app runs.
func WithConfigManager(m *config.Manager) Option { return func(o *options) { o.cfgm = m } }

type App struct {
	cfg  *config.Config
	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus
	cfgm *config.Manager

	store    storage.IdentifierStore
	ownStore bool

	prom    *prometheus.Registry
	metrics *metrics.Metrics
	http    *httpserver.Service

	shutdownEvery time.Duration
	senders       []*task
	receivers     []*task

	sup          *rtsup.Supervisor
	startOnce    sync.Once
	shutdownOnce sync.Once
	started      chan struct{}
	stopping     atomic.Bool
	stopped      chan struct{}
}

// New validates cfg and builds every configured instance. Nothing runs until Start.
func New(cfg *config.Config, opts ...Option) (*App, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.registry == nil {
		o.registry = builtin.Registry()
	}
	log := o.log
	if log.IsZero() && o.logs != nil {
		log = o.logs.Logger()
	}
	if log.IsZero() {
		log = logx.NewConsole(cfg.Logging.Level)
	}
	if o.bus == nil {
		o.bus = eventbus.New()
	}

	tick, err := cfg.App.TickDuration()
	if err != nil {
		return nil, err
	}
	every, err := cfg.App.ShutdownLogEvery()
	if err != nil {
		return nil, err
	}
	loc, err := cfg.App.Location()
	if err != nil {
		return nil, err
	}
	filesTimeout, err := cfg.Files.TimeoutDuration()
	if err != nil {
		return nil, err
	}

	a := &App{
		cfg:           cfg,
		log:           log.With(logx.String("comp", "app")),
		logs:          o.logs,
		bus:           o.bus,
		cfgm:          o.cfgm,
		store:         o.store,
		prom:          prometheus.NewRegistry(),
		shutdownEvery: every,
		started:       make(chan struct{}),
		stopped:       make(chan struct{}),
	}
	a.metrics = metrics.New(a.prom)

	if a.store == nil {
		sc, err := mapStorageConfig(cfg)
		if err != nil {
			return nil, err
		}
		a.store, err = storage.Open(sc, log)
		if err != nil {
			return nil, fmt.Errorf("open storage: %w", err)
		}
		a.ownStore = true
	}

	g, err := buildGraph(cfg, buildDeps{
		reg:      o.registry,
		store:    a.store,
		bus:      a.bus,
		log:      log,
		obs:      a.metrics,
		tick:     tick,
		loc:      loc,
		fetch:    fetch.New(fetch.Config{Timeout: filesTimeout, UserAgent: cfg.Files.UserAgent}),
		filesDir: filesDir(cfg),
	})
	if err != nil {
		if a.ownStore {
			_ = a.store.Close()
		}
		return nil, err
	}
	a.senders, a.receivers = g.senders, g.receivers
	for _, t := range a.senders {
		a.metrics.TrackQueue(t.h.Name(), t.h.Queue().Len)
	}

	if cfg.Metrics.Enabled {
		a.http = httpserver.New(httpserver.Config{Addr: cfg.Metrics.Addr, Pprof: cfg.Metrics.Pprof}, a.prom, a.health, log)
	}
	return a, nil
}

// Check validates cfg and constructs every module instance without starting
// any task or opening storage.
func Check(cfg *config.Config, reg *modules.Registry) error {
	if err := config.Validate(cfg); err != nil {
		return err
	}
	if reg == nil {
		reg = builtin.Registry()
	}
	tick, _ := cfg.App.TickDuration()
	loc, _ := cfg.App.Location()
	g, err := buildGraph(cfg, buildDeps{
		reg:      reg,
		store:    storage.NewMemory(),
		bus:      eventbus.Nop{},
		log:      logx.Nop(),
		tick:     tick,
		loc:      loc,
		fetch:    fetch.New(fetch.Config{}),
		filesDir: filesDir(cfg),
	})
	if err != nil {
		return err
	}
	ctx := context.Background()
	for _, t := range append(g.senders, g.receivers...) {
		_ = t.close(ctx)
	}
	return nil
}

// Start launches senders, then receivers, plus the helper goroutines. ctx is
// the hard-abort context: cancelling it stops tasks without draining. Use
// Shutdown for an orderly stop.
func (a *App) Start(ctx context.Context) error {
	err := errors.New("app already started")
	a.startOnce.Do(func() {
		err = a.start(ctx)
	})
	return err
}

func (a *App) start(ctx context.Context) error {
	a.sup = rtsup.New(ctx,
		rtsup.WithLogger(a.log),
		rtsup.WithErrorHook(func(name string, err error) {
			a.log.Error("task failed", logx.Task(name), logx.Err(err))
			go func() { _ = a.Shutdown(context.Background(), StopFatalError) }()
		}),
	)

	if a.http != nil {
		if err := a.http.Start(a.sup.Context()); err != nil {
			return err
		}
	}

	a.sup.Go("events.log", a.logEvents)
	if a.cfgm != nil {
		a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
		sub := a.cfgm.Subscribe(8)
		a.sup.Go("config.reload", func(c context.Context) error {
			defer a.cfgm.Unsubscribe(sub)
			return a.reloadLoop(c, sub)
		})
		a.sup.Go("config.watch", a.cfgm.Watch)
	}

	for _, t := range a.senders {
		a.launch(t)
	}
	for _, t := range a.receivers {
		a.launch(t)
	}
	a.sup.Go("app.abort", func(c context.Context) error {
		select {
		case <-c.Done():
			go func() { _ = a.Shutdown(context.Background(), StopAborted) }()
		case <-a.stopped:
		}
		return nil
	})

	close(a.started)
	a.log.Info("app started",
		logx.String("name", a.cfg.App.Name),
		logx.Int("senders", len(a.senders)),
		logx.Int("receivers", len(a.receivers)),
	)
	return nil
}

func (a *App) launch(t *task) {
	kind := string(t.h.Kind())
	a.sup.Go(t.h.Name(), func(ctx context.Context) error {
		a.metrics.TaskStarted(kind)
		defer a.metrics.TaskStopped(kind)
		if t.h.Kind() == pipeline.KindReceiver {
			defer func() { _ = t.close(context.WithoutCancel(ctx)) }()
		}
		return t.run(ctx)
	}, rtsup.OnExit(t.h.Finish))
}

// Wait blocks until the shutdown has completed and every helper goroutine has
// returned, then releases owned resources. It returns the first task failure.
func (a *App) Wait(ctx context.Context) error {
	select {
	case <-a.started:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-a.stopped:
	case <-ctx.Done():
		return ctx.Err()
	}

	a.sup.Cancel()
	_ = a.sup.Wait(ctx)
	if err := ctx.Err(); err != nil {
		return err
	}
	if a.http != nil {
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		a.http.Stop(stopCtx)
		cancel()
	}
	if a.ownStore {
		if err := a.store.Close(); err != nil {
			a.log.Warn("storage close failed", logx.Err(err))
		}
	}
	a.log.Info("stopped")
	return a.Err()
}

// Err returns the first task failure, if any.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// Stopping reports whether the shutdown has begun.
func (a *App) Stopping() bool { return a.stopping.Load() }

// Done is closed once every task has finished.
func (a *App) Done() <-chan struct{} { return a.stopped }

// Registry exposes the private Prometheus registry.
func (a *App) Registry() *prometheus.Registry { return a.prom }

// Tasks lists the handle names in start order: senders, then receivers.
func (a *App) Tasks() []string {
	out := make([]string, 0, len(a.senders)+len(a.receivers))
	for _, t := range a.senders {
		out = append(out, t.h.Name())
	}
	for _, t := range a.receivers {
		out = append(out, t.h.Name())
	}
	return out
}

func (a *App) logEvents(ctx context.Context) error {
	ch, unsub := a.bus.Subscribe(64)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-ch:
			if !ok {
				return nil
			}
			if e.Type != eventbus.TypeTaskState {
				continue
			}
			a.log.Debug("task state", logx.Task(e.Task), logx.String("kind", e.Kind), logx.String("state", strings.ToLower(e.State)))
		}
	}
}
