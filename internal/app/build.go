package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/rcomino/gabriel-messenger/internal/config"
	"github.com/rcomino/gabriel-messenger/internal/eventbus"
	"github.com/rcomino/gabriel-messenger/internal/fetch"
	"github.com/rcomino/gabriel-messenger/internal/modules"
	"github.com/rcomino/gabriel-messenger/internal/pipeline"
	"github.com/rcomino/gabriel-messenger/pkg/logx"
)

// task is one receiver or sender instance ready to be started.
type task struct {
	h      *pipeline.Handle
	module string
	key    string
	run    func(ctx context.Context) error
	// close releases collaborator resources when the task never ran.
	close func(ctx context.Context) error
}

type graph struct {
	senders   []*task
	receivers []*task
}

type buildDeps struct {
	reg      *modules.Registry
	store    pipeline.IdentifierStore
	bus      eventbus.Bus
	log      logx.Logger
	obs      pipeline.Observer
	tick     time.Duration
	loc      *time.Location
	fetch    *fetch.Client
	filesDir string
}

// channelChecker is implemented by senders with a closed set of channel names.
type channelChecker interface {
	HasChannel(channel string) bool
}

type senderRef struct {
	t   *task
	dst pipeline.Deliverable
}

func taskName(module, key string) string { return module + " [" + key + "]" }

// buildGraph constructs every configured instance without starting anything.
// Senders are built first so receiver routes can point at their queues.
func buildGraph(cfg *config.Config, d buildDeps) (*graph, error) {
	g := &graph{}
	var errs []error

	senders := map[string]map[string]senderRef{}
	for _, mod := range config.SortedKeys(cfg.Senders) {
		sm := cfg.Senders[mod]
		if !d.reg.HasSender(mod) {
			errs = append(errs, fmt.Errorf("senders.%s: %w", mod, ErrUnknownModule))
			continue
		}
		senders[mod] = map[string]senderRef{}
		for _, key := range config.SortedKeys(sm.Instances) {
			name := taskName(mod, key)
			log := d.log.With(logx.Task(name)).WithLevel(sm.LoggingLevel)
			dst, err := d.reg.NewSender(modules.Env{Module: mod, Key: key, Log: log}, sm.Instances[key])
			if err != nil {
				errs = append(errs, err)
				continue
			}
			h := pipeline.NewHandle(name, pipeline.KindSender, d.bus)
			scfg := pipeline.SenderConfig{Tick: d.tick, Log: log, Observer: d.obs}
			t := &task{
				h:      h,
				module: mod,
				key:    key,
				run:    func(ctx context.Context) error { return pipeline.RunSender(ctx, h, dst, scfg) },
				close:  closer(dst),
			}
			senders[mod][key] = senderRef{t: t, dst: dst}
			g.senders = append(g.senders, t)
		}
	}

	for _, mod := range config.SortedKeys(cfg.Receivers) {
		rm := cfg.Receivers[mod]
		if !d.reg.HasReceiver(mod) {
			errs = append(errs, fmt.Errorf("receivers.%s: %w", mod, ErrUnknownModule))
			continue
		}
		for _, key := range config.SortedKeys(rm.Instances) {
			path := fmt.Sprintf("receivers.%s.instances.%s", mod, key)
			inst := rm.Instances[key]
			st, err := rm.Resolve(key)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", path, err))
				continue
			}
			sched, err := schedule(st.Wait, d.loc)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s.wait_time: %w", path, err))
				continue
			}
			routes, err := resolveRoutes(path, inst.Send, senders)
			if err != nil {
				errs = append(errs, err)
				continue
			}

			name := taskName(mod, key)
			log := d.log.With(logx.Task(name)).WithLevel(st.LoggingLevel)
			env := modules.Env{
				Module:   mod,
				Key:      key,
				Log:      log,
				Colour:   st.Colour,
				Fetch:    d.fetch,
				Files:    fetch.NewDownloader(d.fetch, filepath.Join(d.filesDir, mod), st.DownloadFiles),
				Location: d.loc,
			}
			src, err := d.reg.NewReceiver(env, inst.Options)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			h := pipeline.NewHandle(name, pipeline.KindReceiver, d.bus)
			rcfg := pipeline.ReceiverConfig{
				Source:   env.Source(),
				Schedule: sched,
				Tick:     d.tick,
				Store:    d.store,
				Router:   pipeline.NewRouter(routes...),
				Log:      log,
				Observer: d.obs,
			}
			g.receivers = append(g.receivers, &task{
				h:      h,
				module: mod,
				key:    key,
				run:    func(ctx context.Context) error { return pipeline.RunReceiver(ctx, h, src, rcfg) },
				close:  closer(src),
			})
		}
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return g, nil
}

// resolveRoutes turns one routing table into queue routes, in sorted sender
// order and configured channel order.
func resolveRoutes(path string, send config.RoutingTable, senders map[string]map[string]senderRef) ([]pipeline.Route, error) {
	if len(send) == 0 {
		return nil, fmt.Errorf("%w: %s.send: no destinations", ErrInvalidRoute, path)
	}
	var (
		routes []pipeline.Route
		errs   []error
	)
	for _, mod := range config.SortedKeys(send) {
		for _, key := range config.SortedKeys(send[mod]) {
			ref, ok := senders[mod][key]
			if !ok {
				errs = append(errs, fmt.Errorf("%w: %s.send.%s.%s: sender instance not available", ErrInvalidRoute, path, mod, key))
				continue
			}
			cc, checked := ref.dst.(channelChecker)
			for _, raw := range send[mod][key] {
				channel := strings.TrimSpace(raw.String())
				if channel == "" {
					errs = append(errs, fmt.Errorf("%w: %s.send.%s.%s: empty channel", ErrInvalidRoute, path, mod, key))
					continue
				}
				if checked && !cc.HasChannel(channel) {
					errs = append(errs, fmt.Errorf("%w: %s.send.%s.%s: unknown channel %q", ErrInvalidRoute, path, mod, key, channel))
					continue
				}
				routes = append(routes, pipeline.Route{Sender: ref.t.h.Name(), Channel: channel, Queue: ref.t.h.Queue()})
			}
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return routes, nil
}

func schedule(w config.WaitSpec, loc *time.Location) (pipeline.Schedule, error) {
	switch w.Kind {
	case config.WaitCron:
		return pipeline.Cron(w.Cron, loc)
	case config.WaitInterval:
		return pipeline.Every(w.Every), nil
	default:
		return nil, fmt.Errorf("unknown wait kind %d", w.Kind)
	}
}

func closer(v any) func(ctx context.Context) error {
	if s, ok := v.(pipeline.Stoppable); ok {
		return s.Close
	}
	return func(context.Context) error { return nil }
}
