package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rcomino/gabriel-messenger/internal/publication"
	"github.com/rcomino/gabriel-messenger/pkg/logx"
)

// DefaultTick is the sleep between control checks when no work is due.
const DefaultTick = time.Second

type ReceiverConfig struct {
	// Source is the identifier-store namespace, normally the module name.
	Source   string
	Schedule Schedule
	Tick     time.Duration
	Store    IdentifierStore
	Router   *Router
	Log      logx.Logger
	Observer Observer
	// Now is used in tests; defaults to time.Now.
	Now func() time.Time
}

// Receiver runs the poll loop of one receiver instance.
type Receiver struct {
	h     *Handle
	src   Pollable
	cfg   ReceiverConfig
	log   logx.Logger
	obs   Observer
	seen  *SeenSet
	last  time.Time
	polls int
}

func NewReceiver(h *Handle, src Pollable, cfg ReceiverConfig) *Receiver {
	if cfg.Tick <= 0 {
		cfg.Tick = DefaultTick
	}
	if cfg.Schedule == nil {
		cfg.Schedule = Every(0)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Source == "" {
		cfg.Source = h.Name()
	}
	log := cfg.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	obs := cfg.Observer
	if obs == nil {
		obs = nopObserver{}
	}
	return &Receiver{h: h, src: src, cfg: cfg, log: log, obs: obs}
}

func (r *Receiver) Handle() *Handle { return r.h }

// Run loads the seen-set and polls until SignalStop is received.
//
// It returns nil after a stop, ctx.Err() on hard abort, and a wrapped
// ErrProtocolViolation on an unexpected signal. A failed poll does not count
// as a poll for the schedule, so it is retried on the next tick.
func (r *Receiver) Run(ctx context.Context) error {
	r.h.setState(StateInitializing)
	ids, err := r.cfg.Store.LoadAll(ctx, r.cfg.Source)
	if err != nil {
		return fmt.Errorf("load identifiers: %w", err)
	}
	r.seen = NewSeenSet(ids)
	r.log.Info("receiver working", logx.String("module", r.src.Name()), logx.Int("known_ids", r.seen.Len()), logx.Int("routes", len(r.cfg.Router.Routes())))

	for {
		stop, err := r.h.pollControl()
		if err != nil {
			r.log.Error("control queue", logx.Err(err))
			return err
		}
		if stop {
			r.h.setState(StateStopping)
			r.log.Info("receiver stopped", logx.Int("polls", r.polls))
			return nil
		}

		now := r.cfg.Now()
		if !r.cfg.Schedule.Due(r.last, now) {
			r.h.setState(StateIdle)
			if err := sleep(ctx, r.cfg.Tick); err != nil {
				return err
			}
			continue
		}
		if r.cycle(ctx) {
			r.last = now
			continue
		}
		if err := sleep(ctx, r.cfg.Tick); err != nil {
			return err
		}
	}
}

// cycle runs one poll and forwards what it found. It reports false when the
// poll failed; nothing is forwarded or persisted then.
func (r *Receiver) cycle(ctx context.Context) bool {
	r.h.setState(StatePolling)
	r.polls++
	start := time.Now()
	txs, err := r.src.Poll(ctx, r.seen)
	if err != nil {
		r.obs.PollFailed(r.h.Name())
		r.log.Warn("poll failed", logx.Err(err), logx.Duration("took", time.Since(start)))
		return false
	}

	r.h.setState(StateDelivering)
	forwarded := 0
	for _, tx := range txs {
		if r.forward(ctx, tx) {
			forwarded++
		}
	}
	r.log.Debug("poll finished",
		logx.Int("transactions", len(txs)),
		logx.Int("forwarded", forwarded),
		logx.Duration("took", time.Since(start)),
	)
	return true
}

// forward hands every publication of tx to the router, then records tx.ID.
// The id is added to the seen-set even when persisting it fails, so the same
// run never re-forwards it.
func (r *Receiver) forward(ctx context.Context, tx publication.Transaction) bool {
	if tx.ID == "" {
		r.log.Warn("transaction without id dropped", logx.Int("publications", len(tx.Publications)))
		return false
	}
	if r.seen.Has(tx.ID) {
		return false
	}
	for _, p := range tx.Publications {
		n := r.cfg.Router.Put(p)
		r.obs.Forwarded(r.h.Name(), n)
		r.h.bus.Publish(eventbusPublication(r.h, p.ID))
		r.log.Info("new publication",
			logx.String("id", p.ID),
			logx.String("title", p.Title),
			logx.Int("destinations", n),
		)
	}
	if err := r.cfg.Store.Create(ctx, r.cfg.Source, tx.ID); err != nil {
		r.log.Error("persist identifier failed", logx.String("id", tx.ID), logx.Err(err))
	}
	r.seen.add(tx.ID)
	return true
}

// RunReceiver runs a receiver loop on h until stopped.
func RunReceiver(ctx context.Context, h *Handle, src Pollable, cfg ReceiverConfig) error {
	return NewReceiver(h, src, cfg).Run(ctx)
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
