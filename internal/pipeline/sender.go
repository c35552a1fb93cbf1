package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rcomino/gabriel-messenger/internal/eventbus"
	"github.com/rcomino/gabriel-messenger/pkg/logx"
)

const closeTimeout = 10 * time.Second

type SenderConfig struct {
	Tick     time.Duration
	Log      logx.Logger
	Observer Observer
}

// Sender drains one queue into one destination.
type Sender struct {
	h         *Handle
	dst       Deliverable
	cfg       SenderConfig
	log       logx.Logger
	obs       Observer
	delivered int
	failed    int
}

func NewSender(h *Handle, dst Deliverable, cfg SenderConfig) *Sender {
	if cfg.Tick <= 0 {
		cfg.Tick = DefaultTick
	}
	log := cfg.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	obs := cfg.Observer
	if obs == nil {
		obs = nopObserver{}
	}
	return &Sender{h: h, dst: dst, cfg: cfg, log: log, obs: obs}
}

func (s *Sender) Handle() *Handle { return s.h }

// Run connects the destination and delivers queued items until SignalStop is
// received and the queue has been observed empty afterwards.
//
// A delivery error is logged and the item is dropped. Connect errors are fatal.
func (s *Sender) Run(ctx context.Context) error {
	q := s.h.Queue()
	if q == nil {
		return fmt.Errorf("sender %q has no queue", s.h.Name())
	}

	s.h.setState(StateConnecting)
	if c, ok := s.dst.(Connector); ok {
		if err := c.Connect(ctx); err != nil {
			return fmt.Errorf("connect: %w", err)
		}
	}
	s.h.setState(StateReady)
	s.log.Info("sender working")

	stopping := false
	for {
		if it, ok := q.TryGet(); ok {
			s.h.setState(StateDraining)
			s.deliver(ctx, it)
			continue
		}
		// Queue observed empty.
		if stopping {
			break
		}
		s.h.setState(StateReady)

		stop, err := s.h.pollControl()
		if err != nil {
			s.log.Error("control queue", logx.Err(err))
			s.close(ctx)
			return err
		}
		if stop {
			// Re-check the queue once more before closing.
			stopping = true
			continue
		}

		t := time.NewTimer(s.cfg.Tick)
		select {
		case <-ctx.Done():
			t.Stop()
			s.close(ctx)
			return ctx.Err()
		case <-q.Ready():
		case <-t.C:
		}
		t.Stop()
	}

	s.h.setState(StateStopping)
	s.close(ctx)
	s.log.Info("sender stopped", logx.Int("delivered", s.delivered), logx.Int("failed", s.failed))
	return nil
}

// RunSender runs a sender loop on h until stopped.
func RunSender(ctx context.Context, h *Handle, dst Deliverable, cfg SenderConfig) error {
	return NewSender(h, dst, cfg).Run(ctx)
}

func (s *Sender) deliver(ctx context.Context, it Item) {
	start := time.Now()
	err := s.dst.Deliver(ctx, it.Channel, it.Publication)
	took := time.Since(start)
	s.obs.Delivered(s.h.Name(), took, err)
	if err != nil {
		s.failed++
		s.log.Warn("delivery failed",
			logx.String("channel", it.Channel),
			logx.String("id", it.Publication.ID),
			logx.Err(err),
		)
		return
	}
	s.delivered++
	s.h.bus.Publish(eventbus.Event{
		Type: eventbus.TypeDelivery,
		Task: s.h.Name(),
		Kind: string(s.h.kind),
		Ref:  it.Channel,
	})
	s.log.Debug("publication delivered",
		logx.String("channel", it.Channel),
		logx.String("id", it.Publication.ID),
		logx.Duration("took", took),
	)
}

func (s *Sender) close(ctx context.Context) {
	c, ok := s.dst.(Stoppable)
	if !ok {
		return
	}
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
	defer cancel()
	if err := c.Close(cctx); err != nil {
		s.log.Warn("close failed", logx.Err(err))
	}
}

func eventbusPublication(h *Handle, id string) eventbus.Event {
	return eventbus.Event{
		Type: eventbus.TypePublication,
		Task: h.name,
		Kind: string(h.kind),
		Ref:  id,
	}
}
