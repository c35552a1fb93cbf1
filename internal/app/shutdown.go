package app

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rcomino/gabriel-messenger/internal/pipeline"
	"github.com/rcomino/gabriel-messenger/pkg/logx"
)

// Shutdown stops every receiver and waits for all of them, then stops every
// sender and waits for their queues to drain. Only the first call runs the
// shutdown; every call blocks until it has completed or ctx is done.
//
// There is no escalation on a stall. Cancelling the ctx of the first call
// aborts the remaining tasks through their contexts.
func (a *App) Shutdown(ctx context.Context, reason StopReason) error {
	select {
	case <-a.started:
	default:
		return errors.New("app not started")
	}
	a.shutdownOnce.Do(func() {
		a.stopping.Store(true)
		go a.shutdown(ctx, reason)
	})
	select {
	case <-a.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *App) shutdown(ctx context.Context, reason StopReason) {
	defer close(a.stopped)
	start := time.Now()
	a.log.Info("stopping", logx.String("reason", string(reason)))

	if err := a.stopPhase(ctx, pipeline.KindReceiver, a.receivers); err != nil {
		a.abort(err)
		return
	}
	if err := a.stopPhase(ctx, pipeline.KindSender, a.senders); err != nil {
		a.abort(err)
		return
	}
	a.log.Info("all tasks stopped", logx.Duration("took", time.Since(start)))
}

// stopPhase pushes SignalStop to every task of one kind, then waits for all of
// them to finish, logging the pending ones every shutdown_log_interval.
func (a *App) stopPhase(ctx context.Context, kind pipeline.Kind, tasks []*task) error {
	if len(tasks) == 0 {
		return nil
	}
	a.log.Info("stopping tasks", logx.String("kind", string(kind)), logx.Int("count", len(tasks)))

	g, gctx := errgroup.WithContext(ctx)
	for _, t := range tasks {
		g.Go(func() error {
			if t.h.Finished() {
				return nil
			}
			return t.h.Stop(gctx)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	ticker := time.NewTicker(a.shutdownEvery)
	defer ticker.Stop()
	for _, t := range tasks {
		for !t.h.Finished() {
			select {
			case <-t.h.Done():
			case <-ticker.C:
				for _, p := range pending(tasks) {
					a.log.Info("task still working", logx.Task(p), logx.String("kind", string(kind)))
				}
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return nil
}

// abort cancels every task context and waits for the tasks to return.
func (a *App) abort(err error) {
	a.log.Warn("shutdown interrupted; aborting running tasks", logx.Err(err))
	a.sup.Cancel()
	for _, t := range a.receivers {
		<-t.h.Done()
	}
	for _, t := range a.senders {
		<-t.h.Done()
	}
}

func pending(tasks []*task) []string {
	var out []string
	for _, t := range tasks {
		if !t.h.Finished() {
			out = append(out, t.h.Name())
		}
	}
	return out
}
