package pipeline

import (
	"context"
	"fmt"
	"sync"

	"github.com/rcomino/gabriel-messenger/internal/eventbus"
)

type Kind string

const (
	KindReceiver Kind = "receiver"
	KindSender   Kind = "sender"
)

// State is the observable lifecycle state of a task.
type State string

const (
	StateInitializing State = "initializing"
	StatePolling      State = "polling"
	StateIdle         State = "idle"
	StateDelivering   State = "delivering"
	StateConnecting   State = "connecting"
	StateReady        State = "ready"
	StateDraining     State = "draining"
	StateStopping     State = "stopping"
	StateStopped      State = "stopped"
)

const controlBuffer = 4

// Handle is the supervisor's view of one running task: its name, control queue,
// optional data queue (senders only), and completion state.
type Handle struct {
	name    string
	kind    Kind
	control chan Signal
	queue   *Queue
	bus     eventbus.Bus

	done     chan struct{}
	doneOnce sync.Once

	mu    sync.Mutex
	state State
	err   error
}

// NewHandle creates a handle. Sender handles get their own data queue.
func NewHandle(name string, kind Kind, bus eventbus.Bus) *Handle {
	if bus == nil {
		bus = eventbus.Nop{}
	}
	h := &Handle{
		name:    name,
		kind:    kind,
		control: make(chan Signal, controlBuffer),
		bus:     bus,
		done:    make(chan struct{}),
		state:   StateInitializing,
	}
	if kind == KindSender {
		h.queue = NewQueue()
	}
	return h
}

func (h *Handle) Name() string { return h.name }
func (h *Handle) Kind() Kind   { return h.kind }

// Queue is the sender's data queue; nil for receivers.
func (h *Handle) Queue() *Queue { return h.queue }

func (h *Handle) Done() <-chan struct{} { return h.done }

func (h *Handle) Finished() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// Err is the error the task finished with. Valid after Done is closed.
func (h *Handle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

func (h *Handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Send pushes a control signal. It blocks only while the control buffer is full.
func (h *Handle) Send(ctx context.Context, s Signal) error {
	select {
	case h.control <- s:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop pushes SignalStop.
func (h *Handle) Stop(ctx context.Context) error { return h.Send(ctx, SignalStop) }

// Finish marks the task complete. Only the first call has effect.
func (h *Handle) Finish(err error) {
	h.doneOnce.Do(func() {
		h.mu.Lock()
		h.err = err
		h.mu.Unlock()
		h.setState(StateStopped)
		close(h.done)
	})
}

func (h *Handle) setState(s State) {
	h.mu.Lock()
	if h.state == s {
		h.mu.Unlock()
		return
	}
	h.state = s
	h.mu.Unlock()
	h.bus.Publish(eventbus.Event{
		Type:  eventbus.TypeTaskState,
		Task:  h.name,
		Kind:  string(h.kind),
		State: string(s),
	})
}

// pollControl reads the control queue without blocking. It reports true when a
// stop was requested and fails with ErrProtocolViolation on any other signal.
func (h *Handle) pollControl() (bool, error) {
	select {
	case s := <-h.control:
		if s == SignalStop {
			return true, nil
		}
		return false, fmt.Errorf("%w: task %q received %s", ErrProtocolViolation, h.name, s)
	default:
		return false, nil
	}
}
