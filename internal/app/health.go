package app

import (
	rtsup "github.com/rcomino/gabriel-messenger/internal/runtime/supervisor"
)

type taskHealth struct {
	Name  string `json:"name"`
	Kind  string `json:"kind"`
	State string `json:"state"`
	Queue int    `json:"queue,omitempty"`
	Err   string `json:"err,omitempty"`
}

type healthBody struct {
	Status     string         `json:"status"`
	Tasks      []taskHealth   `json:"tasks"`
	Supervisor rtsup.Snapshot `json:"supervisor"`
}

// health backs /healthz. A task failure makes the process unhealthy; an
// orderly shutdown does not.
func (a *App) health() (any, bool) {
	body := healthBody{Status: "ok", Supervisor: a.sup.Snapshot()}
	for _, t := range append(append([]*task(nil), a.senders...), a.receivers...) {
		th := taskHealth{Name: t.h.Name(), Kind: string(t.h.Kind()), State: string(t.h.State())}
		if q := t.h.Queue(); q != nil {
			th.Queue = q.Len()
		}
		if t.h.Finished() {
			if err := t.h.Err(); err != nil {
				th.Err = err.Error()
			}
		}
		body.Tasks = append(body.Tasks, th)
	}
	ok := a.Err() == nil
	switch {
	case !ok:
		body.Status = "failed"
	case a.Stopping():
		body.Status = "stopping"
	}
	return body, ok
}
