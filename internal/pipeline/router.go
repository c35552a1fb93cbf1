package pipeline

import "github.com/rcomino/gabriel-messenger/internal/publication"

// Route is one destination of a receiver: a channel on a sender's queue.
type Route struct {
	// Sender is the handle name of the sender that owns Queue.
	Sender  string
	Channel string
	Queue   *Queue
}

// Router replicates publications to every configured route.
type Router struct {
	routes []Route
}

func NewRouter(routes ...Route) *Router {
	return &Router{routes: append([]Route(nil), routes...)}
}

// Put enqueues p once per route and returns the number of items produced.
// Every item references the same publication.
func (r *Router) Put(p *publication.Publication) int {
	if r == nil || p == nil {
		return 0
	}
	for _, rt := range r.routes {
		rt.Queue.Put(Item{Channel: rt.Channel, Publication: p})
	}
	return len(r.routes)
}

func (r *Router) Routes() []Route {
	if r == nil {
		return nil
	}
	return append([]Route(nil), r.routes...)
}
