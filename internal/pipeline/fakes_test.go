package pipeline

import (
	"context"
	"errors"
	"sync"

	"github.com/rcomino/gabriel-messenger/internal/publication"
)

type memStore struct {
	mu      sync.Mutex
	ids     map[string][]string
	creates int
	failOn  string
}

func newMemStore(source string, ids ...string) *memStore {
	return &memStore{ids: map[string][]string{source: ids}}
}

func (s *memStore) LoadAll(_ context.Context, source string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.ids[source]...), nil
}

func (s *memStore) Create(_ context.Context, source, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creates++
	if s.failOn == id {
		return errors.New("disk full")
	}
	s.ids[source] = append(s.ids[source], id)
	return nil
}

func (s *memStore) createCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.creates
}

func (s *memStore) stored(source string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.ids[source]...)
}

// scriptedSource returns polls[i] on the i-th call and sends SignalStop to h
// once the script is exhausted.
type scriptedSource struct {
	h     *Handle
	polls [][]publication.Transaction
	errs  []error
	calls int
	seen  []int
	// onPoll runs at the start of every Poll with the call index.
	onPoll func(i int)
}

func (s *scriptedSource) Name() string { return "scripted" }

func (s *scriptedSource) Poll(ctx context.Context, seen *SeenSet) ([]publication.Transaction, error) {
	i := s.calls
	if s.onPoll != nil {
		s.onPoll(i)
	}
	s.calls++
	s.seen = append(s.seen, seen.Len())
	if s.calls >= len(s.polls) {
		_ = s.h.Stop(ctx)
	}
	var err error
	if i < len(s.errs) {
		err = s.errs[i]
	}
	if i < len(s.polls) {
		return s.polls[i], err
	}
	return nil, err
}

type delivery struct {
	channel string
	id      string
}

type recordingDest struct {
	mu        sync.Mutex
	got       []delivery
	failIDs   map[string]bool
	connected bool
	closed    bool
	closedAt  int
	delivered chan struct{}
}

func newRecordingDest() *recordingDest {
	return &recordingDest{failIDs: map[string]bool{}, delivered: make(chan struct{}, 64)}
}

func (d *recordingDest) Name() string { return "recording" }

func (d *recordingDest) Connect(context.Context) error {
	d.mu.Lock()
	d.connected = true
	d.mu.Unlock()
	return nil
}

func (d *recordingDest) Deliver(_ context.Context, channel string, p *publication.Publication) error {
	d.mu.Lock()
	defer func() {
		d.mu.Unlock()
		d.delivered <- struct{}{}
	}()
	if d.failIDs[p.ID] {
		return errors.New("rejected")
	}
	d.got = append(d.got, delivery{channel: channel, id: p.ID})
	return nil
}

func (d *recordingDest) Close(context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.closedAt = len(d.got)
	d.mu.Unlock()
	return nil
}

func (d *recordingDest) deliveries() []delivery {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]delivery(nil), d.got...)
}

func pub(id string) *publication.Publication {
	return &publication.Publication{ID: id, Title: "title " + id}
}

func tx(id string, pubs ...*publication.Publication) publication.Transaction {
	return publication.Transaction{ID: id, Publications: pubs}
}

func drain(q *Queue) []Item {
	var out []Item
	for {
		it, ok := q.TryGet()
		if !ok {
			return out
		}
		out = append(out, it)
	}
}
