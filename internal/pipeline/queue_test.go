package pipeline

import "testing"

func TestQueueFIFOAndReady(t *testing.T) {
	t.Parallel()
	q := NewQueue()
	if _, ok := q.TryGet(); ok {
		t.Fatal("TryGet on empty queue returned an item")
	}
	for _, id := range []string{"a", "b", "c"} {
		q.Put(Item{Channel: "ch", Publication: pub(id)})
	}
	if q.Len() != 3 {
		t.Fatalf("Len = %d, want 3", q.Len())
	}
	select {
	case <-q.Ready():
	default:
		t.Fatal("Ready not signalled after Put")
	}
	select {
	case <-q.Ready():
		t.Fatal("Ready should coalesce multiple puts")
	default:
	}
	for _, want := range []string{"a", "b", "c"} {
		it, ok := q.TryGet()
		if !ok || it.Publication.ID != want {
			t.Fatalf("TryGet = %v,%v want %s", it.Publication, ok, want)
		}
	}
	if q.Len() != 0 {
		t.Fatalf("Len = %d after drain", q.Len())
	}
}

func TestRouterFanOut(t *testing.T) {
	t.Parallel()
	qa, qb := NewQueue(), NewQueue()
	r := NewRouter(
		Route{Sender: "A", Channel: "a1", Queue: qa},
		Route{Sender: "A", Channel: "a2", Queue: qa},
		Route{Sender: "B", Channel: "b1", Queue: qb},
	)
	p := pub("7")
	if n := r.Put(p); n != 3 {
		t.Fatalf("Put = %d, want 3", n)
	}
	a := drain(qa)
	if len(a) != 2 || a[0].Channel != "a1" || a[1].Channel != "a2" {
		t.Fatalf("queue A = %+v", a)
	}
	b := drain(qb)
	if len(b) != 1 || b[0].Channel != "b1" {
		t.Fatalf("queue B = %+v", b)
	}
	if a[0].Publication != p || b[0].Publication != p {
		t.Fatal("routes must share the same publication")
	}

	var empty *Router
	if n := empty.Put(p); n != 0 {
		t.Fatalf("nil router Put = %d", n)
	}
	if n := NewRouter().Put(p); n != 0 {
		t.Fatalf("routeless Put = %d", n)
	}
}
