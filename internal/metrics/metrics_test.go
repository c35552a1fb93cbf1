package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserverCounters(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Forwarded("rss [news]", 3)
	m.PollFailed("rss [news]")
	m.Delivered("telegram [main]", 10*time.Millisecond, nil)
	m.Delivered("telegram [main]", 10*time.Millisecond, errors.New("429"))
	m.TaskStarted("sender")
	m.TaskStarted("sender")
	m.TaskStopped("sender")

	if got := testutil.ToFloat64(m.ForwardedTotal.WithLabelValues("rss [news]")); got != 3 {
		t.Fatalf("forwarded = %v, want 3", got)
	}
	if got := testutil.ToFloat64(m.PollErrors.WithLabelValues("rss [news]")); got != 1 {
		t.Fatalf("poll errors = %v", got)
	}
	if got := testutil.ToFloat64(m.DeliveriesTotal.WithLabelValues("telegram [main]", "error")); got != 1 {
		t.Fatalf("error deliveries = %v", got)
	}
	if got := testutil.ToFloat64(m.RunningTasks.WithLabelValues("sender")); got != 1 {
		t.Fatalf("running senders = %v", got)
	}
}

func TestTrackQueue(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	m := New(reg)
	depth := 4
	m.TrackQueue("console [stdout]", func() int { return depth })

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() != "gabriel_queue_depth" {
			continue
		}
		if v := mf.GetMetric()[0].GetGauge().GetValue(); v != 4 {
			t.Fatalf("queue depth = %v, want 4", v)
		}
		return
	}
	t.Fatal("gabriel_queue_depth not gathered")
}
