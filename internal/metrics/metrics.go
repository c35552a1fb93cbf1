// Package metrics holds the Prometheus instruments of the pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups all Prometheus instruments used across the application.
// Registered once at startup via New; passed by pointer wherever needed.
type Metrics struct {
	reg prometheus.Registerer

	ForwardedTotal  *prometheus.CounterVec
	PollErrors      *prometheus.CounterVec
	DeliveriesTotal *prometheus.CounterVec
	DeliveryLatency *prometheus.HistogramVec
	RunningTasks    *prometheus.GaugeVec
}

// New registers all instruments with reg. Using a private registry keeps
// tests isolated and avoids global state.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		reg: reg,
		ForwardedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gabriel",
			Name:      "publications_forwarded_total",
			Help:      "Queue items produced by receivers (one per destination).",
		}, []string{"receiver"}),

		PollErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gabriel",
			Name:      "poll_errors_total",
			Help:      "Polling cycles abandoned because of a source error.",
		}, []string{"receiver"}),

		DeliveriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gabriel",
			Name:      "deliveries_total",
			Help:      "Delivery attempts by result (ok|error).",
		}, []string{"sender", "result"}),

		DeliveryLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "gabriel",
			Name:      "delivery_seconds",
			Help:      "Time spent delivering one queue item.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"sender"}),

		RunningTasks: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "gabriel",
			Name:      "running_tasks",
			Help:      "Pipeline tasks currently running, by kind.",
		}, []string{"kind"}),
	}

	reg.MustRegister(
		m.ForwardedTotal,
		m.PollErrors,
		m.DeliveriesTotal,
		m.DeliveryLatency,
		m.RunningTasks,
	)
	return m
}

// Forwarded, PollFailed and Delivered implement pipeline.Observer.

func (m *Metrics) Forwarded(receiver string, routes int) {
	m.ForwardedTotal.WithLabelValues(receiver).Add(float64(routes))
}

func (m *Metrics) PollFailed(receiver string) {
	m.PollErrors.WithLabelValues(receiver).Inc()
}

func (m *Metrics) Delivered(sender string, took time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.DeliveriesTotal.WithLabelValues(sender, result).Inc()
	m.DeliveryLatency.WithLabelValues(sender).Observe(took.Seconds())
}

// TrackQueue exports the depth of one sender queue.
func (m *Metrics) TrackQueue(sender string, depth func() int) {
	m.reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace:   "gabriel",
		Name:        "queue_depth",
		Help:        "Items waiting in a sender queue.",
		ConstLabels: prometheus.Labels{"sender": sender},
	}, func() float64 { return float64(depth()) }))
}

// TaskStarted and TaskStopped maintain the running_tasks gauge.
func (m *Metrics) TaskStarted(kind string) { m.RunningTasks.WithLabelValues(kind).Inc() }
func (m *Metrics) TaskStopped(kind string) { m.RunningTasks.WithLabelValues(kind).Dec() }
