// Package metrics holds the Prometheus collectors of the task engine.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	schedulerCycles    *prometheus.CounterVec
	cycleDuration      prometheus.Histogram
	overdueTransitions prometheus.Counter
	reminders          prometheus.Counter
	notifications      *prometheus.CounterVec
	statusTransitions  *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		schedulerCycles: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "taskbot", Subsystem: "scheduler", Name: "cycles_total",
			Help: "Deadline scheduler cycles by result.",
		}, []string{"result"}),
		cycleDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "taskbot", Subsystem: "scheduler", Name: "cycle_duration_seconds",
			Help:    "Wall time of one scheduler cycle.",
			Buckets: prometheus.DefBuckets,
		}),
		overdueTransitions: f.NewCounter(prometheus.CounterOpts{
			Namespace: "taskbot", Subsystem: "scheduler", Name: "overdue_transitions_total",
			Help: "Tasks moved to overdue by the sweep.",
		}),
		reminders: f.NewCounter(prometheus.CounterOpts{
			Namespace: "taskbot", Subsystem: "scheduler", Name: "reminders_total",
			Help: "Deadline-approaching reminders dispatched.",
		}),
		notifications: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "taskbot", Subsystem: "notify", Name: "deliveries_total",
			Help: "Notification deliveries by result.",
		}, []string{"result"}),
		statusTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "taskbot", Subsystem: "tasks", Name: "status_transitions_total",
			Help: "Accepted task status changes by target status.",
		}, []string{"to"}),
	}
}

func (m *Metrics) CycleFinished(took time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.schedulerCycles.WithLabelValues(result).Inc()
	m.cycleDuration.Observe(took.Seconds())
}

func (m *Metrics) Overdue(n int) {
	if m == nil {
		return
	}
	m.overdueTransitions.Add(float64(n))
}

func (m *Metrics) Reminded(n int) {
	if m == nil {
		return
	}
	m.reminders.Add(float64(n))
}

func (m *Metrics) Delivery(ok bool) {
	if m == nil {
		return
	}
	result := "delivered"
	if !ok {
		result = "failed"
	}
	m.notifications.WithLabelValues(result).Inc()
}

func (m *Metrics) StatusChanged(to string) {
	if m == nil {
		return
	}
	m.statusTransitions.WithLabelValues(to).Inc()
}

func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
