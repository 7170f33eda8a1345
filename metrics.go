package futurez

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains Prometheus metrics for propagation and task execution.
// A nil *Metrics records nothing.
type Metrics struct {
	wraps     *prometheus.CounterVec
	submits   prometheus.Counter
	results   *prometheus.CounterVec
	retries   prometheus.Counter
	drops     prometheus.Counter
	queueWait prometheus.Histogram
}

// NewMetrics creates the collectors and registers them on reg.
// A nil reg creates unregistered collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		wraps: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "futurez_wraps_total",
				Help: "Bodies wrapped at submission, by whether the active span was captured",
			},
			[]string{"mode"},
		),
		submits: factory.NewCounter(prometheus.CounterOpts{
			Name: "futurez_tasks_submitted_total",
			Help: "Tasks accepted by a pool",
		}),
		results: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "futurez_tasks_completed_total",
				Help: "Tasks finished by a pool, by result",
			},
			[]string{"result"},
		),
		retries: factory.NewCounter(prometheus.CounterOpts{
			Name: "futurez_task_retries_total",
			Help: "Task re-invocations after a failed attempt",
		}),
		drops: factory.NewCounter(prometheus.CounterOpts{
			Name: "futurez_tasks_dropped_total",
			Help: "Tasks rejected because the queue was full",
		}),
		queueWait: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "futurez_task_queue_wait_seconds",
			Help:    "Time between submission and a worker picking the task up",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
		}),
	}
}

func (m *Metrics) wrapped(propagated bool) {
	if m == nil {
		return
	}
	mode := "passthrough"
	if propagated {
		mode = "propagated"
	}
	m.wraps.WithLabelValues(mode).Inc()
}

func (m *Metrics) submitted() {
	if m == nil {
		return
	}
	m.submits.Inc()
}

func (m *Metrics) completed(err error) {
	if m == nil {
		return
	}
	m.results.WithLabelValues(resultLabel(err)).Inc()
}

func (m *Metrics) retried() {
	if m == nil {
		return
	}
	m.retries.Inc()
}

func (m *Metrics) droppedTask() {
	if m == nil {
		return
	}
	m.drops.Inc()
}

func (m *Metrics) observeQueueWait(d time.Duration) {
	if m == nil {
		return
	}
	m.queueWait.Observe(d.Seconds())
}

func resultLabel(err error) string {
	var pe *PanicError
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &pe):
		return "panic"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "error"
	}
}
