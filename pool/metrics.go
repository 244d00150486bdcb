package pool

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics, labelled by pool name (see WithName).
var (
	tasksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "asyncpool_tasks_total",
		Help: "Completed task invocations by outcome",
	}, []string{"pool", "outcome"}) // outcome: "success", "failure"

	taskDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "asyncpool_task_duration_seconds",
		Help:    "Task function duration in seconds",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
	}, []string{"pool"})

	activeWorkers = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "asyncpool_active_workers",
		Help: "Task invocations currently in flight",
	}, []string{"pool"})

	pendingItems = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "asyncpool_pending_items",
		Help: "Items waiting for a free worker slot",
	}, []string{"pool"})

	flushesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "asyncpool_flushes_total",
		Help: "Sink invocations by status",
	}, []string{"pool", "status"}) // status: "ok", "error"

	flushDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "asyncpool_flush_duration_seconds",
		Help:    "Sink invocation duration in seconds",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"pool"})

	flushedItems = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "asyncpool_flushed_items_total",
		Help: "Results delivered to the sink",
	}, []string{"pool"})
)

// poolMetrics holds the collectors bound to one pool's label.
type poolMetrics struct {
	succeeded     prometheus.Counter
	failed        prometheus.Counter
	taskDuration  prometheus.Observer
	active        prometheus.Gauge
	pending       prometheus.Gauge
	flushOK       prometheus.Counter
	flushErr      prometheus.Counter
	flushDuration prometheus.Observer
	flushedItems  prometheus.Counter
}

func newPoolMetrics(name string) *poolMetrics {
	return &poolMetrics{
		succeeded:     tasksTotal.WithLabelValues(name, "success"),
		failed:        tasksTotal.WithLabelValues(name, "failure"),
		taskDuration:  taskDuration.WithLabelValues(name),
		active:        activeWorkers.WithLabelValues(name),
		pending:       pendingItems.WithLabelValues(name),
		flushOK:       flushesTotal.WithLabelValues(name, "ok"),
		flushErr:      flushesTotal.WithLabelValues(name, "error"),
		flushDuration: flushDuration.WithLabelValues(name),
		flushedItems:  flushedItems.WithLabelValues(name),
	}
}
