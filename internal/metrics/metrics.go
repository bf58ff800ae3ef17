// Package metrics exports engine activity as Prometheus metrics.
//
// Observer implements engine.Observer. Register it on a dedicated
// prometheus.Registry (or the default registerer) and combine it with other
// observers through engine.NewCompositeObserver:
//
//	reg := prometheus.NewRegistry()
//	m, err := metrics.NewObserver(reg)
//	app := engine.NewApp(engine.WithObserver(engine.NewCompositeObserver(m, rec)))
//
// All metric operations are thread-safe via Prometheus's internal locking.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/thinkerbot/tap-sub003/internal/audit"
	"github.com/thinkerbot/tap-sub003/internal/engine"
)

// Namespace for all metrics
const metricsNamespace = "tap"

// Invocation status label values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Observer holds the engine metrics.
type Observer struct {
	engine.NoopObserver

	// RunsTotal counts finished runs.
	// Labels: status (completed, failed)
	RunsTotal *prometheus.CounterVec

	// Running is 1 while a run loop is active.
	Running prometheus.Gauge

	// InvocationsTotal counts node invocations.
	// Labels: node, status (success, error)
	InvocationsTotal *prometheus.CounterVec

	// ErrorsTotal counts failed invocations by error kind.
	// Labels: kind (NodeError, ArityError, StepsExceededError, ...)
	ErrorsTotal *prometheus.CounterVec

	// InvocationDurationSeconds measures process run time.
	// Labels: node
	InvocationDurationSeconds *prometheus.HistogramVec

	// QueueDepth is the queue length after the latest enqueue or dequeue.
	QueueDepth prometheus.Gauge

	// EnqueuedTotal counts queue entries.
	// Labels: entry (call, flush)
	EnqueuedTotal *prometheus.CounterVec

	// AggregatedTotal counts results that reached the aggregator.
	// Labels: node
	AggregatedTotal *prometheus.CounterVec
}

// NewObserver creates the metrics and registers them on reg.
func NewObserver(reg prometheus.Registerer) (o *Observer, err error) {
	// promauto panics on duplicate registration; report it as an error.
	defer func() {
		if r := recover(); r != nil {
			o, err = nil, fmt.Errorf("register metrics: %v", r)
		}
	}()

	f := promauto.With(reg)
	return &Observer{
		RunsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "runs_total",
			Help:      "Total number of finished runs by status",
		}, []string{"status"}),

		Running: f.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "running",
			Help:      "1 while a run loop is active",
		}),

		InvocationsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "invocations_total",
			Help:      "Total number of node invocations by node and status",
		}, []string{"node", "status"}),

		ErrorsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "errors_total",
			Help:      "Total number of failed invocations by error kind",
		}, []string{"kind"}),

		InvocationDurationSeconds: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "invocation_duration_seconds",
			Help:      "Node process run time in seconds",
			Buckets:   []float64{0.0001, 0.001, 0.01, 0.1, 0.5, 1, 5, 30},
		}, []string{"node"}),

		QueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "queue_depth",
			Help:      "Number of entries waiting in the queue",
		}),

		EnqueuedTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "enqueued_total",
			Help:      "Total number of queue entries by entry type",
		}, []string{"entry"}),

		AggregatedTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "aggregated_total",
			Help:      "Total number of results collected by the aggregator by node",
		}, []string{"node"}),
	}, nil
}

func (o *Observer) OnRunStart(_ context.Context, _ string, queued int) {
	o.Running.Set(1)
	o.QueueDepth.Set(float64(queued))
}

func (o *Observer) OnRunEnd(_ context.Context, _ string, err error) {
	o.Running.Set(0)
	status := "completed"
	if err != nil {
		status = "failed"
	}
	o.RunsTotal.WithLabelValues(status).Inc()
}

func (o *Observer) OnEnqueue(_ string, entry engine.Entry, depth int) {
	o.QueueDepth.Set(float64(depth))
	switch entry.(type) {
	case engine.EntryCall:
		o.EnqueuedTotal.WithLabelValues("call").Inc()
	case engine.EntryFlush:
		o.EnqueuedTotal.WithLabelValues("flush").Inc()
	}
}

func (o *Observer) OnInvokeStart(_ context.Context, inv *engine.Invocation) {
	o.QueueDepth.Set(float64(inv.App().QueueLen()))
}

func (o *Observer) OnInvokeComplete(_ context.Context, inv *engine.Invocation, _ *audit.Audit, err error, d time.Duration) {
	node := inv.Node().Name()
	o.InvocationDurationSeconds.WithLabelValues(node).Observe(d.Seconds())
	if err != nil {
		o.InvocationsTotal.WithLabelValues(node, StatusError).Inc()
		o.ErrorsTotal.WithLabelValues(engine.ErrorKind(err)).Inc()
		return
	}
	o.InvocationsTotal.WithLabelValues(node, StatusSuccess).Inc()
}

func (o *Observer) OnAggregate(_ context.Context, node *engine.Node, _ *audit.Audit) {
	o.AggregatedTotal.WithLabelValues(node.Name()).Inc()
}
