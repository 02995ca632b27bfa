package prometheus

import (
	"errors"
	"fmt"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"

	"github.com/JesseSolomon/dev.jessesolomon.me/core"
)

// DefaultScope labels observations of the unscoped exporter
const DefaultScope = "default"

// ExporterOptions controls collector configuration.
type ExporterOptions struct {
	LoadBuckets []float64
}

// MetricsExporter adapts core.Metrics to Prometheus collectors.
// Every series carries a "scope" label naming the barrier family.
type MetricsExporter struct {
	tasksTotal   *prom.CounterVec
	outstanding  *prom.GaugeVec
	loadSeconds  *prom.HistogramVec
	loadedTotal  *prom.CounterVec
	stalledTasks *prom.GaugeVec
	stalledTotal *prom.CounterVec
}

var _ core.Metrics = (*MetricsExporter)(nil)

// NewMetricsExporter creates and registers Prometheus collectors for core.Metrics.
func NewMetricsExporter(namespace string, reg prom.Registerer, opts ExporterOptions) (*MetricsExporter, error) {
	if namespace == "" {
		namespace = "loadgate"
	}
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	buckets := opts.LoadBuckets
	if len(buckets) == 0 {
		buckets = prom.ExponentialBuckets(0.05, 2, 10)
	}

	tasksVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "tasks_total",
		Help:      "Task notifications received by barriers, by phase.",
	}, []string{"scope", "phase"})
	outstandingVec := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "tasks_outstanding",
		Help:      "Tasks started and not yet ended.",
	}, []string{"scope"})
	loadVec := prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: namespace,
		Name:      "load_duration_seconds",
		Help:      "Time from the base load condition to the barrier opening.",
		Buckets:   buckets,
	}, []string{"scope"})
	loadedVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "loaded_total",
		Help:      "Barriers opened, by result.",
	}, []string{"scope", "result"})
	stalledVec := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "stalled_tasks",
		Help:      "Outstanding tasks at the last stall report.",
	}, []string{"scope"})
	stalledTotalVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "stalls_total",
		Help:      "Stall reports.",
	}, []string{"scope"})

	var err error
	if tasksVec, err = registerCollector(reg, tasksVec); err != nil {
		return nil, err
	}
	if outstandingVec, err = registerCollector(reg, outstandingVec); err != nil {
		return nil, err
	}
	if loadVec, err = registerCollector(reg, loadVec); err != nil {
		return nil, err
	}
	if loadedVec, err = registerCollector(reg, loadedVec); err != nil {
		return nil, err
	}
	if stalledVec, err = registerCollector(reg, stalledVec); err != nil {
		return nil, err
	}
	if stalledTotalVec, err = registerCollector(reg, stalledTotalVec); err != nil {
		return nil, err
	}

	return &MetricsExporter{
		tasksTotal:   tasksVec,
		outstanding:  outstandingVec,
		loadSeconds:  loadVec,
		loadedTotal:  loadedVec,
		stalledTasks: stalledVec,
		stalledTotal: stalledTotalVec,
	}, nil
}

// Scope returns core.Metrics recording under the given scope label
func (m *MetricsExporter) Scope(name string) core.Metrics {
	return scoped{m: m, scope: normalizeLabel(name, DefaultScope)}
}

// TaskStarted records a task start under DefaultScope.
func (m *MetricsExporter) TaskStarted() { m.Scope(DefaultScope).TaskStarted() }

// TaskEnded records a task end under DefaultScope.
func (m *MetricsExporter) TaskEnded() { m.Scope(DefaultScope).TaskEnded() }

// TaskFailed records a task failure under DefaultScope.
func (m *MetricsExporter) TaskFailed() { m.Scope(DefaultScope).TaskFailed() }

// Outstanding records the outstanding task count under DefaultScope.
func (m *MetricsExporter) Outstanding(n int) { m.Scope(DefaultScope).Outstanding(n) }

// Loaded records a barrier opening under DefaultScope.
func (m *MetricsExporter) Loaded(elapsed time.Duration, err error) {
	m.Scope(DefaultScope).Loaded(elapsed, err)
}

// Stalled records a stall report under DefaultScope.
func (m *MetricsExporter) Stalled(outstanding int) { m.Scope(DefaultScope).Stalled(outstanding) }

type scoped struct {
	m     *MetricsExporter
	scope string
}

func (s scoped) TaskStarted() {
	if s.m == nil {
		return
	}
	s.m.tasksTotal.WithLabelValues(s.scope, "start").Inc()
}

func (s scoped) TaskEnded() {
	if s.m == nil {
		return
	}
	s.m.tasksTotal.WithLabelValues(s.scope, "end").Inc()
}

func (s scoped) TaskFailed() {
	if s.m == nil {
		return
	}
	s.m.tasksTotal.WithLabelValues(s.scope, "failed").Inc()
}

func (s scoped) Outstanding(n int) {
	if s.m == nil {
		return
	}
	s.m.outstanding.WithLabelValues(s.scope).Set(float64(n))
}

func (s scoped) Loaded(elapsed time.Duration, err error) {
	if s.m == nil {
		return
	}
	s.m.loadSeconds.WithLabelValues(s.scope).Observe(elapsed.Seconds())
	s.m.loadedTotal.WithLabelValues(s.scope, resultLabel(err)).Inc()
}

func (s scoped) Stalled(outstanding int) {
	if s.m == nil {
		return
	}
	s.m.stalledTasks.WithLabelValues(s.scope).Set(float64(outstanding))
	s.m.stalledTotal.WithLabelValues(s.scope).Inc()
}

func normalizeLabel(v string, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func resultLabel(err error) string {
	if err != nil {
		return "aborted"
	}
	return "ok"
}

func registerCollector[T prom.Collector](reg prom.Registerer, collector T) (T, error) {
	err := reg.Register(collector)
	if err == nil {
		return collector, nil
	}

	var alreadyRegisteredErr prom.AlreadyRegisteredError
	if errors.As(err, &alreadyRegisteredErr) {
		existing, ok := alreadyRegisteredErr.ExistingCollector.(T)
		if !ok {
			return collector, fmt.Errorf("collector type mismatch for %T", collector)
		}
		return existing, nil
	}

	return collector, err
}
