// Package metrics exports runtime counters to Prometheus.
package metrics

import (
	"errors"
	"fmt"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

const DefaultNamespace = "clockwork"

// Stats is a point-in-time view of one runtime.
type Stats struct {
	UnitsActive      int64
	UnitsStarted     uint64
	UnitPanics       uint64
	RepeatingFirings uint64
	OnceRuns         uint64
	OnceDropped      uint64
	StopRequested    bool
}

// Source returns the current stats. It is called on every scrape.
type Source func() Stats

// Collector turns a Source into Prometheus metrics at scrape time.
type Collector struct {
	src Source

	unitsActive      *prom.Desc
	unitsStarted     *prom.Desc
	unitPanics       *prom.Desc
	repeatingFirings *prom.Desc
	onceRuns         *prom.Desc
	onceDropped      *prom.Desc
	stopRequested    *prom.Desc
}

var _ prom.Collector = (*Collector)(nil)

// NewCollector creates a collector; constLabels (e.g. runtime id) are attached to every metric.
func NewCollector(namespace string, src Source, constLabels prom.Labels) *Collector {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	desc := func(name, help string) *prom.Desc {
		return prom.NewDesc(prom.BuildFQName(namespace, "", name), help, nil, constLabels)
	}
	return &Collector{
		src:              src,
		unitsActive:      desc("units_active", "Units of work currently executing or waiting on a schedule."),
		unitsStarted:     desc("units_started_total", "Units of work handed to the runtime."),
		unitPanics:       desc("unit_panics_total", "Units of work that ended in a panic."),
		repeatingFirings: desc("repeating_firings_total", "Firings of repeating tasks."),
		onceRuns:         desc("once_runs_total", "One-shot tasks that ran."),
		onceDropped:      desc("once_dropped_total", "One-shot tasks dropped by runtime teardown."),
		stopRequested:    desc("stop_requested", "Stop signal state (1=raised, 0=clear)."),
	}
}

func (c *Collector) Describe(ch chan<- *prom.Desc) {
	ch <- c.unitsActive
	ch <- c.unitsStarted
	ch <- c.unitPanics
	ch <- c.repeatingFirings
	ch <- c.onceRuns
	ch <- c.onceDropped
	ch <- c.stopRequested
}

func (c *Collector) Collect(ch chan<- prom.Metric) {
	if c.src == nil {
		return
	}
	st := c.src()
	stop := 0.0
	if st.StopRequested {
		stop = 1
	}
	ch <- prom.MustNewConstMetric(c.unitsActive, prom.GaugeValue, float64(st.UnitsActive))
	ch <- prom.MustNewConstMetric(c.unitsStarted, prom.CounterValue, float64(st.UnitsStarted))
	ch <- prom.MustNewConstMetric(c.unitPanics, prom.CounterValue, float64(st.UnitPanics))
	ch <- prom.MustNewConstMetric(c.repeatingFirings, prom.CounterValue, float64(st.RepeatingFirings))
	ch <- prom.MustNewConstMetric(c.onceRuns, prom.CounterValue, float64(st.OnceRuns))
	ch <- prom.MustNewConstMetric(c.onceDropped, prom.CounterValue, float64(st.OnceDropped))
	ch <- prom.MustNewConstMetric(c.stopRequested, prom.GaugeValue, stop)
}

// TaskMetrics records per-firing task durations.
type TaskMetrics struct {
	taskDurationSeconds *prom.HistogramVec
}

// NewTaskMetrics creates and registers the task duration histogram.
func NewTaskMetrics(namespace string, reg prom.Registerer, buckets []float64) (*TaskMetrics, error) {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	if len(buckets) == 0 {
		buckets = prom.DefBuckets
	}
	durationVec := prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: namespace,
		Name:      "task_duration_seconds",
		Help:      "Task execution duration in seconds.",
		Buckets:   buckets,
	}, []string{"kind"})

	var err error
	if durationVec, err = registerCollector(reg, durationVec); err != nil {
		return nil, err
	}
	return &TaskMetrics{taskDurationSeconds: durationVec}, nil
}

// ObserveTask records one task execution of the given kind ("repeating", "once", "spawn", "cron").
func (m *TaskMetrics) ObserveTask(kind string, d time.Duration) {
	if m == nil {
		return
	}
	m.taskDurationSeconds.WithLabelValues(normalizeLabel(kind, "unknown")).Observe(d.Seconds())
}

// Register registers c, returning the already registered collector when an equal one exists.
func Register(reg prom.Registerer, c *Collector) (*Collector, error) {
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	return registerCollector(reg, c)
}

func normalizeLabel(v string, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
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
