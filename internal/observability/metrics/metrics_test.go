package metrics

import (
	"strings"
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorExportsSnapshot(t *testing.T) {
	st := Stats{
		UnitsActive:      2,
		UnitsStarted:     7,
		UnitPanics:       1,
		RepeatingFirings: 12,
		OnceRuns:         3,
		OnceDropped:      1,
		StopRequested:    true,
	}
	c := NewCollector("", func() Stats { return st }, prom.Labels{"runtime": "r1"})

	reg := prom.NewRegistry()
	_, err := Register(reg, c)
	require.NoError(t, err)

	expected := `
# HELP clockwork_repeating_firings_total Firings of repeating tasks.
# TYPE clockwork_repeating_firings_total counter
clockwork_repeating_firings_total{runtime="r1"} 12
# HELP clockwork_stop_requested Stop signal state (1=raised, 0=clear).
# TYPE clockwork_stop_requested gauge
clockwork_stop_requested{runtime="r1"} 1
# HELP clockwork_units_active Units of work currently executing or waiting on a schedule.
# TYPE clockwork_units_active gauge
clockwork_units_active{runtime="r1"} 2
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"clockwork_repeating_firings_total", "clockwork_stop_requested", "clockwork_units_active"))
	assert.Equal(t, 7, testutil.CollectAndCount(c))

	// Values are read at scrape time.
	st.RepeatingFirings = 13
	st.StopRequested = false
	expected = `
# HELP clockwork_repeating_firings_total Firings of repeating tasks.
# TYPE clockwork_repeating_firings_total counter
clockwork_repeating_firings_total{runtime="r1"} 13
# HELP clockwork_stop_requested Stop signal state (1=raised, 0=clear).
# TYPE clockwork_stop_requested gauge
clockwork_stop_requested{runtime="r1"} 0
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"clockwork_repeating_firings_total", "clockwork_stop_requested"))
}

func TestTaskMetricsObserve(t *testing.T) {
	reg := prom.NewRegistry()
	m, err := NewTaskMetrics("", reg, []float64{0.01, 0.1, 1})
	require.NoError(t, err)

	m.ObserveTask("repeating", 5*time.Millisecond)
	m.ObserveTask("repeating", 50*time.Millisecond)
	m.ObserveTask("", time.Millisecond)

	assert.Equal(t, 2, testutil.CollectAndCount(m.taskDurationSeconds))

	var nilMetrics *TaskMetrics
	nilMetrics.ObserveTask("once", time.Second)
}

func TestRegisterCollectorReturnsExisting(t *testing.T) {
	reg := prom.NewRegistry()
	first, err := NewTaskMetrics("ns", reg, nil)
	require.NoError(t, err)
	second, err := NewTaskMetrics("ns", reg, nil)
	require.NoError(t, err)
	assert.Same(t, first.taskDurationSeconds, second.taskDurationSeconds)
}
