package clockwork

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRuntimeConfig(t *testing.T) {
	t.Parallel()
	cfg := DefaultRuntimeConfig()
	assert.True(t, cfg.EnableIO)
	assert.True(t, cfg.EnableTime)
	assert.Equal(t, 512, cfg.MaxThreads)
	assert.NoError(t, cfg.Validate())

	rt := NewDefaultRuntime()
	defer rt.Close(context.Background())
	assert.Equal(t, DefaultShutdownTimeout, rt.ShutdownTimeout())
	assert.Len(t, rt.ID(), 36)
}

func TestRuntimeConfigRejectsInvalidValues(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		mutate func(*RuntimeConfig)
	}{
		{"zero threads", func(c *RuntimeConfig) { c.MaxThreads = 0 }},
		{"negative threads", func(c *RuntimeConfig) { c.MaxThreads = -4 }},
		{"bad timeout", func(c *RuntimeConfig) { c.ShutdownTimeout = "soon" }},
		{"negative timeout", func(c *RuntimeConfig) { c.ShutdownTimeout = "-1s" }},
		{"bad timezone", func(c *RuntimeConfig) { c.Timezone = "Mars/Olympus" }},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultRuntimeConfig()
			tt.mutate(&cfg)
			_, err := NewRuntime(cfg)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestMustRuntimePanicsOnInvalidConfig(t *testing.T) {
	t.Parallel()
	cfg := DefaultRuntimeConfig()
	cfg.MaxThreads = 0
	assert.Panics(t, func() { MustRuntime(cfg) })
}

func TestRunToCompletion(t *testing.T) {
	t.Parallel()
	rt := newTestRuntime(t, nil)

	want := errors.New("app failed")
	assert.Equal(t, want, rt.RunToCompletion(func(context.Context) error { return want }))

	// Teardown cancels the context passed to the blocking function.
	go func() {
		time.Sleep(30 * time.Millisecond)
		_ = rt.Close(context.Background())
	}()
	err := rt.RunToCompletion(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	assert.ErrorIs(t, err, context.Canceled)

	assert.ErrorIs(t, rt.RunToCompletion(func(context.Context) error { return nil }), ErrRuntimeClosed)
	assert.True(t, rt.Closed())
}

func TestCloseDoesNotRaiseStop(t *testing.T) {
	t.Parallel()
	rt := newTestRuntime(t, nil)
	require.NoError(t, rt.Close(context.Background()))
	assert.False(t, rt.Handle().Stopped())
	assert.True(t, rt.Snapshot().Closed)
}

func TestCloseTimesOutOnStuckWork(t *testing.T) {
	t.Parallel()
	rt := newTestRuntime(t, nil)

	release := make(chan struct{})
	started := make(chan struct{})
	rt.Handle().Spawn(func(context.Context) {
		close(started)
		<-release
	})
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := rt.Close(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	require.Eventually(t, func() bool { return rt.Snapshot().UnitsActive == 0 }, time.Second, 5*time.Millisecond)
}

func TestSnapshotCountsUnits(t *testing.T) {
	t.Parallel()
	rt := newTestRuntime(t, nil)
	h := rt.Handle()

	done := make(chan struct{})
	h.Spawn(func(context.Context) { close(done) })
	<-done
	h.Stop()

	require.Eventually(t, func() bool { return rt.Snapshot().UnitsActive == 0 }, time.Second, 5*time.Millisecond)
	snap := rt.Snapshot()
	assert.EqualValues(t, 1, snap.UnitsStarted)
	assert.True(t, snap.StopRequested)
	assert.Empty(t, snap.FirstError)
	require.Len(t, snap.Units, 1)
	assert.Equal(t, UnitStats{Kind: "spawn", Started: 1, TotalRuntime: snap.Units[0].TotalRuntime}, snap.Units[0])

	stats := rt.metricsStats()
	assert.EqualValues(t, 1, stats.UnitsStarted)
	assert.True(t, stats.StopRequested)
}
