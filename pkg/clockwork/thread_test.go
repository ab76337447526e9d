package clockwork

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubbornApp ignores the stop signal until release is closed.
type stubbornApp struct {
	release chan struct{}
}

func (a *stubbornApp) Setup(Handle) {}

func (a *stubbornApp) Run(ctx context.Context, h Handle) error {
	<-a.release
	return nil
}

func TestJoinableMeansStopRequested(t *testing.T) {
	t.Parallel()
	app := &stubbornApp{release: make(chan struct{})}
	ctl := SpawnRunnable(NewDefaultRuntime(), app, WithSignals(false))
	assert.False(t, ctl.Joinable())

	ctl.Stop()
	assert.True(t, ctl.Joinable())

	// The thread is still running: stop is only a request.
	select {
	case <-ctl.Done():
		t.Fatal("thread exited before the app returned")
	case <-time.After(50 * time.Millisecond):
	}

	close(app.release)
	require.NoError(t, ctl.Join())
	assert.True(t, ctl.Joinable())
}

func TestStopAndJoin(t *testing.T) {
	t.Parallel()
	var rec recorder
	ctl := SpawnFunc(NewDefaultRuntime(), func(h Handle) {
		h.ScheduleRepeating(func() { rec.add("tick") }, time.Now(), 10*time.Millisecond)
	}, WithSignals(false))

	require.Eventually(t, func() bool { return rec.len() >= 2 }, time.Second, 5*time.Millisecond)
	require.NoError(t, ctl.StopAndJoin())

	settled := rec.len()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, settled, rec.len())
}

type panickyApp struct{}

func (panickyApp) Setup(Handle) {}

func (panickyApp) Run(context.Context, Handle) error { panic("thread boom") }

func TestJoinReportsThreadPanic(t *testing.T) {
	t.Parallel()
	ctl := SpawnRunnable(NewDefaultRuntime(), panickyApp{}, WithSignals(false))

	err := ctl.Join()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrThreadPanicked)

	var pe *PanicError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "thread boom", pe.Value)
	assert.NotEmpty(t, pe.Stack)
	assert.Contains(t, err.Error(), "thread boom")

	// Join is repeatable.
	assert.Equal(t, err, ctl.Join())
	assert.Equal(t, err, ctl.StopAndJoin())
}

func TestThreadPanicTearsRuntimeDown(t *testing.T) {
	t.Parallel()
	rt := NewDefaultRuntime()
	var fired atomic.Int64
	app := &phaseApp{rec: &recorder{}}
	app.setup = func(h Handle) {
		h.ScheduleRepeating(func() { fired.Add(1) }, time.Now(), 10*time.Millisecond)
	}
	app.run = func(context.Context, Handle) error {
		time.Sleep(30 * time.Millisecond)
		panic("boom")
	}
	ctl := SpawnRunnable(rt, app, WithSignals(false))

	err := ctl.Join()
	require.ErrorIs(t, err, ErrThreadPanicked)
	assert.True(t, rt.Closed())
	assert.Zero(t, rt.Snapshot().UnitsActive)
	// Shutdown is skipped when Run panics.
	assert.Zero(t, app.rec.count("shutdown"))

	before := fired.Load()
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, before, fired.Load())
}

func TestPanicErrorUnwrapsErrorValues(t *testing.T) {
	t.Parallel()
	cause := errors.New("root cause")
	pe := &PanicError{Value: cause}
	assert.ErrorIs(t, pe, cause)
	assert.ErrorIs(t, pe, ErrThreadPanicked)
	assert.Nil(t, (&PanicError{Value: 42}).Unwrap())
}

func TestJoinReturnsRunError(t *testing.T) {
	t.Parallel()
	want := errors.New("gave up")
	app := &phaseApp{rec: &recorder{}, run: func(context.Context, Handle) error { return want }}
	ctl := Spawn(NewHost(NewDefaultRuntime(), app, WithSignals(false)))

	assert.Equal(t, want, ctl.Join())
	assert.False(t, ctl.Joinable())
}

func TestSpawnFromConfig(t *testing.T) {
	t.Parallel()
	cfg, err := DecodeConfig[greeterConfig]([]byte(`{"app":{"greeting":"hey","names":["lin"]}}`), FormatJSON)
	require.NoError(t, err)

	ctl, err := SpawnFromConfig[greeterConfig, greeterApp](cfg, WithSignals(false))
	require.NoError(t, err)
	require.NoError(t, ctl.Join())
	assert.True(t, ctl.Handle().Stopped())

	cfg.Runtime.MaxThreads = -1
	_, err = SpawnFromConfig[greeterConfig, greeterApp](cfg)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
