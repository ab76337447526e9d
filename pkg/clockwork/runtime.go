package clockwork

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"clockwork/internal/observability/metrics"
	rtsup "clockwork/internal/runtime/supervisor"
	"clockwork/pkg/logx"
)

// TaskObserver is told how long each task execution took.
// kind is one of "repeating", "once", "spawn" or "cron".
type TaskObserver func(kind string, d time.Duration)

// Runtime owns the goroutines that execute scheduled work.
//
// Every unit of work runs on its own goroutine under a supervisor; at most
// max_threads of them execute at the same time. A panicking unit is
// recovered, logged and counted, and never retried.
type Runtime struct {
	id       string
	cfg      RuntimeConfig
	settings runtimeSettings
	log      logx.Logger

	sup  *rtsup.Supervisor
	sem  *semaphore.Weighted
	stop *StopSignal

	closed   atomic.Bool
	observer atomic.Pointer[TaskObserver]

	firings     atomic.Uint64
	onceRuns    atomic.Uint64
	onceDropped atomic.Uint64
}

// Snapshot is a point-in-time view of a runtime for logs and metrics.
type Snapshot struct {
	ID               string `json:"id"`
	StopRequested    bool   `json:"stop_requested"`
	Closed           bool   `json:"closed"`
	UnitsActive      int64  `json:"units_active"`
	UnitsStarted     uint64 `json:"units_started"`
	UnitPanics       uint64 `json:"unit_panics"`
	RepeatingFirings uint64 `json:"repeating_firings"`
	OnceRuns         uint64 `json:"once_runs"`
	OnceDropped      uint64 `json:"once_dropped"`
	FirstError       string `json:"first_error,omitempty"`
	// Units breaks the unit counters down by kind, active kinds first.
	Units []UnitStats `json:"units,omitempty"`
}

// UnitStats aggregates the units of one kind.
type UnitStats struct {
	Kind         string        `json:"kind"`
	Active       int64         `json:"active"`
	Started      uint64        `json:"started"`
	Panics       uint64        `json:"panics"`
	LastPanic    string        `json:"last_panic,omitempty"`
	TotalRuntime time.Duration `json:"total_runtime"`
}

type Option func(*Runtime)

func WithLogger(log logx.Logger) Option {
	return func(r *Runtime) { r.log = log }
}

// WithTaskObserver installs obs at construction; see SetTaskObserver.
func WithTaskObserver(obs TaskObserver) Option {
	return func(r *Runtime) { r.SetTaskObserver(obs) }
}

// NewRuntime validates cfg and builds a runtime.
func NewRuntime(cfg RuntimeConfig, opts ...Option) (*Runtime, error) {
	settings, err := cfg.settings()
	if err != nil {
		return nil, err
	}
	id := uuid.NewString()
	r := &Runtime{
		id:       id,
		cfg:      cfg,
		settings: settings,
		log:      logx.Default().With(logx.String("comp", "runtime"), logx.String("runtime", id[:8])),
		sem:      semaphore.NewWeighted(int64(cfg.MaxThreads)),
		stop:     NewStopSignal(),
	}
	for _, o := range opts {
		if o != nil {
			o(r)
		}
	}
	r.sup = rtsup.NewSupervisor(context.Background(), rtsup.WithLogger(r.log))
	r.log.Debug("runtime created",
		logx.Bool("enable_io", cfg.EnableIO),
		logx.Bool("enable_time", cfg.EnableTime),
		logx.Int("max_threads", cfg.MaxThreads),
		logx.Duration("shutdown_timeout", settings.shutdownTimeout),
	)
	return r, nil
}

// MustRuntime is NewRuntime for startup code: an invalid config panics.
func MustRuntime(cfg RuntimeConfig, opts ...Option) *Runtime {
	r, err := NewRuntime(cfg, opts...)
	if err != nil {
		panic(fmt.Sprintf("clockwork: cannot build runtime: %v", err))
	}
	return r
}

// NewDefaultRuntime builds a runtime from DefaultRuntimeConfig.
func NewDefaultRuntime(opts ...Option) *Runtime {
	return MustRuntime(DefaultRuntimeConfig(), opts...)
}

func (r *Runtime) ID() string { return r.id }

func (r *Runtime) Config() RuntimeConfig { return r.cfg }

// ShutdownTimeout is the parsed runtime.shutdown_timeout.
func (r *Runtime) ShutdownTimeout() time.Duration { return r.settings.shutdownTimeout }

// Handle returns a handle sharing this runtime and its stop signal.
func (r *Runtime) Handle() Handle { return Handle{rt: r, stop: r.stop} }

// SetTaskObserver replaces the task observer; nil removes it.
func (r *Runtime) SetTaskObserver(obs TaskObserver) {
	if obs == nil {
		r.observer.Store(nil)
		return
	}
	r.observer.Store(&obs)
}

// RunToCompletion runs fn on the calling goroutine and blocks until it returns.
// ctx is cancelled when the runtime is closed. Panics in fn reach the caller.
func (r *Runtime) RunToCompletion(fn func(ctx context.Context) error) error {
	if r.closed.Load() {
		return ErrRuntimeClosed
	}
	return fn(r.sup.Context())
}

// Close tears the runtime down: pending one-shot tasks are dropped, repeating
// tasks end at their next wait and spawned work sees its context cancelled.
// It waits for running work until ctx is done. Close does not raise the stop signal.
func (r *Runtime) Close(ctx context.Context) error {
	if r.closed.CompareAndSwap(false, true) {
		r.log.Debug("runtime closing", logx.Int64("active", r.sup.Counters().Active))
	}
	if err := r.sup.Stop(ctx); err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return fmt.Errorf("clockwork: runtime teardown: %w", err)
	}
	// Panics were already logged and counted; they do not fail teardown.
	return nil
}

// Closed reports whether Close was called.
func (r *Runtime) Closed() bool { return r.closed.Load() }

func (r *Runtime) Snapshot() Snapshot {
	ss := r.sup.Snapshot()
	c := ss.Counters
	s := Snapshot{
		ID:               r.id,
		StopRequested:    r.stop.Raised(),
		Closed:           r.closed.Load(),
		UnitsActive:      c.Active,
		UnitsStarted:     c.Started,
		UnitPanics:       c.Panics,
		RepeatingFirings: r.firings.Load(),
		OnceRuns:         r.onceRuns.Load(),
		OnceDropped:      r.onceDropped.Load(),
		FirstError:       ss.FirstError,
	}
	for _, g := range ss.Goroutines {
		s.Units = append(s.Units, UnitStats{
			Kind:         g.Name,
			Active:       g.Active,
			Started:      g.Started,
			Panics:       g.Panics,
			LastPanic:    g.LastPanic,
			TotalRuntime: g.TotalRuntime,
		})
	}
	return s
}

func (r *Runtime) metricsStats() metrics.Stats {
	s := r.Snapshot()
	return metrics.Stats{
		UnitsActive:      s.UnitsActive,
		UnitsStarted:     s.UnitsStarted,
		UnitPanics:       s.UnitPanics,
		RepeatingFirings: s.RepeatingFirings,
		OnceRuns:         s.OnceRuns,
		OnceDropped:      s.OnceDropped,
		StopRequested:    s.StopRequested,
	}
}

func (r *Runtime) requireTime() {
	if !r.cfg.EnableTime {
		panic(ErrTimersDisabled)
	}
}

// launch hands fn to the supervisor. It reports false when the runtime is closed.
func (r *Runtime) launch(kind string, fn func(ctx context.Context)) bool {
	if r.sup.Go0(kind, fn) {
		return true
	}
	r.log.Debug("runtime closed; work dropped", logx.String("kind", kind))
	return false
}

// execute runs one task under a worker permit. It reports false when the
// runtime was torn down before a permit became available.
func (r *Runtime) execute(ctx context.Context, kind string, task func()) bool {
	if err := r.sem.Acquire(ctx, 1); err != nil {
		return false
	}
	defer r.sem.Release(1)

	if obs := r.observer.Load(); obs != nil {
		start := time.Now()
		defer func() { (*obs)(kind, time.Since(start)) }()
	}
	task()
	return true
}
