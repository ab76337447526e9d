package clockwork

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"clockwork/internal/observability/metrics"
	"clockwork/internal/observability/server"
	"clockwork/pkg/logx"
	"clockwork/pkg/systemd"
)

// Host drives one application through Setup, Run and Shutdown on a Runtime.
// A Host runs once; a stopped application is never resumed.
type Host struct {
	rt  *Runtime
	app Runnable
	log logx.Logger

	logging  *logx.Service
	obsCfg   *ObservabilityConfig
	signals  bool
	notifier systemd.Notifier

	started atomic.Bool
	phase   atomic.Int32

	mu  sync.Mutex
	obs *server.Service
}

type HostOption func(*Host)

// WithLogging makes the host activate svc before Setup and close it (flushing
// buffered lines) after the runtime is torn down.
func WithLogging(svc *logx.Service) HostOption {
	return func(h *Host) { h.logging = svc }
}

// WithSignals overrides whether SIGINT/SIGTERM raise the stop signal.
// The default follows runtime.enable_io.
func WithSignals(enabled bool) HostOption {
	return func(h *Host) { h.signals = enabled }
}

// WithObservability serves health, metrics and pprof while the host runs.
func WithObservability(cfg ObservabilityConfig) HostOption {
	return func(h *Host) { h.obsCfg = &cfg }
}

func WithHostLogger(log logx.Logger) HostOption {
	return func(h *Host) { h.log = log }
}

// NewHost composes rt and app. It panics on nil arguments.
func NewHost(rt *Runtime, app Runnable, opts ...HostOption) *Host {
	if rt == nil || app == nil {
		panic("clockwork: NewHost requires a runtime and an app")
	}
	h := &Host{
		rt:      rt,
		app:     app,
		log:     logx.Default().With(logx.String("comp", "host"), logx.String("runtime", rt.ID()[:8])),
		signals: rt.Config().EnableIO,
	}
	for _, o := range opts {
		if o != nil {
			o(h)
		}
	}
	return h
}

func (h *Host) Handle() Handle { return h.rt.Handle() }

func (h *Host) Runtime() *Runtime { return h.rt }

func (h *Host) App() Runnable { return h.app }

func (h *Host) Phase() Phase { return Phase(h.phase.Load()) }

// ObservabilityAddr is the bound address of the observability server, or "".
func (h *Host) ObservabilityAddr() string {
	h.mu.Lock()
	obs := h.obs
	h.mu.Unlock()
	if obs == nil {
		return ""
	}
	return obs.Addr()
}

func (h *Host) setPhase(p Phase) {
	h.phase.Store(int32(p))
	h.log.Debug("phase", logx.String("phase", p.String()))
}

// Start runs the whole lifecycle on the calling goroutine and returns the Run
// error once Shutdown has completed and the runtime is torn down.
// Panics from Setup or Run propagate to the caller after the runtime is torn
// down; Shutdown is skipped in that case.
func (h *Host) Start() error {
	if !h.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	if h.logging != nil {
		h.logging.Activate()
		defer func() { _ = h.logging.Close() }()
	}
	tornDown := false
	defer func() {
		if !tornDown {
			h.log.Error("app panicked; tearing runtime down")
			h.teardown()
		}
	}()
	h.log.Info("app starting", logx.String("runtime_id", h.rt.ID()), logx.String("app", fmt.Sprintf("%T", h.app)))

	stopObs, err := h.startObservability()
	if err != nil {
		// Observability is optional; the app still runs.
		h.log.Warn("observability disabled", logx.Err(err))
	}
	defer stopObs()

	if h.signals {
		defer h.watchSignals()()
	}
	if d := h.notifier.WatchdogInterval(); d > 0 {
		h.log.Debug("systemd watchdog enabled", logx.Duration("interval", d))
		h.rt.Handle().Spawn(h.notifier.Watchdog)
	}

	h.app.Setup(h.rt.Handle())
	h.setPhase(PhaseSetupDone)
	h.notify("READY", h.notifier.Ready)
	h.notify("STATUS", func() (bool, error) { return h.notifier.Status("running") })

	h.setPhase(PhaseRunning)
	started := time.Now()
	runErr := h.rt.RunToCompletion(func(ctx context.Context) error {
		return runApp(ctx, h.app, h.rt.Handle())
	})
	h.notify("STOPPING", h.notifier.Stopping)

	shutdownApp(h.app)
	h.setPhase(PhaseShutdownDone)

	h.teardown()
	tornDown = true

	snap := h.rt.Snapshot()
	fields := []logx.Field{
		logx.Duration("ran_for", time.Since(started)),
		logx.Uint64("units_started", snap.UnitsStarted),
		logx.Uint64("unit_panics", snap.UnitPanics),
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		h.log.Error("app stopped with error", append(fields, logx.Err(runErr))...)
	} else {
		h.log.Info("app stopped", fields...)
	}
	return runErr
}

// teardown closes the runtime, waiting at most ShutdownTimeout for running work.
func (h *Host) teardown() {
	ctx, cancel := context.WithTimeout(context.Background(), h.rt.ShutdownTimeout())
	defer cancel()
	if err := h.rt.Close(ctx); err != nil {
		h.log.Warn("runtime teardown incomplete; tasks still running", logx.Err(err), logx.Duration("timeout", h.rt.ShutdownTimeout()))
	}
}

func (h *Host) notify(what string, send func() (bool, error)) {
	sent, err := send()
	if err != nil {
		h.log.Warn("systemd notify failed", logx.String("state", what), logx.Err(err))
		return
	}
	if sent {
		h.log.Debug("systemd notified", logx.String("state", what))
	}
}

// watchSignals raises the stop signal on SIGINT/SIGTERM until the returned func is called.
func (h *Host) watchSignals() func() {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	done := make(chan struct{})
	go func() {
		select {
		case sig := <-ch:
			h.log.Info("signal received; stopping", logx.String("signal", sig.String()))
			h.rt.Handle().Stop()
		case <-done:
		}
	}()
	return func() {
		signal.Stop(ch)
		close(done)
	}
}

func (h *Host) startObservability() (func(), error) {
	noop := func() {}
	if h.obsCfg == nil || !h.obsCfg.Enabled {
		return noop, nil
	}
	if err := h.obsCfg.Validate(); err != nil {
		return noop, err
	}

	reg := prom.NewRegistry()
	collector := metrics.NewCollector(metrics.DefaultNamespace, h.rt.metricsStats, prom.Labels{"runtime": h.rt.ID()})
	if _, err := metrics.Register(reg, collector); err != nil {
		return noop, err
	}
	tasks, err := metrics.NewTaskMetrics(metrics.DefaultNamespace, reg, nil)
	if err != nil {
		return noop, err
	}
	if err := reg.Register(collectors.NewGoCollector()); err != nil {
		return noop, err
	}
	if err := reg.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
		return noop, err
	}
	h.rt.SetTaskObserver(tasks.ObserveTask)

	health := func() error {
		if h.rt.Handle().Stopped() {
			return errors.New("stopping")
		}
		return nil
	}
	handler := promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
	obs := server.New(*h.obsCfg, handler, health, h.log.With(logx.String("comp", "observability")))
	obs.Start(context.Background())

	h.mu.Lock()
	h.obs = obs
	h.mu.Unlock()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		obs.Stop(ctx)
		h.rt.SetTaskObserver(nil)
		h.mu.Lock()
		h.obs = nil
		h.mu.Unlock()
	}, nil
}
