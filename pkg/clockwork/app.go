package clockwork

import (
	"context"
	"fmt"
)

// Runnable is the mandatory part of an application: Setup schedules work and
// returns promptly. It must not block waiting for the application to finish.
type Runnable interface {
	Setup(h Handle)
}

// Runner is implemented by applications that drive their own run phase.
// Run blocks until the application is done; ctx is cancelled on runtime teardown.
// Applications without Run use DefaultRun.
type Runner interface {
	Run(ctx context.Context, h Handle) error
}

// Shutdowner is implemented by applications that clean up after Run returns.
type Shutdowner interface {
	Shutdown()
}

// Configurable builds an application from its decoded "app" section.
// Decoding errors are rejected before Configure is called.
type Configurable[C any] interface {
	Configure(cfg C)
}

// App is an application that can be built from configuration and hosted.
type App[C any] interface {
	Runnable
	Configurable[C]
}

// RunnableFunc adapts a setup function to Runnable.
type RunnableFunc func(h Handle)

func (f RunnableFunc) Setup(h Handle) { f(h) }

// DefaultRun waits until the stop signal is raised. It returns ctx.Err()
// if the runtime is torn down first.
func DefaultRun(ctx context.Context, h Handle) error {
	for !h.Stopped() {
		select {
		case <-h.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func runApp(ctx context.Context, app Runnable, h Handle) error {
	if r, ok := app.(Runner); ok {
		return r.Run(ctx, h)
	}
	return DefaultRun(ctx, h)
}

func shutdownApp(app Runnable) {
	if s, ok := app.(Shutdowner); ok {
		s.Shutdown()
	}
}

// Phase is the lifecycle position of a hosted application.
type Phase int32

const (
	PhaseCreated Phase = iota
	PhaseSetupDone
	PhaseRunning
	PhaseShutdownDone
)

func (p Phase) String() string {
	switch p {
	case PhaseCreated:
		return "created"
	case PhaseSetupDone:
		return "setup_done"
	case PhaseRunning:
		return "running"
	case PhaseShutdownDone:
		return "shutdown_done"
	default:
		return fmt.Sprintf("Phase(%d)", int32(p))
	}
}
