package clockwork

import (
	"runtime"
	"runtime/debug"
)

// ControlHandle stops and joins a Host running on its own thread.
type ControlHandle struct {
	handle Handle
	done   chan struct{}
	err    error
}

// Spawn starts h on a new goroutine locked to a dedicated OS thread and
// returns immediately. The thread exits with the host.
func Spawn(h *Host) *ControlHandle {
	c := &ControlHandle{handle: h.Handle(), done: make(chan struct{})}
	go func() {
		// Never unlocked: the OS thread is discarded when this goroutine returns.
		runtime.LockOSThread()
		defer close(c.done)
		defer func() {
			if r := recover(); r != nil {
				c.err = &PanicError{Value: r, Stack: debug.Stack()}
			}
		}()
		c.err = h.Start()
	}()
	return c
}

// SpawnRunnable hosts app on rt in a new thread.
func SpawnRunnable(rt *Runtime, app Runnable, opts ...HostOption) *ControlHandle {
	return Spawn(NewHost(rt, app, opts...))
}

// SpawnFunc hosts a setup function on rt in a new thread.
func SpawnFunc(rt *Runtime, setup func(h Handle), opts ...HostOption) *ControlHandle {
	return SpawnRunnable(rt, RunnableFunc(setup), opts...)
}

// SpawnFromConfig builds a host like NewHostFromConfig and spawns it.
func SpawnFromConfig[C any, T any, P interface {
	*T
	App[C]
}](cfg AppConfig[C], opts ...HostOption) (*ControlHandle, error) {
	h, err := NewHostFromConfig[C, T, P](cfg, opts...)
	if err != nil {
		return nil, err
	}
	return Spawn(h), nil
}

// Handle returns the handle shared with the hosted application.
func (c *ControlHandle) Handle() Handle { return c.handle }

// Stop raises the stop signal. Whether the thread then exits depends on the
// application honouring it.
func (c *ControlHandle) Stop() { c.handle.Stop() }

// Joinable reports whether a stop was requested. It does not mean the thread
// has exited; Join may still block.
func (c *ControlHandle) Joinable() bool { return c.handle.Stopped() }

// Done is closed when the thread has exited.
func (c *ControlHandle) Done() <-chan struct{} { return c.done }

// Join blocks until the thread exits and returns the host's result. A panic
// on the thread is returned as a *PanicError matching ErrThreadPanicked.
// Join may be called more than once.
func (c *ControlHandle) Join() error {
	<-c.done
	return c.err
}

// StopAndJoin is Stop followed by Join. It blocks forever if the application
// ignores the stop signal.
func (c *ControlHandle) StopAndJoin() error {
	c.Stop()
	return c.Join()
}
