// Package clockwork is a small application scaffold around a scheduling runtime.
//
// A Runtime owns the goroutines that execute scheduled work and a StopSignal
// shared by every Handle derived from it. Applications implement Runnable
// (and usually Configurable) and are driven through three phases by a Host:
//
//	Setup(handle)      schedule work, return promptly
//	Run(ctx, handle)   optional; defaults to waiting for the stop signal
//	Shutdown()         optional; always called once Run returns
//
// Stopping is cooperative. Handle.Stop raises the signal; repeating tasks
// observe it at their next check and a Run implementation is expected to
// watch Handle.Done or Handle.Stopped. Nothing is ever interrupted.
//
// Spawn runs a Host on a dedicated OS thread and returns a ControlHandle that
// can stop and join it from elsewhere.
package clockwork
