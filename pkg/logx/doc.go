// Package logx configures clockwork's structured logging.
//
// This repo uses a small wrapper (logx.Logger) on top of zerolog to keep:
//   - Console output readable (short timestamp + short caller)
//   - JSON output structured for collectors
//   - A non-blocking writer whose lifetime belongs to a Service, not to a global
//
// A Service is the logging collaborator a Host activates once at startup.
// Activation routes logx.Default() (and zerolog's global logger) to the
// service; Close flushes the background writer and undoes the routing.
package logx
