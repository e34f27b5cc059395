// Package logging provides the process-wide diagnostics sink.
//
// The engine logs through log/slog. Host runtimes embedding the engine have
// no access to Go loggers, so this package exposes a sink that is configured
// through the boundary in three steps: InitSink to start a configuration,
// AttachSink (one or more times) to add targets with a minimum level, and
// ApplySink to install the sink. ApplySink succeeds at most once per process;
// a second call returns ErrSinkConfigured rather than silently installing a
// competing sink.
//
// Supported targets are standard streams, files, an in-memory ring buffer
// that callers can drain through FetchBuffer, and a caller-supplied callback
// that receives each event as a value.
//
// Events carry the label of the task that produced them. Ordering is causal
// within one task; no total order is promised across concurrently running
// tasks.
package logging
