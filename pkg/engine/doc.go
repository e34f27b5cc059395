// Package engine runs workflows on a process-shared pool of workers.
//
// The scheduler exists so that a caller with no notion of the engine's
// internal concurrency can drive it through plain blocking calls: Run
// submits a task and parks the calling goroutine until the task's result
// comes back. Workflows that need internal parallelism fan out underneath
// a single Run call; nothing asynchronous ever crosses back to the caller.
//
// One scheduler serves the whole process. It is built lazily on first use
// and torn down by Shutdown, which drains in-flight tasks and rejects new
// ones. Teardown followed by another Run builds a fresh scheduler, which
// keeps restart well-defined in tests.
package engine
