// Package bridge is the stable boundary through which host runtimes drive
// the engine.
//
// Callers never touch engine objects directly: every session (a verifier,
// a mock server, a pact or message under construction) lives behind an
// opaque numeric handle issued by a process-wide registry. Boundary
// functions take a handle and primitive arguments, return an integer
// status, and block until their work is done; nothing asynchronous and no
// panic ever crosses the boundary. A caller that holds only integers and
// strings can therefore drive the whole engine from any runtime, checking
// the status after each call and consulting LastError for detail.
//
// Handles are allocated monotonically and never reused, so a stale handle
// held after shutdown can never alias a newer session; it just resolves to
// StatusInvalidHandle.
package bridge
