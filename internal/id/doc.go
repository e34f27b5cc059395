// Package id provides unique identifier generation utilities.
//
// This is the canonical source for ID generation across the pactd codebase.
// It provides two ID formats:
//
//   - UUID: Standard UUID v4 (random), used as interaction keys so a
//     regenerated pact file keeps stable references to its interactions
//   - Short: 16-character hex IDs for user-facing contexts where brevity
//     matters, such as task labels in log output
//
// All ID generation functions use crypto/rand for secure randomness.
//
// Handle numbering for the boundary surface does NOT live here; handles are
// monotonic process-local integers owned by pkg/bridge.
package id
