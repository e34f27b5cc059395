// Package mockserver serves a pact's interactions as a live HTTP endpoint.
//
// A Server stands in for the provider during consumer tests: each incoming
// request is matched against the pact's expected requests, the best-scoring
// interaction's response is played back, and everything observed is recorded.
// After the test run, Matched reports whether every interaction was exercised
// cleanly, MismatchesJSON explains what went wrong, and WritePact persists
// the contract once it has been fully honoured.
package mockserver
