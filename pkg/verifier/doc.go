// Package verifier replays pact interactions against a running provider.
//
// A Verifier is configured with the provider's transport, one or more pact
// sources (files, directories, URLs, a broker), and optional provider-state
// hooks, then executed once. Every interaction is exercised regardless of
// how its siblings fare; the result lists each interaction's outcome so a
// failing run still tells the whole story.
package verifier
