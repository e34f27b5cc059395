// Package cli provides the command-line interface for pactd.
//
// The cli package implements the pactd commands:
//   - verify: Replay consumer contracts against a running provider
//   - mock: Serve a pact file as a mock provider for consumer tests
//   - version: Show pactd version
//
// Commands drive the engine through the pkg/bridge boundary, so the CLI
// exercises exactly the surface an embedding host runtime sees.
//
// The verify command accepts contracts from local files and directories,
// plain URLs, and a pact broker, and can be configured via flags or a
// YAML file (--config). The mock command serves one pact document and
// reports unmatched or missing requests when it stops.
//
// Usage:
//
//	pactd verify --provider order-api --port 8080 --dir ./pacts
//	pactd verify --config verify.yaml
//	pactd mock ./pacts/web-order-api.json --port 1234
//	pactd version
package cli
