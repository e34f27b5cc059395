// Package plugin drives out-of-process protocol plugins over gRPC.
//
// Interactions that declare a non-HTTP transport are handed to a plugin:
// a separate process discovered through a manifest under the plugin
// directory, reached on its gRPC port. The plugin's protocol schema is
// compiled from its .proto at runtime, so the driver can build request
// messages and decode responses for services it has never seen at compile
// time.
package plugin
