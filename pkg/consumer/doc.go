// Package consumer builds pacts from the consumer's side of a contract.
//
// A PactBuilder collects interactions described fluently through
// InteractionBuilder (given / upon receiving / with request / will respond
// with) and MessageBuilder for asynchronous messages. The finished pact can
// be written to disk or bound to a live mock server that stands in for the
// provider while the consumer's tests run.
package consumer
