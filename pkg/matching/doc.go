// Package matching compares expected interaction content against what was
// actually observed, producing an ordered list of mismatches.
//
// Two entry points exist. MatchResponse checks a provider's actual response
// against the response half of an interaction and is used by the verifier.
// MatchRequest scores an incoming request against the request half and is
// used by the mock server to pick the best candidate interaction and to
// report why near misses failed.
//
// Body comparison dispatches on content type: JSON bodies are compared
// structurally with JSONPath mismatch locations, XML bodies are compared
// element-wise, GraphQL queries are normalized before comparison so
// formatting differences don't fail a match, and anything else is compared
// byte for byte.
//
// Matching rules attached to the interaction relax the comparison at the
// paths they name: type, regex, integer, decimal, number and equality kinds
// are honoured, with min/max bounds on collections. This is deliberately the
// working subset the verifier and mock server need, not the full rule
// algebra of the specification.
package matching
