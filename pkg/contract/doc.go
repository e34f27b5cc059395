// Package contract defines the pact document model: pacticipants,
// request/response interactions, asynchronous messages, provider states,
// matching-rule carriers, and the JSON encoding rules for V2/V3 pact files.
//
// The package is data only. Rule evaluation lives in pkg/matching and the
// workflows that exercise interactions live in pkg/verifier and
// pkg/mockserver; both consume the types defined here.
//
// Loading goes through Load/LoadFile, which validate the document against an
// embedded JSON schema before decoding, so malformed files fail early with a
// pointed diagnostic instead of surfacing as odd mismatches later. Writing
// goes through WriteFile, which merges with an existing file on disk:
// an interaction replaces a previous one with the same description and
// provider states, everything else is kept.
package contract
