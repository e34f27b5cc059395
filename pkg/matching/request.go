package matching

import (
	"fmt"
	"strings"

	"github.com/getpactd/pactd/pkg/contract"
)

// Match score constants for request matching. Higher scores indicate more
// specific matches; the mock server picks the highest-scoring interaction.
const (
	ScoreMethod = 10
	ScorePath   = 15
	ScoreQuery  = 5
	ScoreHeader = 10
	ScoreBody   = 20
)

// RequestMatch is the outcome of matching one incoming request against one
// interaction's expected request.
type RequestMatch struct {
	// Matched is true when no mismatches were found.
	Matched bool

	// Score ranks candidate interactions; only meaningful when comparing
	// outcomes for the same incoming request.
	Score int

	// Mismatches lists what differed, for near-miss diagnostics.
	Mismatches []Mismatch
}

// MatchRequest compares an incoming request against the expected request
// half of an interaction. Unlike response matching, unexpected JSON body
// keys are mismatches: a consumer sending fields the contract doesn't
// declare is a contract violation.
func MatchRequest(expected contract.Request, method, path string, query map[string][]string, headers map[string][]string, body contract.Body) RequestMatch {
	var out []Mismatch
	score := 0

	if strings.EqualFold(expected.Method, method) {
		score += ScoreMethod
	} else {
		out = append(out, Mismatch{
			Kind:     KindMethod,
			Expected: expected.Method,
			Actual:   method,
			Message:  fmt.Sprintf("expected method %s but was %s", expected.Method, method),
		})
	}

	if pathMatches(expected, path) {
		score += ScorePath
	} else {
		out = append(out, Mismatch{
			Kind:     KindPath,
			Expected: expected.Path,
			Actual:   path,
			Message:  fmt.Sprintf("expected path %s but was %s", expected.Path, path),
		})
	}

	out = append(out, matchQuery(expected, query)...)
	if len(out) == 0 {
		score += ScoreQuery * len(expected.Query)
	}

	headerMismatches := matchHeaders(expected.Headers, headers, expected.Rules)
	out = append(out, headerMismatches...)
	if len(headerMismatches) == 0 {
		score += ScoreHeader * len(expected.Headers)
	}

	bodyMismatches := matchBodies(expected.Body, body, expected.Rules, false)
	out = append(out, bodyMismatches...)
	if len(bodyMismatches) == 0 && expected.Body.IsPresent() {
		score += ScoreBody
	}

	return RequestMatch{Matched: len(out) == 0, Score: score, Mismatches: out}
}

func pathMatches(expected contract.Request, path string) bool {
	if rl, ok := expected.Rules.Lookup("path", ""); ok {
		return applyRules(rl, expected.Path, path)
	}
	return expected.Path == path
}

// matchQuery checks expected query parameters. Parameters sent but not
// expected are mismatches, mirroring the strictness of request bodies.
func matchQuery(expected contract.Request, actual map[string][]string) []Mismatch {
	var out []Mismatch

	for name, evalues := range expected.Query {
		avalues, present := actual[name]
		if !present {
			out = append(out, Mismatch{
				Kind:     KindQuery,
				Path:     name,
				Expected: strings.Join(evalues, ", "),
				Message:  fmt.Sprintf("expected query parameter %q but it was missing", name),
			})
			continue
		}
		if rl, ok := lookupRule(expected.Rules, "query", name); ok {
			if !applyRules(rl, strings.Join(evalues, ","), strings.Join(avalues, ",")) {
				out = append(out, queryValueMismatch(name, evalues, avalues))
			}
			continue
		}
		if !stringSlicesEqual(evalues, avalues) {
			out = append(out, queryValueMismatch(name, evalues, avalues))
		}
	}

	for name, avalues := range actual {
		if _, present := expected.Query[name]; !present {
			out = append(out, Mismatch{
				Kind:    KindQuery,
				Path:    name,
				Actual:  strings.Join(avalues, ", "),
				Message: fmt.Sprintf("unexpected query parameter %q", name),
			})
		}
	}
	return out
}

func queryValueMismatch(name string, expected, actual []string) Mismatch {
	return Mismatch{
		Kind:     KindQuery,
		Path:     name,
		Expected: strings.Join(expected, ", "),
		Actual:   strings.Join(actual, ", "),
		Message:  fmt.Sprintf("query parameter %q does not match", name),
	}
}

func stringSlicesEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
