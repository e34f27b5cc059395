package matching

import (
	"strings"

	"github.com/getpactd/pactd/pkg/contract"
)

// MatchResponse compares a provider's actual response against the expected
// response half of an interaction. The returned list is empty when
// everything matched. Unexpected headers and body keys in the actual
// response are allowed; providers may always return more than the consumer
// cares about.
func MatchResponse(expected contract.Response, actual contract.Response) []Mismatch {
	var out []Mismatch

	if !statusMatches(expected, actual.Status) {
		out = append(out, statusMismatch(expected.Status, actual.Status))
	}

	out = append(out, matchHeaders(expected.Headers, actual.Headers, expected.Rules)...)
	out = append(out, matchBodies(expected.Body, actual.Body, expected.Rules, true)...)
	return out
}

func statusMatches(expected contract.Response, actual int) bool {
	if rl, ok := expected.Rules.Lookup("status", ""); ok {
		return applyRules(rl, expected.Status, actual)
	}
	return expected.Status == actual
}

// matchHeaders checks every expected header against the actual set. Header
// names compare case-insensitively; values compare per part after splitting.
func matchHeaders(expected, actual map[string][]string, rules contract.RuleSet) []Mismatch {
	if len(expected) == 0 {
		return nil
	}

	lowered := make(map[string][]string, len(actual))
	for name, values := range actual {
		lowered[strings.ToLower(name)] = values
	}

	var out []Mismatch
	for name, evalues := range expected {
		avalues, present := lowered[strings.ToLower(name)]
		if !present {
			out = append(out, missingHeaderMismatch(name, strings.Join(evalues, ", ")))
			continue
		}
		if rl, ok := lookupRule(rules, "header", name); ok {
			if !applyRules(rl, strings.Join(evalues, ", "), strings.Join(avalues, ", ")) {
				out = append(out, headerMismatch(name, strings.Join(evalues, ", "), strings.Join(avalues, ", ")))
			}
			continue
		}
		if !headerValuesMatch(evalues, avalues) {
			out = append(out, headerMismatch(name, strings.Join(evalues, ", "), strings.Join(avalues, ", ")))
		}
	}
	return out
}

func headerValuesMatch(expected, actual []string) bool {
	if len(expected) > len(actual) {
		return false
	}
	for i, ev := range expected {
		if !strings.EqualFold(strings.TrimSpace(ev), strings.TrimSpace(actual[i])) {
			return false
		}
	}
	return true
}

// MatchMessage compares actual message contents and metadata against an
// expected message.
func MatchMessage(expected *contract.Message, contents contract.Body, metadata map[string]any) []Mismatch {
	var out []Mismatch

	for _, key := range expected.MetadataKeys() {
		if strings.EqualFold(key, "contentType") {
			continue
		}
		want := expected.MetadataString(key)
		got, present := metadata[key]
		if !present {
			out = append(out, Mismatch{
				Kind:     KindMetadata,
				Path:     key,
				Expected: want,
				Message:  "expected metadata key " + key + " but it was missing",
			})
			continue
		}
		if rl, ok := lookupRule(expected.Rules, "metadata", key); ok {
			if !applyRules(rl, want, got) {
				out = append(out, Mismatch{
					Kind:     KindMetadata,
					Path:     key,
					Expected: want,
					Actual:   valueString(got),
					Message:  "metadata key " + key + " does not satisfy its matching rules",
				})
			}
			continue
		}
		if valueString(got) != want {
			out = append(out, Mismatch{
				Kind:     KindMetadata,
				Path:     key,
				Expected: want,
				Actual:   valueString(got),
				Message:  "metadata key " + key + " does not match",
			})
		}
	}

	out = append(out, matchBodies(expected.Contents, contents, expected.Rules, true)...)
	return out
}
