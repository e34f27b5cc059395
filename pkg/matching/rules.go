package matching

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/getpactd/pactd/pkg/contract"
)

// lookupRule finds the rule list governing a body path. Exact paths win;
// otherwise a rule path containing wildcards ([*] for any index, .* for any
// key) is matched segment-wise against the concrete path.
func lookupRule(rules contract.RuleSet, category, path string) (contract.RuleList, bool) {
	if rl, ok := rules.Lookup(category, path); ok {
		return rl, true
	}
	paths, ok := rules[category]
	if !ok {
		return contract.RuleList{}, false
	}
	for rulePath, rl := range paths {
		if wildcardPathMatches(rulePath, path) {
			return rl, true
		}
	}
	return contract.RuleList{}, false
}

func wildcardPathMatches(rulePath, path string) bool {
	if !strings.ContainsAny(rulePath, "*") {
		return false
	}
	rp := splitPath(rulePath)
	cp := splitPath(path)
	if len(rp) != len(cp) {
		return false
	}
	for i := range rp {
		if rp[i] == "*" {
			continue
		}
		if rp[i] != cp[i] {
			return false
		}
	}
	return true
}

// splitPath breaks "$.items[*].id" into ["$", "items", "*", "id"].
func splitPath(p string) []string {
	var out []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			out = append(out, cur.String())
			cur.Reset()
		}
	}
	for i := 0; i < len(p); i++ {
		switch p[i] {
		case '.':
			flush()
		case '[':
			flush()
		case ']':
			flush()
		default:
			cur.WriteByte(p[i])
		}
	}
	flush()
	return out
}

// applyRules checks actual against expected under a rule list. The combine
// mode is AND unless the list says OR.
func applyRules(rl contract.RuleList, expected, actual any) bool {
	if len(rl.Matchers) == 0 {
		return valuesEqual(expected, actual)
	}
	or := strings.EqualFold(rl.Combine, "OR")
	for _, r := range rl.Matchers {
		ok := applyRule(r, expected, actual)
		if or && ok {
			return true
		}
		if !or && !ok {
			return false
		}
	}
	return !or
}

func applyRule(r contract.Rule, expected, actual any) bool {
	switch strings.ToLower(r.Match) {
	case "regex":
		re, err := regexp.Compile(r.Regex)
		if err != nil {
			return false
		}
		return re.MatchString(valueString(actual))
	case "type":
		if !sameJSONType(expected, actual) {
			return false
		}
		if arr, ok := actual.([]any); ok {
			if r.Min > 0 && len(arr) < r.Min {
				return false
			}
			if r.Max > 0 && len(arr) > r.Max {
				return false
			}
		}
		return true
	case "integer":
		n, ok := asNumber(actual)
		if !ok {
			return false
		}
		return n == float64(int64(n))
	case "decimal":
		n, ok := asNumber(actual)
		if !ok {
			return false
		}
		return n != float64(int64(n))
	case "number":
		_, ok := asNumber(actual)
		return ok
	case "equality", "":
		return valuesEqual(expected, actual)
	default:
		// Unknown rule kinds fall back to equality rather than silently
		// passing everything.
		return valuesEqual(expected, actual)
	}
}

func sameJSONType(expected, actual any) bool {
	switch expected.(type) {
	case nil:
		return actual == nil
	case bool:
		_, ok := actual.(bool)
		return ok
	case string:
		_, ok := actual.(string)
		return ok
	case map[string]any:
		_, ok := actual.(map[string]any)
		return ok
	case []any:
		_, ok := actual.([]any)
		return ok
	default:
		_, ok := asNumber(actual)
		if !ok {
			return false
		}
		_, ok = asNumber(expected)
		return ok
	}
}

func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func valuesEqual(expected, actual any) bool {
	if en, ok := asNumber(expected); ok {
		an, ok := asNumber(actual)
		return ok && en == an
	}
	switch e := expected.(type) {
	case nil:
		return actual == nil
	case bool:
		a, ok := actual.(bool)
		return ok && a == e
	case string:
		a, ok := actual.(string)
		return ok && a == e
	default:
		eRaw, err1 := json.Marshal(expected)
		aRaw, err2 := json.Marshal(actual)
		return err1 == nil && err2 == nil && string(eRaw) == string(aRaw)
	}
}

func valueString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case json.Number:
		return s.String()
	case nil:
		return ""
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(raw)
	}
}
