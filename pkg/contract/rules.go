package contract

import "encoding/json"

// Rule is a single matching rule attached to a path inside an interaction
// part. Only the fields relevant to the rule's Match kind are set.
type Rule struct {
	// Match is the rule kind: "equality", "type", "regex", "integer",
	// "decimal", "number".
	Match string `json:"match"`

	// Regex is the pattern for regex rules.
	Regex string `json:"regex,omitempty"`

	// Min and Max bound array lengths for type rules on collections.
	Min int `json:"min,omitempty"`
	Max int `json:"max,omitempty"`
}

// RuleList is the set of rules for one path plus how they combine.
type RuleList struct {
	Matchers []Rule `json:"matchers"`
	// Combine is "AND" (default) or "OR".
	Combine string `json:"combine,omitempty"`
}

// RuleSet groups matching rules by category ("body", "header", "query",
// "path", "status", "metadata") and, within a category, by path expression.
type RuleSet map[string]map[string]RuleList

// Lookup returns the rule list for a path within a category.
func (rs RuleSet) Lookup(category, path string) (RuleList, bool) {
	if rs == nil {
		return RuleList{}, false
	}
	paths, ok := rs[category]
	if !ok {
		return RuleList{}, false
	}
	rl, ok := paths[path]
	return rl, ok
}

// Empty reports whether the set holds no rules at all.
func (rs RuleSet) Empty() bool {
	for _, paths := range rs {
		if len(paths) > 0 {
			return false
		}
	}
	return true
}

// Add appends a rule for a path within a category.
func (rs RuleSet) Add(category, path string, r Rule) {
	paths, ok := rs[category]
	if !ok {
		paths = make(map[string]RuleList)
		rs[category] = paths
	}
	rl := paths[path]
	rl.Matchers = append(rl.Matchers, r)
	paths[path] = rl
}

// rulesFromJSON decodes the matchingRules entry of an interaction part.
// Both encodings are accepted: the V3 category layout
// {"body": {"$.x": {"matchers": [...]}}} and the V2 flat layout
// {"$.body.x": {"match": "type"}}.
func rulesFromJSON(raw json.RawMessage) (RuleSet, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	var categories map[string]json.RawMessage
	if err := json.Unmarshal(raw, &categories); err != nil {
		return nil, err
	}

	rs := make(RuleSet)
	for key, val := range categories {
		switch key {
		case "body", "header", "headers", "query", "path", "status", "metadata":
			cat := key
			if cat == "headers" {
				cat = "header"
			}
			if cat == "path" || cat == "status" {
				// Path and status rules apply to the whole part; the V3
				// format nests them one level shallower.
				var rl RuleList
				if err := json.Unmarshal(val, &rl); err == nil && len(rl.Matchers) > 0 {
					rs[cat] = map[string]RuleList{"": rl}
					continue
				}
			}
			var paths map[string]RuleList
			if err := json.Unmarshal(val, &paths); err != nil {
				return nil, err
			}
			rs[cat] = paths
		default:
			// V2 flat form: "$.body.x" -> single rule object.
			var r Rule
			if err := json.Unmarshal(val, &r); err != nil {
				return nil, err
			}
			cat, path := splitV2RulePath(key)
			rs.Add(cat, path, r)
		}
	}
	if rs.Empty() {
		return nil, nil
	}
	return rs, nil
}

// splitV2RulePath maps a V2 expression like "$.body.name" to its V3
// category and path ("body", "$.name").
func splitV2RulePath(expr string) (category, path string) {
	for _, cat := range []string{"body", "header", "headers", "query", "path", "status"} {
		prefix := "$." + cat
		if expr == prefix {
			if cat == "headers" {
				cat = "header"
			}
			return cat, ""
		}
		if len(expr) > len(prefix) && expr[:len(prefix)] == prefix && expr[len(prefix)] == '.' {
			if cat == "headers" {
				cat = "header"
			}
			return cat, "$" + expr[len(prefix):]
		}
	}
	return "body", expr
}

// rulesToJSON renders the V3 category layout.
func rulesToJSON(rs RuleSet) (json.RawMessage, bool) {
	if rs.Empty() {
		return nil, false
	}
	raw, err := json.Marshal(map[string]map[string]RuleList(rs))
	if err != nil {
		return nil, false
	}
	return raw, true
}
