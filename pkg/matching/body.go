package matching

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/beevik/etree"
	"github.com/ohler55/ojg/jp"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"

	"github.com/getpactd/pactd/pkg/contract"
)

// matchBodies dispatches body comparison on content type. allowUnexpected
// controls whether keys present in actual but not expected are tolerated:
// true when verifying provider responses, false when matching consumer
// requests against a mock.
func matchBodies(expected, actual contract.Body, rules contract.RuleSet, allowUnexpected bool) []Mismatch {
	switch expected.State {
	case contract.BodyMissing:
		// No expectation about the body at all.
		return nil
	case contract.BodyNull, contract.BodyEmpty:
		if actual.IsPresent() {
			return []Mismatch{bodyMismatch("$", "", truncate(actual.String()),
				"expected an empty body but received content")}
		}
		return nil
	}

	if !actual.IsPresent() {
		return []Mismatch{bodyMismatch("$", truncate(expected.String()), "",
			"expected a body but none was received")}
	}

	if expected.BaseContentType() != "" && actual.BaseContentType() != "" &&
		expected.BaseContentType() != actual.BaseContentType() {
		return []Mismatch{{
			Kind:     KindBodyType,
			Expected: expected.BaseContentType(),
			Actual:   actual.BaseContentType(),
			Message: fmt.Sprintf("expected a body of type %s but received %s",
				expected.BaseContentType(), actual.BaseContentType()),
		}}
	}

	switch {
	case expected.IsJSON():
		return matchJSONBodies(expected, actual, rules, allowUnexpected)
	case expected.IsXML():
		return matchXMLBodies(expected, actual)
	case expected.IsGraphQL():
		return matchGraphQLBodies(expected, actual)
	default:
		if !bytes.Equal(expected.Content, actual.Content) {
			return []Mismatch{bodyMismatch("$", truncate(expected.String()), truncate(actual.String()),
				"body contents do not match")}
		}
		return nil
	}
}

// --- JSON ---

func matchJSONBodies(expected, actual contract.Body, rules contract.RuleSet, allowUnexpected bool) []Mismatch {
	ev, ok := expected.JSONValue()
	if !ok {
		return []Mismatch{bodyMismatch("$", truncate(expected.String()), "",
			"expected body is not valid JSON")}
	}
	av, ok := actual.JSONValue()
	if !ok {
		return []Mismatch{bodyMismatch("$", "", truncate(actual.String()),
			"actual body is not valid JSON")}
	}

	w := &jsonWalker{rules: rules, allowUnexpected: allowUnexpected}
	w.compare("$", ev, av)
	w.checkCollectionBounds(av)
	return w.mismatches
}

type jsonWalker struct {
	rules           contract.RuleSet
	allowUnexpected bool
	mismatches      []Mismatch
}

func (w *jsonWalker) add(m Mismatch) {
	w.mismatches = append(w.mismatches, m)
}

func (w *jsonWalker) compare(path string, expected, actual any) {
	if rl, ok := lookupRule(w.rules, "body", path); ok {
		if !applyRules(rl, expected, actual) {
			w.add(bodyMismatch(path, valueString(expected), valueString(actual),
				fmt.Sprintf("value at %s does not satisfy its matching rules", path)))
			return
		}
		// Type rules cascade into collections: members are compared against
		// the first expected element by type, not by value.
		if isTypeRule(rl) {
			if earr, ok := expected.([]any); ok && len(earr) > 0 {
				if aarr, ok := actual.([]any); ok {
					for i, av := range aarr {
						w.compare(fmt.Sprintf("%s[%d]", path, i), earr[0], av)
					}
				}
			}
		}
		return
	}

	switch ev := expected.(type) {
	case map[string]any:
		av, ok := actual.(map[string]any)
		if !ok {
			w.add(bodyMismatch(path, "an object", valueString(actual),
				fmt.Sprintf("expected an object at %s", path)))
			return
		}
		keys := make([]string, 0, len(ev))
		for k := range ev {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			childPath := path + "." + k
			avChild, present := av[k]
			if !present {
				w.add(bodyMismatch(childPath, valueString(ev[k]), "",
					fmt.Sprintf("expected key %q at %s but it was missing", k, path)))
				continue
			}
			w.compare(childPath, ev[k], avChild)
		}
		if !w.allowUnexpected {
			var extras []string
			for k := range av {
				if _, present := ev[k]; !present {
					extras = append(extras, k)
				}
			}
			sort.Strings(extras)
			for _, k := range extras {
				w.add(bodyMismatch(path+"."+k, "", valueString(av[k]),
					fmt.Sprintf("unexpected key %q at %s", k, path)))
			}
		}
	case []any:
		av, ok := actual.([]any)
		if !ok {
			w.add(bodyMismatch(path, "an array", valueString(actual),
				fmt.Sprintf("expected an array at %s", path)))
			return
		}
		if len(ev) != len(av) {
			w.add(bodyMismatch(path,
				fmt.Sprintf("array of %d items", len(ev)),
				fmt.Sprintf("array of %d items", len(av)),
				fmt.Sprintf("expected %d items at %s but found %d", len(ev), path, len(av))))
		}
		n := len(ev)
		if len(av) < n {
			n = len(av)
		}
		for i := 0; i < n; i++ {
			w.compare(fmt.Sprintf("%s[%d]", path, i), ev[i], av[i])
		}
	default:
		if !valuesEqual(expected, actual) {
			w.add(bodyMismatch(path, valueString(expected), valueString(actual),
				fmt.Sprintf("expected %s at %s but was %s",
					valueString(expected), path, valueString(actual))))
		}
	}
}

// checkCollectionBounds enforces min/max rules over the actual document,
// resolving rule paths with JSONPath so wildcard selections are honoured.
func (w *jsonWalker) checkCollectionBounds(actual any) {
	paths, ok := w.rules["body"]
	if !ok {
		return
	}
	rulePaths := make([]string, 0, len(paths))
	for p := range paths {
		rulePaths = append(rulePaths, p)
	}
	sort.Strings(rulePaths)

	for _, rulePath := range rulePaths {
		rl := paths[rulePath]
		for _, r := range rl.Matchers {
			if r.Min == 0 && r.Max == 0 {
				continue
			}
			expr, err := jp.ParseString(rulePath)
			if err != nil {
				continue
			}
			for _, node := range expr.Get(actual) {
				arr, ok := node.([]any)
				if !ok {
					continue
				}
				if r.Min > 0 && len(arr) < r.Min {
					w.add(bodyMismatch(rulePath,
						fmt.Sprintf("at least %d items", r.Min),
						fmt.Sprintf("%d items", len(arr)),
						fmt.Sprintf("expected at least %d items at %s", r.Min, rulePath)))
				}
				if r.Max > 0 && len(arr) > r.Max {
					w.add(bodyMismatch(rulePath,
						fmt.Sprintf("at most %d items", r.Max),
						fmt.Sprintf("%d items", len(arr)),
						fmt.Sprintf("expected at most %d items at %s", r.Max, rulePath)))
				}
			}
		}
	}
}

func isTypeRule(rl contract.RuleList) bool {
	for _, r := range rl.Matchers {
		if strings.EqualFold(r.Match, "type") {
			return true
		}
	}
	return false
}

// --- XML ---

func matchXMLBodies(expected, actual contract.Body) []Mismatch {
	edoc := etree.NewDocument()
	if err := edoc.ReadFromBytes(expected.Content); err != nil {
		return []Mismatch{bodyMismatch("$", truncate(expected.String()), "",
			"expected body is not valid XML")}
	}
	adoc := etree.NewDocument()
	if err := adoc.ReadFromBytes(actual.Content); err != nil {
		return []Mismatch{bodyMismatch("$", "", truncate(actual.String()),
			"actual body is not valid XML")}
	}

	eroot, aroot := edoc.Root(), adoc.Root()
	if eroot == nil || aroot == nil {
		if eroot != aroot {
			return []Mismatch{bodyMismatch("/", "", "", "XML documents differ at the root")}
		}
		return nil
	}

	var out []Mismatch
	compareXMLElements("/"+eroot.Tag, eroot, aroot, &out)
	return out
}

func compareXMLElements(path string, expected, actual *etree.Element, out *[]Mismatch) {
	if expected.Tag != actual.Tag {
		*out = append(*out, bodyMismatch(path, expected.Tag, actual.Tag,
			fmt.Sprintf("expected element <%s> but found <%s>", expected.Tag, actual.Tag)))
		return
	}

	for _, attr := range expected.Attr {
		got := actual.SelectAttrValue(attr.Key, "")
		if got != attr.Value {
			*out = append(*out, bodyMismatch(path+"/@"+attr.Key, attr.Value, got,
				fmt.Sprintf("attribute %q does not match", attr.Key)))
		}
	}

	etext := strings.TrimSpace(expected.Text())
	atext := strings.TrimSpace(actual.Text())
	if etext != "" && etext != atext {
		*out = append(*out, bodyMismatch(path, etext, atext, "element text does not match"))
	}

	echildren := expected.ChildElements()
	achildren := actual.ChildElements()
	if len(echildren) != len(achildren) {
		*out = append(*out, bodyMismatch(path,
			fmt.Sprintf("%d child elements", len(echildren)),
			fmt.Sprintf("%d child elements", len(achildren)),
			"child element count does not match"))
	}
	n := len(echildren)
	if len(achildren) < n {
		n = len(achildren)
	}
	for i := 0; i < n; i++ {
		childPath := fmt.Sprintf("%s/%s[%d]", path, echildren[i].Tag, i)
		compareXMLElements(childPath, echildren[i], achildren[i], out)
	}
}

// --- GraphQL ---

// matchGraphQLBodies compares queries after normalization, so differences in
// whitespace and formatting never fail a match.
func matchGraphQLBodies(expected, actual contract.Body) []Mismatch {
	enorm, eerr := normalizeGraphQL(expected.String())
	anorm, aerr := normalizeGraphQL(actual.String())
	if eerr != nil {
		return []Mismatch{bodyMismatch("$", truncate(expected.String()), "",
			"expected body is not a valid GraphQL document")}
	}
	if aerr != nil {
		return []Mismatch{bodyMismatch("$", "", truncate(actual.String()),
			"actual body is not a valid GraphQL document")}
	}
	if enorm != anorm {
		return []Mismatch{bodyMismatch("$", enorm, anorm, "GraphQL queries do not match")}
	}
	return nil
}

func normalizeGraphQL(query string) (string, error) {
	doc, err := parser.ParseQuery(&ast.Source{Input: query})
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	for _, op := range doc.Operations {
		writeGraphQLOperation(&sb, op)
	}
	return sb.String(), nil
}

func writeGraphQLOperation(sb *strings.Builder, op *ast.OperationDefinition) {
	fmt.Fprintf(sb, "%s %s", op.Operation, op.Name)
	writeGraphQLSelections(sb, op.SelectionSet)
}

func writeGraphQLSelections(sb *strings.Builder, set ast.SelectionSet) {
	if len(set) == 0 {
		return
	}
	sb.WriteByte('{')
	for i, sel := range set {
		if i > 0 {
			sb.WriteByte(' ')
		}
		switch f := sel.(type) {
		case *ast.Field:
			sb.WriteString(f.Name)
			if len(f.Arguments) > 0 {
				args := make([]string, len(f.Arguments))
				for j, a := range f.Arguments {
					args[j] = fmt.Sprintf("%s:%s", a.Name, a.Value.String())
				}
				sort.Strings(args)
				fmt.Fprintf(sb, "(%s)", strings.Join(args, ","))
			}
			writeGraphQLSelections(sb, f.SelectionSet)
		case *ast.FragmentSpread:
			fmt.Fprintf(sb, "...%s", f.Name)
		case *ast.InlineFragment:
			fmt.Fprintf(sb, "...on %s", f.TypeCondition)
			writeGraphQLSelections(sb, f.SelectionSet)
		}
	}
	sb.WriteByte('}')
}

func truncate(s string) string {
	const max = 120
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
