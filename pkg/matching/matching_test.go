package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getpactd/pactd/pkg/contract"
)

func jsonBody(t *testing.T, v any) contract.Body {
	t.Helper()
	b, err := contract.NewJSONBody(v)
	require.NoError(t, err)
	return b
}

func TestMatchResponse_StatusMismatch(t *testing.T) {
	expected := contract.Response{Status: 201}
	actual := contract.Response{Status: 200}

	got := MatchResponse(expected, actual)
	require.Len(t, got, 1)
	assert.Equal(t, KindStatus, got[0].Kind)
	assert.Equal(t, "201", got[0].Expected)
	assert.Equal(t, "200", got[0].Actual)
}

func TestMatchResponse_AllMatched(t *testing.T) {
	expected := contract.Response{
		Status:  200,
		Headers: map[string][]string{"Content-Type": {"application/json"}},
		Body:    jsonBody(t, map[string]any{"id": 42}),
	}
	actual := contract.Response{
		Status:  200,
		Headers: map[string][]string{"content-type": {"application/json"}, "X-Extra": {"ignored"}},
		Body:    jsonBody(t, map[string]any{"id": 42, "extra": "allowed in responses"}),
	}

	assert.Empty(t, MatchResponse(expected, actual))
}

func TestMatchResponse_MissingHeader(t *testing.T) {
	expected := contract.Response{
		Status:  200,
		Headers: map[string][]string{"X-Request-Id": {"abc"}},
	}
	got := MatchResponse(expected, contract.Response{Status: 200})
	require.Len(t, got, 1)
	assert.Equal(t, KindHeader, got[0].Kind)
	assert.Equal(t, "X-Request-Id", got[0].Path)
}

func TestMatchResponse_BodyValueMismatch(t *testing.T) {
	expected := contract.Response{Status: 200, Body: jsonBody(t, map[string]any{"total": 100})}
	actual := contract.Response{Status: 200, Body: jsonBody(t, map[string]any{"total": 99})}

	got := MatchResponse(expected, actual)
	require.Len(t, got, 1)
	assert.Equal(t, KindBody, got[0].Kind)
	assert.Equal(t, "$.total", got[0].Path)
}

func TestMatchResponse_MissingBodyKey(t *testing.T) {
	expected := contract.Response{Status: 200, Body: jsonBody(t, map[string]any{"id": 1, "name": "x"})}
	actual := contract.Response{Status: 200, Body: jsonBody(t, map[string]any{"id": 1})}

	got := MatchResponse(expected, actual)
	require.Len(t, got, 1)
	assert.Equal(t, "$.name", got[0].Path)
}

func TestMatchResponse_TypeRule(t *testing.T) {
	rules := contract.RuleSet{}
	rules.Add("body", "$.id", contract.Rule{Match: "type"})

	expected := contract.Response{
		Status: 200,
		Body:   jsonBody(t, map[string]any{"id": 1}),
		Rules:  rules,
	}

	// Different number, same type: matches.
	ok := MatchResponse(expected, contract.Response{Status: 200, Body: jsonBody(t, map[string]any{"id": 999})})
	assert.Empty(t, ok)

	// String where a number is expected: mismatch.
	bad := MatchResponse(expected, contract.Response{Status: 200, Body: jsonBody(t, map[string]any{"id": "999"})})
	require.Len(t, bad, 1)
	assert.Equal(t, "$.id", bad[0].Path)
}

func TestMatchResponse_RegexRule(t *testing.T) {
	rules := contract.RuleSet{}
	rules.Add("body", "$.ref", contract.Rule{Match: "regex", Regex: `^ORD-\d+$`})

	expected := contract.Response{Status: 200, Body: jsonBody(t, map[string]any{"ref": "ORD-1"}), Rules: rules}

	assert.Empty(t, MatchResponse(expected,
		contract.Response{Status: 200, Body: jsonBody(t, map[string]any{"ref": "ORD-12345"})}))

	got := MatchResponse(expected,
		contract.Response{Status: 200, Body: jsonBody(t, map[string]any{"ref": "order-1"})})
	require.Len(t, got, 1)
}

func TestMatchResponse_IntegerRule(t *testing.T) {
	rules := contract.RuleSet{}
	rules.Add("body", "$.count", contract.Rule{Match: "integer"})

	expected := contract.Response{Status: 200, Body: jsonBody(t, map[string]any{"count": 1}), Rules: rules}

	assert.Empty(t, MatchResponse(expected,
		contract.Response{Status: 200, Body: jsonBody(t, map[string]any{"count": 7})}))

	got := MatchResponse(expected,
		contract.Response{Status: 200, Body: jsonBody(t, map[string]any{"count": 7.5})})
	require.Len(t, got, 1)
}

func TestMatchResponse_WildcardRuleCascades(t *testing.T) {
	rules := contract.RuleSet{}
	rules.Add("body", "$.items[*].id", contract.Rule{Match: "type"})

	expected := contract.Response{
		Status: 200,
		Body:   jsonBody(t, map[string]any{"items": []any{map[string]any{"id": 1}}}),
		Rules:  rules,
	}
	// Actual has a different id value; the rule allows any number there.
	// Array lengths still compare without a type rule on the array itself.
	actual := contract.Response{
		Status: 200,
		Body:   jsonBody(t, map[string]any{"items": []any{map[string]any{"id": 42}}}),
	}
	assert.Empty(t, MatchResponse(expected, actual))
}

func TestMatchResponse_MinBoundViaJSONPath(t *testing.T) {
	rules := contract.RuleSet{}
	rules.Add("body", "$.items", contract.Rule{Match: "type", Min: 2})

	expected := contract.Response{
		Status: 200,
		Body:   jsonBody(t, map[string]any{"items": []any{map[string]any{"id": 1}}}),
		Rules:  rules,
	}
	actual := contract.Response{
		Status: 200,
		Body:   jsonBody(t, map[string]any{"items": []any{map[string]any{"id": 1}}}),
	}

	got := MatchResponse(expected, actual)
	require.NotEmpty(t, got)
	assert.Equal(t, "$.items", got[0].Path)
}

func TestMatchResponse_ContentTypeMismatch(t *testing.T) {
	expected := contract.Response{Status: 200, Body: jsonBody(t, map[string]any{"a": 1})}
	actual := contract.Response{Status: 200, Body: contract.NewTextBody("a=1", "text/plain")}

	got := MatchResponse(expected, actual)
	require.Len(t, got, 1)
	assert.Equal(t, KindBodyType, got[0].Kind)
}

func TestMatchResponse_XMLBodies(t *testing.T) {
	expected := contract.Response{
		Status: 200,
		Body:   contract.NewTextBody(`<order id="42"><total>10</total></order>`, "application/xml"),
	}

	assert.Empty(t, MatchResponse(expected, contract.Response{
		Status: 200,
		Body:   contract.NewTextBody("<order id=\"42\">\n  <total>10</total>\n</order>", "application/xml"),
	}))

	got := MatchResponse(expected, contract.Response{
		Status: 200,
		Body:   contract.NewTextBody(`<order id="42"><total>11</total></order>`, "application/xml"),
	})
	require.NotEmpty(t, got)
}

func TestMatchResponse_GraphQLNormalization(t *testing.T) {
	expected := contract.Response{
		Status: 200,
		Body:   contract.NewTextBody("query { order(id: 42) { total } }", "application/graphql"),
	}
	actual := contract.Response{
		Status: 200,
		Body:   contract.NewTextBody("query {\n  order(id: 42) {\n    total\n  }\n}", "application/graphql"),
	}
	assert.Empty(t, MatchResponse(expected, actual))

	different := contract.Response{
		Status: 200,
		Body:   contract.NewTextBody("query { order(id: 7) { total } }", "application/graphql"),
	}
	assert.NotEmpty(t, MatchResponse(expected, different))
}

func TestMatchRequest_StrictAboutExtras(t *testing.T) {
	expected := contract.Request{
		Method: "POST",
		Path:   "/orders",
		Body:   jsonBody(t, map[string]any{"total": 10}),
	}

	// Extra body key in a request is a mismatch.
	got := MatchRequest(expected, "POST", "/orders", nil, nil,
		jsonBody(t, map[string]any{"total": 10, "sneaky": true}))
	assert.False(t, got.Matched)

	// Extra query parameter is a mismatch.
	got = MatchRequest(expected, "POST", "/orders",
		map[string][]string{"debug": {"1"}}, nil, jsonBody(t, map[string]any{"total": 10}))
	assert.False(t, got.Matched)
}

func TestMatchRequest_ScoringPrefersSpecific(t *testing.T) {
	loose := contract.Request{Method: "GET", Path: "/orders/42"}
	strict := contract.Request{
		Method:  "GET",
		Path:    "/orders/42",
		Headers: map[string][]string{"Accept": {"application/json"}},
	}

	headers := map[string][]string{"Accept": {"application/json"}}
	looseMatch := MatchRequest(loose, "GET", "/orders/42", nil, headers, contract.Body{})
	strictMatch := MatchRequest(strict, "GET", "/orders/42", nil, headers, contract.Body{})

	require.True(t, looseMatch.Matched)
	require.True(t, strictMatch.Matched)
	assert.Greater(t, strictMatch.Score, looseMatch.Score)
}

func TestMatchRequest_MethodAndPath(t *testing.T) {
	expected := contract.Request{Method: "GET", Path: "/a"}

	got := MatchRequest(expected, "DELETE", "/b", nil, nil, contract.Body{})
	assert.False(t, got.Matched)
	require.Len(t, got.Mismatches, 2)
	assert.Equal(t, KindMethod, got.Mismatches[0].Kind)
	assert.Equal(t, KindPath, got.Mismatches[1].Kind)
}

func TestMatchRequest_PathRule(t *testing.T) {
	rules := contract.RuleSet{}
	rules.Add("path", "", contract.Rule{Match: "regex", Regex: `^/orders/\d+$`})
	expected := contract.Request{Method: "GET", Path: "/orders/42", Rules: rules}

	got := MatchRequest(expected, "GET", "/orders/977", nil, nil, contract.Body{})
	assert.True(t, got.Matched)
}

func TestMatchMessage(t *testing.T) {
	msg := &contract.Message{
		Description: "order created",
		Contents:    jsonBody(t, map[string]any{"event": "created"}),
		Metadata:    map[string]any{"contentType": "application/json", "queue": "orders"},
	}

	ok := MatchMessage(msg, jsonBody(t, map[string]any{"event": "created"}),
		map[string]any{"queue": "orders"})
	assert.Empty(t, ok)

	missing := MatchMessage(msg, jsonBody(t, map[string]any{"event": "created"}), nil)
	require.Len(t, missing, 1)
	assert.Equal(t, KindMetadata, missing[0].Kind)

	wrong := MatchMessage(msg, jsonBody(t, map[string]any{"event": "deleted"}),
		map[string]any{"queue": "orders"})
	require.Len(t, wrong, 1)
	assert.Equal(t, KindBody, wrong[0].Kind)
}

func TestMatchResponse_EmptyVsPresent(t *testing.T) {
	expected := contract.Response{Status: 204, Body: contract.NullBody()}
	actual := contract.Response{Status: 204, Body: contract.NewTextBody("surprise", "text/plain")}

	got := MatchResponse(expected, actual)
	require.Len(t, got, 1)
	assert.Contains(t, got[0].Message, "empty body")
}
