package contract

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// ProviderState names a state the provider must be in before an interaction
// can be exercised, with optional parameters.
type ProviderState struct {
	Name   string         `json:"name"`
	Params map[string]any `json:"params,omitempty"`
}

// Request is the expected HTTP request half of an interaction.
type Request struct {
	Method  string
	Path    string
	Query   map[string][]string
	Headers map[string][]string
	Body    Body
	Rules   RuleSet

	// Generators is carried through load and save verbatim; nothing here
	// evaluates them.
	Generators json.RawMessage
}

// Response is the expected HTTP response half of an interaction.
type Response struct {
	Status  int
	Headers map[string][]string
	Body    Body
	Rules   RuleSet

	Generators json.RawMessage
}

// Interaction is one expected request/response exchange.
type Interaction struct {
	// Key is a stable identifier for the interaction, kept across rewrites
	// of the pact file.
	Key            string
	Description    string
	ProviderStates []ProviderState
	Request        Request
	Response       Response

	// Transport names a non-HTTP transport the interaction must be
	// exercised over (a plugin name). Empty means plain HTTP.
	Transport string
}

// DisplayName is the interaction description prefixed with its provider
// states, as rendered in verification output.
func (i *Interaction) DisplayName() string {
	if len(i.ProviderStates) == 0 {
		return i.Description
	}
	names := make([]string, len(i.ProviderStates))
	for idx, ps := range i.ProviderStates {
		names[idx] = ps.Name
	}
	return fmt.Sprintf("%s (given %s)", i.Description, strings.Join(names, ", "))
}

// StateNames returns the provider state names in order.
func (i *Interaction) StateNames() []string {
	names := make([]string, len(i.ProviderStates))
	for idx, ps := range i.ProviderStates {
		names[idx] = ps.Name
	}
	return names
}

// sameIdentity reports whether two interactions describe the same exchange
// for merge purposes: equal description and equal provider state names.
func (i *Interaction) sameIdentity(other *Interaction) bool {
	if i.Description != other.Description {
		return false
	}
	a, b := i.StateNames(), other.StateNames()
	if len(a) != len(b) {
		return false
	}
	for idx := range a {
		if a[idx] != b[idx] {
			return false
		}
	}
	return true
}

// --- JSON encoding ---

type interactionJSON struct {
	Key            string          `json:"key,omitempty"`
	Description    string          `json:"description"`
	ProviderStates []ProviderState `json:"providerStates,omitempty"`
	ProviderState  string          `json:"providerState,omitempty"`
	Request        *partJSON       `json:"request,omitempty"`
	Response       *partJSON       `json:"response,omitempty"`
	Transport      string          `json:"transport,omitempty"`
}

type partJSON struct {
	Method        string            `json:"method,omitempty"`
	Path          string            `json:"path,omitempty"`
	Query         json.RawMessage   `json:"query,omitempty"`
	Status        int               `json:"status,omitempty"`
	Headers       map[string]string `json:"headers,omitempty"`
	Body          json.RawMessage   `json:"body,omitempty"`
	MatchingRules json.RawMessage   `json:"matchingRules,omitempty"`
	Generators    json.RawMessage   `json:"generators,omitempty"`

	hasBody bool
}

func (p *partJSON) UnmarshalJSON(data []byte) error {
	type alias partJSON
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*p = partJSON(a)

	var keys map[string]json.RawMessage
	if err := json.Unmarshal(data, &keys); err == nil {
		_, p.hasBody = keys["body"]
	}
	return nil
}

// UnmarshalJSON decodes both V2 and V3 interaction encodings.
func (i *Interaction) UnmarshalJSON(data []byte) error {
	var ij interactionJSON
	if err := json.Unmarshal(data, &ij); err != nil {
		return err
	}

	i.Key = ij.Key
	i.Description = ij.Description
	i.Transport = ij.Transport
	i.ProviderStates = ij.ProviderStates
	if len(i.ProviderStates) == 0 && ij.ProviderState != "" {
		i.ProviderStates = []ProviderState{{Name: ij.ProviderState}}
	}

	if ij.Request != nil {
		req, err := requestFromPart(ij.Request)
		if err != nil {
			return fmt.Errorf("interaction %q: %w", i.Description, err)
		}
		i.Request = req
	}
	if ij.Response != nil {
		resp, err := responseFromPart(ij.Response)
		if err != nil {
			return fmt.Errorf("interaction %q: %w", i.Description, err)
		}
		i.Response = resp
	}
	return nil
}

// MarshalJSON renders the V3 encoding.
func (i *Interaction) MarshalJSON() ([]byte, error) {
	ij := interactionJSON{
		Key:            i.Key,
		Description:    i.Description,
		ProviderStates: i.ProviderStates,
		Transport:      i.Transport,
	}

	req := &partJSON{
		Method:  i.Request.Method,
		Path:    i.Request.Path,
		Headers: headersToJSON(i.Request.Headers),
	}
	if len(i.Request.Query) > 0 {
		raw, err := json.Marshal(i.Request.Query)
		if err != nil {
			return nil, err
		}
		req.Query = raw
	}
	if raw, ok := bodyToJSON(i.Request.Body); ok {
		req.Body = raw
	}
	if raw, ok := rulesToJSON(i.Request.Rules); ok {
		req.MatchingRules = raw
	}
	req.Generators = i.Request.Generators
	ij.Request = req

	resp := &partJSON{
		Status:  i.Response.Status,
		Headers: headersToJSON(i.Response.Headers),
	}
	if raw, ok := bodyToJSON(i.Response.Body); ok {
		resp.Body = raw
	}
	if raw, ok := rulesToJSON(i.Response.Rules); ok {
		resp.MatchingRules = raw
	}
	resp.Generators = i.Response.Generators
	ij.Response = resp

	return json.Marshal(ij)
}

func requestFromPart(p *partJSON) (Request, error) {
	headers := headersFromJSON(p.Headers)
	rules, err := rulesFromJSON(p.MatchingRules)
	if err != nil {
		return Request{}, fmt.Errorf("request matchingRules: %w", err)
	}
	query, err := queryFromJSON(p.Query)
	if err != nil {
		return Request{}, fmt.Errorf("request query: %w", err)
	}
	method := strings.ToUpper(p.Method)
	if method == "" {
		method = "GET"
	}
	return Request{
		Method:     method,
		Path:       p.Path,
		Query:      query,
		Headers:    headers,
		Body:       bodyFromJSON(p.Body, p.hasBody, contentTypeOf(headers)),
		Rules:      rules,
		Generators: p.Generators,
	}, nil
}

func responseFromPart(p *partJSON) (Response, error) {
	headers := headersFromJSON(p.Headers)
	rules, err := rulesFromJSON(p.MatchingRules)
	if err != nil {
		return Response{}, fmt.Errorf("response matchingRules: %w", err)
	}
	status := p.Status
	if status == 0 {
		status = 200
	}
	return Response{
		Status:     status,
		Headers:    headers,
		Body:       bodyFromJSON(p.Body, p.hasBody, contentTypeOf(headers)),
		Rules:      rules,
		Generators: p.Generators,
	}, nil
}

// singleValueHeaders never split on commas; their values legitimately
// contain them (dates, user agents, cookies).
var singleValueHeaders = map[string]bool{
	"date":                true,
	"accept-datetime":     true,
	"if-modified-since":   true,
	"if-unmodified-since": true,
	"expires":             true,
	"retry-after":         true,
	"last-modified":       true,
	"set-cookie":          true,
	"user-agent":          true,
}

// ParseHeaderValue splits a serialized header value into its parts.
func ParseHeaderValue(name, value string) []string {
	if singleValueHeaders[strings.ToLower(name)] {
		return []string{strings.TrimSpace(value)}
	}
	parts := strings.Split(value, ",")
	out := make([]string, len(parts))
	for i, p := range parts {
		out[i] = strings.TrimSpace(p)
	}
	return out
}

func headersFromJSON(h map[string]string) map[string][]string {
	if len(h) == 0 {
		return nil
	}
	out := make(map[string][]string, len(h))
	for name, value := range h {
		out[name] = ParseHeaderValue(name, value)
	}
	return out
}

func headersToJSON(h map[string][]string) map[string]string {
	if len(h) == 0 {
		return nil
	}
	out := make(map[string]string, len(h))
	for name, values := range h {
		out[name] = strings.Join(values, ", ")
	}
	return out
}

func contentTypeOf(headers map[string][]string) string {
	for name, values := range headers {
		if strings.EqualFold(name, "content-type") && len(values) > 0 {
			return values[0]
		}
	}
	return ""
}

// queryFromJSON accepts both the V3 map encoding and the V2 single-string
// encoding ("a=1&b=2").
func queryFromJSON(raw json.RawMessage) (map[string][]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var asMap map[string][]string
	if err := json.Unmarshal(raw, &asMap); err == nil {
		if len(asMap) == 0 {
			return nil, nil
		}
		return asMap, nil
	}
	var asString string
	if err := json.Unmarshal(raw, &asString); err != nil {
		return nil, fmt.Errorf("unsupported query encoding")
	}
	return ParseQueryString(asString), nil
}

// ParseQueryString decodes a raw query string into ordered multi-values,
// URL-decoding names and values and keeping malformed escapes verbatim.
func ParseQueryString(query string) map[string][]string {
	if query == "" {
		return nil
	}
	out := make(map[string][]string)
	for _, kv := range strings.Split(query, "&") {
		if kv == "" {
			continue
		}
		parts := strings.SplitN(kv, "=", 2)
		name := parts[0]
		if dec, err := url.QueryUnescape(name); err == nil {
			name = dec
		}
		value := ""
		if len(parts) > 1 {
			value = parts[1]
			if dec, err := url.QueryUnescape(value); err == nil {
				value = dec
			}
		}
		out[name] = append(out[name], value)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// EncodeQuery renders a query map as a canonical query string with sorted
// parameter names.
func EncodeQuery(query map[string][]string) string {
	if len(query) == 0 {
		return ""
	}
	names := make([]string, 0, len(query))
	for name := range query {
		names = append(names, name)
	}
	sort.Strings(names)

	var sb strings.Builder
	for _, name := range names {
		for _, value := range query[name] {
			if sb.Len() > 0 {
				sb.WriteByte('&')
			}
			sb.WriteString(url.QueryEscape(name))
			sb.WriteByte('=')
			sb.WriteString(url.QueryEscape(value))
		}
	}
	return sb.String()
}
