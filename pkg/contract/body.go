package contract

import (
	"bytes"
	"encoding/json"
	"mime"
	"strings"
)

// BodyState distinguishes an absent body from an explicitly null or empty
// one. The distinction matters at the boundary: accessors return "no body"
// for Missing but an empty string for Empty and Null.
type BodyState int

// Body states.
const (
	BodyMissing BodyState = iota
	BodyEmpty
	BodyNull
	BodyPresent
)

// Body carries interaction or message content together with its content
// type. Content holds the raw bytes: for JSON bodies these are the encoded
// JSON, for text bodies the text itself.
type Body struct {
	State       BodyState
	Content     []byte
	ContentType string
}

// NewJSONBody encodes v as JSON content.
func NewJSONBody(v any) (Body, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return Body{}, err
	}
	return Body{State: BodyPresent, Content: raw, ContentType: "application/json"}, nil
}

// NewTextBody wraps a string as content of the given type. An empty content
// type defaults to text/plain.
func NewTextBody(s, contentType string) Body {
	if contentType == "" {
		contentType = "text/plain"
	}
	if s == "" {
		return Body{State: BodyEmpty, ContentType: contentType}
	}
	return Body{State: BodyPresent, Content: []byte(s), ContentType: contentType}
}

// NewBinaryBody wraps raw bytes as content of the given type.
func NewBinaryBody(b []byte, contentType string) Body {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	if len(b) == 0 {
		return Body{State: BodyEmpty, ContentType: contentType}
	}
	return Body{State: BodyPresent, Content: b, ContentType: contentType}
}

// NullBody is an explicitly null body.
func NullBody() Body {
	return Body{State: BodyNull}
}

// IsPresent reports whether the body has content.
func (b Body) IsPresent() bool {
	return b.State == BodyPresent
}

// String returns the content as a string; empty for Missing, Null and Empty.
func (b Body) String() string {
	if b.State != BodyPresent {
		return ""
	}
	return string(b.Content)
}

// BaseContentType returns the media type without parameters, lowercased.
func (b Body) BaseContentType() string {
	if b.ContentType == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(b.ContentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(strings.Split(b.ContentType, ";")[0]))
	}
	return mt
}

// IsJSON reports whether the content type is a JSON flavour
// (application/json, application/hal+json, ...).
func (b Body) IsJSON() bool {
	mt := b.BaseContentType()
	return mt == "application/json" || strings.HasSuffix(mt, "+json")
}

// IsXML reports whether the content type is an XML flavour.
func (b Body) IsXML() bool {
	mt := b.BaseContentType()
	return mt == "application/xml" || mt == "text/xml" || strings.HasSuffix(mt, "+xml")
}

// IsGraphQL reports whether the content type is a GraphQL query.
func (b Body) IsGraphQL() bool {
	return b.BaseContentType() == "application/graphql"
}

// JSONValue decodes JSON content into a generic value. Returns (nil, false)
// when the body is not present or not valid JSON.
func (b Body) JSONValue() (any, bool) {
	if !b.IsPresent() {
		return nil, false
	}
	dec := json.NewDecoder(bytes.NewReader(b.Content))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, false
	}
	return v, true
}

// bodyFromJSON reconstructs a Body from the decoded "body" entry of a pact
// file. present reports whether the key existed at all.
func bodyFromJSON(raw json.RawMessage, present bool, contentType string) Body {
	if !present {
		return Body{State: BodyMissing}
	}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return Body{State: BodyNull, ContentType: contentType}
	}
	if trimmed[0] == '"' {
		// A JSON string body is stored unquoted: the pact holds the text
		// itself, not its JSON encoding.
		var s string
		if err := json.Unmarshal(trimmed, &s); err == nil {
			if contentType == "" {
				contentType = "text/plain"
			}
			if s == "" {
				return Body{State: BodyEmpty, ContentType: contentType}
			}
			return Body{State: BodyPresent, Content: []byte(s), ContentType: contentType}
		}
	}
	if contentType == "" {
		contentType = "application/json"
	}
	return Body{State: BodyPresent, Content: trimmed, ContentType: contentType}
}

// bodyToJSON renders a Body for embedding in a pact file. The second return
// reports whether the body key should be written at all.
func bodyToJSON(b Body) (json.RawMessage, bool) {
	switch b.State {
	case BodyMissing:
		return nil, false
	case BodyNull:
		return json.RawMessage("null"), true
	case BodyEmpty:
		raw, _ := json.Marshal("")
		return raw, true
	}
	if b.IsJSON() && json.Valid(b.Content) {
		return json.RawMessage(b.Content), true
	}
	raw, err := json.Marshal(string(b.Content))
	if err != nil {
		return nil, false
	}
	return raw, true
}
