package contract

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Message is one expected asynchronous message: contents plus transport
// metadata. Message pacts require at least the V3 specification.
type Message struct {
	Key            string
	Description    string
	ProviderStates []ProviderState
	Contents       Body
	Metadata       map[string]any
	Rules          RuleSet
}

// MetadataString returns the metadata value for key rendered as a string,
// or "" when absent.
func (m *Message) MetadataString(key string) string {
	v, ok := m.Metadata[key]
	if !ok {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(raw)
}

// SetMetadata stores a string value under key, allocating the map on first
// use. Returns true when the key already existed.
func (m *Message) SetMetadata(key, value string) bool {
	if m.Metadata == nil {
		m.Metadata = make(map[string]any)
	}
	_, existed := m.Metadata[key]
	m.Metadata[key] = value
	return existed
}

// MetadataKeys returns the metadata keys in sorted order, for deterministic
// iteration at the boundary.
func (m *Message) MetadataKeys() []string {
	keys := make([]string, 0, len(m.Metadata))
	for k := range m.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ContentType resolves the message content type: the contents' own type
// first, then the contentType metadata entry.
func (m *Message) ContentType() string {
	if m.Contents.ContentType != "" {
		return m.Contents.ContentType
	}
	return m.MetadataString("contentType")
}

// DisplayName is the message description prefixed with its provider states.
func (m *Message) DisplayName() string {
	i := Interaction{Description: m.Description, ProviderStates: m.ProviderStates}
	return i.DisplayName()
}

func (m *Message) sameIdentity(other *Message) bool {
	a := Interaction{Description: m.Description, ProviderStates: m.ProviderStates}
	b := Interaction{Description: other.Description, ProviderStates: other.ProviderStates}
	return a.sameIdentity(&b)
}

// --- JSON encoding ---

type messageJSON struct {
	Key            string          `json:"key,omitempty"`
	Description    string          `json:"description"`
	ProviderStates []ProviderState `json:"providerStates,omitempty"`
	Contents       json.RawMessage `json:"contents,omitempty"`
	Metadata       map[string]any  `json:"metaData,omitempty"`
	MatchingRules  json.RawMessage `json:"matchingRules,omitempty"`

	hasContents bool
}

func (mj *messageJSON) UnmarshalJSON(data []byte) error {
	type alias messageJSON
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*mj = messageJSON(a)

	var keys map[string]json.RawMessage
	if err := json.Unmarshal(data, &keys); err == nil {
		_, mj.hasContents = keys["contents"]
		// Both spellings appear in the wild.
		if mj.Metadata == nil {
			if raw, ok := keys["metadata"]; ok {
				_ = json.Unmarshal(raw, &mj.Metadata)
			}
		}
	}
	return nil
}

// UnmarshalJSON decodes a V3 message.
func (m *Message) UnmarshalJSON(data []byte) error {
	var mj messageJSON
	if err := json.Unmarshal(data, &mj); err != nil {
		return err
	}

	m.Key = mj.Key
	m.Description = mj.Description
	m.ProviderStates = mj.ProviderStates
	m.Metadata = mj.Metadata

	contentType := ""
	if ct, ok := mj.Metadata["contentType"].(string); ok {
		contentType = ct
	}
	m.Contents = bodyFromJSON(mj.Contents, mj.hasContents, contentType)

	rules, err := rulesFromJSON(mj.MatchingRules)
	if err != nil {
		return fmt.Errorf("message %q: %w", m.Description, err)
	}
	m.Rules = rules
	return nil
}

// MarshalJSON renders the V3 encoding.
func (m *Message) MarshalJSON() ([]byte, error) {
	mj := messageJSON{
		Key:            m.Key,
		Description:    m.Description,
		ProviderStates: m.ProviderStates,
		Metadata:       m.Metadata,
	}
	if raw, ok := bodyToJSON(m.Contents); ok {
		mj.Contents = raw
	}
	if raw, ok := rulesToJSON(m.Rules); ok {
		mj.MatchingRules = raw
	}
	return json.Marshal(mj)
}
