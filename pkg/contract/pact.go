package contract

import (
	"encoding/json"
	"fmt"
	"sort"
)

// SpecVersion identifies the pact specification version of a document.
type SpecVersion string

// Supported specification versions.
const (
	SpecV2 SpecVersion = "2.0.0"
	SpecV3 SpecVersion = "3.0.0"
	SpecV4 SpecVersion = "4.0"
)

// Pacticipant is a named party to a pact.
type Pacticipant struct {
	Name string `json:"name"`
}

// Pact is a contract between a consumer and a provider: a set of
// request/response interactions, or a set of messages for message pacts.
type Pact struct {
	Consumer     Pacticipant
	Provider     Pacticipant
	Interactions []*Interaction
	Messages     []*Message
	Spec         SpecVersion
	Metadata     map[string]any
}

// NewPact creates an empty HTTP pact between the named parties.
func NewPact(consumer, provider string) *Pact {
	return &Pact{
		Consumer: Pacticipant{Name: consumer},
		Provider: Pacticipant{Name: provider},
		Spec:     SpecV3,
	}
}

// NewMessagePact creates an empty message pact between the named parties.
// Message pacts require at least the V3 specification.
func NewMessagePact(consumer, provider string) *Pact {
	return NewPact(consumer, provider)
}

// IsMessagePact reports whether the document carries messages rather than
// request/response interactions.
func (p *Pact) IsMessagePact() bool {
	return len(p.Messages) > 0 && len(p.Interactions) == 0
}

// FileName is the canonical pact file name for this pair of parties.
func (p *Pact) FileName() string {
	return fmt.Sprintf("%s-%s.json", p.Consumer.Name, p.Provider.Name)
}

// Merge combines other into a copy of p. Interactions and messages from
// other replace entries with the same description and provider states;
// everything else is kept. The parties must match.
func (p *Pact) Merge(other *Pact) (*Pact, error) {
	if p.Consumer.Name != other.Consumer.Name || p.Provider.Name != other.Provider.Name {
		return nil, fmt.Errorf("cannot merge pact for %s/%s into pact for %s/%s",
			other.Consumer.Name, other.Provider.Name, p.Consumer.Name, p.Provider.Name)
	}

	merged := &Pact{
		Consumer: p.Consumer,
		Provider: p.Provider,
		Spec:     p.Spec,
		Metadata: p.Metadata,
	}
	if other.Spec > merged.Spec {
		merged.Spec = other.Spec
	}

	merged.Interactions = append(merged.Interactions, p.Interactions...)
	for _, in := range other.Interactions {
		replaced := false
		for idx, existing := range merged.Interactions {
			if existing.sameIdentity(in) {
				merged.Interactions[idx] = in
				replaced = true
				break
			}
		}
		if !replaced {
			merged.Interactions = append(merged.Interactions, in)
		}
	}
	sort.SliceStable(merged.Interactions, func(a, b int) bool {
		return merged.Interactions[a].Description < merged.Interactions[b].Description
	})

	merged.Messages = append(merged.Messages, p.Messages...)
	for _, msg := range other.Messages {
		replaced := false
		for idx, existing := range merged.Messages {
			if existing.sameIdentity(msg) {
				merged.Messages[idx] = msg
				replaced = true
				break
			}
		}
		if !replaced {
			merged.Messages = append(merged.Messages, msg)
		}
	}
	sort.SliceStable(merged.Messages, func(a, b int) bool {
		return merged.Messages[a].Description < merged.Messages[b].Description
	})

	if len(merged.Interactions) > 0 && len(merged.Messages) > 0 {
		return nil, fmt.Errorf("cannot merge HTTP interactions and messages into one pact")
	}
	return merged, nil
}

// --- JSON encoding ---

type pactJSON struct {
	Consumer     Pacticipant     `json:"consumer"`
	Provider     Pacticipant     `json:"provider"`
	Interactions []*Interaction  `json:"interactions,omitempty"`
	Messages     []*Message      `json:"messages,omitempty"`
	Metadata     json.RawMessage `json:"metadata,omitempty"`
}

type metadataJSON struct {
	PactSpecification struct {
		Version string `json:"version"`
	} `json:"pactSpecification"`
	Pactd struct {
		Version string `json:"version"`
	} `json:"pactd"`
}

// UnmarshalJSON decodes a pact document.
func (p *Pact) UnmarshalJSON(data []byte) error {
	var pj pactJSON
	if err := json.Unmarshal(data, &pj); err != nil {
		return err
	}
	p.Consumer = pj.Consumer
	p.Provider = pj.Provider
	p.Interactions = pj.Interactions
	p.Messages = pj.Messages
	p.Spec = SpecV3

	if len(pj.Metadata) > 0 {
		var md metadataJSON
		if err := json.Unmarshal(pj.Metadata, &md); err == nil && md.PactSpecification.Version != "" {
			p.Spec = SpecVersion(md.PactSpecification.Version)
		}
		var generic map[string]any
		if err := json.Unmarshal(pj.Metadata, &generic); err == nil {
			p.Metadata = generic
		}
	}
	return nil
}

// MarshalJSON renders the document with refreshed metadata.
func (p *Pact) MarshalJSON() ([]byte, error) {
	spec := p.Spec
	if spec == "" {
		spec = SpecV3
	}
	if p.IsMessagePact() && spec < SpecV3 {
		return nil, fmt.Errorf("message pacts require minimum V3 specification")
	}

	var md metadataJSON
	md.PactSpecification.Version = string(spec)
	md.Pactd.Version = Version
	rawMD, err := json.Marshal(md)
	if err != nil {
		return nil, err
	}

	return json.Marshal(pactJSON{
		Consumer:     p.Consumer,
		Provider:     p.Provider,
		Interactions: p.Interactions,
		Messages:     p.Messages,
		Metadata:     rawMD,
	})
}

// Version is stamped into the metadata of written pact files.
const Version = "0.4.0"
