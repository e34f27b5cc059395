package verifier

import (
	"encoding/json"

	"github.com/getpactd/pactd/pkg/matching"
)

// InteractionResult is the outcome of exercising one interaction.
type InteractionResult struct {
	Consumer    string              `json:"consumer"`
	Description string              `json:"description"`
	Mismatches  []matching.Mismatch `json:"mismatches,omitempty"`

	// Error is set when the interaction could not be exercised at all
	// (transport failure, bad source), as opposed to content mismatching.
	Error string `json:"error,omitempty"`
}

// Ok reports whether the interaction passed.
func (r *InteractionResult) Ok() bool {
	return r.Error == "" && len(r.Mismatches) == 0
}

// Result aggregates a verification run. It always lists every interaction
// that was gathered, passed or failed.
type Result struct {
	Provider     string              `json:"provider"`
	Interactions []InteractionResult `json:"interactions"`
}

// Ok reports whether every interaction passed.
func (r *Result) Ok() bool {
	for i := range r.Interactions {
		if !r.Interactions[i].Ok() {
			return false
		}
	}
	return true
}

// Passed counts passing interactions.
func (r *Result) Passed() int {
	n := 0
	for i := range r.Interactions {
		if r.Interactions[i].Ok() {
			n++
		}
	}
	return n
}

// Failed counts failing interactions.
func (r *Result) Failed() int {
	return len(r.Interactions) - r.Passed()
}

// JSON renders the result for boundary accessors.
func (r *Result) JSON() ([]byte, error) {
	return json.Marshal(r)
}
