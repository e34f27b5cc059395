package mockserver

import (
	"github.com/getpactd/pactd/pkg/matching"
)

// Record types follow the shapes mock-server clients already parse: one
// entry per problem, tagged by type.
const (
	recordRequestMismatch = "request-mismatch"
	recordRequestNotFound = "request-not-found"
	recordMissingRequest  = "missing-request"
)

// MismatchRecord is one entry in the mismatch report.
type MismatchRecord struct {
	Type   string `json:"type"`
	Method string `json:"method,omitempty"`
	Path   string `json:"path,omitempty"`

	// Description identifies the interaction for request-mismatch and
	// missing-request entries.
	Description string `json:"description,omitempty"`

	Mismatches []matching.Mismatch `json:"mismatches,omitempty"`

	// Request holds the serialized unexpected request for
	// request-not-found entries.
	Request string `json:"request,omitempty"`
}
