package bridge

// Status is the integer result of every boundary call. Zero means the
// call succeeded; anything else names the first thing that went wrong.
type Status int

const (
	// StatusOK reports a successful call.
	StatusOK Status = 0

	// StatusVerificationMismatch reports that an execution completed but
	// found contract mismatches. The session's results carry the detail.
	StatusVerificationMismatch Status = 1

	// StatusInvalidHandle reports a handle that was never issued or has
	// already been invalidated.
	StatusInvalidHandle Status = 10

	// StatusInvalidState reports an operation that does not apply to the
	// session's current lifecycle state.
	StatusInvalidState Status = 11

	// StatusInvalidArgument reports a malformed argument, such as an
	// unparseable pact document or a bad filter expression.
	StatusInvalidArgument Status = 12

	// StatusInternalFault reports a panic caught at the boundary. The
	// session is marked failed and LastError carries the panic value.
	StatusInternalFault Status = 20

	// StatusIOFailure reports a failure reaching something external: a
	// provider, a broker, the filesystem.
	StatusIOFailure Status = 21
)

var statusNames = map[Status]string{
	StatusOK:                   "ok",
	StatusVerificationMismatch: "verification-mismatch",
	StatusInvalidHandle:        "invalid-handle",
	StatusInvalidState:         "invalid-state",
	StatusInvalidArgument:      "invalid-argument",
	StatusInternalFault:        "internal-fault",
	StatusIOFailure:            "io-failure",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "unknown"
}

// Ok reports whether the status is a success.
func (s Status) Ok() bool {
	return s == StatusOK
}
