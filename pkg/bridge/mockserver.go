package bridge

import (
	"context"
	"errors"
	"time"

	"github.com/getpactd/pactd/pkg/contract"
	"github.com/getpactd/pactd/pkg/logging"
	"github.com/getpactd/pactd/pkg/mockserver"
)

// mockSession is the payload behind a KindMockServer handle.
type mockSession struct {
	server *mockserver.Server
}

const mockShutdownTimeout = 5 * time.Second

// CreateMockServer parses a pact document, starts a mock server playing
// its interactions, and returns the session handle. Port 0 picks a free
// ephemeral port; MockServerPort reports the bound one.
func CreateMockServer(pactJSON string, port int) (Handle, Status) {
	var handle Handle
	st := capture(func() Status {
		pact, err := contract.Load([]byte(pactJSON))
		if err != nil {
			logging.Default().Warn("mock server rejected pact document", "error", err)
			return StatusInvalidArgument
		}
		return startMockServer(pact, port, &handle)
	})
	return handle, st
}

// startMockServer allocates the session and binds the server. On any
// failure after allocation the handle is withdrawn before returning.
func startMockServer(pact *contract.Pact, port int, handle *Handle) Status {
	server, err := mockserver.New(pact, mockserver.WithLogger(logging.Default()))
	if err != nil {
		logging.Default().Warn("mock server rejected pact document", "error", err)
		return StatusInvalidArgument
	}

	s := handles.allocate(KindMockServer)
	s.mock = &mockSession{server: server}

	st := guard(s, func(s *session) Status {
		bound, err := server.Start(port)
		if err != nil {
			s.fail(err.Error())
			return StatusIOFailure
		}
		s.state = StateExecuting
		logging.Default().Info("mock server started",
			"handle", uint64(s.handle),
			"port", bound,
			"consumer", pact.Consumer,
			"provider", pact.Provider)
		return StatusOK
	})
	if !st.Ok() {
		handles.invalidate(s.handle)
		return st
	}
	*handle = s.handle
	return StatusOK
}

// MockServerPort reports the port the server is listening on.
func MockServerPort(h Handle) (int, Status) {
	s, st := handles.resolve(h, KindMockServer)
	if !st.Ok() {
		return 0, st
	}
	var port int
	st = guard(s, func(s *session) Status {
		if s.state != StateExecuting {
			s.lastErr = "mock server is not running"
			return StatusInvalidState
		}
		port = s.mock.server.Port()
		return StatusOK
	})
	return port, st
}

// MockServerMatched reports whether every interaction was exercised and
// nothing unexpected arrived. Unknown handles report false.
func MockServerMatched(h Handle) bool {
	s, st := handles.resolve(h, KindMockServer)
	if !st.Ok() {
		return false
	}
	var matched bool
	guard(s, func(s *session) Status {
		matched = s.mock.server.Matched()
		return StatusOK
	})
	return matched
}

// MockServerMismatches returns the mismatch records as JSON.
func MockServerMismatches(h Handle) (string, Status) {
	s, st := handles.resolve(h, KindMockServer)
	if !st.Ok() {
		return "", st
	}
	var out string
	st = guard(s, func(s *session) Status {
		raw, err := s.mock.server.MismatchesJSON()
		if err != nil {
			s.lastErr = err.Error()
			return StatusInternalFault
		}
		out = string(raw)
		return StatusOK
	})
	return out, st
}

// MockServerWritePact writes the pact file, refusing while the session
// has unmatched or unexpected requests.
func MockServerWritePact(h Handle, dir string, overwrite bool) Status {
	s, st := handles.resolve(h, KindMockServer)
	if !st.Ok() {
		return st
	}
	return guard(s, func(s *session) Status {
		path, err := s.mock.server.WritePact(dir, overwrite)
		switch {
		case err == nil:
			logging.Default().Info("pact written", "handle", uint64(s.handle), "path", path)
			return StatusOK
		case errors.Is(err, mockserver.ErrNotMatched):
			s.lastErr = err.Error()
			return StatusVerificationMismatch
		default:
			s.lastErr = err.Error()
			return StatusIOFailure
		}
	})
}

// MockServerShutdown stops the server and releases the session.
func MockServerShutdown(h Handle) Status {
	s, st := handles.resolve(h, KindMockServer)
	if !st.Ok() {
		return st
	}
	st = guard(s, func(s *session) Status {
		ctx, cancel := context.WithTimeout(context.Background(), mockShutdownTimeout)
		defer cancel()
		if err := s.mock.server.Shutdown(ctx); err != nil {
			s.lastErr = err.Error()
			return StatusIOFailure
		}
		return StatusOK
	})
	handles.invalidate(h)
	logging.Default().Debug("mock server shut down", "handle", uint64(h))
	return st
}
