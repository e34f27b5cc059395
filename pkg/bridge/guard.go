package bridge

import (
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/getpactd/pactd/pkg/logging"
)

// lastFault is the process-wide record of the most recent contained
// panic, for callers that no longer hold (or never had) a handle.
var lastFault struct {
	mu  sync.Mutex
	msg string
}

func recordFault(msg string) {
	lastFault.mu.Lock()
	lastFault.msg = msg
	lastFault.mu.Unlock()
}

// LastFault returns the message of the most recent panic contained at
// the boundary, anywhere in the process. Empty when none has occurred.
func LastFault() string {
	lastFault.mu.Lock()
	defer lastFault.mu.Unlock()
	return lastFault.msg
}

// guard runs one boundary operation against a session. It serializes the
// call under the session lock and contains any panic: the session is
// marked failed, the panic value and stack go to the diagnostics sink,
// and the caller sees StatusInternalFault instead of an unwinding stack.
func guard(s *session, fn func(s *session) Status) (st Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			msg := fmt.Sprintf("internal fault: %v", r)
			s.fail(msg)
			recordFault(msg)
			logging.Default().Error("panic contained at boundary",
				"handle", uint64(s.handle),
				"kind", s.kind.String(),
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()))
			st = StatusInternalFault
		}
	}()
	return fn(s)
}

// capture contains panics for boundary work that has no session yet,
// such as parsing arguments before a handle is allocated.
func capture(fn func() Status) (st Status) {
	defer func() {
		if r := recover(); r != nil {
			recordFault(fmt.Sprintf("internal fault: %v", r))
			logging.Default().Error("panic contained at boundary",
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()))
			st = StatusInternalFault
		}
	}()
	return fn()
}

// resolveAny finds a live session of any kind.
func resolveAny(h Handle) (*session, Status) {
	handles.mu.RLock()
	s, ok := handles.sessions[h]
	handles.mu.RUnlock()
	if !ok {
		return nil, StatusInvalidHandle
	}
	return s, StatusOK
}

// LastError returns the message recorded by the most recent failure on a
// session, or the empty string if it has never failed.
func LastError(h Handle) string {
	s, st := resolveAny(h)
	if !st.Ok() {
		return ""
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// SessionState reports where a session is in its lifecycle. Unknown
// handles report StateShutDown; an invalidated handle and a handle that
// never existed look the same from outside the registry.
func SessionState(h Handle) State {
	s, st := resolveAny(h)
	if !st.Ok() {
		return StateShutDown
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}
