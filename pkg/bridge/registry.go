package bridge

import (
	"sync"
	"sync/atomic"
)

// Handle identifies one session across the boundary. Handles start at 1
// and grow monotonically for the life of the process; a handle is never
// reissued, even after its session is gone.
type Handle uint64

// Kind names what a session is.
type Kind int

const (
	KindVerifier Kind = iota + 1
	KindMockServer
	KindPact
	KindInteraction
	KindMessagePact
	KindMessage
)

var kindNames = map[Kind]string{
	KindVerifier:    "verifier",
	KindMockServer:  "mock-server",
	KindPact:        "pact",
	KindInteraction: "interaction",
	KindMessagePact: "message-pact",
	KindMessage:     "message",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// State is a session's lifecycle position. Transitions only move forward.
type State int

const (
	StateCreated State = iota + 1
	StateConfigured
	StateExecuting
	StateCompleted
	StateFailed
	StateShutDown
)

var stateNames = map[State]string{
	StateCreated:    "created",
	StateConfigured: "configured",
	StateExecuting:  "executing",
	StateCompleted:  "completed",
	StateFailed:     "failed",
	StateShutDown:   "shut-down",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// terminal reports whether no further transitions may leave the state.
func (s State) terminal() bool {
	return s == StateShutDown
}

// session is one registry entry. The mutex covers state, lastErr, and the
// kind-specific payload; boundary functions hold it for the whole call so
// a session is only ever worked on by one caller at a time.
type session struct {
	handle Handle
	kind   Kind

	mu      sync.Mutex
	state   State
	lastErr string

	verifier    *verifierSession
	mock        *mockSession
	pact        *pactSession
	interaction *interactionSession
	message     *messageSession
}

// fail records an error and moves the session to Failed unless it is
// already shut down. Callers hold s.mu.
func (s *session) fail(msg string) {
	s.lastErr = msg
	if !s.state.terminal() {
		s.state = StateFailed
	}
}

// registry is the process-wide handle table.
type registry struct {
	next atomic.Uint64

	mu       sync.RWMutex
	sessions map[Handle]*session
}

var handles = &registry{sessions: make(map[Handle]*session)}

// allocate issues a fresh handle for a new session of the given kind.
func (r *registry) allocate(kind Kind) *session {
	s := &session{
		handle: Handle(r.next.Add(1)),
		kind:   kind,
		state:  StateCreated,
	}
	r.mu.Lock()
	r.sessions[s.handle] = s
	r.mu.Unlock()
	return s
}

// resolve looks up a live session, checking its kind.
func (r *registry) resolve(h Handle, kind Kind) (*session, Status) {
	r.mu.RLock()
	s, ok := r.sessions[h]
	r.mu.RUnlock()
	if !ok || s.kind != kind {
		return nil, StatusInvalidHandle
	}
	return s, StatusOK
}

// invalidate removes a session from the table and marks it shut down.
// The handle stops resolving immediately.
func (r *registry) invalidate(h Handle) {
	r.mu.Lock()
	s, ok := r.sessions[h]
	delete(r.sessions, h)
	r.mu.Unlock()
	if ok {
		s.mu.Lock()
		s.state = StateShutDown
		s.mu.Unlock()
	}
}

// live snapshots every registered session.
func (r *registry) live() []*session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}
