package bridge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandlesAreMonotonic(t *testing.T) {
	h1 := NewVerifier()
	h2 := NewPact("web", "order-api")
	h3 := NewMessagePact("web", "order-api")

	assert.Greater(t, h2, h1)
	assert.Greater(t, h3, h2)

	require.Equal(t, StatusOK, VerifierShutdown(h1))
	require.Equal(t, StatusOK, PactShutdown(h2))

	// Freed handles are never reissued.
	h4 := NewVerifier()
	assert.Greater(t, h4, h3)
	VerifierShutdown(h4)
	PactShutdown(h3)
}

func TestResolveChecksKind(t *testing.T) {
	h := NewVerifier()
	defer VerifierShutdown(h)

	assert.Equal(t, StatusInvalidHandle, PactSetSpecVersion(h, "3"))
	_, st := NewInteraction(h, "anything")
	assert.Equal(t, StatusInvalidHandle, st)
}

func TestUnknownHandle(t *testing.T) {
	const bogus = Handle(1 << 60)
	assert.Equal(t, StatusInvalidHandle, VerifierExecute(bogus))
	assert.Equal(t, StatusInvalidHandle, MockServerShutdown(bogus))
	assert.Equal(t, "", LastError(bogus))
	assert.Equal(t, StateShutDown, SessionState(bogus))
}

func TestSessionLifecycle(t *testing.T) {
	h := NewVerifier()
	defer VerifierShutdown(h)

	assert.Equal(t, StateCreated, SessionState(h))
	require.Equal(t, StatusOK, VerifierSetProviderInfo(h, "order-api", "http", "localhost", 8080, "/"))
	assert.Equal(t, StateConfigured, SessionState(h))
}

func TestShutdownInvalidatesHandle(t *testing.T) {
	h := NewVerifier()
	require.Equal(t, StatusOK, VerifierShutdown(h))

	assert.Equal(t, StatusInvalidHandle, VerifierShutdown(h))
	assert.Equal(t, StatusInvalidHandle, VerifierExecute(h))
	assert.Equal(t, StateShutDown, SessionState(h))
}

func TestGuardContainsPanic(t *testing.T) {
	h := NewVerifier()
	defer VerifierShutdown(h)
	bystander := NewVerifier()
	defer VerifierShutdown(bystander)
	s, st := handles.resolve(h, KindVerifier)
	require.True(t, st.Ok())

	got := guard(s, func(*session) Status {
		panic("boundary must hold")
	})
	assert.Equal(t, StatusInternalFault, got)
	assert.Equal(t, StateFailed, SessionState(h))
	assert.Contains(t, LastError(h), "boundary must hold")
	assert.Contains(t, LastFault(), "boundary must hold")

	// The fault stays on its own session.
	assert.Equal(t, StateCreated, SessionState(bystander))
	assert.Empty(t, LastError(bystander))
}

func TestCaptureContainsPanic(t *testing.T) {
	got := capture(func() Status {
		panic("no session yet")
	})
	assert.Equal(t, StatusInternalFault, got)
	assert.Contains(t, LastFault(), "no session yet")
}

func TestStatusAndStateNames(t *testing.T) {
	assert.Equal(t, "ok", StatusOK.String())
	assert.Equal(t, "verification-mismatch", StatusVerificationMismatch.String())
	assert.Equal(t, "invalid-handle", StatusInvalidHandle.String())
	assert.Equal(t, "unknown", Status(99).String())
	assert.True(t, StatusOK.Ok())
	assert.False(t, StatusIOFailure.Ok())

	assert.Equal(t, "created", StateCreated.String())
	assert.Equal(t, "shut-down", StateShutDown.String())
	assert.Equal(t, "verifier", KindVerifier.String())
}
