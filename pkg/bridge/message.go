package bridge

import (
	"encoding/json"

	"github.com/getpactd/pactd/pkg/consumer"
	"github.com/getpactd/pactd/pkg/contract"
	"github.com/getpactd/pactd/pkg/logging"
)

// messageSession is the payload behind a KindMessage handle.
type messageSession struct {
	mb    *consumer.MessageBuilder
	built bool
}

// NewMessagePact allocates a message pact under construction and returns
// its handle.
func NewMessagePact(consumerName, providerName string) Handle {
	s := handles.allocate(KindMessagePact)
	s.pact = &pactSession{
		builder: consumer.NewPact(consumerName, providerName,
			consumer.WithLogger(logging.Default())),
	}
	logging.Default().Debug("message pact created",
		"handle", uint64(s.handle), "consumer", consumerName, "provider", providerName)
	return s.handle
}

// NewMessage adds a message expectation to the pact and returns a handle
// for shaping it.
func NewMessage(pact Handle, description string) (Handle, Status) {
	ps, st := handles.resolve(pact, KindMessagePact)
	if !st.Ok() {
		return 0, st
	}
	var handle Handle
	st = guard(ps, func(ps *session) Status {
		if ps.state != StateCreated && ps.state != StateConfigured {
			ps.lastErr = "pact can no longer accept messages in state " + ps.state.String()
			return StatusInvalidState
		}
		child := handles.allocate(KindMessage)
		child.message = &messageSession{
			mb: ps.pact.builder.Message(description),
		}
		ps.pact.children = append(ps.pact.children, child.handle)
		ps.state = StateConfigured
		handle = child.handle
		return StatusOK
	})
	return handle, st
}

// shapeMessage runs one mutation against a message that is still under
// construction.
func shapeMessage(h Handle, fn func(mb *consumer.MessageBuilder) Status) Status {
	s, st := handles.resolve(h, KindMessage)
	if !st.Ok() {
		return st
	}
	return guard(s, func(s *session) Status {
		if s.message.built || s.state == StateCompleted {
			s.lastErr = "message is already part of a written pact"
			return StatusInvalidState
		}
		st := fn(s.message.mb)
		if st.Ok() {
			s.state = StateConfigured
		}
		return st
	})
}

// MessageExpectsToReceive replaces the message description.
func MessageExpectsToReceive(h Handle, description string) Status {
	return shapeMessage(h, func(mb *consumer.MessageBuilder) Status {
		mb.ExpectsToReceive(description)
		return StatusOK
	})
}

// MessageGiven adds a provider state.
func MessageGiven(h Handle, state string) Status {
	return shapeMessage(h, func(mb *consumer.MessageBuilder) Status {
		mb.Given(state)
		return StatusOK
	})
}

// MessageWithContents sets the expected message payload.
func MessageWithContents(h Handle, contentType, body string) Status {
	return shapeMessage(h, func(mb *consumer.MessageBuilder) Status {
		mb.WithTextContents(body, contentType)
		return StatusOK
	})
}

// MessageWithBinaryContents sets the expected payload to raw bytes.
func MessageWithBinaryContents(h Handle, raw []byte, contentType string) Status {
	return shapeMessage(h, func(mb *consumer.MessageBuilder) Status {
		mb.WithBinaryContents(raw, contentType)
		return StatusOK
	})
}

// MessageWithMetadata records a metadata entry. The returned flag reports
// whether the key already existed and was overwritten.
func MessageWithMetadata(h Handle, key, value string) (bool, Status) {
	var existed bool
	st := shapeMessage(h, func(mb *consumer.MessageBuilder) Status {
		existed = mb.SetMetadata(key, value)
		return StatusOK
	})
	return existed, st
}

// MessageWithRule attaches a matching rule, given as JSON, to a path
// inside the message contents.
func MessageWithRule(h Handle, path, ruleJSON string) Status {
	var rule contract.Rule
	if err := json.Unmarshal([]byte(ruleJSON), &rule); err != nil {
		s, st := handles.resolve(h, KindMessage)
		if !st.Ok() {
			return st
		}
		return guard(s, func(s *session) Status {
			s.lastErr = "matching rule is not valid JSON: " + err.Error()
			return StatusInvalidArgument
		})
	}
	return shapeMessage(h, func(mb *consumer.MessageBuilder) Status {
		mb.WithRule(path, rule)
		return StatusOK
	})
}

// MessageReify renders the message contents with example values, as a
// consumer message handler would receive them.
func MessageReify(h Handle) (string, Status) {
	s, st := handles.resolve(h, KindMessage)
	if !st.Ok() {
		return "", st
	}
	var out string
	st = guard(s, func(s *session) Status {
		raw, err := s.message.mb.Reify()
		if err != nil {
			s.lastErr = err.Error()
			return StatusInvalidArgument
		}
		out = string(raw)
		return StatusOK
	})
	return out, st
}

// MessageContentsBinary returns the reified contents as raw bytes, for
// payloads that are not text.
func MessageContentsBinary(h Handle) ([]byte, Status) {
	s, st := handles.resolve(h, KindMessage)
	if !st.Ok() {
		return nil, st
	}
	var out []byte
	st = guard(s, func(s *session) Status {
		raw, err := s.message.mb.Reify()
		if err != nil {
			s.lastErr = err.Error()
			return StatusInvalidArgument
		}
		out = raw
		return StatusOK
	})
	return out, st
}

// MessageMetadataValue returns a metadata entry rendered as a string, or
// "" when absent.
func MessageMetadataValue(h Handle, key string) (string, Status) {
	s, st := handles.resolve(h, KindMessage)
	if !st.Ok() {
		return "", st
	}
	var out string
	st = guard(s, func(s *session) Status {
		out = s.message.mb.MetadataValue(key)
		return StatusOK
	})
	return out, st
}

// MessageMetadataKeys returns the metadata keys in sorted order.
func MessageMetadataKeys(h Handle) ([]string, Status) {
	s, st := handles.resolve(h, KindMessage)
	if !st.Ok() {
		return nil, st
	}
	var keys []string
	st = guard(s, func(s *session) Status {
		keys = s.message.mb.MetadataKeys()
		return StatusOK
	})
	return keys, st
}

// MessagePactWrite seals the pact's messages and writes the document.
func MessagePactWrite(pact Handle, dir string, overwrite bool) Status {
	return writePactSession(pact, KindMessagePact, dir, overwrite)
}
