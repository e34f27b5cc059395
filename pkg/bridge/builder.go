package bridge

import (
	"encoding/json"

	"github.com/getpactd/pactd/pkg/consumer"
	"github.com/getpactd/pactd/pkg/contract"
	"github.com/getpactd/pactd/pkg/logging"
)

// pactSession is the payload behind a KindPact or KindMessagePact handle.
type pactSession struct {
	builder  *consumer.PactBuilder
	children []Handle
}

// interactionSession is the payload behind a KindInteraction handle.
type interactionSession struct {
	ib    *consumer.InteractionBuilder
	built bool
}

// NewPact allocates a consumer pact under construction and returns its
// handle.
func NewPact(consumerName, providerName string) Handle {
	s := handles.allocate(KindPact)
	s.pact = &pactSession{
		builder: consumer.NewPact(consumerName, providerName,
			consumer.WithLogger(logging.Default())),
	}
	logging.Default().Debug("pact created",
		"handle", uint64(s.handle), "consumer", consumerName, "provider", providerName)
	return s.handle
}

// resolvePactKind finds a live pact of either flavor, request/response
// or message.
func resolvePactKind(h Handle) (*session, Status) {
	s, st := handles.resolve(h, KindPact)
	if !st.Ok() {
		s, st = handles.resolve(h, KindMessagePact)
	}
	return s, st
}

// PactSetSpecVersion selects the specification version the pact is
// written as. Accepted values are "2", "3", "4" and their full forms.
func PactSetSpecVersion(h Handle, version string) Status {
	s, st := resolvePactKind(h)
	if !st.Ok() {
		return st
	}
	var spec contract.SpecVersion
	switch version {
	case "2", string(contract.SpecV2):
		spec = contract.SpecV2
	case "3", string(contract.SpecV3):
		spec = contract.SpecV3
	case "4", string(contract.SpecV4):
		spec = contract.SpecV4
	default:
		return guard(s, func(s *session) Status {
			s.lastErr = "unknown specification version " + version
			return StatusInvalidArgument
		})
	}
	return guard(s, func(s *session) Status {
		if s.state != StateCreated && s.state != StateConfigured {
			s.lastErr = "pact can no longer be configured in state " + s.state.String()
			return StatusInvalidState
		}
		s.pact.builder.WithSpecVersion(spec)
		s.state = StateConfigured
		return StatusOK
	})
}

// NewInteraction adds an interaction to the pact and returns a handle for
// shaping it. Interactions can be added until the pact is served or
// written.
func NewInteraction(pact Handle, description string) (Handle, Status) {
	ps, st := handles.resolve(pact, KindPact)
	if !st.Ok() {
		return 0, st
	}
	var handle Handle
	st = guard(ps, func(ps *session) Status {
		if ps.state != StateCreated && ps.state != StateConfigured {
			ps.lastErr = "pact can no longer accept interactions in state " + ps.state.String()
			return StatusInvalidState
		}
		child := handles.allocate(KindInteraction)
		child.interaction = &interactionSession{
			ib: ps.pact.builder.Interaction(description),
		}
		ps.pact.children = append(ps.pact.children, child.handle)
		ps.state = StateConfigured
		handle = child.handle
		return StatusOK
	})
	return handle, st
}

// shapeInteraction runs one mutation against an interaction that is still
// under construction.
func shapeInteraction(h Handle, fn func(ib *consumer.InteractionBuilder) Status) Status {
	s, st := handles.resolve(h, KindInteraction)
	if !st.Ok() {
		return st
	}
	return guard(s, func(s *session) Status {
		if s.interaction.built || s.state == StateCompleted {
			s.lastErr = "interaction is already part of a served or written pact"
			return StatusInvalidState
		}
		st := fn(s.interaction.ib)
		if st.Ok() {
			s.state = StateConfigured
		}
		return st
	})
}

// InteractionGiven adds a provider state.
func InteractionGiven(h Handle, state string) Status {
	return shapeInteraction(h, func(ib *consumer.InteractionBuilder) Status {
		ib.Given(state)
		return StatusOK
	})
}

// InteractionGivenWithParams adds a provider state carrying parameters,
// given as a JSON object.
func InteractionGivenWithParams(h Handle, state, paramsJSON string) Status {
	s, stResolve := handles.resolve(h, KindInteraction)
	if !stResolve.Ok() {
		return stResolve
	}
	var params map[string]any
	if err := json.Unmarshal([]byte(paramsJSON), &params); err != nil {
		return guard(s, func(s *session) Status {
			s.lastErr = "state parameters are not a JSON object: " + err.Error()
			return StatusInvalidArgument
		})
	}
	return shapeInteraction(h, func(ib *consumer.InteractionBuilder) Status {
		ib.GivenWithParams(state, params)
		return StatusOK
	})
}

// InteractionUponReceiving replaces the interaction description.
func InteractionUponReceiving(h Handle, description string) Status {
	return shapeInteraction(h, func(ib *consumer.InteractionBuilder) Status {
		ib.UponReceiving(description)
		return StatusOK
	})
}

// InteractionWithRequest sets the expected method and path.
func InteractionWithRequest(h Handle, method, path string) Status {
	return shapeInteraction(h, func(ib *consumer.InteractionBuilder) Status {
		ib.WithRequest(method, path)
		return StatusOK
	})
}

// InteractionWithQuery adds an expected query parameter.
func InteractionWithQuery(h Handle, name string, values ...string) Status {
	return shapeInteraction(h, func(ib *consumer.InteractionBuilder) Status {
		ib.WithQuery(name, values...)
		return StatusOK
	})
}

// InteractionWithHeader adds an expected request header.
func InteractionWithHeader(h Handle, name, value string) Status {
	return shapeInteraction(h, func(ib *consumer.InteractionBuilder) Status {
		ib.WithHeader(name, value)
		return StatusOK
	})
}

// InteractionWithRequestBody sets the expected request body.
func InteractionWithRequestBody(h Handle, contentType, body string) Status {
	return shapeInteraction(h, func(ib *consumer.InteractionBuilder) Status {
		ib.WithTextBody(body, contentType)
		return StatusOK
	})
}

// InteractionWithRequestRule attaches a matching rule, given as JSON, to
// a path inside the request.
func InteractionWithRequestRule(h Handle, category, path, ruleJSON string) Status {
	rule, st := parseRule(h, ruleJSON)
	if !st.Ok() {
		return st
	}
	return shapeInteraction(h, func(ib *consumer.InteractionBuilder) Status {
		ib.WithRequestRule(category, path, rule)
		return StatusOK
	})
}

// InteractionWillRespondWith sets the response status.
func InteractionWillRespondWith(h Handle, status int) Status {
	return shapeInteraction(h, func(ib *consumer.InteractionBuilder) Status {
		ib.WillRespondWith(status)
		return StatusOK
	})
}

// InteractionWithResponseHeader adds a response header.
func InteractionWithResponseHeader(h Handle, name, value string) Status {
	return shapeInteraction(h, func(ib *consumer.InteractionBuilder) Status {
		ib.WithResponseHeader(name, value)
		return StatusOK
	})
}

// InteractionWithResponseBody sets the response body.
func InteractionWithResponseBody(h Handle, contentType, body string) Status {
	return shapeInteraction(h, func(ib *consumer.InteractionBuilder) Status {
		ib.WithResponseTextBody(body, contentType)
		return StatusOK
	})
}

// InteractionWithResponseRule attaches a matching rule, given as JSON, to
// a path inside the response.
func InteractionWithResponseRule(h Handle, category, path, ruleJSON string) Status {
	rule, st := parseRule(h, ruleJSON)
	if !st.Ok() {
		return st
	}
	return shapeInteraction(h, func(ib *consumer.InteractionBuilder) Status {
		ib.WithResponseRule(category, path, rule)
		return StatusOK
	})
}

// InteractionWithTransport marks the interaction as riding a plugin
// transport instead of plain HTTP.
func InteractionWithTransport(h Handle, name string) Status {
	return shapeInteraction(h, func(ib *consumer.InteractionBuilder) Status {
		ib.WithTransport(name)
		return StatusOK
	})
}

func parseRule(h Handle, ruleJSON string) (contract.Rule, Status) {
	var rule contract.Rule
	if err := json.Unmarshal([]byte(ruleJSON), &rule); err != nil {
		s, st := handles.resolve(h, KindInteraction)
		if !st.Ok() {
			return rule, st
		}
		return rule, guard(s, func(s *session) Status {
			s.lastErr = "matching rule is not valid JSON: " + err.Error()
			return StatusInvalidArgument
		})
	}
	return rule, StatusOK
}

// finalizePact folds every still-open child interaction into the pact
// document. Callers hold the pact session lock.
func finalizePact(ps *session) Status {
	for _, childHandle := range ps.pact.children {
		child, st := handles.resolve(childHandle, KindInteraction)
		if !st.Ok() {
			child, st = handles.resolve(childHandle, KindMessage)
			if !st.Ok() {
				continue
			}
		}
		if st := sealChild(child, ps); !st.Ok() {
			return st
		}
	}
	return StatusOK
}

// sealChild builds one child session and marks it completed. Further
// mutations through its handle report StatusInvalidState.
func sealChild(child *session, ps *session) Status {
	child.mu.Lock()
	defer child.mu.Unlock()
	var err error
	switch child.kind {
	case KindInteraction:
		if child.interaction.built {
			return StatusOK
		}
		err = child.interaction.ib.Build()
		child.interaction.built = err == nil
	case KindMessage:
		if child.message.built {
			return StatusOK
		}
		err = child.message.mb.Build()
		child.message.built = err == nil
	}
	if err != nil {
		child.fail(err.Error())
		ps.lastErr = err.Error()
		return StatusInvalidArgument
	}
	child.state = StateCompleted
	return StatusOK
}

// StartMockServerForPact seals the pact's interactions and serves them,
// returning a mock-server handle. The pact session stays resolvable so
// its interactions can be inspected, but accepts no further changes.
func StartMockServerForPact(pact Handle, port int) (Handle, Status) {
	ps, st := handles.resolve(pact, KindPact)
	if !st.Ok() {
		return 0, st
	}
	var handle Handle
	st = guard(ps, func(ps *session) Status {
		if ps.state != StateCreated && ps.state != StateConfigured {
			ps.lastErr = "pact can no longer be served in state " + ps.state.String()
			return StatusInvalidState
		}
		if st := finalizePact(ps); !st.Ok() {
			return st
		}
		st := startMockServer(ps.pact.builder.Pact(), port, &handle)
		if st.Ok() {
			ps.state = StateExecuting
		}
		return st
	})
	return handle, st
}

// PactWrite seals the pact's interactions and writes the document to dir.
func PactWrite(pact Handle, dir string, overwrite bool) Status {
	return writePactSession(pact, KindPact, dir, overwrite)
}

func writePactSession(h Handle, kind Kind, dir string, overwrite bool) Status {
	ps, st := handles.resolve(h, kind)
	if !st.Ok() {
		return st
	}
	return guard(ps, func(ps *session) Status {
		if ps.state == StateFailed || ps.state == StateExecuting {
			ps.lastErr = "pact cannot be written in state " + ps.state.String()
			return StatusInvalidState
		}
		if st := finalizePact(ps); !st.Ok() {
			return st
		}
		path, err := ps.pact.builder.WritePact(dir, overwrite)
		if err != nil {
			ps.fail(err.Error())
			return StatusIOFailure
		}
		ps.state = StateCompleted
		logging.Default().Info("pact written", "handle", uint64(ps.handle), "path", path)
		return StatusOK
	})
}

// PactShutdown releases the pact session and every interaction handle
// hanging off it.
func PactShutdown(pact Handle) Status {
	ps, st := resolvePactKind(pact)
	if !st.Ok() {
		return st
	}
	ps.mu.Lock()
	children := append([]Handle(nil), ps.pact.children...)
	ps.mu.Unlock()
	for _, child := range children {
		handles.invalidate(child)
	}
	handles.invalidate(pact)
	return StatusOK
}
