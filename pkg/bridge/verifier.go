package bridge

import (
	"context"
	"errors"
	"time"

	"github.com/getpactd/pactd/pkg/engine"
	"github.com/getpactd/pactd/pkg/logging"
	"github.com/getpactd/pactd/pkg/plugin"
	"github.com/getpactd/pactd/pkg/verifier"
)

// verifierSession is the payload behind a KindVerifier handle.
type verifierSession struct {
	v      *verifier.Verifier
	driver *plugin.Driver
	result *verifier.Result
}

// NewVerifier allocates a verifier session and returns its handle.
func NewVerifier() Handle {
	s := handles.allocate(KindVerifier)
	s.verifier = &verifierSession{
		v: verifier.New(verifier.WithLogger(logging.Default())),
	}
	logging.Default().Debug("verifier created", "handle", uint64(s.handle))
	return s.handle
}

// configureVerifier runs one configuration mutation, enforcing that the
// session has not started executing.
func configureVerifier(h Handle, fn func(v *verifier.Verifier) error) Status {
	s, st := handles.resolve(h, KindVerifier)
	if !st.Ok() {
		return st
	}
	return guard(s, func(s *session) Status {
		if s.state != StateCreated && s.state != StateConfigured {
			s.lastErr = "verifier can no longer be configured in state " + s.state.String()
			return StatusInvalidState
		}
		if err := fn(s.verifier.v); err != nil {
			s.lastErr = err.Error()
			return StatusInvalidArgument
		}
		s.state = StateConfigured
		return StatusOK
	})
}

// VerifierSetProviderInfo names the provider and its main transport.
func VerifierSetProviderInfo(h Handle, name, scheme, host string, port int, path string) Status {
	if name == "" {
		return invalidVerifierArgument(h, "provider name must not be empty")
	}
	return configureVerifier(h, func(v *verifier.Verifier) error {
		v.SetProviderInfo(name, scheme, host, port, path)
		return nil
	})
}

// VerifierAddFileSource adds a single pact file to verify.
func VerifierAddFileSource(h Handle, path string) Status {
	if path == "" {
		return invalidVerifierArgument(h, "file source path must not be empty")
	}
	return configureVerifier(h, func(v *verifier.Verifier) error {
		v.AddFileSource(path)
		return nil
	})
}

// VerifierAddDirectorySource adds every pact file found under dir.
func VerifierAddDirectorySource(h Handle, dir string) Status {
	if dir == "" {
		return invalidVerifierArgument(h, "directory source path must not be empty")
	}
	return configureVerifier(h, func(v *verifier.Verifier) error {
		v.AddDirectorySource(dir)
		return nil
	})
}

// VerifierAddURLSource adds a pact fetched from a URL.
func VerifierAddURLSource(h Handle, url string) Status {
	if url == "" {
		return invalidVerifierArgument(h, "url source must not be empty")
	}
	return configureVerifier(h, func(v *verifier.Verifier) error {
		v.AddURLSource(url)
		return nil
	})
}

// VerifierAddBrokerSource adds a pact broker queried for the provider's
// latest pacts. The token may be empty for anonymous brokers.
func VerifierAddBrokerSource(h Handle, url, token string) Status {
	if url == "" {
		return invalidVerifierArgument(h, "broker url must not be empty")
	}
	return configureVerifier(h, func(v *verifier.Verifier) error {
		v.AddBrokerSource(url, token)
		return nil
	})
}

// VerifierSetStateChangeURL configures the provider-state endpoint.
func VerifierSetStateChangeURL(h Handle, url string) Status {
	return configureVerifier(h, func(v *verifier.Verifier) error {
		v.SetStateChangeURL(url)
		return nil
	})
}

// VerifierSetFilter restricts verification to interactions matching an
// expression over description, states, and consumer.
func VerifierSetFilter(h Handle, expression string) Status {
	return configureVerifier(h, func(v *verifier.Verifier) error {
		v.SetFilter(expression)
		return nil
	})
}

// VerifierAddCustomHeader adds a header sent with every provider request.
func VerifierAddCustomHeader(h Handle, name, value string) Status {
	if name == "" {
		return invalidVerifierArgument(h, "header name must not be empty")
	}
	return configureVerifier(h, func(v *verifier.Verifier) error {
		v.AddCustomHeader(name, value)
		return nil
	})
}

// VerifierSetRequestTimeout bounds each provider request, in milliseconds.
func VerifierSetRequestTimeout(h Handle, millis int) Status {
	if millis <= 0 {
		return invalidVerifierArgument(h, "request timeout must be positive")
	}
	return configureVerifier(h, func(v *verifier.Verifier) error {
		v.SetRequestTimeout(time.Duration(millis) * time.Millisecond)
		return nil
	})
}

// VerifierSetConcurrency bounds how many interactions run in parallel.
func VerifierSetConcurrency(h Handle, n int) Status {
	if n <= 0 {
		return invalidVerifierArgument(h, "concurrency must be positive")
	}
	return configureVerifier(h, func(v *verifier.Verifier) error {
		v.SetConcurrency(n)
		return nil
	})
}

// VerifierSetUseH2C switches provider requests to cleartext HTTP/2.
func VerifierSetUseH2C(h Handle, enabled bool) Status {
	return configureVerifier(h, func(v *verifier.Verifier) error {
		v.SetUseH2C(enabled)
		return nil
	})
}

// VerifierSetPublishOptions records the provider version and tags that
// accompany published verification results.
func VerifierSetPublishOptions(h Handle, providerVersion string, tags []string) Status {
	if providerVersion == "" {
		return invalidVerifierArgument(h, "provider version must not be empty")
	}
	return configureVerifier(h, func(v *verifier.Verifier) error {
		v.SetPublishOptions(providerVersion, tags)
		return nil
	})
}

// VerifierSetPluginDirectory points the session at an installed-plugin
// directory, enabling plugin-transport interactions.
func VerifierSetPluginDirectory(h Handle, dir string) Status {
	if dir == "" {
		return invalidVerifierArgument(h, "plugin directory must not be empty")
	}
	s, st := handles.resolve(h, KindVerifier)
	if !st.Ok() {
		return st
	}
	return guard(s, func(s *session) Status {
		if s.state != StateCreated && s.state != StateConfigured {
			s.lastErr = "verifier can no longer be configured in state " + s.state.String()
			return StatusInvalidState
		}
		driver := plugin.NewDriver(dir, plugin.WithLogger(logging.Default()))
		if s.verifier.driver != nil {
			_ = s.verifier.driver.Close()
		}
		s.verifier.driver = driver
		s.verifier.v.SetPluginDriver(driver)
		s.state = StateConfigured
		return StatusOK
	})
}

// invalidVerifierArgument records an argument error against the session
// without touching its state.
func invalidVerifierArgument(h Handle, msg string) Status {
	s, st := handles.resolve(h, KindVerifier)
	if !st.Ok() {
		return st
	}
	return guard(s, func(s *session) Status {
		s.lastErr = msg
		return StatusInvalidArgument
	})
}

// VerifierExecute runs the verification and blocks until it finishes. The
// work itself runs on the shared scheduler; the calling goroutine only
// waits. A session executes at most once.
func VerifierExecute(h Handle) Status {
	s, st := handles.resolve(h, KindVerifier)
	if !st.Ok() {
		return st
	}
	return guard(s, func(s *session) Status {
		if s.state != StateConfigured {
			s.lastErr = "verifier cannot execute in state " + s.state.String()
			return StatusInvalidState
		}
		s.state = StateExecuting

		var result *verifier.Result
		err := engine.Run(context.Background(), func(ctx context.Context) error {
			r, execErr := s.verifier.v.Execute(ctx)
			result = r
			return execErr
		})

		switch {
		case err == nil:
			s.verifier.result = result
			s.state = StateCompleted
			if result.Failed() > 0 {
				s.lastErr = "verification completed with mismatches"
				return StatusVerificationMismatch
			}
			return StatusOK
		case errors.Is(err, verifier.ErrNoSources), errors.Is(err, engine.ErrShutDown):
			s.fail(err.Error())
			return StatusInvalidState
		default:
			var panicErr *engine.PanicError
			if errors.As(err, &panicErr) {
				s.fail(panicErr.Error())
				return StatusInternalFault
			}
			s.fail(err.Error())
			return StatusIOFailure
		}
	})
}

// VerifierResults returns the completed run as JSON.
func VerifierResults(h Handle) (string, Status) {
	s, st := handles.resolve(h, KindVerifier)
	if !st.Ok() {
		return "", st
	}
	var out string
	st = guard(s, func(s *session) Status {
		if s.verifier.result == nil {
			s.lastErr = "verifier has no results in state " + s.state.String()
			return StatusInvalidState
		}
		raw, err := s.verifier.result.JSON()
		if err != nil {
			s.lastErr = err.Error()
			return StatusInternalFault
		}
		out = string(raw)
		return StatusOK
	})
	return out, st
}

// VerifierShutdown releases the session. The handle stops resolving and
// is never reused.
func VerifierShutdown(h Handle) Status {
	s, st := handles.resolve(h, KindVerifier)
	if !st.Ok() {
		return st
	}
	guard(s, func(s *session) Status {
		if s.verifier.driver != nil {
			_ = s.verifier.driver.Close()
			s.verifier.driver = nil
		}
		return StatusOK
	})
	handles.invalidate(h)
	logging.Default().Debug("verifier shut down", "handle", uint64(h))
	return StatusOK
}
