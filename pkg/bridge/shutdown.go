package bridge

import (
	"context"
	"time"

	"github.com/getpactd/pactd/pkg/engine"
	"github.com/getpactd/pactd/pkg/logging"
)

const processShutdownTimeout = 30 * time.Second

// ProcessShutdown winds down everything the boundary owns: running mock
// servers stop, plugin connections close, the shared scheduler drains,
// and every live handle is invalidated. Calls in flight finish first;
// boundary calls made afterwards report StatusInvalidHandle. Safe to call
// more than once.
func ProcessShutdown() Status {
	return capture(func() Status {
		ctx, cancel := context.WithTimeout(context.Background(), processShutdownTimeout)
		defer cancel()

		st := StatusOK
		for _, s := range handles.live() {
			s.mu.Lock()
			switch {
			case s.mock != nil:
				if err := s.mock.server.Shutdown(ctx); err != nil {
					s.lastErr = err.Error()
					st = StatusIOFailure
				}
			case s.verifier != nil && s.verifier.driver != nil:
				_ = s.verifier.driver.Close()
				s.verifier.driver = nil
			}
			s.mu.Unlock()
			handles.invalidate(s.handle)
		}

		if err := engine.Shutdown(ctx); err != nil {
			logging.Default().Error("scheduler did not drain", "error", err)
			return StatusIOFailure
		}
		logging.Default().Info("process shut down")
		return st
	})
}
