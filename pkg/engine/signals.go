package engine

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// notifyShutdown installs SIGINT/SIGTERM handlers that drain the scheduler.
// Only wired when Config.HandleSignals is set; see the hazard note there.
func notifyShutdown(s *Scheduler) func() {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	done := make(chan struct{})

	go func() {
		select {
		case sig := <-ch:
			s.logger.Info("shutting down on signal", "signal", sig.String())
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := s.Shutdown(ctx); err != nil {
				s.logger.Error("signal shutdown did not drain", "error", err)
			}
		case <-done:
		}
		signal.Stop(ch)
	}()

	return func() { close(done) }
}
