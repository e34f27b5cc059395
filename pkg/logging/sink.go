package logging

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Sink configuration errors.
var (
	// ErrSinkConfigured is returned by ApplySink after the sink has already
	// been installed. The first configuration stays in effect.
	ErrSinkConfigured = errors.New("logging: sink already configured")

	// ErrNoTargets is returned by ApplySink when no target was attached.
	ErrNoTargets = errors.New("logging: no sink targets attached")

	// ErrUnknownTarget is returned by AttachSink for an unrecognized target
	// specifier.
	ErrUnknownTarget = errors.New("logging: unknown sink target")
)

// sink is the process-wide diagnostics sink. All access goes through the
// package functions below; nothing else reads these fields directly.
var sink struct {
	mu      sync.Mutex
	pending []slog.Handler
	buffer  *bufferHandler
	applied bool
	logger  *slog.Logger
}

// InitSink begins a sink configuration, discarding any targets attached but
// not yet applied. It is a no-op error after the sink has been installed.
func InitSink() error {
	sink.mu.Lock()
	defer sink.mu.Unlock()
	if sink.applied {
		return ErrSinkConfigured
	}
	sink.pending = nil
	sink.buffer = nil
	return nil
}

// AttachSink adds a target to the pending configuration. Recognized
// specifiers are "stdout", "stderr", "buffer", and "file <path>". The level
// is the minimum severity the target receives.
func AttachSink(spec string, level Level) error {
	sink.mu.Lock()
	defer sink.mu.Unlock()
	if sink.applied {
		return ErrSinkConfigured
	}

	switch {
	case spec == "stdout":
		sink.pending = append(sink.pending, NewHandler(Config{Level: level, Output: os.Stdout}))
	case spec == "stderr":
		sink.pending = append(sink.pending, NewHandler(Config{Level: level, Output: os.Stderr}))
	case spec == "buffer":
		if sink.buffer == nil {
			sink.buffer = newBufferHandler(level, 0)
			sink.pending = append(sink.pending, sink.buffer)
		}
	case strings.HasPrefix(spec, "file "):
		path := strings.TrimSpace(strings.TrimPrefix(spec, "file "))
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("logging: open sink file: %w", err)
		}
		sink.pending = append(sink.pending, NewHandler(Config{Level: level, Output: f}))
	default:
		return fmt.Errorf("%w: %q", ErrUnknownTarget, spec)
	}
	return nil
}

// AttachCallback adds a caller-supplied callback target to the pending
// configuration.
func AttachCallback(fn Callback, level Level) error {
	sink.mu.Lock()
	defer sink.mu.Unlock()
	if sink.applied {
		return ErrSinkConfigured
	}
	if fn == nil {
		return errors.New("logging: nil callback")
	}
	sink.pending = append(sink.pending, newCallbackHandler(fn, level))
	return nil
}

// ApplySink installs the pending targets as the process sink. It succeeds at
// most once per process lifetime; later calls return ErrSinkConfigured and
// leave the installed sink untouched.
func ApplySink() error {
	sink.mu.Lock()
	defer sink.mu.Unlock()
	if sink.applied {
		return ErrSinkConfigured
	}
	if len(sink.pending) == 0 {
		return ErrNoTargets
	}

	var h slog.Handler
	if len(sink.pending) == 1 {
		h = sink.pending[0]
	} else {
		h = newFanoutHandler(sink.pending...)
	}
	sink.logger = slog.New(h)
	sink.pending = nil
	sink.applied = true
	return nil
}

// Default returns the process logger. Before ApplySink it returns a no-op
// logger, so components can hold a logger unconditionally.
func Default() *slog.Logger {
	sink.mu.Lock()
	defer sink.mu.Unlock()
	if !sink.applied {
		return Nop()
	}
	return sink.logger
}

// TaskLogger returns the process logger labelled with a task identifier.
// Events produced through it are causally ordered with respect to each other;
// no order is promised against other tasks.
func TaskLogger(label string) *slog.Logger {
	return Default().With("task", label)
}

// FetchBuffer drains and returns the contents of the buffer target. Returns
// the empty string when no buffer target was attached.
func FetchBuffer() string {
	sink.mu.Lock()
	b := sink.buffer
	sink.mu.Unlock()
	if b == nil {
		return ""
	}
	return b.state.drain()
}

// resetSink reverts the sink to its unconfigured state. Tests only; the
// process contract is configure-once.
func resetSink() {
	sink.mu.Lock()
	defer sink.mu.Unlock()
	sink.pending = nil
	sink.buffer = nil
	sink.applied = false
	sink.logger = nil
}
