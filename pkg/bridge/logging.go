package bridge

import (
	"errors"

	"github.com/getpactd/pactd/pkg/logging"
)

// LogEvent is one diagnostic record delivered to a registered callback.
type LogEvent = logging.Event

// LogCallback receives diagnostic records once the sink is applied.
type LogCallback = logging.Callback

// LogInit begins a diagnostics sink configuration, discarding any targets
// attached but not yet applied. Once a sink is installed the
// configuration is fixed for the life of the process.
func LogInit() Status {
	if err := logging.InitSink(); err != nil {
		return StatusInvalidState
	}
	return StatusOK
}

// LogAttachSink adds a target to the pending sink configuration.
// Recognized specifiers are "stdout", "stderr", "buffer", and
// "file <path>". The level string follows slog conventions ("debug",
// "info", "warn", "error").
func LogAttachSink(spec, level string) Status {
	err := logging.AttachSink(spec, logging.ParseLevel(level))
	switch {
	case err == nil:
		return StatusOK
	case errors.Is(err, logging.ErrSinkConfigured):
		return StatusInvalidState
	case errors.Is(err, logging.ErrUnknownTarget):
		return StatusInvalidArgument
	default:
		return StatusIOFailure
	}
}

// LogAttachCallback adds a caller-supplied callback target to the pending
// sink configuration.
func LogAttachCallback(fn LogCallback, level string) Status {
	err := logging.AttachCallback(fn, logging.ParseLevel(level))
	switch {
	case err == nil:
		return StatusOK
	case errors.Is(err, logging.ErrSinkConfigured):
		return StatusInvalidState
	default:
		return StatusInvalidArgument
	}
}

// LogApply installs the pending targets as the process diagnostics sink.
// It succeeds at most once per process; later calls report
// StatusInvalidState and leave the installed sink untouched.
func LogApply() Status {
	err := logging.ApplySink()
	switch {
	case err == nil:
		return StatusOK
	case errors.Is(err, logging.ErrNoTargets):
		return StatusInvalidArgument
	default:
		return StatusInvalidState
	}
}

// LogToStdout configures the sink with a single stdout target at the
// given level. A convenience for hosts that want diagnostics with one
// call.
func LogToStdout(level string) Status {
	if st := LogInit(); !st.Ok() {
		return st
	}
	if st := LogAttachSink("stdout", level); !st.Ok() {
		return st
	}
	return LogApply()
}

// FetchLogBuffer drains and returns the contents of the buffer target, or
// "" when no buffer target was attached.
func FetchLogBuffer() string {
	return logging.FetchBuffer()
}
