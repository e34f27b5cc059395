package logging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// Event is a single log event delivered to a callback target.
type Event struct {
	Time    time.Time
	Level   Level
	Task    string
	Message string
}

// Callback receives log events from the sink. It may be invoked from any
// goroutine, including engine workers; implementations must be safe for
// concurrent use and must not call back into the boundary.
type Callback func(Event)

// callbackHandler adapts a Callback to slog.Handler.
type callbackHandler struct {
	fn    Callback
	level Level
	attrs []slog.Attr
}

func newCallbackHandler(fn Callback, level Level) *callbackHandler {
	return &callbackHandler{fn: fn, level: level}
}

func (h *callbackHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *callbackHandler) Handle(_ context.Context, r slog.Record) error {
	ev := Event{
		Time:    r.Time,
		Level:   r.Level,
		Message: r.Message,
	}

	extract := func(a slog.Attr) {
		if a.Key == "task" {
			ev.Task = a.Value.String()
		}
	}
	for _, a := range h.attrs {
		extract(a)
	}
	r.Attrs(func(a slog.Attr) bool {
		extract(a)
		return true
	})

	h.fn(ev)
	return nil
}

func (h *callbackHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	nh := *h
	nh.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &nh
}

func (h *callbackHandler) WithGroup(string) slog.Handler {
	// Groups carry no meaning for a flat event callback.
	return h
}

// bufferState is the line store shared by every With()-derived view of a
// buffer target, so child loggers all feed the same ring.
type bufferState struct {
	mu    sync.Mutex
	lines []string
	max   int
}

func (s *bufferState) append(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = append(s.lines, line)
	if len(s.lines) > s.max {
		s.lines = s.lines[len(s.lines)-s.max:]
	}
}

func (s *bufferState) drain() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := strings.Join(s.lines, "\n")
	s.lines = nil
	return out
}

// bufferHandler retains formatted log lines in a bounded ring. Callers drain
// it through FetchBuffer. Oldest lines are dropped once the cap is reached.
type bufferHandler struct {
	state *bufferState
	level Level
	attrs []slog.Attr
}

func newBufferHandler(level Level, max int) *bufferHandler {
	if max <= 0 {
		max = 1000
	}
	return &bufferHandler{state: &bufferState{max: max}, level: level}
}

func (h *bufferHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *bufferHandler) Handle(_ context.Context, r slog.Record) error {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %s", r.Time.Format(time.RFC3339), r.Level)
	for _, a := range h.attrs {
		fmt.Fprintf(&sb, " %s=%v", a.Key, a.Value)
	}
	fmt.Fprintf(&sb, " %s", r.Message)
	r.Attrs(func(a slog.Attr) bool {
		fmt.Fprintf(&sb, " %s=%v", a.Key, a.Value)
		return true
	})

	h.state.append(sb.String())
	return nil
}

func (h *bufferHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &bufferHandler{
		state: h.state,
		level: h.level,
		attrs: append(append([]slog.Attr{}, h.attrs...), attrs...),
	}
}

func (h *bufferHandler) WithGroup(string) slog.Handler {
	return h
}

// fanoutHandler delivers each record to every attached sink target. A
// failing target does not stop delivery to the rest; its error surfaces
// in the joined result.
type fanoutHandler struct {
	targets []slog.Handler
}

func newFanoutHandler(targets ...slog.Handler) *fanoutHandler {
	return &fanoutHandler{targets: targets}
}

func (h *fanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, target := range h.targets {
		if target.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *fanoutHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, target := range h.targets {
		if !target.Enabled(ctx, r.Level) {
			continue
		}
		if err := target.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (h *fanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	targets := make([]slog.Handler, len(h.targets))
	for i, target := range h.targets {
		targets[i] = target.WithAttrs(attrs)
	}
	return &fanoutHandler{targets: targets}
}

func (h *fanoutHandler) WithGroup(name string) slog.Handler {
	targets := make([]slog.Handler, len(h.targets))
	for i, target := range h.targets {
		targets[i] = target.WithGroup(name)
	}
	return &fanoutHandler{targets: targets}
}
