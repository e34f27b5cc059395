package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/getpactd/pactd/internal/id"
	"github.com/getpactd/pactd/pkg/logging"
)

// ErrShutDown is returned by Run after Shutdown has begun.
var ErrShutDown = errors.New("engine: scheduler is shut down")

// Task is a unit of work executed on a scheduler worker. The context passed
// in is the one the submitter gave to Run.
type Task func(ctx context.Context) error

// PanicError wraps a panic recovered inside a worker. Tasks run on worker
// goroutines, so a deferred recover at the submission site would never see
// their panics; the scheduler catches them and hands them back as errors.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("task panicked: %v", e.Value)
}

// Config tunes the scheduler.
type Config struct {
	// Workers is the number of pool workers. Defaults to 4.
	Workers int

	// QueueDepth is the task queue buffer. Defaults to Workers.
	QueueDepth int

	// HandleSignals installs SIGINT/SIGTERM handlers that shut the
	// scheduler down. It defaults to false and should stay false when the
	// engine is embedded in a host runtime: worker goroutine stacks are not
	// registered with the host's signal machinery, and a host that installs
	// its own handlers (preemption, memory-protection diagnostics) can
	// fault when a signal lands on one of our workers. Opting in means the
	// embedder has reconciled the two regimes.
	HandleSignals bool

	// Logger receives scheduler diagnostics. Defaults to the process sink.
	Logger *slog.Logger
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.Workers <= 0 {
		out.Workers = 4
	}
	if out.QueueDepth <= 0 {
		out.QueueDepth = out.Workers
	}
	if out.Logger == nil {
		out.Logger = logging.Default()
	}
	return out
}

type job struct {
	ctx   context.Context
	fn    Task
	label string
	done  chan error
}

// Scheduler is a fixed pool of workers consuming a task queue.
type Scheduler struct {
	cfg    Config
	queue  chan *job
	logger *slog.Logger

	mu       sync.Mutex
	draining bool
	inflight sync.WaitGroup
	workers  sync.WaitGroup

	stopSignals func()
}

// NewScheduler builds a standalone scheduler. Most callers want the shared
// one via Run/Shutdown on the package-level coordinator instead.
func NewScheduler(cfg Config) *Scheduler {
	cfg = cfg.withDefaults()
	s := &Scheduler{
		cfg:    cfg,
		queue:  make(chan *job, cfg.QueueDepth),
		logger: cfg.Logger,
	}
	s.workers.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go s.worker(i)
	}
	if cfg.HandleSignals {
		s.stopSignals = notifyShutdown(s)
	}
	s.logger.Debug("scheduler started", "workers", cfg.Workers, "queue", cfg.QueueDepth)
	return s
}

func (s *Scheduler) worker(n int) {
	defer s.workers.Done()
	for j := range s.queue {
		log := s.logger.With("task", j.label, "worker", n)
		log.Debug("task started")
		err := s.runOne(j)
		if err != nil {
			log.Debug("task finished", "error", err)
		} else {
			log.Debug("task finished")
		}
		j.done <- err
	}
}

func (s *Scheduler) runOne(j *job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
			s.logger.Error("task panicked", "task", j.label, "panic", r)
		}
	}()
	return j.fn(j.ctx)
}

// Run submits a task and blocks until its result is available. The result
// is returned on the calling goroutine; there are no suspension points
// visible to the caller. Once a task has been accepted its completion is
// always waited for, even if ctx is cancelled meanwhile: the task sees the
// cancellation through its own context and winds down on its own terms.
func (s *Scheduler) Run(ctx context.Context, task Task) error {
	j := &job{ctx: ctx, fn: task, label: id.Short(), done: make(chan error, 1)}

	s.mu.Lock()
	if s.draining {
		s.mu.Unlock()
		return ErrShutDown
	}
	s.inflight.Add(1)
	s.mu.Unlock()
	defer s.inflight.Done()

	select {
	case s.queue <- j:
	case <-ctx.Done():
		return ctx.Err()
	}
	return <-j.done
}

// Shutdown stops accepting tasks, waits for in-flight ones to finish, and
// releases the workers. It returns ctx.Err() if the drain outlives ctx; the
// workers still wind down in the background in that case.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.draining {
		s.mu.Unlock()
		return nil
	}
	s.draining = true
	s.mu.Unlock()

	if s.stopSignals != nil {
		s.stopSignals()
	}

	drained := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(s.queue)
		s.workers.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		s.logger.Debug("scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// coordinator owns the process-shared scheduler. A plain mutex rather than
// sync.Once guards construction, so Shutdown followed by Run rebuilds a
// fresh pool instead of leaving the package unusable.
var coordinator struct {
	mu    sync.Mutex
	cfg   Config
	sched *Scheduler
}

// Configure sets the configuration used the next time the shared scheduler
// is built. It returns an error while a scheduler is live; shut it down
// first.
func Configure(cfg Config) error {
	coordinator.mu.Lock()
	defer coordinator.mu.Unlock()
	if coordinator.sched != nil {
		return errors.New("engine: scheduler already running")
	}
	coordinator.cfg = cfg
	return nil
}

// Shared returns the process scheduler, building it on first use.
func Shared() *Scheduler {
	coordinator.mu.Lock()
	defer coordinator.mu.Unlock()
	if coordinator.sched == nil {
		coordinator.sched = NewScheduler(coordinator.cfg)
	}
	return coordinator.sched
}

// Run executes a task on the shared scheduler, blocking until it completes.
func Run(ctx context.Context, task Task) error {
	return Shared().Run(ctx, task)
}

// Shutdown drains and releases the shared scheduler. A later Run builds a
// new one.
func Shutdown(ctx context.Context) error {
	coordinator.mu.Lock()
	s := coordinator.sched
	coordinator.sched = nil
	coordinator.mu.Unlock()
	if s == nil {
		return nil
	}
	return s.Shutdown(ctx)
}
