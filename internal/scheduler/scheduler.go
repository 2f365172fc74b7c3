// Package scheduler implements the per-Check state machine: timing, the
// job-runner attempt loop, outcome policy, metrics emission, and status
// publication (spec §4.2).
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/checkwatch/checkwatch/internal/domain/check"
	"github.com/checkwatch/checkwatch/internal/ports"
)

// Options configures a Scheduler. PreStatus, when non-nil, is the Check's
// persisted status subresource as observed at Controller startup, used only
// to compute the initial arm delay and seed attempt/escalated state; it is
// discarded after construction.
type Options struct {
	Config    check.Config
	PreStatus *check.CheckStatus

	Runner    ports.JobRunner
	Sink      ports.StatusSink
	Escalator ports.Escalator
	Metrics   ports.MetricsSink
	Logger    *slog.Logger

	// Now, when set, overrides time.Now for tests.
	Now func() time.Time
}

// Scheduler owns one Check's timing, status, and outcome policy. A Scheduler
// runs a single background goroutine for its lifetime; callers interact
// with it only through Terminate, Snapshot and Config.
type Scheduler struct {
	cfg check.Config

	runner    ports.JobRunner
	sink      ports.StatusSink
	escalator ports.Escalator
	metrics   ports.MetricsSink
	logger    *slog.Logger
	now       func() time.Time

	mu       sync.Mutex
	status   check.CheckStatus
	shutdown bool

	timer     *time.Timer
	attemptCh chan struct{}
	done      chan struct{}
	wg        sync.WaitGroup
}

// NewScheduler constructs and starts a Scheduler for cfg. cfg must already
// be sanitized (check.Config.Sanitize) and validated.
func NewScheduler(opts Options) *Scheduler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("namespace", opts.Config.Namespace, "name", opts.Config.Name)

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	s := &Scheduler{
		cfg:       opts.Config,
		runner:    opts.Runner,
		sink:      opts.Sink,
		escalator: opts.Escalator,
		metrics:   opts.Metrics,
		logger:    logger,
		now:       now,
		attemptCh: make(chan struct{}, 1),
		done:      make(chan struct{}),
	}

	delay := s.recover(opts.PreStatus)
	s.armTimer(delay)

	s.wg.Add(1)
	go s.loop()

	return s
}

// recover seeds s.status from pre and returns the initial arm delay, per
// spec §4.2.2.
func (s *Scheduler) recover(pre *check.CheckStatus) time.Duration {
	if pre == nil {
		s.status = check.CheckStatus{Status: check.StatusPending, State: check.StateIdle}
		return s.cfg.CheckInterval
	}

	s.status = pre.Clone()

	if s.status.State == check.StateRunning {
		if s.status.Attempt > 0 {
			s.status.Attempt--
		}
		s.status.State = check.StateIdle
		return time.Second
	}

	s.status.State = check.StateIdle

	if !s.status.NextCheck.IsZero() {
		remaining := s.status.NextCheck.Sub(s.now())
		if remaining <= 0 {
			return time.Second
		}
		return remaining
	}

	return s.cfg.CheckInterval
}

func (s *Scheduler) armTimer(delay time.Duration) {
	if delay <= 0 {
		delay = time.Millisecond
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shutdown {
		return
	}
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(delay, s.signalAttempt)
}

func (s *Scheduler) signalAttempt() {
	select {
	case s.attemptCh <- struct{}{}:
	default:
	}
}

func (s *Scheduler) loop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.done:
			return
		case <-s.attemptCh:
		}

		if s.isShuttingDown() {
			return
		}
		s.runAttempt(context.Background())
	}
}

func (s *Scheduler) isShuttingDown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shutdown
}

// Snapshot returns the Scheduler's current status.
func (s *Scheduler) Snapshot() check.CheckStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status.Clone()
}

// Config returns the Check configuration this Scheduler was constructed
// with, used by the Controller's MODIFIED diff.
func (s *Scheduler) Config() check.Config {
	return s.cfg
}

// Terminate stops the timer, destroys any external job, and transitions to
// TERMINATED. Terminating an already-terminated Scheduler is a no-op. If
// join is true, Terminate blocks until any in-flight attempt finishes.
func (s *Scheduler) Terminate(ctx context.Context, join bool) {
	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		return
	}
	s.shutdown = true
	if s.timer != nil {
		s.timer.Stop()
	}
	s.mu.Unlock()

	close(s.done)

	if s.runner != nil {
		if err := s.runner.Destroy(ctx); err != nil {
			s.logger.WarnContext(ctx, "destroy on terminate failed", "error", err)
		}
	}

	if join {
		s.wg.Wait()
	}
}

// publish updates the persisted status subresource. Failures are logged and
// non-fatal; the in-memory status remains authoritative.
func (s *Scheduler) publish(ctx context.Context, status check.CheckStatus) {
	if s.sink == nil {
		return
	}
	if err := s.sink.PublishStatus(ctx, s.cfg, status); err != nil {
		s.logger.ErrorContext(ctx, "publish status failed", "error", err)
	}
}

func (s *Scheduler) setStatus(mutate func(*check.CheckStatus)) check.CheckStatus {
	s.mu.Lock()
	mutate(&s.status)
	snapshot := s.status.Clone()
	s.mu.Unlock()
	return snapshot
}
