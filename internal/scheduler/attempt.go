package scheduler

import (
	"context"
	"time"

	"github.com/checkwatch/checkwatch/internal/domain/check"
	"github.com/checkwatch/checkwatch/internal/observability/metrics"
)

// runAttempt executes the spec §4.2.3 pseudo-contract for one attempt, then
// applies the outcome policy (§4.2.4) and rearms the timer. Once a Check is
// escalated at max_attempts, further attempts do not raise the counter.
func (s *Scheduler) runAttempt(ctx context.Context) {
	s.publish(ctx, s.setStatus(func(st *check.CheckStatus) {
		if !st.Escalated || st.Attempt < s.cfg.MaxAttempts {
			st.Attempt++
		}
	}))

	s.publish(ctx, s.setStatus(func(st *check.CheckStatus) {
		st.State = check.StateRunning
	}))

	start := s.now()
	outcome := s.executeJob(ctx, start)

	logs, err := s.runner.Logs(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "fetch logs failed", "error", err)
	}
	if err := s.runner.Destroy(ctx); err != nil {
		s.logger.WarnContext(ctx, "destroy job failed", "error", err)
	}

	final := s.setStatus(func(st *check.CheckStatus) {
		st.Status = outcome
		st.State = check.StateIdle
		st.Logs = logs
		st.LastCheck = s.now()
	})
	s.publish(ctx, final)

	if s.isShuttingDown() {
		return
	}

	s.applyOutcomePolicy(ctx, final)
}

// executeJob starts the job and, if it starts successfully, runs the poll
// loop. It returns the attempt's terminal status.
func (s *Scheduler) executeJob(ctx context.Context, start time.Time) check.Status {
	if err := s.runner.Start(ctx, s.cfg); err != nil {
		s.logger.ErrorContext(ctx, "job start error", "error", err)
		if derr := s.runner.Destroy(ctx); derr != nil {
			s.logger.WarnContext(ctx, "destroy after start failure", "error", derr)
		}
		return check.StatusCritical
	}
	return s.pollLoop(ctx, start)
}

// pollLoop polls the runner at job_poll_interval until the job reaches a
// terminal state, times out, or the Scheduler is asked to shut down.
func (s *Scheduler) pollLoop(ctx context.Context, start time.Time) check.Status {
	interval := s.cfg.JobPollInterval
	if interval <= 0 {
		interval = 3 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return check.StatusCritical
		case <-ticker.C:
		}

		snap, err := s.runner.Poll(ctx)
		if err != nil {
			// TransientBackendError: logged, not a signal; retry next tick.
			s.logger.WarnContext(ctx, "transient poll error", "error", err)
			continue
		}

		runtimeStart := start
		if !snap.StartTime.IsZero() {
			runtimeStart = snap.StartTime
		}
		runtime := s.now().Sub(runtimeStart)
		s.setStatus(func(st *check.CheckStatus) {
			st.Runtime = runtime
		})

		if snap.Succeeded {
			return check.StatusOK
		}
		if snap.Failed {
			return check.StatusCritical
		}
		if s.cfg.Timeout > 0 && runtime > s.cfg.Timeout {
			if derr := s.runner.Destroy(ctx); derr != nil {
				s.logger.WarnContext(ctx, "destroy after timeout", "error", derr)
			}
			return check.StatusCritical
		}
	}
}

// applyOutcomePolicy implements the spec §4.2.4 table: it decides whether to
// notify the escalator, resets or preserves attempt/escalated, computes the
// next interval, rearms the timer, and emits metrics.
func (s *Scheduler) applyOutcomePolicy(ctx context.Context, status check.CheckStatus) {
	var nextInterval time.Duration

	switch {
	case status.Status == check.StatusOK && status.Escalated:
		s.notify(ctx, status, true)
		status = s.setStatus(func(st *check.CheckStatus) {
			st.Escalated = false
			st.Attempt = 0
		})
		nextInterval = s.cfg.CheckInterval

	case status.Status == check.StatusOK:
		status = s.setStatus(func(st *check.CheckStatus) {
			st.Attempt = 0
		})
		nextInterval = s.cfg.CheckInterval

	case status.Status == check.StatusCritical && status.Attempt >= s.cfg.MaxAttempts:
		s.notify(ctx, status, false)
		status = s.setStatus(func(st *check.CheckStatus) {
			st.Escalated = true
		})
		nextInterval = s.cfg.NotificationInterval

	default:
		nextInterval = s.cfg.RetryInterval
	}

	s.emitMetrics(status)

	next := s.setStatus(func(st *check.CheckStatus) {
		st.NextCheck = s.now().Add(nextInterval)
	})
	s.publish(ctx, next)

	s.armTimer(nextInterval)
}

func (s *Scheduler) notify(ctx context.Context, status check.CheckStatus, recovery bool) {
	if s.escalator == nil {
		return
	}
	if err := s.escalator.Notify(ctx, s.cfg, status, recovery); err != nil {
		s.logger.ErrorContext(ctx, "escalator notify failed", "recovery", recovery, "error", err)
	}
}

func (s *Scheduler) emitMetrics(status check.CheckStatus) {
	metrics.EmitAttempt(s.metrics, metrics.AttemptOutcome{
		Namespace: s.cfg.Namespace,
		Name:      s.cfg.Name,
		Status:    status.Status,
		Escalated: status.Escalated,
		Runtime:   status.Runtime,
	})
}
