package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/checkwatch/checkwatch/internal/adapters/jobrunner"
	"github.com/checkwatch/checkwatch/internal/domain/check"
	"github.com/checkwatch/checkwatch/internal/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu   sync.Mutex
	last check.CheckStatus
	n    int
}

func (r *recordingSink) PublishStatus(_ context.Context, _ check.Config, status check.CheckStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.last = status
	r.n++
	return nil
}

func (r *recordingSink) snapshot() (check.CheckStatus, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last, r.n
}

type recordingEscalator struct {
	mu    sync.Mutex
	calls []bool // recovery flag per call
}

func (e *recordingEscalator) Notify(_ context.Context, _ check.Config, _ check.CheckStatus, recovery bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, recovery)
	return nil
}

func (e *recordingEscalator) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.calls)
}

func testConfig() check.Config {
	cfg := check.Config{
		Namespace:       "prod",
		Name:            "api-health",
		CheckInterval:   50 * time.Millisecond,
		RetryInterval:   20 * time.Millisecond,
		MaxAttempts:     3,
		JobPollInterval: 5 * time.Millisecond,
	}
	cfg.Sanitize()
	return cfg
}

func TestSchedulerHappyPathResetsAttemptOnOK(t *testing.T) {
	fake := &jobrunner.Fake{StatusSequence: []ports.JobStatus{{Succeeded: true}}}
	sink := &recordingSink{}

	s := NewScheduler(Options{
		Config: testConfig(),
		Runner: fake,
		Sink:   sink,
	})
	defer s.Terminate(context.Background(), true)

	require.Eventually(t, func() bool {
		snap := s.Snapshot()
		return snap.Status == check.StatusOK && snap.Attempt == 0
	}, 2*time.Second, 5*time.Millisecond)
}

func TestSchedulerEscalatesAfterMaxAttempts(t *testing.T) {
	fake := &jobrunner.Fake{StatusSequence: []ports.JobStatus{{Failed: true}}}
	sink := &recordingSink{}
	esc := &recordingEscalator{}

	cfg := testConfig()
	cfg.NotificationInterval = time.Hour // keep it from firing again during the assertion window

	s := NewScheduler(Options{
		Config:    cfg,
		Runner:    fake,
		Sink:      sink,
		Escalator: esc,
	})
	defer s.Terminate(context.Background(), true)

	require.Eventually(t, func() bool {
		snap := s.Snapshot()
		return snap.Escalated && snap.Attempt >= cfg.MaxAttempts
	}, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, 1, esc.count())
	assert.False(t, esc.calls[0], "first escalation call must have recovery=false")
}

func TestSchedulerRecoversAfterEscalation(t *testing.T) {
	fake := &jobrunner.Fake{StatusSequence: []ports.JobStatus{
		{Failed: true}, {Failed: true}, {Failed: true}, {Succeeded: true},
	}}
	esc := &recordingEscalator{}

	cfg := testConfig()
	cfg.NotificationInterval = 5 * time.Millisecond

	s := NewScheduler(Options{
		Config:    cfg,
		Runner:    fake,
		Sink:      &recordingSink{},
		Escalator: esc,
	})
	defer s.Terminate(context.Background(), true)

	require.Eventually(t, func() bool {
		return esc.count() >= 2
	}, 2*time.Second, 5*time.Millisecond)

	assert.False(t, esc.calls[0])
	assert.True(t, esc.calls[1], "second escalation call must be a recovery")

	require.Eventually(t, func() bool {
		snap := s.Snapshot()
		return snap.Status == check.StatusOK && !snap.Escalated && snap.Attempt == 0
	}, 2*time.Second, 5*time.Millisecond)
}

func TestSchedulerCrashRecoveryMidRunDecrementsAttempt(t *testing.T) {
	pre := &check.CheckStatus{
		State:     check.StateRunning,
		Attempt:   2,
		NextCheck: time.Now().Add(-5 * time.Second),
	}

	s := NewScheduler(Options{
		Config:    testConfig(),
		PreStatus: pre,
		Runner:    &jobrunner.Fake{},
		Sink:      &recordingSink{},
	})
	defer s.Terminate(context.Background(), false)

	snap := s.Snapshot()
	assert.Equal(t, 1, snap.Attempt)
	assert.Equal(t, check.StateIdle, snap.State)
}

func TestSchedulerCrashRecoveryIdlePreservesAttemptAndFutureArm(t *testing.T) {
	pre := &check.CheckStatus{
		State:     check.StateIdle,
		Attempt:   1,
		NextCheck: time.Now().Add(30 * time.Second),
	}

	s := NewScheduler(Options{
		Config:    testConfig(),
		PreStatus: pre,
		Runner:    &jobrunner.Fake{},
		Sink:      &recordingSink{},
		Now:       time.Now,
	})
	defer s.Terminate(context.Background(), false)

	snap := s.Snapshot()
	assert.Equal(t, 1, snap.Attempt)
	assert.Equal(t, check.StateIdle, snap.State)
}

func TestSchedulerTerminateIsIdempotent(t *testing.T) {
	s := NewScheduler(Options{
		Config: testConfig(),
		Runner: &jobrunner.Fake{},
		Sink:   &recordingSink{},
	})

	s.Terminate(context.Background(), true)
	s.Terminate(context.Background(), true) // must not panic or block
}

func TestSchedulerEmitsThreeMetricSamplesPerAttempt(t *testing.T) {
	fake := &jobrunner.Fake{StatusSequence: []ports.JobStatus{{Succeeded: true}}}
	counting := &countingMetricsSink{}

	s := NewScheduler(Options{
		Config:  testConfig(),
		Runner:  fake,
		Sink:    &recordingSink{},
		Metrics: counting,
	})
	defer s.Terminate(context.Background(), true)

	require.Eventually(t, func() bool {
		return counting.total() >= 3
	}, 2*time.Second, 5*time.Millisecond)
}

type countingMetricsSink struct {
	mu    sync.Mutex
	count int
}

func (c *countingMetricsSink) Count(string, int64, map[string]string) {
	c.mu.Lock()
	c.count++
	c.mu.Unlock()
}

func (c *countingMetricsSink) Gauge(string, float64, map[string]string) {
	c.mu.Lock()
	c.count++
	c.mu.Unlock()
}

func (c *countingMetricsSink) Timing(string, time.Duration, map[string]string) {
	c.mu.Lock()
	c.count++
	c.mu.Unlock()
}

func (c *countingMetricsSink) total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}
