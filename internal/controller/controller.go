// Package controller implements the Controller: it tails the orchestrator's
// Check event stream, owns one Scheduler per declared Check, and runs a
// periodic cluster audit (spec.md §4.3), grounded on the original
// mozalert.Controller's run/check_cluster loops and adapted to the
// teacher's errgroup-supervised background-service shape
// (internal/adapters/rulesrunner.Runner.Run).
package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/checkwatch/checkwatch/internal/adapters/jobrunner"
	"github.com/checkwatch/checkwatch/internal/domain/check"
	"github.com/checkwatch/checkwatch/internal/ports"
	"github.com/checkwatch/checkwatch/internal/scheduler"
	"golang.org/x/sync/errgroup"
)

const defaultAuditInterval = 60 * time.Second

// ErrStream marks the Controller's terminal condition on an explicit
// stream ERROR event (spec.md §4.3.1, §7's StreamError kind). cmd's
// entrypoint matches this with errors.Is and exits with code 2; a
// supervisor is expected to restart the process.
var ErrStream = errors.New("orchestrator stream reported ERROR")

// Options configures a Controller.
type Options struct {
	Orchestrator ports.OrchestratorClient
	JobFactory   jobrunner.Factory
	Escalator    ports.Escalator
	Metrics      ports.MetricsSink
	Logger       *slog.Logger

	// AuditInterval is the cluster-audit period (check_cluster_interval).
	// Defaults to 60s.
	AuditInterval time.Duration

	// Now, when set, overrides time.Now for tests.
	Now func() time.Time
}

// Controller owns the schedulers map and runs the two top-level background
// loops named in spec.md §5: the event-stream reconciler and the cluster
// audit.
type Controller struct {
	orchestrator ports.OrchestratorClient
	jobFactory   jobrunner.Factory
	escalator    ports.Escalator
	metrics      ports.MetricsSink
	logger       *slog.Logger
	auditInterval time.Duration
	now          func() time.Time

	mu         sync.Mutex
	schedulers map[string]*scheduler.Scheduler

	rvMu            sync.Mutex
	resourceVersion string
}

// New constructs a Controller. It does not start any background work until
// Run is called.
func New(opts Options) *Controller {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	auditInterval := opts.AuditInterval
	if auditInterval <= 0 {
		auditInterval = defaultAuditInterval
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Controller{
		orchestrator:  opts.Orchestrator,
		jobFactory:    opts.JobFactory,
		escalator:     opts.Escalator,
		metrics:       opts.Metrics,
		logger:        logger,
		auditInterval: auditInterval,
		now:           now,
		schedulers:    make(map[string]*scheduler.Scheduler),
	}
}

// Run blocks, tailing the event stream and running the cluster audit until
// ctx is cancelled or either loop returns an error. On an explicit stream
// ERROR event it returns an error wrapping ErrStream (spec.md §4.3.1).
func (c *Controller) Run(ctx context.Context) error {
	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error { return c.runEventLoop(gctx) })
	group.Go(func() error { return c.runAuditLoop(gctx) })

	err := group.Wait()
	c.terminateAll(context.Background())
	return err
}

// SchedulerCount reports how many Checks currently have a live scheduler.
func (c *Controller) SchedulerCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.schedulers)
}

func (c *Controller) terminateAll(ctx context.Context) {
	c.mu.Lock()
	schedulers := make([]*scheduler.Scheduler, 0, len(c.schedulers))
	for _, sched := range c.schedulers {
		schedulers = append(schedulers, sched)
	}
	c.mu.Unlock()

	for _, sched := range schedulers {
		sched.Terminate(ctx, false)
	}
}

func (c *Controller) lastResourceVersion() string {
	c.rvMu.Lock()
	defer c.rvMu.Unlock()
	return c.resourceVersion
}

func (c *Controller) setResourceVersion(v string) {
	if v == "" {
		return
	}
	c.rvMu.Lock()
	c.resourceVersion = v
	c.rvMu.Unlock()
}

func (c *Controller) newScheduler(cfg check.Config, pre *check.CheckStatus) *scheduler.Scheduler {
	var runner ports.JobRunner
	if c.jobFactory != nil {
		runner = c.jobFactory(cfg)
	}
	return scheduler.NewScheduler(scheduler.Options{
		Config:    cfg,
		PreStatus: pre,
		Runner:    runner,
		Sink:      c.orchestrator,
		Escalator: c.escalator,
		Metrics:   c.metrics,
		Logger:    c.logger,
		Now:       c.now,
	})
}

func streamErr(err error) error {
	if err == nil {
		return fmt.Errorf("%w", ErrStream)
	}
	return fmt.Errorf("%w: %v", ErrStream, err)
}
