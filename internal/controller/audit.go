package controller

import (
	"context"
	"fmt"
	"time"

	"github.com/checkwatch/checkwatch/internal/checkapi"
	"github.com/checkwatch/checkwatch/internal/observability/metrics"
	"github.com/checkwatch/checkwatch/internal/ports"
	"github.com/checkwatch/checkwatch/internal/scheduler"
)

// runAuditLoop re-arms a ticker at auditInterval and runs the cluster audit
// on each tick, per spec.md §4.3.2. The audit is observational: it only
// logs divergence and emits metrics, never mutates a scheduler.
func (c *Controller) runAuditLoop(ctx context.Context) error {
	ticker := time.NewTicker(c.auditInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			c.runAuditOnce(ctx)
		}
	}
}

func (c *Controller) runAuditOnce(ctx context.Context) {
	start := c.now()
	err := c.audit(ctx)
	metrics.EmitAuditTick(c.metrics, c.now().Sub(start), err)
	if err != nil {
		c.logger.ErrorContext(ctx, "cluster audit failed", "error", err)
	}
}

func (c *Controller) audit(ctx context.Context) error {
	objs, err := c.orchestrator.ListChecks(ctx)
	if err != nil {
		return fmt.Errorf("list checks for cluster audit: %w", err)
	}

	declared := make(map[string]ports.ResourceObject, len(objs))
	for _, obj := range objs {
		declared[obj.Namespace+"/"+obj.Name] = obj
	}

	c.mu.Lock()
	live := make(map[string]*scheduler.Scheduler, len(c.schedulers))
	for k, v := range c.schedulers {
		live[k] = v
	}
	c.mu.Unlock()

	for key, obj := range declared {
		sched, ok := live[key]
		if !ok {
			c.logger.WarnContext(ctx, "cluster audit: declared check has no scheduler", "key", key)
			metrics.EmitAuditDivergence(c.metrics, obj.Namespace, obj.Name, metrics.AuditMissingScheduler)
			continue
		}
		c.auditOne(ctx, obj, sched)
	}

	for key, sched := range live {
		if _, ok := declared[key]; ok {
			continue
		}
		cfg := sched.Config()
		c.logger.WarnContext(ctx, "cluster audit: orphan scheduler with no declared check", "key", key)
		metrics.EmitAuditDivergence(c.metrics, cfg.Namespace, cfg.Name, metrics.AuditOrphanScheduler)
	}

	return nil
}

func (c *Controller) auditOne(ctx context.Context, obj ports.ResourceObject, sched *scheduler.Scheduler) {
	persisted := checkapi.DecodePreStatus(obj.Status)
	if persisted == nil {
		return
	}

	live := sched.Snapshot()
	if persisted.Status == live.Status && persisted.State == live.State && persisted.Attempt == live.Attempt {
		return
	}

	cfg := sched.Config()
	c.logger.WarnContext(ctx, "cluster audit: status divergence",
		"key", cfg.Key(),
		"persisted_status", persisted.Status, "live_status", live.Status,
		"persisted_state", persisted.State, "live_state", live.State,
		"persisted_attempt", persisted.Attempt, "live_attempt", live.Attempt,
	)
	metrics.EmitAuditDivergence(c.metrics, cfg.Namespace, cfg.Name, metrics.AuditStatusMismatch)
}
