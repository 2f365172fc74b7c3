package controller

import (
	"context"
	"time"

	"github.com/checkwatch/checkwatch/internal/checkapi"
	"github.com/checkwatch/checkwatch/internal/ports"
)

const watchReopenBackoff = time.Second

// runEventLoop implements spec.md §4.3.1: it opens the watch stream, routes
// each decoded event to the matching handler, and reopens the stream from
// the last observed resource_version whenever it ends for any reason other
// than an explicit ERROR event. An ERROR event is fatal and returns an
// error wrapping ErrStream.
func (c *Controller) runEventLoop(ctx context.Context) error {
	for {
		events, err := c.orchestrator.Watch(ctx, c.lastResourceVersion())
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.ErrorContext(ctx, "open watch stream failed, retrying", "error", err)
			if !sleepBackoff(ctx, watchReopenBackoff) {
				return ctx.Err()
			}
			continue
		}

		if err := c.drainEvents(ctx, events); err != nil {
			return err
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logger.WarnContext(ctx, "watch stream ended, reopening", "resource_version", c.lastResourceVersion())
	}
}

// drainEvents consumes one watch stream until it closes. It returns a
// non-nil error only for the fatal ERROR case; any other stream end
// returns nil so the caller reopens the watch.
func (c *Controller) drainEvents(ctx context.Context, events <-chan ports.Event) error {
	for evt := range events {
		if evt.Op == ports.EventError {
			c.logger.ErrorContext(ctx, "received ERROR watch event, exiting", "error", evt.Err)
			return streamErr(evt.Err)
		}

		c.setResourceVersion(evt.Object.ResourceVersion)
		c.handleEvent(ctx, evt)
	}
	return nil
}

func (c *Controller) handleEvent(ctx context.Context, evt ports.Event) {
	switch evt.Op {
	case ports.EventAdded:
		c.handleAdded(ctx, evt.Object)
	case ports.EventModified:
		c.handleModified(ctx, evt.Object)
	case ports.EventDeleted:
		c.handleDeleted(ctx, evt.Object)
	default:
		c.logger.WarnContext(ctx, "received unexpected watch op, ignoring", "op", evt.Op)
	}
}

// handleAdded builds a Scheduler for a newly declared Check, per spec.md
// §4.3.1's ADDED rule. An unparseable spec is logged and skipped
// (InvalidConfig, spec.md §7) rather than treated as fatal.
func (c *Controller) handleAdded(ctx context.Context, obj ports.ResourceObject) {
	cfg, err := checkapi.DecodeConfig(obj)
	if err != nil {
		c.logger.WarnContext(ctx, "invalid check config on ADDED, skipping", "namespace", obj.Namespace, "name", obj.Name, "error", err)
		return
	}
	pre := checkapi.DecodePreStatus(obj.Status)
	key := cfg.Key()

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.schedulers[key]; exists {
		// A replayed ADDED for a name we already manage; the ordering
		// guarantee (spec.md §5) means this is not expected in steady
		// state, but is harmless to ignore.
		return
	}
	c.schedulers[key] = c.newScheduler(cfg, pre)
}

// handleModified implements spec.md §4.3.1's diff-and-replace rule: a
// material spec change terminates the existing scheduler and replaces it
// with a fresh one (no pre_status — the live status is authoritative); a
// status-only echo (the upstream API is known to echo status patches as
// MODIFIED) is ignored.
func (c *Controller) handleModified(ctx context.Context, obj ports.ResourceObject) {
	cfg, err := checkapi.DecodeConfig(obj)
	if err != nil {
		c.logger.WarnContext(ctx, "invalid check config on MODIFIED, skipping", "namespace", obj.Namespace, "name", obj.Name, "error", err)
		return
	}
	key := cfg.Key()

	c.mu.Lock()
	existing, ok := c.schedulers[key]
	c.mu.Unlock()

	if ok && existing.Config().EqualMaterial(cfg) {
		return
	}

	if ok {
		existing.Terminate(ctx, true)
	}

	fresh := c.newScheduler(cfg, nil)

	c.mu.Lock()
	c.schedulers[key] = fresh
	c.mu.Unlock()
}

// handleDeleted terminates and forgets the scheduler for a removed Check.
// A DELETED event for a name with no live scheduler is a no-op (spec.md §8
// idempotence property).
func (c *Controller) handleDeleted(ctx context.Context, obj ports.ResourceObject) {
	key := obj.Namespace + "/" + obj.Name

	c.mu.Lock()
	sched, ok := c.schedulers[key]
	if ok {
		delete(c.schedulers, key)
	}
	c.mu.Unlock()

	if !ok {
		return
	}
	sched.Terminate(ctx, true)
}

func sleepBackoff(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
