// Package metrics translates Check Scheduler and Controller events into
// StatsD-shaped samples.
package metrics

import (
	"strconv"
	"strings"
	"time"

	"github.com/checkwatch/checkwatch/internal/domain/check"
	obserrors "github.com/checkwatch/checkwatch/internal/observability/errors"
	"github.com/checkwatch/checkwatch/internal/observability/statsd"
)

// AttemptOutcome captures the details of one completed attempt, sufficient
// to emit the three per-attempt samples named in spec.md §4.2.5.
type AttemptOutcome struct {
	Namespace string
	Name      string
	Status    check.Status
	Escalated bool
	Runtime   time.Duration
}

// EmitAttempt emits the three per-attempt metric samples: check_runtime,
// check_<status>_count, and check_escalations.
func EmitAttempt(sink statsd.Sink, in AttemptOutcome) {
	if sink == nil {
		return
	}

	tags := map[string]string{
		"name":      in.Name,
		"namespace": in.Namespace,
		"status":    string(in.Status),
		"escalated": strconv.FormatBool(in.Escalated),
	}

	sink.Gauge("check_runtime", in.Runtime.Seconds(), CloneTags(tags))

	statusCounter := "check_" + strings.ToLower(string(in.Status)) + "_count"
	sink.Count(statusCounter, 1, CloneTags(tags))

	escalations := float64(0)
	if in.Escalated {
		escalations = 1
	}
	sink.Gauge("check_escalations", escalations, CloneTags(tags))
}

// AuditDivergenceClass names a kind of cluster-audit divergence for metric
// tagging. These are supplemental telemetry (SPEC_FULL §8): the original
// logged divergence; this also counts it.
type AuditDivergenceClass string

const (
	AuditStatusMismatch   AuditDivergenceClass = "status_mismatch"
	AuditOrphanScheduler  AuditDivergenceClass = "orphan_scheduler"
	AuditMissingScheduler AuditDivergenceClass = "missing_scheduler"
)

// EmitAuditDivergence counts one instance of a cluster-audit divergence.
func EmitAuditDivergence(sink statsd.Sink, namespace, name string, class AuditDivergenceClass) {
	if sink == nil {
		return
	}
	sink.Count("controller.audit."+string(class), 1, map[string]string{
		"namespace": namespace,
		"name":      name,
	})
}

// EmitAuditTick emits the duration of one completed cluster audit pass.
func EmitAuditTick(sink statsd.Sink, duration time.Duration, err error) {
	if sink == nil {
		return
	}
	tags := map[string]string{"result": "success"}
	if err != nil {
		tags["result"] = "error"
		if class := obserrors.Classify(err); class != "" {
			tags["error_class"] = class
		}
	}
	sink.Timing("controller.audit.duration", duration, tags)
}

// CloneTags creates a shallow copy of a tag map, returning nil for an empty
// one. Every key is copied as-is.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
