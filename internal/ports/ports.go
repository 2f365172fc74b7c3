// Package ports declares the narrow contracts the Check Scheduler and
// Controller depend on. Every interface here is small enough that tests
// satisfy it with a hand-written stub rather than a generated mock.
package ports

import (
	"context"
	"time"

	"github.com/checkwatch/checkwatch/internal/domain/check"
)

// JobStatus is a point-in-time snapshot of a one-shot job. At most one of
// Succeeded/Failed is true. Active may be true alongside a set StartTime.
type JobStatus struct {
	Active    bool
	Succeeded bool
	Failed    bool
	StartTime time.Time
}

// JobRunner is the thin contract by which a Scheduler starts a one-shot
// external workload, polls its status, collects its logs, and tears it
// down. It never interprets outcomes; that is the Scheduler's job.
//
// Implementations must treat (namespace, name) as the job identity; two
// overlapping Start calls for the same identity are a Scheduler-layer bug,
// not something the Runner is expected to defend against.
type JobRunner interface {
	// Start creates the external job for this attempt.
	Start(ctx context.Context, cfg check.Config) error

	// Poll returns a snapshot of the job's current status.
	Poll(ctx context.Context) (JobStatus, error)

	// Logs fetches all currently available output from the job's pods.
	// Returns an empty string if none is available yet.
	Logs(ctx context.Context) (string, error)

	// Destroy requests removal of the job and its pods with foreground
	// propagation. A missing job is not an error.
	Destroy(ctx context.Context) error
}

// StatusSink patches a Check's persisted status subresource. Implementations
// should treat failures as non-fatal: the caller's in-memory status remains
// authoritative and will be republished on the next attempt.
type StatusSink interface {
	PublishStatus(ctx context.Context, cfg check.Config, status check.CheckStatus) error
}

// Escalator dispatches a rendered notification to a Check's configured
// escalation targets. recovery distinguishes a recovery notification (an
// escalated Check returning to OK) from an escalation notification
// (consecutive failures reaching max_attempts).
type Escalator interface {
	Notify(ctx context.Context, cfg check.Config, status check.CheckStatus, recovery bool) error
}

// MetricsSink accepts StatsD-shaped metric samples. It mirrors
// internal/observability/statsd.Sink so the Scheduler and Controller depend
// on a domain-local contract rather than the concrete transport.
type MetricsSink interface {
	Count(name string, value int64, tags map[string]string)
	Gauge(name string, value float64, tags map[string]string)
	Timing(name string, value time.Duration, tags map[string]string)
}

// EventOp is the kind of change an orchestrator event stream entry reports.
type EventOp string

const (
	EventAdded    EventOp = "ADDED"
	EventModified EventOp = "MODIFIED"
	EventDeleted  EventOp = "DELETED"
	EventError    EventOp = "ERROR"
)

// ResourceObject is a declared Check object as read from the orchestrator
// API: identity, raw spec fields (parsed by the controller into a
// check.Config), and the persisted status subresource (used to build
// pre_status on ADDED / controller startup).
type ResourceObject struct {
	Namespace       string
	Name            string
	ResourceVersion string

	Spec   map[string]any
	Status map[string]any
}

// Event is one entry from the orchestrator's watch stream.
type Event struct {
	Op     EventOp
	Object ResourceObject
	Err    error
}

// EventStream tails the orchestrator API's watch endpoint for Check
// resources, resuming from resourceVersion when it is non-empty.
type EventStream interface {
	Watch(ctx context.Context, resourceVersion string) (<-chan Event, error)
}

// ResourceLister lists every currently declared Check, used by the
// Controller's periodic cluster audit.
type ResourceLister interface {
	ListChecks(ctx context.Context) ([]ResourceObject, error)
}

// OrchestratorClient bundles the capabilities the Controller and its
// Schedulers need from the orchestrator API: listing and watching Check
// resources, and patching a Check's status subresource. Its
// wire protocol is intentionally unspecified; see
// internal/adapters/orchestrator for the reference implementation.
type OrchestratorClient interface {
	EventStream
	ResourceLister
	StatusSink
}

// Clients is the construction-time bundle of external collaborators,
// replacing the ad hoc global API client singletons a naive port would
// reach for: everything a Scheduler or Controller needs is wired once at
// startup and passed down explicitly.
type Clients struct {
	Orchestrator OrchestratorClient
	Escalator    Escalator
	Metrics      MetricsSink
}
