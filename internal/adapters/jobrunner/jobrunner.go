// Package jobrunner provides the reference Job Runner backend: one external
// one-shot job per Check attempt, driven through the orchestrator client.
package jobrunner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/checkwatch/checkwatch/internal/checkapi"
	"github.com/checkwatch/checkwatch/internal/domain/check"
	"github.com/checkwatch/checkwatch/internal/ports"
	"github.com/google/uuid"
)

// JobSnapshot mirrors orchestrator.JobSnapshot; declared locally so this
// package depends on a narrow interface rather than the concrete adapter.
type JobSnapshot struct {
	Active    bool
	Succeeded bool
	Failed    bool
	StartTime time.Time
}

// Backend is the subset of the orchestrator client the Runner needs to
// create, observe, and tear down one-shot jobs.
type Backend interface {
	CreateJob(ctx context.Context, namespace, name string, podTemplate map[string]any) error
	GetJobStatus(ctx context.Context, namespace, name string) (JobSnapshot, error)
	GetJobLogs(ctx context.Context, namespace, name string) (string, error)
	DeleteJob(ctx context.Context, namespace, name string) error
}

// Options configures a Factory.
type Options struct {
	Client Backend
	Logger *slog.Logger
}

// Factory constructs one JobRunner per Check. The Controller calls it once
// each time it builds a Scheduler for a Check, and that Scheduler reuses the
// returned ports.JobRunner across every attempt for its lifetime.
type Factory func(cfg check.Config) ports.JobRunner

// NewFactory builds a Factory backed by the given orchestrator Backend.
func NewFactory(opts Options) Factory {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default().With("component", "jobrunner")
	}
	return func(cfg check.Config) ports.JobRunner {
		return &Runner{
			client:    opts.Client,
			logger:    logger,
			namespace: cfg.Namespace,
			name:      cfg.Name,
		}
	}
}

// Runner drives a single Check's one-shot jobs through a Backend. Runner
// instances are not safe for concurrent Start/Poll/Logs/Destroy calls; the
// Scheduler serializes attempts for a given Check by construction.
type Runner struct {
	client    Backend
	logger    *slog.Logger
	namespace string
	name      string

	correlationID string
}

var _ ports.JobRunner = (*Runner)(nil)

// Start submits a new job for this attempt, built from the Check's
// configured workload spec.
func (r *Runner) Start(ctx context.Context, cfg check.Config) error {
	r.correlationID = uuid.NewString()
	podTemplate := checkapi.ResolveTemplate(r.namespace, r.name, cfg.Spec)

	if err := r.client.CreateJob(ctx, r.namespace, r.name, podTemplate); err != nil {
		return fmt.Errorf("start job %s/%s: %w", r.namespace, r.name, err)
	}

	r.logger.InfoContext(ctx, "job started",
		"namespace", r.namespace, "name", r.name, "correlation_id", r.correlationID)
	return nil
}

// Poll returns the current job status.
func (r *Runner) Poll(ctx context.Context) (ports.JobStatus, error) {
	snap, err := r.client.GetJobStatus(ctx, r.namespace, r.name)
	if err != nil {
		return ports.JobStatus{}, fmt.Errorf("poll job %s/%s: %w", r.namespace, r.name, err)
	}
	return ports.JobStatus{
		Active:    snap.Active,
		Succeeded: snap.Succeeded,
		Failed:    snap.Failed,
		StartTime: snap.StartTime,
	}, nil
}

// Logs fetches the job's currently available pod output.
func (r *Runner) Logs(ctx context.Context) (string, error) {
	logs, err := r.client.GetJobLogs(ctx, r.namespace, r.name)
	if err != nil {
		return "", fmt.Errorf("fetch logs %s/%s: %w", r.namespace, r.name, err)
	}
	return logs, nil
}

// Destroy removes the job and its pods. A missing job is not an error.
func (r *Runner) Destroy(ctx context.Context) error {
	if err := r.client.DeleteJob(ctx, r.namespace, r.name); err != nil {
		return fmt.Errorf("destroy job %s/%s: %w", r.namespace, r.name, err)
	}
	r.logger.InfoContext(ctx, "job destroyed",
		"namespace", r.namespace, "name", r.name, "correlation_id", r.correlationID)
	return nil
}
