package controller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/checkwatch/checkwatch/internal/adapters/jobrunner"
	"github.com/checkwatch/checkwatch/internal/domain/check"
	"github.com/checkwatch/checkwatch/internal/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeOrchestrator is a hand-written stub satisfying ports.OrchestratorClient.
// Its first Watch call replays a fixed batch of events then closes the
// channel (a non-fatal stream end); every subsequent Watch call blocks
// until the caller's context is cancelled, so tests can assert on the
// reopened-stream behaviour without an infinite reconnect loop.
type fakeOrchestrator struct {
	mu         sync.Mutex
	events     []ports.Event
	watchCalls int
	listResult []ports.ResourceObject
	listErr    error
	published  []check.CheckStatus
}

func (f *fakeOrchestrator) Watch(ctx context.Context, _ string) (<-chan ports.Event, error) {
	f.mu.Lock()
	f.watchCalls++
	n := f.watchCalls
	f.mu.Unlock()

	ch := make(chan ports.Event)
	go func() {
		defer close(ch)
		if n != 1 {
			<-ctx.Done()
			return
		}
		for _, evt := range f.events {
			select {
			case ch <- evt:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

func (f *fakeOrchestrator) ListChecks(ctx context.Context) ([]ports.ResourceObject, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listResult, f.listErr
}

func (f *fakeOrchestrator) PublishStatus(_ context.Context, _ check.Config, status check.CheckStatus) error {
	f.mu.Lock()
	f.published = append(f.published, status)
	f.mu.Unlock()
	return nil
}

func (f *fakeOrchestrator) watchCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.watchCalls
}

type countingFactory struct {
	mu    sync.Mutex
	count int
}

func (f *countingFactory) factory(check.Config) ports.JobRunner {
	f.mu.Lock()
	f.count++
	f.mu.Unlock()
	return &jobrunner.Fake{StatusSequence: []ports.JobStatus{{Active: true}}}
}

func (f *countingFactory) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.count
}

func addedObject(namespace, name string, checkInterval string) ports.ResourceObject {
	return ports.ResourceObject{
		Namespace:       namespace,
		Name:            name,
		ResourceVersion: "1",
		Spec: map[string]any{
			"check_interval": checkInterval,
			"image":          "probe:latest",
		},
	}
}

func runControllerUntil(t *testing.T, ctrl *Controller, ctx context.Context) <-chan error {
	t.Helper()
	errCh := make(chan error, 1)
	go func() { errCh <- ctrl.Run(ctx) }()
	return errCh
}

func TestControllerAddedBuildsScheduler(t *testing.T) {
	orch := &fakeOrchestrator{events: []ports.Event{
		{Op: ports.EventAdded, Object: addedObject("prod", "api-health", "1")},
	}}
	factory := &countingFactory{}
	ctrl := New(Options{Orchestrator: orch, JobFactory: factory.factory, AuditInterval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runControllerUntil(t, ctrl, ctx)

	require.Eventually(t, func() bool {
		return ctrl.SchedulerCount() == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, factory.total())
}

func TestControllerModifiedWithMaterialDiffReplacesScheduler(t *testing.T) {
	orch := &fakeOrchestrator{events: []ports.Event{
		{Op: ports.EventAdded, Object: addedObject("prod", "api-health", "1")},
		{Op: ports.EventModified, Object: addedObject("prod", "api-health", "2")},
	}}
	factory := &countingFactory{}
	ctrl := New(Options{Orchestrator: orch, JobFactory: factory.factory, AuditInterval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runControllerUntil(t, ctrl, ctx)

	require.Eventually(t, func() bool {
		return factory.total() == 2
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, ctrl.SchedulerCount())
}

func TestControllerModifiedEchoIsIgnored(t *testing.T) {
	orch := &fakeOrchestrator{events: []ports.Event{
		{Op: ports.EventAdded, Object: addedObject("prod", "api-health", "1")},
		{Op: ports.EventModified, Object: addedObject("prod", "api-health", "1")},
	}}
	factory := &countingFactory{}
	ctrl := New(Options{Orchestrator: orch, JobFactory: factory.factory, AuditInterval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runControllerUntil(t, ctrl, ctx)

	require.Eventually(t, func() bool {
		return orch.watchCallCount() >= 2 // stream re-opened after the first batch
	}, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, 1, factory.total(), "a status-only echo must not rebuild the scheduler")
	assert.Equal(t, 1, ctrl.SchedulerCount())
}

func TestControllerDeletedRemovesScheduler(t *testing.T) {
	orch := &fakeOrchestrator{events: []ports.Event{
		{Op: ports.EventAdded, Object: addedObject("prod", "api-health", "1")},
		{Op: ports.EventDeleted, Object: ports.ResourceObject{Namespace: "prod", Name: "api-health"}},
	}}
	factory := &countingFactory{}
	ctrl := New(Options{Orchestrator: orch, JobFactory: factory.factory, AuditInterval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runControllerUntil(t, ctrl, ctx)

	require.Eventually(t, func() bool {
		return ctrl.SchedulerCount() == 0
	}, 2*time.Second, 5*time.Millisecond)
}

func TestControllerDeletedForUnknownNameIsNoOp(t *testing.T) {
	orch := &fakeOrchestrator{events: []ports.Event{
		{Op: ports.EventDeleted, Object: ports.ResourceObject{Namespace: "prod", Name: "never-declared"}},
	}}
	ctrl := New(Options{Orchestrator: orch, AuditInterval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := runControllerUntil(t, ctrl, ctx)

	require.Eventually(t, func() bool {
		return orch.watchCallCount() >= 2
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, ctrl.SchedulerCount())

	cancel()
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("controller did not stop after cancel")
	}
}

func TestControllerErrorEventExitsWithErrStream(t *testing.T) {
	orch := &fakeOrchestrator{events: []ports.Event{
		{Op: ports.EventError, Err: errors.New("crd definition changed")},
	}}
	ctrl := New(Options{Orchestrator: orch, AuditInterval: time.Hour})

	errCh := runControllerUntil(t, ctrl, context.Background())

	select {
	case err := <-errCh:
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrStream)
	case <-time.After(2 * time.Second):
		t.Fatal("controller did not exit on ERROR event")
	}
}

func TestControllerAuditLogsDivergenceWithoutMutatingScheduler(t *testing.T) {
	orch := &fakeOrchestrator{
		events: []ports.Event{
			{Op: ports.EventAdded, Object: addedObject("prod", "api-health", "1")},
		},
		listResult: []ports.ResourceObject{
			{
				Namespace: "prod",
				Name:      "api-health",
				Status: map[string]any{
					"status":  "CRITICAL",
					"state":   "IDLE",
					"attempt": "7",
				},
			},
		},
	}
	factory := &countingFactory{}
	ctrl := New(Options{Orchestrator: orch, JobFactory: factory.factory, AuditInterval: 20 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runControllerUntil(t, ctrl, ctx)

	require.Eventually(t, func() bool {
		return ctrl.SchedulerCount() == 1
	}, 2*time.Second, 5*time.Millisecond)

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, ctrl.SchedulerCount(), "audit must not mutate or replace schedulers")
	assert.Equal(t, 1, factory.total())
}
