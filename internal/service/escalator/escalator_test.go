package escalator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/checkwatch/checkwatch/internal/domain/check"
	"github.com/checkwatch/checkwatch/internal/observability/notify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu       sync.Mutex
	received []notify.EscalationPayload
	err      error
}

func (r *recordingSink) SendEscalation(_ context.Context, payload notify.EscalationPayload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.received = append(r.received, payload)
	return r.err
}

func (r *recordingSink) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.received)
}

func TestServiceNotifyFansOutToAllSinksByDefault(t *testing.T) {
	slack := &recordingSink{}
	pd := &recordingSink{}
	svc := NewService(Options{Sinks: []SinkRegistration{
		{Name: "slack", Kind: "slack", Sink: slack},
		{Name: "pagerduty", Kind: "pagerduty", Sink: pd},
	}})

	cfg := check.Config{Namespace: "prod", Name: "api-health", MaxAttempts: 3}
	status := check.CheckStatus{Status: check.StatusCritical, Attempt: 3}

	err := svc.Notify(context.Background(), cfg, status, false)
	require.NoError(t, err)

	assert.Equal(t, 1, slack.count())
	assert.Equal(t, 1, pd.count())
	assert.False(t, slack.received[0].Recovery)
	assert.Equal(t, "api-health", slack.received[0].Name)
}

func TestServiceNotifyRoutesByDeclaredTargetKind(t *testing.T) {
	slack := &recordingSink{}
	pd := &recordingSink{}
	svc := NewService(Options{Sinks: []SinkRegistration{
		{Name: "slack", Kind: "slack", Sink: slack},
		{Name: "pagerduty", Kind: "pagerduty", Sink: pd},
	}})

	cfg := check.Config{
		Namespace:   "prod",
		Name:        "api-health",
		Escalations: []check.EscalationTarget{{Kind: "pagerduty"}},
	}

	err := svc.Notify(context.Background(), cfg, check.CheckStatus{}, false)
	require.NoError(t, err)

	assert.Equal(t, 0, slack.count())
	assert.Equal(t, 1, pd.count())
}

func TestServiceNotifyNoSinksIsNoop(t *testing.T) {
	svc := NewService(Options{})
	err := svc.Notify(context.Background(), check.Config{}, check.CheckStatus{}, false)
	require.NoError(t, err)
	assert.False(t, svc.Enabled())
}

func TestRenderTemplateSubstitutesTokens(t *testing.T) {
	cfg := check.Config{Namespace: "prod", Name: "api-health", MaxAttempts: 3}
	status := check.CheckStatus{
		Status:    check.StatusCritical,
		Attempt:   3,
		LastCheck: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Logs:      "connection refused",
	}

	got := RenderTemplate("{name} in {namespace} is {status} ({attempt}/{max_attempts}): {logs} @ {last_check}", cfg, status)

	assert.Equal(t, "api-health in prod is CRITICAL (3/3): connection refused @ 2026-01-01T00:00:00Z", got)
}

func TestRenderTemplateDefaultsWhenEmpty(t *testing.T) {
	cfg := check.Config{Namespace: "prod", Name: "api-health", MaxAttempts: 3}
	status := check.CheckStatus{Status: check.StatusCritical, Attempt: 1}

	got := RenderTemplate("", cfg, status)
	assert.Contains(t, got, "prod/api-health")
	assert.Contains(t, got, "CRITICAL")
}
